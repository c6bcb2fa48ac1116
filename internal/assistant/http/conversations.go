package http

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	assistantDomain "github.com/allisson/capvault/internal/assistant/domain"
)

// conversations keeps the most recently used conversations of API callers.
type conversations struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *assistantDomain.Conversation]
}

func newConversations(size int) (*conversations, error) {
	cache, err := lru.New[string, *assistantDomain.Conversation](size)
	if err != nil {
		return nil, err
	}
	return &conversations{cache: cache}, nil
}

// get returns the conversation of id, creating it on first use. An empty id gets a
// conversation that is not kept.
func (c *conversations) get(id string) *assistantDomain.Conversation {
	if id == "" {
		return &assistantDomain.Conversation{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.cache.Get(id); ok {
		return conv
	}
	conv := &assistantDomain.Conversation{}
	c.cache.Add(id, conv)
	return conv
}
