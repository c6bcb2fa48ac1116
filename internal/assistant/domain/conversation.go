// Package domain defines the assistant's conversation state, replies and the
// user-facing rendering of errors.
package domain

import (
	"sync"

	routerDomain "github.com/allisson/capvault/internal/router/domain"
)

// Conversation holds the routing state of one conversation. Each REPL or API caller owns
// its own Conversation; the zero value is ready to use.
type Conversation struct {
	mu       sync.Mutex
	research bool
}

// Session returns a snapshot of the routing state.
func (c *Conversation) Session() routerDomain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return routerDomain.Session{Research: c.research}
}

// SetResearch switches research mode on or off.
func (c *Conversation) SetResearch(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.research = on
}

// ReplyKind tells how a reply was produced.
type ReplyKind string

const (
	// ReplyBuiltin is answered by the assistant itself.
	ReplyBuiltin ReplyKind = "builtin"
	// ReplyHelp is the help listing, returned for unknown commands.
	ReplyHelp ReplyKind = "help"
	// ReplyCapability is the answer of a dispatched capability.
	ReplyCapability ReplyKind = "capability"
)

// Reply is the answer to one input.
type Reply struct {
	Kind       ReplyKind `json:"kind"`
	Text       string    `json:"text"`
	Capability string    `json:"capability,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Research   bool      `json:"research"`
}
