package dto

import (
	assistantDomain "github.com/allisson/capvault/internal/assistant/domain"
)

// AskResponse is the reply to an AskRequest.
type AskResponse struct {
	ConversationID string                    `json:"conversation_id,omitempty"`
	Kind           assistantDomain.ReplyKind `json:"kind"`
	Text           string                    `json:"text"`
	Capability     string                    `json:"capability,omitempty"`
	Attempts       int                       `json:"attempts,omitempty"`
	Research       bool                      `json:"research"`
}

// MapReply maps an assistant reply to a response.
func MapReply(conversationID string, reply *assistantDomain.Reply) AskResponse {
	return AskResponse{
		ConversationID: conversationID,
		Kind:           reply.Kind,
		Text:           reply.Text,
		Capability:     reply.Capability,
		Attempts:       reply.Attempts,
		Research:       reply.Research,
	}
}
