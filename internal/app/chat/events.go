package chat

import (
	"time"

	domainchat "sneakmarket/internal/domain/chat"
)

// Event types published on every successful mutation.
const (
	EventMessageAppended      = "chat.message.appended"
	EventConversationUpdated  = "chat.conversation.updated"
	EventNegotiationResponded = "chat.negotiation.responded"
)

// Event is the envelope shared by the in-process hub relay and the broker.
// Origin identifies the producing instance so a relay can skip its own echoes.
type Event struct {
	Type           string                   `json:"type"`
	Origin         string                   `json:"origin"`
	ConversationID string                   `json:"conversation_id"`
	OccurredAt     time.Time                `json:"occurred_at"`
	Message        *domainchat.Message      `json:"message,omitempty"`
	Conversation   *domainchat.Conversation `json:"conversation,omitempty"`
	Decision       domainchat.Decision      `json:"decision,omitempty"`
}
