package chat

import (
	"context"
	"io"
	"time"

	domainchat "sneakmarket/internal/domain/chat"
	domainlistings "sneakmarket/internal/domain/listings"
)

// Store is the document-store port backing conversations and messages.
// Implementations must provide atomic single-document updates: CreateConversation
// fails with ErrConversationExists when the thread key is taken, and
// TransitionStatus is a compare-and-set that only matches a pending status.
type Store interface {
	ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error)
	ConversationByKey(ctx context.Context, key string) (*domainchat.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]domainchat.Conversation, error)
	CreateConversation(ctx context.Context, conv *domainchat.Conversation) error
	// UpdateSummary rewrites the last-message fields and replaces the unread
	// set in one document update.
	UpdateSummary(ctx context.Context, conversationID, summary, senderID string, at time.Time, unreadBy []string) error
	// MarkRead removes the user from the unread set; removing an absent
	// member is a no-op.
	MarkRead(ctx context.Context, conversationID, userID string) error

	InsertMessage(ctx context.Context, msg *domainchat.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error)
	MessageByID(ctx context.Context, conversationID, messageID string) (*domainchat.Message, error)
	// TransitionStatus moves a pending offer/trade to a terminal status.
	// Returns ErrInvalidState when the message exists but is no longer pending.
	TransitionStatus(ctx context.Context, conversationID, messageID string, to domainchat.Status, respondedAt time.Time) error
}

// Uploader stores attachment bytes and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error)
}

// Catalog exposes read-only listing lookups used to decorate offers and trades.
type Catalog interface {
	ListingByID(ctx context.Context, id domainlistings.ListingID) (domainlistings.Listing, error)
}

// EventPublisher fans chat events out to other service instances and to
// downstream consumers. Publishing is best-effort: failures are logged by the
// caller, never surfaced to the user.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}
