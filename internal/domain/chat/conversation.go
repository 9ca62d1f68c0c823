package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SystemSenderID is the reserved sender for machine-generated messages.
const SystemSenderID = "system"

// Conversation is a persistent thread between exactly two participants,
// optionally scoped to one listing. Never hard-deleted.
type Conversation struct {
	ID            string
	ListingID     string
	Participants  []string
	LastMessage   string
	LastSenderID  string
	LastMessageAt time.Time
	UnreadBy      []string
	CreatedAt     time.Time
}

// NewConversation validates participants and returns a normalized thread.
// The id is assigned by the caller (store layer).
func NewConversation(id, listingID string, participants []string, now time.Time) (*Conversation, error) {
	normalized := NormalizeParticipants(participants)
	if len(normalized) != 2 {
		return nil, fmt.Errorf("%w: a conversation needs exactly two distinct participants", ErrValidation)
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrValidation)
	}
	if now.IsZero() {
		now = time.Now()
	}
	return &Conversation{
		ID:           strings.TrimSpace(id),
		ListingID:    strings.TrimSpace(listingID),
		Participants: normalized,
		CreatedAt:    now.UTC(),
	}, nil
}

// Key identifies the logical thread: sorted participant pair plus listing.
// At most one open conversation may exist per key.
func (c *Conversation) Key() string {
	return ConversationKey(c.Participants, c.ListingID)
}

// ConversationKey builds the uniqueness key for a participant pair and listing.
func ConversationKey(participants []string, listingID string) string {
	normalized := NormalizeParticipants(participants)
	return strings.Join(normalized, "|") + "|" + strings.TrimSpace(listingID)
}

// HasParticipant reports whether the user belongs to the thread.
func (c *Conversation) HasParticipant(userID string) bool {
	userID = strings.TrimSpace(userID)
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterparty of the given user.
func (c *Conversation) OtherParticipant(userID string) string {
	userID = strings.TrimSpace(userID)
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// IsUnreadFor reports whether the user still has unseen activity.
func (c *Conversation) IsUnreadFor(userID string) bool {
	for _, p := range c.UnreadBy {
		if p == userID {
			return true
		}
	}
	return false
}

// LastActivity is the ordering timestamp for directory listings.
func (c *Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// NormalizeParticipants trims, dedupes and sorts participant ids.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == SystemSenderID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
