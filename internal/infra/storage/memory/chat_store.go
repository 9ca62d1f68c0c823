package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domainchat "sneakmarket/internal/domain/chat"
)

// ChatStore keeps conversations and messages in memory. Not suitable for
// production; it backs tests and local development. Mutations mirror the
// document-store semantics: the thread key is unique and status transitions
// are compare-and-set.
type ChatStore struct {
	mu            sync.RWMutex
	conversations map[string]*domainchat.Conversation
	byKey         map[string]string
	messages      map[string][]*domainchat.Message
}

// NewChatStore returns an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		conversations: make(map[string]*domainchat.Conversation),
		byKey:         make(map[string]string),
		messages:      make(map[string][]*domainchat.Message),
	}
}

func (s *ChatStore) ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", domainchat.ErrNotFound, id)
	}
	return cloneConversation(conv), nil
}

func (s *ChatStore) ConversationByKey(ctx context.Context, key string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: no conversation for key", domainchat.ErrNotFound)
	}
	return cloneConversation(s.conversations[id]), nil
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	userID = strings.TrimSpace(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domainchat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if ai.Equal(aj) {
			return out[i].ID < out[j].ID
		}
		return ai.After(aj)
	})
	return out, nil
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conv.Key()
	if _, taken := s.byKey[key]; taken {
		return domainchat.ErrConversationExists
	}
	if _, taken := s.conversations[conv.ID]; taken {
		return domainchat.ErrConversationExists
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	s.byKey[key] = conv.ID
	return nil
}

func (s *ChatStore) UpdateSummary(ctx context.Context, conversationID, summary, senderID string, at time.Time, unreadBy []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: conversation %s", domainchat.ErrNotFound, conversationID)
	}
	conv.LastMessage = summary
	conv.LastSenderID = senderID
	conv.LastMessageAt = at
	conv.UnreadBy = append([]string(nil), unreadBy...)
	return nil
}

func (s *ChatStore) MarkRead(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: conversation %s", domainchat.ErrNotFound, conversationID)
	}
	kept := conv.UnreadBy[:0]
	for _, p := range conv.UnreadBy {
		if p != userID {
			kept = append(kept, p)
		}
	}
	conv.UnreadBy = kept
	return nil
}

func (s *ChatStore) InsertMessage(ctx context.Context, msg *domainchat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return fmt.Errorf("%w: conversation %s", domainchat.ErrNotFound, msg.ConversationID)
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], cloneMessage(msg))
	return nil
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("%w: conversation %s", domainchat.ErrNotFound, conversationID)
	}
	stored := s.messages[conversationID]
	out := make([]domainchat.Message, 0, len(stored))
	for _, msg := range stored {
		out = append(out, *cloneMessage(msg))
	}
	// Insertion order already matches creation order; the sort keeps the
	// contract explicit for timestamps assigned out of band.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return i < j
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *ChatStore) MessageByID(ctx context.Context, conversationID, messageID string) (*domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg := s.findMessage(conversationID, messageID)
	if msg == nil {
		return nil, fmt.Errorf("%w: message %s", domainchat.ErrNotFound, messageID)
	}
	return cloneMessage(msg), nil
}

func (s *ChatStore) TransitionStatus(ctx context.Context, conversationID, messageID string, to domainchat.Status, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.findMessage(conversationID, messageID)
	if msg == nil {
		return fmt.Errorf("%w: message %s", domainchat.ErrNotFound, messageID)
	}
	switch {
	case msg.Kind == domainchat.KindOffer && msg.Offer != nil:
		if msg.Offer.Status != domainchat.StatusPending {
			return fmt.Errorf("%w: offer already %s", domainchat.ErrInvalidState, msg.Offer.Status)
		}
		msg.Offer.Status = to
		msg.Offer.RespondedAt = respondedAt
	case msg.Kind == domainchat.KindTrade && msg.Trade != nil:
		if msg.Trade.Status != domainchat.StatusPending {
			return fmt.Errorf("%w: trade already %s", domainchat.ErrInvalidState, msg.Trade.Status)
		}
		msg.Trade.Status = to
		msg.Trade.RespondedAt = respondedAt
	default:
		return fmt.Errorf("%w: message %s carries no status", domainchat.ErrInvalidState, messageID)
	}
	return nil
}

func (s *ChatStore) findMessage(conversationID, messageID string) *domainchat.Message {
	for _, msg := range s.messages[conversationID] {
		if msg.ID == messageID {
			return msg
		}
	}
	return nil
}

func cloneConversation(conv *domainchat.Conversation) *domainchat.Conversation {
	out := *conv
	out.Participants = append([]string(nil), conv.Participants...)
	out.UnreadBy = append([]string(nil), conv.UnreadBy...)
	return &out
}

func cloneMessage(msg *domainchat.Message) *domainchat.Message {
	out := *msg
	if msg.Offer != nil {
		offer := *msg.Offer
		out.Offer = &offer
	}
	if msg.Trade != nil {
		trade := *msg.Trade
		out.Trade = &trade
	}
	return &out
}
