package chat

import (
	"log/slog"
	"sync"

	domainchat "sneakmarket/internal/domain/chat"
)

const subscriptionBuffer = 256

// Hub fans persisted chat events out to live subscribers of this instance.
// Remote instances reach it through the broker relay.
type Hub struct {
	mu          sync.Mutex
	nextID      uint64
	streams     map[string]map[uint64]*Subscription
	directories map[string]map[uint64]*DirectorySubscription
	logger      *slog.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		streams:     make(map[string]map[uint64]*Subscription),
		directories: make(map[string]map[uint64]*DirectorySubscription),
		logger:      logger,
	}
}

// Subscription is a live view over one conversation: an initial snapshot in
// ascending order, then every message appended after subscription start.
type Subscription struct {
	id             uint64
	conversationID string
	snapshot       []domainchat.Message
	events         chan domainchat.Message
	highWater      string
	hub            *Hub
	once           sync.Once
}

// Snapshot returns the messages present when the subscription started.
func (s *Subscription) Snapshot() []domainchat.Message {
	return s.snapshot
}

// Events yields messages appended after the snapshot, in creation order.
// The channel is closed by Close.
func (s *Subscription) Events() <-chan domainchat.Message {
	return s.events
}

// Close tears the subscription down. Idempotent and safe to call concurrently
// with deliveries.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if subs, ok := s.hub.streams[s.conversationID]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.hub.streams, s.conversationID)
			}
		}
		close(s.events)
		s.hub.mu.Unlock()
	})
}

// DirectorySubscription is a live view over a user's conversation directory:
// a snapshot ordered by recency, then updated summaries as threads change.
type DirectorySubscription struct {
	id       uint64
	userID   string
	snapshot []domainchat.Conversation
	events   chan domainchat.Conversation
	hub      *Hub
	once     sync.Once
}

// Snapshot returns the conversations present when the watch started.
func (d *DirectorySubscription) Snapshot() []domainchat.Conversation {
	return d.snapshot
}

// Events yields conversation summaries whenever one of the user's threads changes.
func (d *DirectorySubscription) Events() <-chan domainchat.Conversation {
	return d.events
}

// Close tears the watch down. Idempotent.
func (d *DirectorySubscription) Close() {
	d.once.Do(func() {
		d.hub.mu.Lock()
		if subs, ok := d.hub.directories[d.userID]; ok {
			delete(subs, d.id)
			if len(subs) == 0 {
				delete(d.hub.directories, d.userID)
			}
		}
		close(d.events)
		d.hub.mu.Unlock()
	})
}

// SubscribeMessages registers a stream subscription seeded with a snapshot.
// The high-water mark (last snapshot id) suppresses duplicate delivery when a
// relayed event races the snapshot read.
func (h *Hub) SubscribeMessages(conversationID string, snapshot []domainchat.Message) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		id:             h.nextID,
		conversationID: conversationID,
		snapshot:       snapshot,
		events:         make(chan domainchat.Message, subscriptionBuffer),
		hub:            h,
	}
	if len(snapshot) > 0 {
		sub.highWater = snapshot[len(snapshot)-1].ID
	}
	if h.streams[conversationID] == nil {
		h.streams[conversationID] = make(map[uint64]*Subscription)
	}
	h.streams[conversationID][sub.id] = sub
	return sub
}

// SubscribeDirectory registers a directory watch seeded with a snapshot.
func (h *Hub) SubscribeDirectory(userID string, snapshot []domainchat.Conversation) *DirectorySubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &DirectorySubscription{
		id:       h.nextID,
		userID:   userID,
		snapshot: snapshot,
		events:   make(chan domainchat.Conversation, subscriptionBuffer),
		hub:      h,
	}
	if h.directories[userID] == nil {
		h.directories[userID] = make(map[uint64]*DirectorySubscription)
	}
	h.directories[userID][sub.id] = sub
	return sub
}

// PublishMessage delivers an appended message to every stream subscriber of
// its conversation. Message ids are ULIDs, so the lexicographic comparison
// against the high-water mark preserves creation order.
func (h *Hub) PublishMessage(msg domainchat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.streams[msg.ConversationID] {
		if msg.ID <= sub.highWater {
			continue
		}
		select {
		case sub.events <- msg:
			sub.highWater = msg.ID
		default:
			if h.logger != nil {
				h.logger.Warn("subscriber lagging, message dropped",
					"conversation_id", msg.ConversationID, "message_id", msg.ID)
			}
		}
	}
}

// PublishConversation delivers an updated summary to the directory watches of
// every participant.
func (h *Hub) PublishConversation(conv domainchat.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userID := range conv.Participants {
		for _, sub := range h.directories[userID] {
			select {
			case sub.events <- conv:
			default:
				if h.logger != nil {
					h.logger.Warn("directory watcher lagging, update dropped",
						"conversation_id", conv.ID, "user_id", userID)
				}
			}
		}
	}
}
