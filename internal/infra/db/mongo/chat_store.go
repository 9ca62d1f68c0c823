package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "sneakmarket/internal/domain/chat"
)

// ChatStore persists conversations and messages in two collections.
// The unique index on the thread key makes concurrent creations of the same
// logical thread collapse into one document: the first insert wins, later
// writers get ErrConversationExists and re-read. Negotiation transitions are
// conditional single-document updates filtered on status=pending, so two
// concurrent responses can never both succeed.
type ChatStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewChatStore binds the store to its collections.
func NewChatStore(db *mongo.Database) *ChatStore {
	return &ChatStore{
		conversations: db.Collection("chat_conversations"),
		messages:      db.Collection("chat_messages"),
	}
}

// EnsureIndexes creates the uniqueness and ordering indexes. Safe to call on
// every startup.
func (s *ChatStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("chat conversations indexes: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("chat messages indexes: %w", err)
	}
	return nil
}

func (s *ChatStore) ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: conversation %s", domainchat.ErrNotFound, id)
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (s *ChatStore) ConversationByKey(ctx context.Context, key string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, bson.M{"key": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: no conversation for key", domainchat.ErrNotFound)
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}})
	cursor, err := s.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]domainchat.Conversation, 0)
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toDomain())
	}
	return out, cursor.Err()
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) error {
	if _, err := s.conversations.InsertOne(ctx, newConversationDocument(conv)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrConversationExists
		}
		return err
	}
	return nil
}

func (s *ChatStore) UpdateSummary(ctx context.Context, conversationID, summary, senderID string, at time.Time, unreadBy []string) error {
	if unreadBy == nil {
		unreadBy = []string{}
	}
	res, err := s.conversations.UpdateOne(ctx, bson.M{"_id": conversationID}, bson.M{"$set": bson.M{
		"last_message":    summary,
		"last_sender_id":  senderID,
		"last_message_at": at.UnixMilli(),
		"unread_by":       unreadBy,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: conversation %s", domainchat.ErrNotFound, conversationID)
	}
	return nil
}

func (s *ChatStore) MarkRead(ctx context.Context, conversationID, userID string) error {
	res, err := s.conversations.UpdateOne(ctx, bson.M{"_id": conversationID}, bson.M{
		"$pull": bson.M{"unread_by": userID},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: conversation %s", domainchat.ErrNotFound, conversationID)
	}
	return nil
}

func (s *ChatStore) InsertMessage(ctx context.Context, msg *domainchat.Message) error {
	_, err := s.messages.InsertOne(ctx, newMessageDocument(msg))
	return err
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	// ULID message ids sort lexicographically in creation order, which also
	// breaks timestamp ties by insertion order.
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]domainchat.Message, 0)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toDomain())
	}
	return out, cursor.Err()
}

func (s *ChatStore) MessageByID(ctx context.Context, conversationID, messageID string) (*domainchat.Message, error) {
	var doc messageDocument
	err := s.messages.FindOne(ctx, bson.M{"_id": messageID, "conversation_id": conversationID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: message %s", domainchat.ErrNotFound, messageID)
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (s *ChatStore) TransitionStatus(ctx context.Context, conversationID, messageID string, to domainchat.Status, respondedAt time.Time) error {
	res, err := s.messages.UpdateOne(ctx, bson.M{
		"_id":             messageID,
		"conversation_id": conversationID,
		"status":          string(domainchat.StatusPending),
	}, bson.M{"$set": bson.M{
		"status":       string(to),
		"responded_at": respondedAt.UnixMilli(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing message from a lost race.
		if _, lookupErr := s.MessageByID(ctx, conversationID, messageID); lookupErr != nil {
			return lookupErr
		}
		return fmt.Errorf("%w: message %s is no longer pending", domainchat.ErrInvalidState, messageID)
	}
	return nil
}

type conversationDocument struct {
	ID            string   `bson:"_id"`
	Key           string   `bson:"key"`
	ListingID     string   `bson:"listing_id,omitempty"`
	Participants  []string `bson:"participants"`
	LastMessage   string   `bson:"last_message,omitempty"`
	LastSenderID  string   `bson:"last_sender_id,omitempty"`
	LastMessageAt int64    `bson:"last_message_at,omitempty"`
	UnreadBy      []string `bson:"unread_by,omitempty"`
	CreatedAt     int64    `bson:"created_at"`
}

func newConversationDocument(conv *domainchat.Conversation) conversationDocument {
	return conversationDocument{
		ID:            conv.ID,
		Key:           conv.Key(),
		ListingID:     conv.ListingID,
		Participants:  append([]string(nil), conv.Participants...),
		LastMessage:   conv.LastMessage,
		LastSenderID:  conv.LastSenderID,
		LastMessageAt: msOrZero(conv.LastMessageAt),
		UnreadBy:      append([]string(nil), conv.UnreadBy...),
		CreatedAt:     conv.CreatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toDomain() *domainchat.Conversation {
	return &domainchat.Conversation{
		ID:            d.ID,
		ListingID:     d.ListingID,
		Participants:  append([]string(nil), d.Participants...),
		LastMessage:   d.LastMessage,
		LastSenderID:  d.LastSenderID,
		LastMessageAt: timeOrZero(d.LastMessageAt),
		UnreadBy:      append([]string(nil), d.UnreadBy...),
		CreatedAt:     timeOrZero(d.CreatedAt),
	}
}

// messageDocument flattens the kind-specific payloads into one record shape,
// with status and responded_at present only for offer and trade kinds.
type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Kind           string `bson:"kind"`
	CreatedAt      int64  `bson:"created_at"`

	Text     string `bson:"text,omitempty"`
	ImageURL string `bson:"image_url,omitempty"`

	OfferAmount  float64 `bson:"offer_amount,omitempty"`
	ListingID    string  `bson:"offer_listing_id,omitempty"`
	ListingName  string  `bson:"offer_listing_name,omitempty"`
	ListingImage string  `bson:"offer_listing_image,omitempty"`

	OfferedID      string `bson:"offered_listing_id,omitempty"`
	OfferedName    string `bson:"offered_listing_name,omitempty"`
	OfferedImage   string `bson:"offered_listing_image,omitempty"`
	RequestedID    string `bson:"requested_listing_id,omitempty"`
	RequestedName  string `bson:"requested_listing_name,omitempty"`
	RequestedImage string `bson:"requested_listing_image,omitempty"`

	Status      string `bson:"status,omitempty"`
	RespondedAt int64  `bson:"responded_at,omitempty"`
}

func newMessageDocument(msg *domainchat.Message) messageDocument {
	doc := messageDocument{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Kind:           string(msg.Kind),
		CreatedAt:      msg.CreatedAt.UnixMilli(),
		Text:           msg.Text,
		ImageURL:       msg.ImageURL,
	}
	if msg.Offer != nil {
		doc.OfferAmount = msg.Offer.Amount
		doc.ListingID = msg.Offer.Listing.ID
		doc.ListingName = msg.Offer.Listing.Name
		doc.ListingImage = msg.Offer.Listing.Image
		doc.Status = string(msg.Offer.Status)
		doc.RespondedAt = msOrZero(msg.Offer.RespondedAt)
	}
	if msg.Trade != nil {
		doc.OfferedID = msg.Trade.Offered.ID
		doc.OfferedName = msg.Trade.Offered.Name
		doc.OfferedImage = msg.Trade.Offered.Image
		doc.RequestedID = msg.Trade.Requested.ID
		doc.RequestedName = msg.Trade.Requested.Name
		doc.RequestedImage = msg.Trade.Requested.Image
		doc.Status = string(msg.Trade.Status)
		doc.RespondedAt = msOrZero(msg.Trade.RespondedAt)
	}
	return doc
}

func (d messageDocument) toDomain() *domainchat.Message {
	msg := &domainchat.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Kind:           domainchat.MessageKind(d.Kind),
		CreatedAt:      timeOrZero(d.CreatedAt),
		Text:           d.Text,
		ImageURL:       d.ImageURL,
	}
	switch msg.Kind {
	case domainchat.KindOffer:
		msg.Offer = &domainchat.OfferPayload{
			Listing:     domainchat.ListingRef{ID: d.ListingID, Name: d.ListingName, Image: d.ListingImage},
			Amount:      d.OfferAmount,
			Status:      domainchat.Status(d.Status),
			RespondedAt: timeOrZero(d.RespondedAt),
		}
	case domainchat.KindTrade:
		msg.Trade = &domainchat.TradePayload{
			Offered:     domainchat.ListingRef{ID: d.OfferedID, Name: d.OfferedName, Image: d.OfferedImage},
			Requested:   domainchat.ListingRef{ID: d.RequestedID, Name: d.RequestedName, Image: d.RequestedImage},
			Status:      domainchat.Status(d.Status),
			RespondedAt: timeOrZero(d.RespondedAt),
		}
	}
	return msg
}

func msOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOrZero(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
