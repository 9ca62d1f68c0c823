package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domainchat "sneakmarket/internal/domain/chat"
	domainlistings "sneakmarket/internal/domain/listings"
)

// Deps wires the service to its collaborators. Store and Hub are required;
// the rest degrade gracefully (no catalog: offers rejected, no uploader:
// attachments rejected, no events: local-only fan-out).
type Deps struct {
	Store    Store
	Hub      *Hub
	Uploader Uploader
	Catalog  Catalog
	Events   EventPublisher
	Logger   *slog.Logger
	// Origin identifies this instance in published events.
	Origin string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service implements the chat core: conversation directory, message stream,
// negotiation lifecycle and attachment pipeline. Caller identity is always an
// explicit argument; the service never reads ambient session state.
type Service struct {
	store    Store
	hub      *Hub
	uploader Uploader
	catalog  Catalog
	events   EventPublisher
	logger   *slog.Logger
	origin   string
	now      func() time.Time

	idMu      sync.Mutex
	idEntropy *ulid.MonotonicEntropy

	convLocks sync.Map
}

// NewService builds the chat service.
func NewService(deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	origin := strings.TrimSpace(deps.Origin)
	if origin == "" {
		origin = uuid.NewString()
	}
	seed := rand.New(rand.NewSource(now().UnixNano()))
	return &Service{
		store:     deps.Store,
		hub:       deps.Hub,
		uploader:  deps.Uploader,
		catalog:   deps.Catalog,
		events:    deps.Events,
		logger:    deps.Logger,
		origin:    origin,
		now:       now,
		idEntropy: ulid.Monotonic(seed, 0),
	}
}

// Hub exposes the fan-out hub, used by the broker relay to inject remote events.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Origin returns the instance id stamped on published events.
func (s *Service) Origin() string {
	return s.origin
}

// ListConversations returns the user's threads ordered by last activity,
// newest first. No threads is an empty slice, not an error.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domainchat.ErrValidation)
	}
	return s.store.ListConversations(ctx, userID)
}

// WatchDirectory opens a live view over the user's conversation directory.
func (s *Service) WatchDirectory(ctx context.Context, userID string) (*DirectorySubscription, error) {
	snapshot, err := s.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.hub.SubscribeDirectory(strings.TrimSpace(userID), snapshot), nil
}

// OpenOrCreateConversation returns the thread for (user, counterparty, listing),
// creating it with a greeting message from the user when absent. A key clash
// with a concurrent creator is resolved by re-reading: the first insert wins.
func (s *Service) OpenOrCreateConversation(ctx context.Context, userID, counterpartyID, listingID string) (*domainchat.Conversation, error) {
	userID = strings.TrimSpace(userID)
	counterpartyID = strings.TrimSpace(counterpartyID)
	if userID == "" || counterpartyID == "" {
		return nil, fmt.Errorf("%w: both participants are required", domainchat.ErrValidation)
	}
	if userID == counterpartyID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", domainchat.ErrValidation)
	}
	key := domainchat.ConversationKey([]string{userID, counterpartyID}, listingID)
	existing, err := s.store.ConversationByKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domainchat.ErrNotFound) {
		return nil, err
	}

	conv, err := domainchat.NewConversation(uuid.NewString(), listingID, []string{userID, counterpartyID}, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, domainchat.ErrConversationExists) {
			return s.store.ConversationByKey(ctx, key)
		}
		return nil, err
	}
	s.log().Info("conversation created", "conversation_id", conv.ID, "listing_id", conv.ListingID, "participants", conv.Participants)

	greeting, err := domainchat.NewTextMessage(conv.ID, userID, domainchat.GreetingText)
	if err != nil {
		return nil, err
	}
	if _, err := s.append(ctx, conv, greeting); err != nil {
		return nil, err
	}
	return s.store.ConversationByID(ctx, conv.ID)
}

// MarkRead removes the user from the thread's unread set. Idempotent.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string) error {
	conv, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, conv.ID, strings.TrimSpace(userID)); err != nil {
		return err
	}
	updated, err := s.store.ConversationByID(ctx, conv.ID)
	if err != nil {
		return err
	}
	s.hub.PublishConversation(*updated)
	s.publishEvent(ctx, Event{
		Type:           EventConversationUpdated,
		ConversationID: conv.ID,
		Conversation:   updated,
	})
	return nil
}

// GetConversation loads thread metadata for a participant.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (*domainchat.Conversation, error) {
	return s.requireParticipant(ctx, conversationID, userID)
}

// ListMessages returns the full ordered history of a conversation.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string) ([]domainchat.Message, error) {
	conv, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conv.ID)
}

// Subscribe opens a live message stream: snapshot plus every later append.
// The per-conversation append lock makes snapshot-then-register atomic, so a
// subscriber sees each message exactly once, in creation order.
func (s *Service) Subscribe(ctx context.Context, conversationID, userID string) (*Subscription, error) {
	conv, err := s.requireParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	lock := s.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()
	snapshot, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return s.hub.SubscribeMessages(conv.ID, snapshot), nil
}

// AppendText posts a user text message.
func (s *Service) AppendText(ctx context.Context, conversationID, senderID, text string) (*domainchat.Message, error) {
	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	msg, err := domainchat.NewTextMessage(conv.ID, strings.TrimSpace(senderID), text)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, conv, msg)
}

// AppendImage posts a message referencing an already uploaded attachment.
func (s *Service) AppendImage(ctx context.Context, conversationID, senderID, imageURL string) (*domainchat.Message, error) {
	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	msg, err := domainchat.NewImageMessage(conv.ID, strings.TrimSpace(senderID), imageURL)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, conv, msg)
}

// AppendOffer posts a pending monetary offer for a listing. The listing must
// exist in the catalog; its title decorates the payload.
func (s *Service) AppendOffer(ctx context.Context, conversationID, senderID, listingID string, amount float64) (*domainchat.Message, error) {
	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	listing, err := s.lookupListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	msg, err := domainchat.NewOfferMessage(conv.ID, strings.TrimSpace(senderID), domainchat.ListingRef{
		ID:    string(listing.ID),
		Name:  listing.Title,
		Image: listing.Thumbnail(),
	}, amount)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, conv, msg)
}

// AppendTradeProposal posts a pending swap of the sender's listing for the
// counterparty's. The offered listing must belong to the sender.
func (s *Service) AppendTradeProposal(ctx context.Context, conversationID, senderID, offeredListingID, requestedListingID string) (*domainchat.Message, error) {
	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	senderID = strings.TrimSpace(senderID)
	offered, err := s.lookupListing(ctx, offeredListingID)
	if err != nil {
		return nil, err
	}
	if offered.SellerID != senderID {
		return nil, fmt.Errorf("%w: offered listing does not belong to sender", domainchat.ErrValidation)
	}
	requested, err := s.lookupListing(ctx, requestedListingID)
	if err != nil {
		return nil, err
	}
	msg, err := domainchat.NewTradeMessage(conv.ID, senderID,
		domainchat.ListingRef{ID: string(offered.ID), Name: offered.Title, Image: offered.Thumbnail()},
		domainchat.ListingRef{ID: string(requested.ID), Name: requested.Title, Image: requested.Thumbnail()},
	)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, conv, msg)
}

// Respond resolves a pending offer or trade. Exactly one of two concurrent
// calls wins: the terminal transition is a compare-and-set on the stored
// status. On success a system message summarizes the decision.
func (s *Service) Respond(ctx context.Context, conversationID, messageID, responderID string, decision domainchat.Decision) (*domainchat.Message, error) {
	conv, err := s.requireParticipant(ctx, conversationID, responderID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.MessageByID(ctx, conv.ID, messageID)
	if err != nil {
		return nil, err
	}
	if err := domainchat.AuthorizeResponse(msg, conv, responderID); err != nil {
		return nil, err
	}
	respondedAt := s.now().UTC()
	if err := s.store.TransitionStatus(ctx, conv.ID, msg.ID, decision.Outcome(), respondedAt); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case domainchat.KindOffer:
		msg.Offer.Status = decision.Outcome()
		msg.Offer.RespondedAt = respondedAt
	case domainchat.KindTrade:
		msg.Trade.Status = decision.Outcome()
		msg.Trade.RespondedAt = respondedAt
	}
	s.publishEvent(ctx, Event{
		Type:           EventNegotiationResponded,
		ConversationID: conv.ID,
		Message:        msg,
		Decision:       decision,
	})

	system := domainchat.NewSystemMessage(conv.ID, domainchat.ResponseText(msg, decision))
	if _, err := s.appendAs(ctx, conv, system, strings.TrimSpace(responderID)); err != nil {
		// The transition already happened; a lost system message is logged only.
		s.log().Error("system message append failed", "conversation_id", conv.ID, "message_id", msg.ID, "error", err)
	}
	return msg, nil
}

// UploadAttachment stores attachment bytes under a collision-resistant key
// scoped to the conversation and returns the public URL. Upload failures are
// distinct from append failures.
func (s *Service) UploadAttachment(ctx context.Context, conversationID, senderID, filename string, reader io.Reader, contentType string) (string, error) {
	conv, err := s.requireParticipant(ctx, conversationID, senderID)
	if err != nil {
		return "", err
	}
	if s.uploader == nil {
		return "", fmt.Errorf("%w: no attachment storage configured", domainchat.ErrUploadFailed)
	}
	key := AttachmentKey(conv.ID, filename, s.now())
	url, err := s.uploader.Upload(ctx, key, reader, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domainchat.ErrUploadFailed, err)
	}
	return url, nil
}

// AttachmentKey builds the storage key for an attachment: conversation-scoped,
// timestamped, original name preserved.
func AttachmentKey(conversationID, filename string, now time.Time) string {
	name := path.Base(strings.TrimSpace(filename))
	name = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." {
		name = "attachment"
	}
	return fmt.Sprintf("chat_images/%s/%d_%s", conversationID, now.UTC().UnixMilli(), name)
}

// append posts a message authored by its sender.
func (s *Service) append(ctx context.Context, conv *domainchat.Conversation, msg *domainchat.Message) (*domainchat.Message, error) {
	return s.appendAs(ctx, conv, msg, msg.SenderID)
}

// appendAs posts a message on behalf of an acting participant. The actor is
// the one user who has already seen the message, so the unread set becomes
// everyone else. System messages pass the responder as actor.
func (s *Service) appendAs(ctx context.Context, conv *domainchat.Conversation, msg *domainchat.Message, actor string) (*domainchat.Message, error) {
	lock := s.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().UTC()
	msg.CreatedAt = now
	msg.ID = s.newMessageID(now)
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	unread := make([]string, 0, 1)
	for _, p := range conv.Participants {
		if p != actor {
			unread = append(unread, p)
		}
	}
	// Summary update is best-effort: the message is already durable and must
	// not be rolled back when the conversation write fails.
	if err := s.store.UpdateSummary(ctx, conv.ID, msg.Summary(), msg.SenderID, now, unread); err != nil {
		s.log().Warn("conversation summary update failed", "conversation_id", conv.ID, "message_id", msg.ID, "error", err)
	}

	s.hub.PublishMessage(*msg)
	if updated, err := s.store.ConversationByID(ctx, conv.ID); err == nil {
		s.hub.PublishConversation(*updated)
		s.publishEvent(ctx, Event{
			Type:           EventConversationUpdated,
			ConversationID: conv.ID,
			Conversation:   updated,
		})
	}
	s.publishEvent(ctx, Event{
		Type:           EventMessageAppended,
		ConversationID: conv.ID,
		Message:        msg,
	})
	return msg, nil
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID string) (*domainchat.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", domainchat.ErrValidation)
	}
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: %s is not a participant of %s", domainchat.ErrPermissionDenied, strings.TrimSpace(userID), conversationID)
	}
	return conv, nil
}

func (s *Service) lookupListing(ctx context.Context, listingID string) (domainlistings.Listing, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return domainlistings.Listing{}, fmt.Errorf("%w: listing id is required", domainchat.ErrValidation)
	}
	if s.catalog == nil {
		return domainlistings.Listing{}, fmt.Errorf("%w: no listing catalog configured", domainchat.ErrValidation)
	}
	listing, err := s.catalog.ListingByID(ctx, domainlistings.ListingID(listingID))
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			return domainlistings.Listing{}, fmt.Errorf("%w: unknown listing %s", domainchat.ErrValidation, listingID)
		}
		return domainlistings.Listing{}, err
	}
	return listing, nil
}

func (s *Service) newMessageID(now time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.idEntropy).String()
}

func (s *Service) lockFor(conversationID string) *sync.Mutex {
	actual, _ := s.convLocks.LoadOrStore(conversationID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (s *Service) publishEvent(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	evt.Origin = s.origin
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log().Warn("event publish failed", "type", evt.Type, "conversation_id", evt.ConversationID, "error", err)
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
