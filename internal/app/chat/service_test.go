package chat_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appchat "sneakmarket/internal/app/chat"
	domainchat "sneakmarket/internal/domain/chat"
	domainlistings "sneakmarket/internal/domain/listings"
	"sneakmarket/internal/infra/storage/memory"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []appchat.Event
}

func (r *eventRecorder) Publish(ctx context.Context, evt appchat.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) byType(eventType string) []appchat.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]appchat.Event, 0)
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	service *appchat.Service
	store   *memory.ChatStore
	catalog *memory.Catalog
	events  *eventRecorder
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewChatStore()
	catalog := memory.NewCatalog()
	catalog.Put(domainlistings.Listing{
		ID:       "lst-aj1",
		Title:    "Air Jordan 1 Chicago",
		Price:    320,
		Images:   []string{"https://cdn.example.com/aj1.jpg"},
		SellerID: "user-seller",
	})
	catalog.Put(domainlistings.Listing{
		ID:         "lst-dunk",
		Title:      "Nike Dunk Low Panda",
		Price:      110,
		SellerID:   "user-buyer",
		IsForTrade: true,
	})
	events := &eventRecorder{}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	service := appchat.NewService(appchat.Deps{
		Store:   store,
		Hub:     appchat.NewHub(nil),
		Catalog: catalog,
		Events:  events,
		Origin:  "test-instance",
		Now:     clock.Now,
	})
	return &fixture{service: service, store: store, catalog: catalog, events: events, clock: clock}
}

func (f *fixture) open(t *testing.T) *domainchat.Conversation {
	t.Helper()
	conv, err := f.service.OpenOrCreateConversation(context.Background(), "user-buyer", "user-seller", "lst-aj1")
	require.NoError(t, err)
	return conv
}

func TestOpenOrCreateConversationSeedsGreeting(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	assert.Equal(t, []string{"user-buyer", "user-seller"}, conv.Participants)
	assert.Equal(t, domainchat.GreetingText, conv.LastMessage)
	assert.Equal(t, "user-buyer", conv.LastSenderID)
	assert.Equal(t, []string{"user-seller"}, conv.UnreadBy)

	messages, err := f.service.ListMessages(context.Background(), conv.ID, "user-buyer")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domainchat.GreetingText, messages[0].Text)
	assert.Equal(t, "user-buyer", messages[0].SenderID)
}

func TestOpenOrCreateConversationIsIdempotentPerKey(t *testing.T) {
	f := newFixture(t)
	first := f.open(t)

	second, err := f.service.OpenOrCreateConversation(context.Background(), "user-seller", "user-buyer", "lst-aj1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := f.service.OpenOrCreateConversation(context.Background(), "user-buyer", "user-seller", "lst-dunk")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	messages, err := f.service.ListMessages(context.Background(), first.ID, "user-buyer")
	require.NoError(t, err)
	assert.Len(t, messages, 1, "reopening must not add another greeting")
}

func TestOpenOrCreateConversationValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.OpenOrCreateConversation(context.Background(), "user-a", "user-a", "lst-aj1")
	assert.ErrorIs(t, err, domainchat.ErrValidation)

	_, err = f.service.OpenOrCreateConversation(context.Background(), "", "user-b", "lst-aj1")
	assert.ErrorIs(t, err, domainchat.ErrValidation)
}

func TestSubscribeDeliversEveryAppendExactlyOnceInOrder(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	sub, err := f.service.Subscribe(context.Background(), conv.ID, "user-seller")
	require.NoError(t, err)
	defer sub.Close()
	require.Len(t, sub.Snapshot(), 1)

	const n = 20
	for i := 0; i < n; i++ {
		_, err := f.service.AppendText(context.Background(), conv.ID, "user-buyer", fmt.Sprintf("mensagem %d", i))
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	var lastID string
	for i := 0; i < n; i++ {
		select {
		case msg := <-sub.Events():
			assert.False(t, seen[msg.ID], "duplicate delivery of %s", msg.ID)
			seen[msg.ID] = true
			assert.Greater(t, msg.ID, lastID, "ids must arrive in creation order")
			lastID = msg.ID
			assert.Equal(t, fmt.Sprintf("mensagem %d", i), msg.Text)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
	select {
	case msg := <-sub.Events():
		t.Fatalf("unexpected extra delivery: %q", msg.Text)
	default:
	}
}

func TestRejectedTextProducesNoEntryAndNoEvent(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	appended := len(f.events.byType(appchat.EventMessageAppended))

	_, err := f.service.AppendText(context.Background(), conv.ID, "user-buyer", "   ")
	assert.ErrorIs(t, err, domainchat.ErrValidation)

	messages, err := f.service.ListMessages(context.Background(), conv.ID, "user-buyer")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Len(t, f.events.byType(appchat.EventMessageAppended), appended)
}

func TestAppendOfferDecoratesFromCatalogAndUpdatesSummary(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	msg, err := f.service.AppendOffer(context.Background(), conv.ID, "user-buyer", "lst-aj1", 90)
	require.NoError(t, err)
	require.NotNil(t, msg.Offer)
	assert.Equal(t, "Air Jordan 1 Chicago", msg.Offer.Listing.Name)
	assert.Equal(t, domainchat.StatusPending, msg.Offer.Status)

	updated, err := f.service.GetConversation(context.Background(), conv.ID, "user-buyer")
	require.NoError(t, err)
	assert.Equal(t, "Proposta: 90 € para Air Jordan 1 Chicago", updated.LastMessage)
	assert.Equal(t, []string{"user-seller"}, updated.UnreadBy)

	_, err = f.service.AppendOffer(context.Background(), conv.ID, "user-buyer", "lst-missing", 90)
	assert.ErrorIs(t, err, domainchat.ErrValidation)
}

func TestAppendTradeProposalRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	_, err := f.service.AppendTradeProposal(context.Background(), conv.ID, "user-buyer", "lst-aj1", "lst-dunk")
	assert.ErrorIs(t, err, domainchat.ErrValidation, "offered listing belongs to the seller, not the sender")

	msg, err := f.service.AppendTradeProposal(context.Background(), conv.ID, "user-buyer", "lst-dunk", "lst-aj1")
	require.NoError(t, err)
	require.NotNil(t, msg.Trade)
	assert.Equal(t, "Nike Dunk Low Panda", msg.Trade.Offered.Name)
	assert.Equal(t, "Air Jordan 1 Chicago", msg.Trade.Requested.Name)
}

func TestRespondAcceptAppendsSystemMessage(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	offer, err := f.service.AppendOffer(context.Background(), conv.ID, "user-buyer", "lst-aj1", 90)
	require.NoError(t, err)

	resolved, err := f.service.Respond(context.Background(), conv.ID, offer.ID, "user-seller", domainchat.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, domainchat.StatusAccepted, resolved.Offer.Status)
	assert.False(t, resolved.Offer.RespondedAt.IsZero())

	messages, err := f.service.ListMessages(context.Background(), conv.ID, "user-buyer")
	require.NoError(t, err)
	require.Len(t, messages, 3, "greeting, offer, system entry")

	system := messages[2]
	assert.Equal(t, domainchat.KindSystem, system.Kind)
	assert.Equal(t, domainchat.SystemSenderID, system.SenderID)
	assert.Equal(t, "Proposta de 90 € aceite.", system.Text)

	updated, err := f.service.GetConversation(context.Background(), conv.ID, "user-seller")
	require.NoError(t, err)
	assert.Equal(t, "Proposta de 90 € aceite.", updated.LastMessage)
	assert.Equal(t, []string{"user-buyer"}, updated.UnreadBy, "the responder has already seen the outcome")

	responded := f.events.byType(appchat.EventNegotiationResponded)
	require.Len(t, responded, 1)
	assert.Equal(t, domainchat.DecisionAccept, responded[0].Decision)
}

func TestRespondTwiceFailsSecondTime(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	offer, err := f.service.AppendOffer(context.Background(), conv.ID, "user-buyer", "lst-aj1", 90)
	require.NoError(t, err)

	_, err = f.service.Respond(context.Background(), conv.ID, offer.ID, "user-seller", domainchat.DecisionAccept)
	require.NoError(t, err)

	_, err = f.service.Respond(context.Background(), conv.ID, offer.ID, "user-seller", domainchat.DecisionReject)
	assert.ErrorIs(t, err, domainchat.ErrInvalidState)

	stored, err := f.store.MessageByID(context.Background(), conv.ID, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, domainchat.StatusAccepted, stored.Offer.Status)
}

func TestRespondToOwnProposalIsForbidden(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	offer, err := f.service.AppendOffer(context.Background(), conv.ID, "user-buyer", "lst-aj1", 90)
	require.NoError(t, err)

	_, err = f.service.Respond(context.Background(), conv.ID, offer.ID, "user-buyer", domainchat.DecisionAccept)
	assert.ErrorIs(t, err, domainchat.ErrPermissionDenied)

	stored, err := f.store.MessageByID(context.Background(), conv.ID, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, domainchat.StatusPending, stored.Offer.Status)
}

func TestRespondRejectTradeWording(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	trade, err := f.service.AppendTradeProposal(context.Background(), conv.ID, "user-buyer", "lst-dunk", "lst-aj1")
	require.NoError(t, err)

	_, err = f.service.Respond(context.Background(), conv.ID, trade.ID, "user-seller", domainchat.DecisionReject)
	require.NoError(t, err)

	messages, err := f.service.ListMessages(context.Background(), conv.ID, "user-seller")
	require.NoError(t, err)
	last := messages[len(messages)-1]
	assert.Equal(t, "Proposta de troca recusada.", last.Text)
}

func TestRespondToTextMessageIsInvalid(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	msg, err := f.service.AppendText(context.Background(), conv.ID, "user-buyer", "bom dia")
	require.NoError(t, err)

	_, err = f.service.Respond(context.Background(), conv.ID, msg.ID, "user-seller", domainchat.DecisionAccept)
	assert.ErrorIs(t, err, domainchat.ErrValidation)
}

func TestNonParticipantIsRejectedEverywhere(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	_, err := f.service.ListMessages(context.Background(), conv.ID, "user-stranger")
	assert.ErrorIs(t, err, domainchat.ErrPermissionDenied)

	_, err = f.service.AppendText(context.Background(), conv.ID, "user-stranger", "olá")
	assert.ErrorIs(t, err, domainchat.ErrPermissionDenied)

	err = f.service.MarkRead(context.Background(), conv.ID, "user-stranger")
	assert.ErrorIs(t, err, domainchat.ErrPermissionDenied)
}

func TestMarkReadClearsUnread(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	require.Equal(t, []string{"user-seller"}, conv.UnreadBy)

	require.NoError(t, f.service.MarkRead(context.Background(), conv.ID, "user-seller"))
	updated, err := f.service.GetConversation(context.Background(), conv.ID, "user-seller")
	require.NoError(t, err)
	assert.Empty(t, updated.UnreadBy)

	// Idempotent.
	require.NoError(t, f.service.MarkRead(context.Background(), conv.ID, "user-seller"))
}

func TestWatchDirectorySeesSummaryUpdates(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	watch, err := f.service.WatchDirectory(context.Background(), "user-seller")
	require.NoError(t, err)
	defer watch.Close()
	require.Len(t, watch.Snapshot(), 1)

	_, err = f.service.AppendText(context.Background(), conv.ID, "user-buyer", "ainda disponível?")
	require.NoError(t, err)

	select {
	case update := <-watch.Events():
		assert.Equal(t, conv.ID, update.ID)
		assert.Equal(t, "ainda disponível?", update.LastMessage)
		assert.Equal(t, []string{"user-seller"}, update.UnreadBy)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for directory update")
	}
}

func TestUploadAttachmentWithoutStorageFails(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)

	_, err := f.service.UploadAttachment(context.Background(), conv.ID, "user-buyer", "foto.jpg", strings.NewReader("bytes"), "image/jpeg")
	assert.ErrorIs(t, err, domainchat.ErrUploadFailed)
}

type fakeUploader struct {
	lastKey string
	err     error
}

func (u *fakeUploader) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.lastKey = key
	return "https://cdn.example.com/" + key, nil
}

func TestUploadAttachmentStoresUnderConversationKey(t *testing.T) {
	store := memory.NewChatStore()
	uploader := &fakeUploader{}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	service := appchat.NewService(appchat.Deps{
		Store:    store,
		Hub:      appchat.NewHub(nil),
		Uploader: uploader,
		Now:      clock.Now,
	})
	conv, err := domainchat.NewConversation("conv-1", "lst-1", []string{"user-a", "user-b"}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateConversation(context.Background(), conv))

	url, err := service.UploadAttachment(context.Background(), "conv-1", "user-a", "foto.jpg", strings.NewReader("bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uploader.lastKey, "chat_images/conv-1/"))
	assert.True(t, strings.HasSuffix(uploader.lastKey, "_foto.jpg"))
	assert.Equal(t, "https://cdn.example.com/"+uploader.lastKey, url)

	uploader.err = errors.New("bucket offline")
	_, err = service.UploadAttachment(context.Background(), "conv-1", "user-a", "foto.jpg", strings.NewReader("bytes"), "image/jpeg")
	assert.ErrorIs(t, err, domainchat.ErrUploadFailed)
}

func TestAttachmentKeyShape(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	key := appchat.AttachmentKey("conv-1", "minha foto.jpg", at)
	assert.Equal(t, fmt.Sprintf("chat_images/conv-1/%d_minha_foto.jpg", at.UnixMilli()), key)

	key = appchat.AttachmentKey("conv-1", "../../etc/passwd", at)
	assert.Equal(t, fmt.Sprintf("chat_images/conv-1/%d_passwd", at.UnixMilli()), key)

	key = appchat.AttachmentKey("conv-1", "", at)
	assert.Equal(t, fmt.Sprintf("chat_images/conv-1/%d_attachment", at.UnixMilli()), key)
}

func TestAppendPublishesOrderedEvents(t *testing.T) {
	f := newFixture(t)
	conv := f.open(t)
	before := len(f.events.byType(appchat.EventMessageAppended))

	const n = 5
	for i := 0; i < n; i++ {
		_, err := f.service.AppendText(context.Background(), conv.ID, "user-buyer", fmt.Sprintf("evento %d", i))
		require.NoError(t, err)
	}

	appended := f.events.byType(appchat.EventMessageAppended)
	require.Len(t, appended, before+n)
	var lastID string
	for _, evt := range appended[before:] {
		require.NotNil(t, evt.Message)
		assert.Equal(t, "test-instance", evt.Origin)
		assert.Equal(t, conv.ID, evt.ConversationID)
		assert.Greater(t, evt.Message.ID, lastID)
		lastID = evt.Message.ID
	}
}
