package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appchat "sneakmarket/internal/app/chat"
	domainchat "sneakmarket/internal/domain/chat"
)

func envelope(t *testing.T, evt appchat.Event) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"specversion": "1.0",
		"type":        evt.Type,
		"data":        evt,
	})
	require.NoError(t, err)
	return raw
}

func TestRelayInjectsRemoteMessages(t *testing.T) {
	hub := appchat.NewHub(nil)
	relay := &Relay{hub: hub, origin: "instance-a"}

	sub := hub.SubscribeMessages("conv-1", nil)
	defer sub.Close()

	remote := domainchat.Message{
		ID:             "01REMOTE",
		ConversationID: "conv-1",
		SenderID:       "user-b",
		Kind:           domainchat.KindText,
		Text:           "vindo de outra instância",
		CreatedAt:      time.Now(),
	}
	relay.apply(envelope(t, appchat.Event{
		Type:           appchat.EventMessageAppended,
		Origin:         "instance-b",
		ConversationID: "conv-1",
		Message:        &remote,
	}))

	delivered := <-sub.Events()
	assert.Equal(t, "01REMOTE", delivered.ID)
	assert.Equal(t, "vindo de outra instância", delivered.Text)
}

func TestRelaySkipsOwnOrigin(t *testing.T) {
	hub := appchat.NewHub(nil)
	relay := &Relay{hub: hub, origin: "instance-a"}

	sub := hub.SubscribeMessages("conv-1", nil)
	defer sub.Close()

	local := domainchat.Message{ID: "01LOCAL", ConversationID: "conv-1", Kind: domainchat.KindText, Text: "eco"}
	relay.apply(envelope(t, appchat.Event{
		Type:           appchat.EventMessageAppended,
		Origin:         "instance-a",
		ConversationID: "conv-1",
		Message:        &local,
	}))

	select {
	case msg := <-sub.Events():
		t.Fatalf("own event echoed back: %q", msg.ID)
	default:
	}
}

func TestRelayRoutesConversationUpdates(t *testing.T) {
	hub := appchat.NewHub(nil)
	relay := &Relay{hub: hub, origin: "instance-a"}

	watch := hub.SubscribeDirectory("user-a", nil)
	defer watch.Close()

	relay.apply(envelope(t, appchat.Event{
		Type:           appchat.EventConversationUpdated,
		Origin:         "instance-b",
		ConversationID: "conv-1",
		Conversation: &domainchat.Conversation{
			ID:           "conv-1",
			Participants: []string{"user-a", "user-b"},
			LastMessage:  "resumo novo",
		},
	}))

	update := <-watch.Events()
	assert.Equal(t, "resumo novo", update.LastMessage)
}

func TestRelayDropsUndecodablePayloads(t *testing.T) {
	hub := appchat.NewHub(nil)
	relay := &Relay{hub: hub, origin: "instance-a"}

	sub := hub.SubscribeMessages("conv-1", nil)
	defer sub.Close()

	relay.apply([]byte("{not json"))
	select {
	case msg := <-sub.Events():
		t.Fatalf("garbage produced a delivery: %q", msg.ID)
	default:
	}
}
