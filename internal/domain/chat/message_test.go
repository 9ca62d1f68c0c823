package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextMessageRejectsEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := NewTextMessage("conv-1", "user-a", text)
		assert.ErrorIs(t, err, ErrValidation, "text %q", text)
	}
}

func TestNewTextMessageTrims(t *testing.T) {
	msg, err := NewTextMessage("conv-1", "user-a", "  tudo bem?  ")
	require.NoError(t, err)
	assert.Equal(t, "tudo bem?", msg.Text)
	assert.Equal(t, KindText, msg.Kind)
	assert.Equal(t, "tudo bem?", msg.Summary())
}

func TestNewOfferMessageValidation(t *testing.T) {
	listing := ListingRef{ID: "lst-1", Name: "Air Jordan 1"}

	_, err := NewOfferMessage("conv-1", "user-a", listing, 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewOfferMessage("conv-1", "user-a", listing, -5)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewOfferMessage("conv-1", "user-a", ListingRef{}, 90)
	assert.ErrorIs(t, err, ErrValidation)

	msg, err := NewOfferMessage("conv-1", "user-a", listing, 90)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, msg.Status())
	assert.True(t, msg.Negotiable())
	assert.Equal(t, "Proposta: 90 € para Air Jordan 1", msg.Summary())
}

func TestNewTradeMessageValidation(t *testing.T) {
	a := ListingRef{ID: "lst-1", Name: "Dunk Low"}
	b := ListingRef{ID: "lst-2", Name: "Yeezy 350"}

	_, err := NewTradeMessage("conv-1", "user-a", ListingRef{}, b)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewTradeMessage("conv-1", "user-a", a, a)
	assert.ErrorIs(t, err, ErrValidation)

	msg, err := NewTradeMessage("conv-1", "user-a", a, b)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, msg.Status())
	assert.Equal(t, "Proposta de troca: Dunk Low ↔ Yeezy 350", msg.Summary())
}

func TestImageSummary(t *testing.T) {
	msg, err := NewImageMessage("conv-1", "user-a", "https://cdn.example.com/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "📷 Imagem", msg.Summary())
	assert.False(t, msg.Negotiable())
}

func TestFormatAmountDropsTrailingZeros(t *testing.T) {
	assert.Equal(t, "90", FormatAmount(90))
	assert.Equal(t, "92.5", FormatAmount(92.5))
	assert.Equal(t, "0.01", FormatAmount(0.01))
}

func TestTrimSummaryCapsLongText(t *testing.T) {
	long := strings.Repeat("é", 600)
	trimmed := TrimSummary(long)
	assert.Equal(t, 500, len([]rune(trimmed)))
	assert.Equal(t, "curto", TrimSummary("  curto  "))
}

func TestSystemMessage(t *testing.T) {
	msg := NewSystemMessage("conv-1", "Proposta de 90 € aceite.")
	assert.Equal(t, SystemSenderID, msg.SenderID)
	assert.Equal(t, KindSystem, msg.Kind)
	assert.Equal(t, "Proposta de 90 € aceite.", msg.Summary())
}
