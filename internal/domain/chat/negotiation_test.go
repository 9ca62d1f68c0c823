package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision(" Accept ")
	require.NoError(t, err)
	assert.Equal(t, DecisionAccept, d)

	d, err = ParseDecision("reject")
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, d)

	_, err = ParseDecision("maybe")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecisionOutcome(t *testing.T) {
	assert.Equal(t, StatusAccepted, DecisionAccept.Outcome())
	assert.Equal(t, StatusRejected, DecisionReject.Outcome())
}

func TestAuthorizeResponse(t *testing.T) {
	conv, err := NewConversation("conv-1", "lst-1", []string{"user-a", "user-b"}, time.Now())
	require.NoError(t, err)

	offer, err := NewOfferMessage("conv-1", "user-a", ListingRef{ID: "lst-1", Name: "AJ1"}, 90)
	require.NoError(t, err)

	assert.NoError(t, AuthorizeResponse(offer, conv, "user-b"))
	assert.ErrorIs(t, AuthorizeResponse(offer, conv, "user-a"), ErrPermissionDenied)
	assert.ErrorIs(t, AuthorizeResponse(offer, conv, "user-c"), ErrPermissionDenied)

	text, err := NewTextMessage("conv-1", "user-a", "olá")
	require.NoError(t, err)
	assert.ErrorIs(t, AuthorizeResponse(text, conv, "user-b"), ErrValidation)
}

func TestResponseText(t *testing.T) {
	offer, err := NewOfferMessage("conv-1", "user-a", ListingRef{ID: "lst-1", Name: "AJ1"}, 90)
	require.NoError(t, err)
	assert.Equal(t, "Proposta de 90 € aceite.", ResponseText(offer, DecisionAccept))
	assert.Equal(t, "Proposta de 90 € recusada.", ResponseText(offer, DecisionReject))

	trade, err := NewTradeMessage("conv-1", "user-a", ListingRef{ID: "lst-1"}, ListingRef{ID: "lst-2"})
	require.NoError(t, err)
	assert.Equal(t, "Proposta de troca aceite.", ResponseText(trade, DecisionAccept))
	assert.Equal(t, "Proposta de troca recusada.", ResponseText(trade, DecisionReject))
}
