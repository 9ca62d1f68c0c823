package chat

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MessageKind tags the payload variant carried by a message.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindOffer  MessageKind = "offer"
	KindTrade  MessageKind = "trade"
	KindSystem MessageKind = "system"
)

// GreetingText opens every newly created conversation.
const GreetingText = "Olá, tenho interesse neste produto."

// ImageSummary is the directory placeholder for image messages.
const ImageSummary = "📷 Imagem"

const summaryLimit = 500

// ListingRef names a listing inside an offer or trade payload.
type ListingRef struct {
	ID    string
	Name  string
	Image string
}

// OfferPayload carries a monetary proposal for a listing.
type OfferPayload struct {
	Listing     ListingRef
	Amount      float64
	Status      Status
	RespondedAt time.Time
}

// TradePayload carries a swap proposal between two listings.
type TradePayload struct {
	Offered     ListingRef
	Requested   ListingRef
	Status      Status
	RespondedAt time.Time
}

// Message is one event in a conversation's ordered stream. Immutable except
// for the negotiation status of offer and trade kinds.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Kind           MessageKind
	CreatedAt      time.Time

	Text     string
	ImageURL string
	Offer    *OfferPayload
	Trade    *TradePayload
}

// Negotiable reports whether the message carries a pending/accepted/rejected lifecycle.
func (m *Message) Negotiable() bool {
	return m.Kind == KindOffer || m.Kind == KindTrade
}

// Status returns the negotiation status, or empty for non-negotiable kinds.
func (m *Message) Status() Status {
	switch m.Kind {
	case KindOffer:
		if m.Offer != nil {
			return m.Offer.Status
		}
	case KindTrade:
		if m.Trade != nil {
			return m.Trade.Status
		}
	}
	return ""
}

// Summary is the text shown in the conversation directory for this message.
func (m *Message) Summary() string {
	switch m.Kind {
	case KindImage:
		return ImageSummary
	case KindOffer:
		if m.Offer != nil {
			return fmt.Sprintf("Proposta: %s € para %s", FormatAmount(m.Offer.Amount), m.Offer.Listing.Name)
		}
	case KindTrade:
		if m.Trade != nil {
			return fmt.Sprintf("Proposta de troca: %s ↔ %s", m.Trade.Offered.Name, m.Trade.Requested.Name)
		}
	}
	return TrimSummary(m.Text)
}

// NewTextMessage builds a user text message. Empty or whitespace-only text
// is rejected before any store call.
func NewTextMessage(conversationID, senderID, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}
	return &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           KindText,
		Text:           text,
	}, nil
}

// NewImageMessage builds a message referencing an uploaded attachment.
func NewImageMessage(conversationID, senderID, imageURL string) (*Message, error) {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, fmt.Errorf("%w: image url is required", ErrValidation)
	}
	return &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           KindImage,
		ImageURL:       imageURL,
	}, nil
}

// NewOfferMessage builds a pending monetary offer for a listing.
func NewOfferMessage(conversationID, senderID string, listing ListingRef, amount float64) (*Message, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: offer amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(listing.ID) == "" {
		return nil, fmt.Errorf("%w: offer listing is required", ErrValidation)
	}
	return &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           KindOffer,
		Offer: &OfferPayload{
			Listing: listing,
			Amount:  amount,
			Status:  StatusPending,
		},
	}, nil
}

// NewTradeMessage builds a pending trade proposal between two listings.
func NewTradeMessage(conversationID, senderID string, offered, requested ListingRef) (*Message, error) {
	if strings.TrimSpace(offered.ID) == "" || strings.TrimSpace(requested.ID) == "" {
		return nil, fmt.Errorf("%w: both trade listings are required", ErrValidation)
	}
	if offered.ID == requested.ID {
		return nil, fmt.Errorf("%w: cannot trade a listing for itself", ErrValidation)
	}
	return &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           KindTrade,
		Trade: &TradePayload{
			Offered:   offered,
			Requested: requested,
			Status:    StatusPending,
		},
	}, nil
}

// NewSystemMessage builds a machine-authored text entry.
func NewSystemMessage(conversationID, text string) *Message {
	return &Message{
		ConversationID: conversationID,
		SenderID:       SystemSenderID,
		Kind:           KindSystem,
		Text:           text,
	}
}

// FormatAmount renders a monetary value without trailing zeros (90, 92.5).
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// TrimSummary caps directory snippets so conversation rows stay small.
func TrimSummary(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= summaryLimit {
		return string(runes)
	}
	return string(runes[:summaryLimit])
}
