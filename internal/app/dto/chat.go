package dto

import (
	"time"

	domainchat "sneakmarket/internal/domain/chat"
	domainlistings "sneakmarket/internal/domain/listings"
)

// Conversation describes chat thread metadata.
type Conversation struct {
	ID            string    `json:"id"`
	ListingID     string    `json:"listing_id,omitempty"`
	Participants  []string  `json:"participants"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastSenderID  string    `json:"last_message_sender_id,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	UnreadBy      []string  `json:"unread_by,omitempty"`
}

// ConversationList is the directory response.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ListingRef names a listing inside an offer or trade payload.
type ListingRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Offer is the monetary-offer payload of an offer message.
type Offer struct {
	Listing     ListingRef `json:"listing"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// Trade is the swap payload of a trade message.
type Trade struct {
	Offered     ListingRef `json:"offered"`
	Requested   ListingRef `json:"requested"`
	Status      string     `json:"status"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// ChatMessage is one stream entry; exactly one kind-specific field is set.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"created_at"`
	Text           string    `json:"text,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	Offer          *Offer    `json:"offer,omitempty"`
	Trade          *Trade    `json:"trade,omitempty"`
}

// ChatMessageList is an ordered message history.
type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}

// Listing is the read-only catalog shape.
type Listing struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Price      float64  `json:"price"`
	Images     []string `json:"images,omitempty"`
	SellerID   string   `json:"seller_id"`
	IsForTrade bool     `json:"is_for_trade"`
}

// FromConversation maps a domain thread to its transfer shape.
func FromConversation(conv domainchat.Conversation) Conversation {
	return Conversation{
		ID:            conv.ID,
		ListingID:     conv.ListingID,
		Participants:  append([]string(nil), conv.Participants...),
		CreatedAt:     conv.CreatedAt,
		LastMessage:   conv.LastMessage,
		LastSenderID:  conv.LastSenderID,
		LastMessageAt: conv.LastMessageAt,
		UnreadBy:      append([]string(nil), conv.UnreadBy...),
	}
}

// FromMessage maps a domain message, carrying only its kind's payload.
func FromMessage(msg domainchat.Message) ChatMessage {
	out := ChatMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Kind:           string(msg.Kind),
		CreatedAt:      msg.CreatedAt,
	}
	switch msg.Kind {
	case domainchat.KindText, domainchat.KindSystem:
		out.Text = msg.Text
	case domainchat.KindImage:
		out.ImageURL = msg.ImageURL
	case domainchat.KindOffer:
		if msg.Offer != nil {
			out.Offer = &Offer{
				Listing: ListingRef(msg.Offer.Listing),
				Amount:  msg.Offer.Amount,
				Status:  string(msg.Offer.Status),
			}
			if !msg.Offer.RespondedAt.IsZero() {
				at := msg.Offer.RespondedAt
				out.Offer.RespondedAt = &at
			}
		}
	case domainchat.KindTrade:
		if msg.Trade != nil {
			out.Trade = &Trade{
				Offered:   ListingRef(msg.Trade.Offered),
				Requested: ListingRef(msg.Trade.Requested),
				Status:    string(msg.Trade.Status),
			}
			if !msg.Trade.RespondedAt.IsZero() {
				at := msg.Trade.RespondedAt
				out.Trade.RespondedAt = &at
			}
		}
	}
	return out
}

// FromListing maps a catalog entry to its transfer shape.
func FromListing(l domainlistings.Listing) Listing {
	return Listing{
		ID:         string(l.ID),
		Title:      l.Title,
		Price:      l.Price,
		Images:     append([]string(nil), l.Images...),
		SellerID:   l.SellerID,
		IsForTrade: l.IsForTrade,
	}
}
