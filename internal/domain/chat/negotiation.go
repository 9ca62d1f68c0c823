package chat

import (
	"fmt"
	"strings"
)

// Status is the lifecycle of an offer or trade proposal.
// pending transitions exactly once, to accepted or rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Decision is the counterparty's answer to a pending proposal.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// ParseDecision validates a wire-level decision value.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(raw))) {
	case DecisionAccept:
		return DecisionAccept, nil
	case DecisionReject:
		return DecisionReject, nil
	default:
		return "", fmt.Errorf("%w: decision must be accept or reject", ErrValidation)
	}
}

// Outcome maps a decision to the terminal status it produces.
func (d Decision) Outcome() Status {
	if d == DecisionAccept {
		return StatusAccepted
	}
	return StatusRejected
}

// AuthorizeResponse checks who may answer a proposal. The sender can never
// respond to their own message; only thread participants qualify.
func AuthorizeResponse(msg *Message, conv *Conversation, responderID string) error {
	responderID = strings.TrimSpace(responderID)
	if !msg.Negotiable() {
		return fmt.Errorf("%w: message %s is not an offer or trade", ErrValidation, msg.ID)
	}
	if conv != nil && !conv.HasParticipant(responderID) {
		return fmt.Errorf("%w: %s is not a participant", ErrPermissionDenied, responderID)
	}
	if msg.SenderID == responderID {
		return fmt.Errorf("%w: cannot respond to your own proposal", ErrPermissionDenied)
	}
	return nil
}

// ResponseText is the system-message wording for a resolved proposal.
func ResponseText(msg *Message, decision Decision) string {
	accepted := decision == DecisionAccept
	if msg.Kind == KindOffer && msg.Offer != nil {
		if accepted {
			return fmt.Sprintf("Proposta de %s € aceite.", FormatAmount(msg.Offer.Amount))
		}
		return fmt.Sprintf("Proposta de %s € recusada.", FormatAmount(msg.Offer.Amount))
	}
	if accepted {
		return "Proposta de troca aceite."
	}
	return "Proposta de troca recusada."
}
