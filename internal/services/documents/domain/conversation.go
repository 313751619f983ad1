package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConversationKind tags the variant held by ConversationState.
type ConversationKind string

const (
	ConversationIdle                       ConversationKind = "idle"
	ConversationAwaitingExpiry             ConversationKind = "awaiting_expiry"
	ConversationAwaitingTravelConfirmation ConversationKind = "awaiting_travel_confirmation"
)

// ConversationState records what the chat layer expects next from a holder.
// Every kind except idle carries the document it refers to.
type ConversationState struct {
	Kind       ConversationKind
	DocumentID string
	UpdatedAt  time.Time
}

// IdleState is the state with nothing pending.
func IdleState() ConversationState {
	return ConversationState{Kind: ConversationIdle}
}

// AwaitingExpiry waits for the holder to type a new expiry for documentID.
func AwaitingExpiry(documentID string) ConversationState {
	return ConversationState{Kind: ConversationAwaitingExpiry, DocumentID: documentID}
}

// AwaitingTravelConfirmation waits for the holder to answer the travel
// question about documentID.
func AwaitingTravelConfirmation(documentID string) ConversationState {
	return ConversationState{Kind: ConversationAwaitingTravelConfirmation, DocumentID: documentID}
}

// Validate checks that the variant carries the fields its kind requires.
func (s ConversationState) Validate() error {
	switch s.Kind {
	case ConversationIdle:
		if s.DocumentID != "" {
			return fmt.Errorf("idle state carries document %q", s.DocumentID)
		}
		return nil
	case ConversationAwaitingExpiry, ConversationAwaitingTravelConfirmation:
		if strings.TrimSpace(s.DocumentID) == "" {
			return fmt.Errorf("%s state requires a document id", s.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown conversation kind %q", s.Kind)
	}
}

// Pending reports whether the state waits on documentID.
func (s ConversationState) Pending(documentID string) bool {
	return s.Kind != ConversationIdle && s.DocumentID == documentID
}
