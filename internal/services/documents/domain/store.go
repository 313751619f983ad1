package domain

import (
	"context"
	"time"
)

// InstanceStore persists document instances and their history.
type InstanceStore interface {
	GetInstance(ctx context.Context, id string) (Instance, error)
	ListInstancesByHolder(ctx context.Context, holderID string) ([]Instance, error)
	// CreateInstance inserts instance together with its creation record.
	CreateInstance(ctx context.Context, instance Instance, record HistoryRecord) error
	// UpdateInstance replaces the stored instance when its version still
	// equals expectedVersion, appending record in the same transaction when
	// it is non-nil. A moved version yields ErrConflict.
	UpdateInstance(ctx context.Context, next Instance, expectedVersion int64, record *HistoryRecord) error
	ListHistory(ctx context.Context, instanceID string) ([]HistoryRecord, error)
}

// HolderStore persists holders and their conversation state.
type HolderStore interface {
	GetHolder(ctx context.Context, id string) (Holder, error)
	PutHolder(ctx context.Context, holder Holder) error
	// DeleteHolder removes the holder and cascades to instances, history and
	// conversation state.
	DeleteHolder(ctx context.Context, id string) error
	GetConversationState(ctx context.Context, holderID string) (ConversationState, error)
	PutConversationState(ctx context.Context, holderID string, state ConversationState) error
}

// TypeStore persists the document type catalog.
type TypeStore interface {
	ListDocumentTypes(ctx context.Context) ([]DocumentType, error)
	GetDocumentType(ctx context.Context, code string) (DocumentType, error)
	UpsertDocumentTypes(ctx context.Context, types []DocumentType) error
}

// Store is the persistence boundary for lifecycle behavior.
type Store interface {
	InstanceStore
	HolderStore
	TypeStore
}

// Candidate is one instance joined with what the scheduler needs to evaluate
// and deliver it.
type Candidate struct {
	Instance Instance
	Type     DocumentType
	Holder   Holder
}

// CandidateFilter narrows the scheduler's candidate scan.
type CandidateFilter struct {
	// ExpiringOnOrBefore limits the scan to expiries up to this date when set.
	ExpiringOnOrBefore *Date
}

// ReminderMark records that a reminder of Tier went out at At for the
// document as it expired on Expiry.
type ReminderMark struct {
	InstanceID string
	Expiry     Date
	Tier       Tier
	At         time.Time
}

// ReminderStore is the persistence boundary for the scheduler.
type ReminderStore interface {
	// ListReminderCandidates returns instances with notifications enabled and
	// an expiry set.
	ListReminderCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error)
	// MarkReminderSent sets lastNotificationAt (and finalReminderSent for the
	// final tier) while the expiry still equals mark.Expiry. Other edits made
	// during delivery keep the mark. A moved expiry returns ErrConflict.
	MarkReminderSent(ctx context.Context, mark ReminderMark) error
}
