package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/louisbranch/docwatch/internal/platform/logging"
)

const maxTransitionAttempts = 3

// Prompter asks a holder out of band whether they are still in the country.
type Prompter interface {
	PromptTravelConfirmation(ctx context.Context, holder Holder, doc Instance) error
}

// ServiceDeps wires the lifecycle service.
type ServiceDeps struct {
	Store    Store
	Prompter Prompter
	Rules    RuleTable
	Clock    func() time.Time
	NewID    func() (string, error)
	Logger   logrus.FieldLogger
}

// Service drives document lifecycle transitions. Every transition appends
// exactly one history record in the same write as the state change.
type Service struct {
	store    Store
	prompter Prompter
	rules    RuleTable
	clock    func() time.Time
	newID    func() (string, error)
	logger   logrus.FieldLogger
}

// NewService constructs the lifecycle service.
func NewService(deps ServiceDeps) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = NewID
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Rules == (RuleTable{}) {
		deps.Rules = DefaultRuleTable()
	}
	return &Service{
		store:    deps.Store,
		prompter: deps.Prompter,
		rules:    deps.Rules,
		clock:    deps.Clock,
		newID:    deps.NewID,
		logger:   deps.Logger,
	}
}

// OnboardInput describes a new or returning holder.
type OnboardInput struct {
	// HolderID re-onboards an existing holder when set.
	HolderID        string
	ChatID          int64
	Language        string
	CitizenshipCode string
	Timezone        string
	Window          *NotificationWindow
	IsAdmin         bool
}

// Onboard stores the holder and creates one instance per active document
// type the holder lacks. The visa instance is created only when the holder's
// citizenship requires a visa.
func (s *Service) Onboard(ctx context.Context, input OnboardInput) (Holder, []Instance, error) {
	if err := s.ready(); err != nil {
		return Holder{}, nil, err
	}
	timezone := strings.TrimSpace(input.Timezone)
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return Holder{}, nil, invalidArgument(fmt.Sprintf("unknown timezone %q", timezone))
		}
	}
	if input.Window != nil && (!input.Window.Start.Valid() || !input.Window.End.Valid()) {
		return Holder{}, nil, invalidArgument("notification window out of range")
	}

	now := s.nowUTC()
	holder := Holder{
		ID:              strings.TrimSpace(input.HolderID),
		ChatID:          input.ChatID,
		Language:        normalizeLanguage(input.Language),
		CitizenshipCode: strings.ToUpper(strings.TrimSpace(input.CitizenshipCode)),
		Timezone:        timezone,
		Window:          input.Window,
		IsAdmin:         input.IsAdmin,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	existing := map[string]bool{}
	if holder.ID == "" {
		id, err := s.newID()
		if err != nil {
			return Holder{}, nil, err
		}
		holder.ID = id
	} else {
		stored, err := s.store.GetHolder(ctx, holder.ID)
		switch {
		case err == nil:
			holder.CreatedAt = stored.CreatedAt
			docs, err := s.store.ListInstancesByHolder(ctx, holder.ID)
			if err != nil {
				return Holder{}, nil, err
			}
			for _, doc := range docs {
				existing[doc.TypeCode] = true
			}
		case !errors.Is(err, ErrNotFound):
			return Holder{}, nil, err
		}
	}
	if err := s.store.PutHolder(ctx, holder); err != nil {
		return Holder{}, nil, err
	}

	types, err := s.store.ListDocumentTypes(ctx)
	if err != nil {
		return Holder{}, nil, err
	}
	rules := s.rules.ResolveForCountry(holder.CitizenshipCode)
	created := make([]Instance, 0, len(types))
	for _, docType := range types {
		if !docType.IsActive || existing[docType.Code] {
			continue
		}
		if docType.Code == TypeVisa && !rules.VisaRequired {
			continue
		}
		doc, err := s.createInstance(ctx, holder.ID, docType.Code, nil, ActorSystem)
		if err != nil {
			return Holder{}, nil, err
		}
		created = append(created, doc)
	}
	return holder, created, nil
}

// CreateInput describes one instance to create.
type CreateInput struct {
	HolderID   string
	TypeCode   string
	ExpiryDate *Date
	Actor      Actor
}

// Create adds an active instance for a holder. Setting a migration card
// expiry fills derived registration and medical deadlines.
func (s *Service) Create(ctx context.Context, input CreateInput) (Instance, error) {
	if err := s.ready(); err != nil {
		return Instance{}, err
	}
	holderID := strings.TrimSpace(input.HolderID)
	if holderID == "" {
		return Instance{}, invalidArgument("holder id is required")
	}
	code := strings.ToUpper(strings.TrimSpace(input.TypeCode))
	if code == "" {
		return Instance{}, invalidArgument("document type is required")
	}
	actor := input.Actor
	if actor == "" {
		actor = ActorHolder
	}
	if !actor.Valid() {
		return Instance{}, invalidArgument(fmt.Sprintf("unknown actor %q", actor))
	}
	if _, err := s.store.GetHolder(ctx, holderID); err != nil {
		return Instance{}, err
	}
	if _, err := s.store.GetDocumentType(ctx, code); err != nil {
		return Instance{}, err
	}
	doc, err := s.createInstance(ctx, holderID, code, input.ExpiryDate, actor)
	if err != nil {
		return Instance{}, err
	}
	if doc.TypeCode == TypeMigrationCard && doc.ExpiryDate != nil {
		s.fillDerivedDeadlines(ctx, doc)
	}
	return doc, nil
}

func (s *Service) createInstance(ctx context.Context, holderID, code string, expiry *Date, actor Actor) (Instance, error) {
	id, err := s.newID()
	if err != nil {
		return Instance{}, err
	}
	recordID, err := s.newID()
	if err != nil {
		return Instance{}, err
	}
	now := s.nowUTC()
	doc := Instance{
		ID:                   id,
		HolderID:             holderID,
		TypeCode:             code,
		Status:               StatusActive,
		ExpiryDate:           expiry,
		NotificationsEnabled: true,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	record := HistoryRecord{
		ID:            recordID,
		InstanceID:    id,
		Event:         EventCreated,
		NewExpiryDate: expiry,
		ChangedBy:     actor,
		CreatedAt:     now,
	}
	if err := s.store.CreateInstance(ctx, doc, record); err != nil {
		return Instance{}, err
	}
	return doc, nil
}

// UpdateExpiry sets a new expiry from any state and returns the instance to
// active. Reminder flags reset so the new period gets a fresh reminder cycle.
func (s *Service) UpdateExpiry(ctx context.Context, id string, expiry Date, actor Actor, note string) error {
	if expiry.IsZero() {
		return invalidArgument("expiry date is required")
	}
	if actor == "" {
		actor = ActorHolder
	}
	if !actor.Valid() {
		return invalidArgument(fmt.Sprintf("unknown actor %q", actor))
	}
	doc, applied, err := s.transition(ctx, id, func(doc *Instance) (HistoryRecord, error) {
		doc.ExpiryDate = expiry.Ptr()
		doc.Status = StatusActive
		doc.SubmittedForExtension = false
		doc.NeedsTravelConfirmation = true
		doc.LastNotificationAt = nil
		doc.FinalReminderSent = false
		return HistoryRecord{Event: EventExtended, ChangedBy: actor, Note: note}, nil
	})
	if err != nil || !applied {
		return err
	}
	if doc.TypeCode == TypeMigrationCard {
		s.fillDerivedDeadlines(ctx, doc)
	}
	return nil
}

// PauseByHolder records that the holder submitted the document for
// extension. Reminders stop until a new expiry is set.
func (s *Service) PauseByHolder(ctx context.Context, id string, note string) error {
	_, _, err := s.transition(ctx, id, func(doc *Instance) (HistoryRecord, error) {
		if doc.ExpiryDate == nil {
			return HistoryRecord{}, preconditionUnmet("pause requires an expiry date", doc.ID)
		}
		if doc.Status != StatusActive {
			return HistoryRecord{}, preconditionUnmet("pause requires an active document", doc.ID)
		}
		doc.Status = StatusSubmittedForExtension
		doc.SubmittedForExtension = true
		return HistoryRecord{Event: EventUserPaused, ChangedBy: ActorHolder, Note: note}, nil
	})
	return err
}

// MarkExtendedByAdmin records an administrative extension and asks the holder
// to confirm they are still in the country.
func (s *Service) MarkExtendedByAdmin(ctx context.Context, id string, note string) error {
	doc, applied, err := s.transition(ctx, id, func(doc *Instance) (HistoryRecord, error) {
		doc.Status = StatusExtended
		doc.SubmittedForExtension = false
		doc.NeedsTravelConfirmation = true
		return HistoryRecord{Event: EventAdminMarkedExtended, ChangedBy: ActorAdmin, Note: note}, nil
	})
	if err != nil || !applied {
		return err
	}

	log := s.logger.WithFields(logrus.Fields{"document_id": doc.ID, "holder_id": doc.HolderID})
	if err := s.store.PutConversationState(ctx, doc.HolderID, AwaitingTravelConfirmation(doc.ID)); err != nil {
		log.WithError(err).Warn("store travel confirmation state")
	}
	if s.prompter == nil {
		return nil
	}
	holder, err := s.store.GetHolder(ctx, doc.HolderID)
	if err != nil {
		log.WithError(err).Warn("load holder for travel prompt")
		return nil
	}
	if err := s.prompter.PromptTravelConfirmation(ctx, holder, doc); err != nil {
		log.WithError(err).Warn("send travel confirmation prompt")
	}
	return nil
}

// PauseByAdmin suspends reminders for a document from any state.
func (s *Service) PauseByAdmin(ctx context.Context, id string, note string) error {
	_, _, err := s.transition(ctx, id, func(doc *Instance) (HistoryRecord, error) {
		doc.Status = StatusPausedByAdmin
		return HistoryRecord{Event: EventAdminPaused, ChangedBy: ActorAdmin, Note: note}, nil
	})
	return err
}

// ConfirmTravel records the holder's answer to the travel question.
func (s *Service) ConfirmTravel(ctx context.Context, id string, inCountry bool) error {
	doc, applied, err := s.transition(ctx, id, func(doc *Instance) (HistoryRecord, error) {
		doc.NeedsTravelConfirmation = false
		answer := inCountry
		return HistoryRecord{Event: EventTravelConfirmed, ChangedBy: ActorHolder, InCountry: &answer}, nil
	})
	if err != nil || !applied {
		return err
	}
	state, err := s.store.GetConversationState(ctx, doc.HolderID)
	if err != nil {
		s.logger.WithError(err).WithField("holder_id", doc.HolderID).Warn("load conversation state")
		return nil
	}
	if state.Pending(doc.ID) {
		if err := s.store.PutConversationState(ctx, doc.HolderID, IdleState()); err != nil {
			s.logger.WithError(err).WithField("holder_id", doc.HolderID).Warn("reset conversation state")
		}
	}
	return nil
}

// SetNotifications toggles reminders for one document. It is not a lifecycle
// event and leaves history untouched.
func (s *Service) SetNotifications(ctx context.Context, id string, enabled bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidArgument("document id is required")
	}
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := s.store.GetInstance(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.NotificationsEnabled == enabled {
			return nil
		}
		next := current
		next.NotificationsEnabled = enabled
		next.Version = current.Version + 1
		next.UpdatedAt = s.nowUTC()
		err = s.store.UpdateInstance(ctx, next, current.Version, nil)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	return ErrConflict
}

// Document returns one instance.
func (s *Service) Document(ctx context.Context, id string) (Instance, error) {
	if err := s.ready(); err != nil {
		return Instance{}, err
	}
	return s.store.GetInstance(ctx, strings.TrimSpace(id))
}

// HolderDocuments lists a holder's instances.
func (s *Service) HolderDocuments(ctx context.Context, holderID string) ([]Instance, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	holderID = strings.TrimSpace(holderID)
	if _, err := s.store.GetHolder(ctx, holderID); err != nil {
		return nil, err
	}
	return s.store.ListInstancesByHolder(ctx, holderID)
}

// History lists an instance's records oldest first.
func (s *Service) History(ctx context.Context, id string) ([]HistoryRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, strings.TrimSpace(id))
}

// DeleteHolder removes a holder with all of their documents and history.
func (s *Service) DeleteHolder(ctx context.Context, holderID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	holderID = strings.TrimSpace(holderID)
	if holderID == "" {
		return invalidArgument("holder id is required")
	}
	return s.store.DeleteHolder(ctx, holderID)
}

// HolderDeadlines computes the deadlines implied by the holder's migration
// card together with the rules used.
func (s *Service) HolderDeadlines(ctx context.Context, holderID string) (DerivedDeadlines, Rules, error) {
	if err := s.ready(); err != nil {
		return DerivedDeadlines{}, Rules{}, err
	}
	holder, err := s.store.GetHolder(ctx, strings.TrimSpace(holderID))
	if err != nil {
		return DerivedDeadlines{}, Rules{}, err
	}
	docs, err := s.store.ListInstancesByHolder(ctx, holder.ID)
	if err != nil {
		return DerivedDeadlines{}, Rules{}, err
	}
	rules := s.rules.ResolveForCountry(holder.CitizenshipCode)
	for _, doc := range docs {
		if doc.TypeCode == TypeMigrationCard && doc.ExpiryDate != nil {
			return DeriveDeadlines(*doc.ExpiryDate, rules), rules, nil
		}
	}
	return DerivedDeadlines{}, rules, holderPreconditionUnmet("migration card expiry is not set", holder.ID)
}

// fillDerivedDeadlines writes registration and medical deadlines to the
// holder's instances that have no expiry yet. Failures are logged since the
// card update itself has already been committed.
func (s *Service) fillDerivedDeadlines(ctx context.Context, card Instance) {
	log := s.logger.WithFields(logrus.Fields{"document_id": card.ID, "holder_id": card.HolderID})
	holder, err := s.store.GetHolder(ctx, card.HolderID)
	if err != nil {
		log.WithError(err).Warn("load holder for derived deadlines")
		return
	}
	derived := DeriveDeadlines(*card.ExpiryDate, s.rules.ResolveForCountry(holder.CitizenshipCode))
	docs, err := s.store.ListInstancesByHolder(ctx, card.HolderID)
	if err != nil {
		log.WithError(err).Warn("list holder documents for derived deadlines")
		return
	}
	for _, doc := range docs {
		if doc.ExpiryDate != nil {
			continue
		}
		var deadline Date
		switch {
		case doc.TypeCode == TypeRegistration:
			deadline = derived.Registration
		case IsMedicalType(doc.TypeCode):
			deadline = derived.Medical
		default:
			continue
		}
		_, _, err := s.transition(ctx, doc.ID, func(next *Instance) (HistoryRecord, error) {
			if next.ExpiryDate != nil {
				return HistoryRecord{}, errSkipTransition
			}
			next.ExpiryDate = deadline.Ptr()
			next.Status = StatusActive
			next.LastNotificationAt = nil
			next.FinalReminderSent = false
			return HistoryRecord{Event: EventDeadlineDerived, ChangedBy: ActorSystem}, nil
		})
		if err != nil {
			log.WithError(err).WithField("derived_document_id", doc.ID).Warn("write derived deadline")
		}
	}
}

var errSkipTransition = errors.New("transition not needed")

// transition loads id, applies mutate to a copy and persists it with one
// history record under an optimistic version check, retrying on conflict.
// A missing instance is a successful no-op reported by applied=false.
func (s *Service) transition(ctx context.Context, id string, mutate func(doc *Instance) (HistoryRecord, error)) (doc Instance, applied bool, err error) {
	if err := s.ready(); err != nil {
		return Instance{}, false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Instance{}, false, invalidArgument("document id is required")
	}
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := s.store.GetInstance(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return Instance{}, false, nil
		}
		if err != nil {
			return Instance{}, false, err
		}

		next := current
		record, err := mutate(&next)
		if errors.Is(err, errSkipTransition) {
			return current, false, nil
		}
		if err != nil {
			return Instance{}, false, err
		}
		recordID, err := s.newID()
		if err != nil {
			return Instance{}, false, err
		}
		now := s.nowUTC()
		next.Version = current.Version + 1
		next.UpdatedAt = now
		record.ID = recordID
		record.InstanceID = current.ID
		record.OldExpiryDate = current.ExpiryDate
		record.NewExpiryDate = next.ExpiryDate
		record.CreatedAt = now

		err = s.store.UpdateInstance(ctx, next, current.Version, &record)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Instance{}, false, err
		}
		return next, true, nil
	}
	return Instance{}, false, ErrConflict
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	if s.newID == nil {
		return ErrIDGeneratorNotConfigured
	}
	return nil
}

func (s *Service) nowUTC() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}
