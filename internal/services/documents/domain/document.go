package domain

import (
	"strings"
	"time"
)

// Document type codes known to the default catalog.
const (
	TypeMigrationCard = "MIGRATION_CARD"
	TypeRegistration  = "TEMP_REG"
	TypeMedical1      = "MED_1"
	TypeMedical2      = "MED_2"
	TypeMedical3      = "MED_3"
	TypeVisa          = "VISA"
)

// DefaultLeadDays is the reminder threshold for types without an override.
const DefaultLeadDays = 30

// DocumentType is one catalog entry.
type DocumentType struct {
	Code             string
	Names            map[string]string
	ReminderLeadDays int
	IsActive         bool
}

// Name returns the display name for lang, falling back to English and then
// to the code.
func (t DocumentType) Name(lang string) string {
	if name := strings.TrimSpace(t.Names[normalizeLanguage(lang)]); name != "" {
		return name
	}
	if name := strings.TrimSpace(t.Names["en"]); name != "" {
		return name
	}
	return t.Code
}

// DefaultCatalog returns the document types bootstrapped at startup.
// leadDays overrides ReminderLeadDays per code.
func DefaultCatalog(defaultLead int, leadDays map[string]int) []DocumentType {
	if defaultLead <= 0 {
		defaultLead = DefaultLeadDays
	}
	catalog := []DocumentType{
		{Code: TypeMigrationCard, Names: map[string]string{"en": "Migration card", "ru": "Миграционная карта"}},
		{Code: TypeRegistration, Names: map[string]string{"en": "Temporary registration", "ru": "Временная регистрация"}},
		{Code: TypeMedical1, Names: map[string]string{"en": "Medical certificate 1", "ru": "Медицинская справка 1"}},
		{Code: TypeMedical2, Names: map[string]string{"en": "Medical certificate 2", "ru": "Медицинская справка 2"}},
		{Code: TypeMedical3, Names: map[string]string{"en": "Medical certificate 3", "ru": "Медицинская справка 3"}},
		{Code: TypeVisa, Names: map[string]string{"en": "Visa", "ru": "Виза"}},
	}
	for i := range catalog {
		catalog[i].IsActive = true
		catalog[i].ReminderLeadDays = defaultLead
		if lead, ok := leadDays[catalog[i].Code]; ok && lead > 0 {
			catalog[i].ReminderLeadDays = lead
		}
	}
	return catalog
}

// IsMedicalType reports whether code is one of the medical certificates.
func IsMedicalType(code string) bool {
	switch code {
	case TypeMedical1, TypeMedical2, TypeMedical3:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a document instance.
type Status string

const (
	StatusActive                Status = "active"
	StatusSubmittedForExtension Status = "submitted_for_extension"
	StatusExtended              Status = "extended"
	StatusPausedByAdmin         Status = "paused_by_admin"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSubmittedForExtension, StatusExtended, StatusPausedByAdmin:
		return true
	default:
		return false
	}
}

// Event names the transition recorded in history.
type Event string

const (
	EventCreated             Event = "CREATED"
	EventExtended            Event = "EXTENDED"
	EventDeadlineDerived     Event = "DEADLINE_DERIVED"
	EventUserPaused          Event = "USER_PAUSED"
	EventAdminMarkedExtended Event = "ADMIN_MARKED_EXTENDED"
	EventAdminPaused         Event = "ADMIN_PAUSED"
	EventTravelConfirmed     Event = "TRAVEL_CONFIRMED"
)

// Actor identifies who caused a transition.
type Actor string

const (
	ActorHolder Actor = "holder"
	ActorAdmin  Actor = "admin"
	ActorSystem Actor = "system"
)

// Valid reports whether a is a known actor.
func (a Actor) Valid() bool {
	switch a {
	case ActorHolder, ActorAdmin, ActorSystem:
		return true
	default:
		return false
	}
}

// Instance is one holder's copy of a document type.
type Instance struct {
	ID                      string
	HolderID                string
	TypeCode                string
	Status                  Status
	ExpiryDate              *Date
	SubmittedForExtension   bool
	NeedsTravelConfirmation bool
	NotificationsEnabled    bool
	LastNotificationAt      *time.Time
	FinalReminderSent       bool
	Version                 int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// HistoryRecord is one append-only lifecycle entry.
type HistoryRecord struct {
	ID            string
	InstanceID    string
	Event         Event
	OldExpiryDate *Date
	NewExpiryDate *Date
	ChangedBy     Actor
	Note          string
	InCountry     *bool
	CreatedAt     time.Time
}

// Holder is the person owning a set of document instances.
type Holder struct {
	ID              string
	ChatID          int64
	Language        string
	CitizenshipCode string
	Timezone        string
	Window          *NotificationWindow
	IsAdmin         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WindowOrDefault returns the holder's window or fallback when unset.
func (h Holder) WindowOrDefault(fallback NotificationWindow) NotificationWindow {
	if h.Window != nil {
		return *h.Window
	}
	return fallback
}

// Location resolves the holder's timezone, returning fallback when the zone
// is empty or unknown.
func (h Holder) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	name := strings.TrimSpace(h.Timezone)
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if base, _, ok := strings.Cut(lang, "-"); ok {
		return base
	}
	return lang
}
