package admin

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/docwatch/internal/platform/errors"
	"github.com/louisbranch/docwatch/internal/services/documents/domain"
	"github.com/louisbranch/docwatch/internal/services/documents/scheduler"
)

type onboardRequest struct {
	HolderID        string `json:"holder_id"`
	ChatID          int64  `json:"chat_id"`
	Language        string `json:"language"`
	CitizenshipCode string `json:"citizenship_code"`
	Timezone        string `json:"timezone"`
	// Window is "HH:MM-HH:MM"; empty keeps the service default.
	Window  string `json:"window"`
	IsAdmin bool   `json:"is_admin"`
}

func (r onboardRequest) toInput() (domain.OnboardInput, error) {
	if r.ChatID == 0 {
		return domain.OnboardInput{}, apperrors.New(apperrors.CodeInvalidArgument, "chat_id is required")
	}
	input := domain.OnboardInput{
		HolderID:        r.HolderID,
		ChatID:          r.ChatID,
		Language:        r.Language,
		CitizenshipCode: r.CitizenshipCode,
		Timezone:        r.Timezone,
		IsAdmin:         r.IsAdmin,
	}
	if raw := strings.TrimSpace(r.Window); raw != "" {
		window, err := domain.ParseNotificationWindow(raw)
		if err != nil {
			return domain.OnboardInput{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "window must be HH:MM-HH:MM", err)
		}
		input.Window = &window
	}
	return input, nil
}

type expiryRequest struct {
	ExpiryDate string `json:"expiry_date"`
	Actor      string `json:"actor"`
	Note       string `json:"note"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type travelRequest struct {
	InCountry *bool `json:"in_country"`
}

type notificationsRequest struct {
	Enabled *bool `json:"enabled"`
}

type holderResponse struct {
	ID              string `json:"id"`
	ChatID          int64  `json:"chat_id"`
	Language        string `json:"language"`
	CitizenshipCode string `json:"citizenship_code"`
	Timezone        string `json:"timezone,omitempty"`
	Window          string `json:"window,omitempty"`
	IsAdmin         bool   `json:"is_admin"`
}

type documentResponse struct {
	ID                      string     `json:"id"`
	HolderID                string     `json:"holder_id"`
	TypeCode                string     `json:"type_code"`
	Status                  string     `json:"status"`
	ExpiryDate              string     `json:"expiry_date,omitempty"`
	SubmittedForExtension   bool       `json:"submitted_for_extension"`
	NeedsTravelConfirmation bool       `json:"needs_travel_confirmation"`
	NotificationsEnabled    bool       `json:"notifications_enabled"`
	LastNotificationAt      *time.Time `json:"last_notification_at,omitempty"`
	FinalReminderSent       bool       `json:"final_reminder_sent"`
	Version                 int64      `json:"version"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

type onboardResponse struct {
	Holder    holderResponse     `json:"holder"`
	Documents []documentResponse `json:"documents"`
}

type documentListResponse struct {
	Documents []documentResponse `json:"documents"`
}

type historyRecordResponse struct {
	ID            string    `json:"id"`
	Event         string    `json:"event"`
	OldExpiryDate string    `json:"old_expiry_date,omitempty"`
	NewExpiryDate string    `json:"new_expiry_date,omitempty"`
	ChangedBy     string    `json:"changed_by"`
	Note          string    `json:"note,omitempty"`
	InCountry     *bool     `json:"in_country,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type historyResponse struct {
	Records []historyRecordResponse `json:"records"`
}

type rulesResponse struct {
	RegistrationDays int  `json:"registration_days"`
	MedicalDays      int  `json:"medical_days"`
	CardDurationDays int  `json:"card_duration_days"`
	VisaRequired     bool `json:"visa_required"`
}

type deadlinesResponse struct {
	EntryDate    string        `json:"entry_date"`
	Registration string        `json:"registration"`
	Medical      string        `json:"medical"`
	Rules        rulesResponse `json:"rules"`
}

type tickResponse struct {
	TickID         string    `json:"tick_id"`
	StartedAt      time.Time `json:"started_at"`
	DurationMillis int64     `json:"duration_ms"`
	Candidates     int       `json:"candidates"`
	Sent           int       `json:"sent"`
	Skipped        int       `json:"skipped"`
	DeliveryFailed int       `json:"delivery_failed"`
	CommitFailed   int       `json:"commit_failed"`
}

func holderFromDomain(h domain.Holder) holderResponse {
	resp := holderResponse{
		ID:              h.ID,
		ChatID:          h.ChatID,
		Language:        h.Language,
		CitizenshipCode: h.CitizenshipCode,
		Timezone:        h.Timezone,
		IsAdmin:         h.IsAdmin,
	}
	if h.Window != nil {
		resp.Window = h.Window.String()
	}
	return resp
}

func documentFromDomain(doc domain.Instance) documentResponse {
	return documentResponse{
		ID:                      doc.ID,
		HolderID:                doc.HolderID,
		TypeCode:                doc.TypeCode,
		Status:                  string(doc.Status),
		ExpiryDate:              dateString(doc.ExpiryDate),
		SubmittedForExtension:   doc.SubmittedForExtension,
		NeedsTravelConfirmation: doc.NeedsTravelConfirmation,
		NotificationsEnabled:    doc.NotificationsEnabled,
		LastNotificationAt:      doc.LastNotificationAt,
		FinalReminderSent:       doc.FinalReminderSent,
		Version:                 doc.Version,
		UpdatedAt:               doc.UpdatedAt,
	}
}

func documentsFromDomain(docs []domain.Instance) []documentResponse {
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentFromDomain(doc))
	}
	return out
}

func historyFromDomain(records []domain.HistoryRecord) []historyRecordResponse {
	out := make([]historyRecordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, historyRecordResponse{
			ID:            record.ID,
			Event:         string(record.Event),
			OldExpiryDate: dateString(record.OldExpiryDate),
			NewExpiryDate: dateString(record.NewExpiryDate),
			ChangedBy:     string(record.ChangedBy),
			Note:          record.Note,
			InCountry:     record.InCountry,
			CreatedAt:     record.CreatedAt,
		})
	}
	return out
}

func deadlinesFromDomain(d domain.DerivedDeadlines, rules domain.Rules) deadlinesResponse {
	return deadlinesResponse{
		EntryDate:    d.EntryDate.String(),
		Registration: d.Registration.String(),
		Medical:      d.Medical.String(),
		Rules: rulesResponse{
			RegistrationDays: rules.RegistrationDays,
			MedicalDays:      rules.MedicalDays,
			CardDurationDays: rules.CardDurationDays,
			VisaRequired:     rules.VisaRequired,
		},
	}
}

func tickFromReport(report scheduler.TickReport) tickResponse {
	return tickResponse{
		TickID:         report.TickID,
		StartedAt:      report.StartedAt,
		DurationMillis: report.Duration.Milliseconds(),
		Candidates:     report.Candidates,
		Sent:           report.Sent,
		Skipped:        report.Skipped,
		DeliveryFailed: report.DeliveryFailed,
		CommitFailed:   report.CommitFailed,
	}
}

func dateString(d *domain.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
