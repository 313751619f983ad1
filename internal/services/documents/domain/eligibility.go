package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Tier is the kind of reminder a decision asks for.
type Tier string

const (
	TierNone        Tier = ""
	TierApproaching Tier = "approaching"
	TierFinal       Tier = "final"
)

// SkipReason explains why no reminder is due.
type SkipReason string

const (
	SkipNotificationsDisabled SkipReason = "notifications_disabled"
	SkipSubmitted             SkipReason = "submitted_for_extension"
	SkipNoExpiry              SkipReason = "no_expiry"
	SkipInactive              SkipReason = "inactive_status"
	SkipOutsideWindow         SkipReason = "outside_window"
	SkipFinalAlreadySent      SkipReason = "final_already_sent"
	SkipRecentlyNotified      SkipReason = "recently_notified"
	SkipBeyondThreshold       SkipReason = "beyond_threshold"
	SkipNotAMilestone         SkipReason = "not_a_milestone"
)

// Decision is the outcome of evaluating one instance at one instant.
type Decision struct {
	Tier     Tier
	DaysLeft int
	Reason   SkipReason
}

// Send reports whether the decision asks for a reminder.
func (d Decision) Send() bool {
	return d.Tier != TierNone
}

func (d Decision) String() string {
	switch d.Tier {
	case TierApproaching:
		return fmt.Sprintf("approaching(%d)", d.DaysLeft)
	case TierFinal:
		return "final"
	default:
		return "skip(" + string(d.Reason) + ")"
	}
}

func skip(reason SkipReason) Decision {
	return Decision{Reason: reason}
}

// Cadence selects on which days an approaching reminder may fire.
type Cadence string

const (
	// CadenceDaily sends on every day under the threshold, at most once per
	// de-duplication interval.
	CadenceDaily Cadence = "daily"
	// CadenceMilestones sends only when days-left equals a configured value.
	CadenceMilestones Cadence = "milestones"
)

// ParseCadence accepts "daily" or "milestones" (case-insensitive).
func ParseCadence(raw string) (Cadence, error) {
	switch Cadence(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CadenceDaily:
		return CadenceDaily, nil
	case CadenceMilestones:
		return CadenceMilestones, nil
	default:
		return "", fmt.Errorf("unknown cadence %q", raw)
	}
}

// DefaultMilestones are the days-left values used by CadenceMilestones.
var DefaultMilestones = []int{45, 30, 21, 14, 7, 3, 1}

// DefaultDedupInterval is the minimum spacing between approaching reminders.
const DefaultDedupInterval = 24 * time.Hour

// Policy configures the eligibility engine.
type Policy struct {
	Cadence       Cadence
	Milestones    []int
	DedupInterval time.Duration
}

// DefaultPolicy is the daily cadence with a 24h de-duplication interval.
func DefaultPolicy() Policy {
	return Policy{
		Cadence:       CadenceDaily,
		Milestones:    slices.Clone(DefaultMilestones),
		DedupInterval: DefaultDedupInterval,
	}
}

// Evaluation is the input to Policy.Evaluate.
type Evaluation struct {
	Instance Instance
	// LeadDays is the type's reminder threshold; zero means DefaultLeadDays.
	LeadDays int
	Now      time.Time
	Window   NotificationWindow
	Location *time.Location
}

// Evaluate decides whether a reminder is due for in.Instance at in.Now. It is
// pure: the same input always yields the same decision.
func (p Policy) Evaluate(in Evaluation) Decision {
	doc := in.Instance
	switch {
	case !doc.NotificationsEnabled:
		return skip(SkipNotificationsDisabled)
	case doc.SubmittedForExtension:
		return skip(SkipSubmitted)
	case doc.ExpiryDate == nil:
		return skip(SkipNoExpiry)
	case doc.Status != StatusActive:
		return skip(SkipInactive)
	}

	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	if !in.Window.Contains(in.Now, loc) {
		return skip(SkipOutsideWindow)
	}

	daysLeft := doc.ExpiryDate.DaysSince(DateIn(in.Now, loc))
	if daysLeft < 0 {
		if doc.FinalReminderSent {
			return skip(SkipFinalAlreadySent)
		}
		return Decision{Tier: TierFinal, DaysLeft: daysLeft}
	}

	threshold := in.LeadDays
	if threshold <= 0 {
		threshold = DefaultLeadDays
	}
	if daysLeft > threshold {
		return skip(SkipBeyondThreshold)
	}
	if p.Cadence == CadenceMilestones && !slices.Contains(p.milestones(), daysLeft) {
		return skip(SkipNotAMilestone)
	}
	if doc.LastNotificationAt != nil && in.Now.Sub(*doc.LastNotificationAt) < p.dedupInterval() {
		return skip(SkipRecentlyNotified)
	}
	return Decision{Tier: TierApproaching, DaysLeft: daysLeft}
}

func (p Policy) milestones() []int {
	if len(p.Milestones) == 0 {
		return DefaultMilestones
	}
	return p.Milestones
}

func (p Policy) dedupInterval() time.Duration {
	if p.DedupInterval <= 0 {
		return DefaultDedupInterval
	}
	return p.DedupInterval
}
