// Package scheduler runs the periodic reminder tick: it scans candidate
// documents, evaluates eligibility, delivers due reminders and records them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/docwatch/internal/platform/logging"
	"github.com/louisbranch/docwatch/internal/platform/timeouts"
	"github.com/louisbranch/docwatch/internal/services/documents/delivery"
	"github.com/louisbranch/docwatch/internal/services/documents/domain"
	"github.com/louisbranch/docwatch/internal/services/documents/render"
)

const (
	defaultConcurrency = 4
	tracerName         = "github.com/louisbranch/docwatch/internal/services/documents/scheduler"

	// skipTypeInactive is reported for documents whose type was retired from
	// the catalog.
	skipTypeInactive = "type_inactive"
)

// Renderer produces reminder text.
type Renderer interface {
	Render(in render.Input) string
}

// Config tunes how a tick evaluates and dispatches candidates.
type Config struct {
	Policy domain.Policy
	// DefaultWindow applies to holders without their own window.
	DefaultWindow domain.NotificationWindow
	// DefaultLocation applies to holders without a valid timezone.
	DefaultLocation *time.Location
	// LookaheadDays limits the candidate scan to documents expiring within
	// this many days. Zero scans every candidate.
	LookaheadDays   int
	Concurrency     int
	DeliveryTimeout time.Duration
}

// Deps holds the collaborators of a Scheduler.
type Deps struct {
	Store     domain.ReminderStore
	Renderer  Renderer
	Sender    delivery.Sender
	Metrics   *Metrics
	Logger    logrus.FieldLogger
	Tracer    trace.Tracer
	Clock     func() time.Time
	NewTickID func() (string, error)
}

// Scheduler evaluates and dispatches reminders. Tick is safe to call
// concurrently, but callers normally serialize it through a Runner.
type Scheduler struct {
	cfg       Config
	store     domain.ReminderStore
	renderer  Renderer
	sender    delivery.Sender
	metrics   *Metrics
	log       logrus.FieldLogger
	tracer    trace.Tracer
	clock     func() time.Time
	newTickID func() (string, error)
}

// New validates deps and fills defaults.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("reminder store is required")
	}
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = timeouts.Delivery
	}
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.DefaultWindow == (domain.NotificationWindow{}) {
		cfg.DefaultWindow = domain.DefaultNotificationWindow
	}
	if cfg.LookaheadDays < 0 {
		cfg.LookaheadDays = 0
	}

	s := &Scheduler{
		cfg:       cfg,
		store:     deps.Store,
		renderer:  deps.Renderer,
		sender:    deps.Sender,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		tracer:    deps.Tracer,
		clock:     deps.Clock,
		newTickID: deps.NewTickID,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newTickID == nil {
		s.newTickID = domain.NewID
	}
	return s, nil
}

// TickReport summarizes one tick. Sent counts every delivered reminder;
// CommitFailed counts the delivered ones whose record could not be saved.
type TickReport struct {
	TickID         string
	StartedAt      time.Time
	Duration       time.Duration
	Candidates     int
	Sent           int
	Skipped        int
	DeliveryFailed int
	CommitFailed   int
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeDeliveryFailed
	// outcomeSentUnrecorded is a delivered reminder whose mark was not saved.
	outcomeSentUnrecorded
)

const (
	tickCompleted = "completed"
	tickFailed    = "failed"
	tickSkipped   = "skipped"
)

// Tick runs one full pass. It ignores cancellation of ctx so that a started
// tick always finishes; only the candidate scan can fail the tick as a whole.
// Per-document failures are logged, counted and isolated.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	tickID, err := s.newTickID()
	if err != nil {
		return TickReport{}, fmt.Errorf("generate tick id: %w", err)
	}
	now := s.clock().UTC()
	report := TickReport{TickID: tickID, StartedAt: now}
	log := s.log.WithField("tick_id", tickID)

	ctx, span := s.tracer.Start(ctx, "scheduler.tick", trace.WithAttributes(attribute.String("tick.id", tickID)))
	defer span.End()

	filter := domain.CandidateFilter{}
	if s.cfg.LookaheadDays > 0 {
		// One extra day covers holders whose zone is ahead of UTC.
		horizon := domain.DateIn(now, time.UTC).AddDays(s.cfg.LookaheadDays + 1)
		filter.ExpiringOnOrBefore = &horizon
	}
	candidates, err := s.store.ListReminderCandidates(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list candidates")
		report.Duration = s.clock().Sub(now)
		s.metrics.observeTick(tickFailed, report.Duration)
		log.WithError(err).Error("list reminder candidates")
		return report, fmt.Errorf("list reminder candidates: %w", err)
	}
	report.Candidates = len(candidates)
	s.metrics.addCandidates(len(candidates))

	zones := newZoneCache(s.cfg.DefaultLocation)
	outcomes := make([]outcome, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			outcomes[i] = s.dispatch(ctx, log, now, zones, candidate)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case outcomeSent:
			report.Sent++
		case outcomeDeliveryFailed:
			report.DeliveryFailed++
		case outcomeSentUnrecorded:
			report.Sent++
			report.CommitFailed++
		default:
			report.Skipped++
		}
	}
	report.Duration = s.clock().Sub(now)
	s.metrics.observeTick(tickCompleted, report.Duration)
	span.SetAttributes(
		attribute.Int("tick.candidates", report.Candidates),
		attribute.Int("tick.sent", report.Sent),
		attribute.Int("tick.delivery_failed", report.DeliveryFailed),
	)
	log.WithFields(logrus.Fields{
		"candidates":      report.Candidates,
		"sent":            report.Sent,
		"skipped":         report.Skipped,
		"delivery_failed": report.DeliveryFailed,
		"commit_failed":   report.CommitFailed,
	}).Info("reminder tick completed")
	return report, nil
}

func (s *Scheduler) dispatch(ctx context.Context, log logrus.FieldLogger, now time.Time, zones *zoneCache, c domain.Candidate) outcome {
	doc := c.Instance
	ctx, span := s.tracer.Start(ctx, "scheduler.dispatch", trace.WithAttributes(
		attribute.String("document.id", doc.ID),
		attribute.String("document.type", doc.TypeCode),
	))
	defer span.End()

	if !c.Type.IsActive {
		s.metrics.incSkipped(skipTypeInactive)
		return outcomeSkipped
	}
	decision := s.cfg.Policy.Evaluate(domain.Evaluation{
		Instance: doc,
		LeadDays: c.Type.ReminderLeadDays,
		Now:      now,
		Window:   c.Holder.WindowOrDefault(s.cfg.DefaultWindow),
		Location: zones.resolve(c.Holder),
	})
	span.SetAttributes(attribute.String("reminder.decision", decision.String()))
	if !decision.Send() {
		s.metrics.incSkipped(string(decision.Reason))
		return outcomeSkipped
	}

	entry := log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"holder_id":   doc.HolderID,
		"tier":        string(decision.Tier),
		"days_left":   decision.DaysLeft,
	})
	text := s.renderer.Render(render.Input{
		TypeCode:     doc.TypeCode,
		DocumentName: catalogName(c.Type, c.Holder.Language),
		Language:     c.Holder.Language,
		Tier:         decision.Tier,
		DaysLeft:     decision.DaysLeft,
		Expiry:       *doc.ExpiryDate,
	})

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	err := s.sender.Send(sendCtx, c.Holder.ChatID, text)
	cancel()
	if err != nil {
		kind := "transient"
		if delivery.IsPermanent(err) {
			kind = "permanent"
		}
		s.metrics.incDeliveryFailure(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		entry.WithError(err).WithField("failure", kind).Warn("reminder delivery failed")
		return outcomeDeliveryFailed
	}

	err = s.store.MarkReminderSent(ctx, domain.ReminderMark{
		InstanceID: doc.ID,
		Expiry:     *doc.ExpiryDate,
		Tier:       decision.Tier,
		At:         now,
	})
	s.metrics.incSent(string(decision.Tier))
	if err != nil {
		// A conflict means the expiry was replaced mid-delivery.
		cause := "persistence"
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			cause = "conflict"
		}
		s.metrics.incCommitFailure(cause)
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		entry.WithError(err).WithField("cause", cause).Error("reminder sent but not recorded")
		return outcomeSentUnrecorded
	}

	entry.Info("reminder sent")
	return outcomeSent
}

// catalogName returns the stored display name, or "" so the renderer uses
// its own label for the type.
func catalogName(docType domain.DocumentType, lang string) string {
	if name := docType.Name(lang); name != docType.Code {
		return name
	}
	return ""
}

// zoneCache resolves each holder timezone once per tick.
type zoneCache struct {
	fallback *time.Location
	mu       sync.Mutex
	zones    map[string]*time.Location
}

func newZoneCache(fallback *time.Location) *zoneCache {
	return &zoneCache{fallback: fallback, zones: make(map[string]*time.Location)}
}

func (z *zoneCache) resolve(h domain.Holder) *time.Location {
	name := strings.TrimSpace(h.Timezone)
	z.mu.Lock()
	defer z.mu.Unlock()
	if loc, ok := z.zones[name]; ok {
		return loc
	}
	loc := h.Location(z.fallback)
	z.zones[name] = loc
	return loc
}
