package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/docwatch/internal/platform/adminauth"
	apperrors "github.com/louisbranch/docwatch/internal/platform/errors"
	"github.com/louisbranch/docwatch/internal/services/documents/domain"
	"github.com/louisbranch/docwatch/internal/services/documents/scheduler"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type call struct {
	op   string
	id   string
	args []any
}

type fakeService struct {
	calls     []call
	docs      map[string]domain.Instance
	err       error
	onboarded domain.OnboardInput
}

func newFakeService() *fakeService {
	expiry := domain.NewDate(2024, time.March, 20)
	return &fakeService{docs: map[string]domain.Instance{
		"doc-1": {
			ID:                   "doc-1",
			HolderID:             "holder-1",
			TypeCode:             domain.TypeRegistration,
			Status:               domain.StatusActive,
			ExpiryDate:           expiry.Ptr(),
			NotificationsEnabled: true,
			Version:              3,
			UpdatedAt:            testNow,
		},
	}}
}

func (f *fakeService) record(op, id string, args ...any) error {
	f.calls = append(f.calls, call{op: op, id: id, args: args})
	return f.err
}

func (f *fakeService) Onboard(_ context.Context, input domain.OnboardInput) (domain.Holder, []domain.Instance, error) {
	f.onboarded = input
	if err := f.record("onboard", input.HolderID); err != nil {
		return domain.Holder{}, nil, err
	}
	return domain.Holder{ID: "holder-9", ChatID: input.ChatID, Language: "ru", Window: input.Window},
		[]domain.Instance{{ID: "doc-9", HolderID: "holder-9", TypeCode: domain.TypeMigrationCard, Status: domain.StatusActive, NotificationsEnabled: true, Version: 1}},
		nil
}

func (f *fakeService) HolderDocuments(_ context.Context, holderID string) ([]domain.Instance, error) {
	if err := f.record("documents", holderID); err != nil {
		return nil, err
	}
	return []domain.Instance{f.docs["doc-1"]}, nil
}

func (f *fakeService) HolderDeadlines(_ context.Context, holderID string) (domain.DerivedDeadlines, domain.Rules, error) {
	if err := f.record("deadlines", holderID); err != nil {
		return domain.DerivedDeadlines{}, domain.Rules{}, err
	}
	rules := domain.DefaultRuleTable().ResolveForCountry("UZB")
	return domain.DeriveDeadlines(domain.NewDate(2024, time.June, 1), rules), rules, nil
}

func (f *fakeService) DeleteHolder(_ context.Context, holderID string) error {
	return f.record("delete", holderID)
}

func (f *fakeService) Document(_ context.Context, id string) (domain.Instance, error) {
	doc, ok := f.docs[id]
	if !ok {
		return domain.Instance{}, domain.ErrNotFound
	}
	return doc, nil
}

func (f *fakeService) History(_ context.Context, id string) ([]domain.HistoryRecord, error) {
	if err := f.record("history", id); err != nil {
		return nil, err
	}
	in := true
	return []domain.HistoryRecord{
		{ID: "h-1", Event: domain.EventCreated, ChangedBy: domain.ActorHolder, CreatedAt: testNow},
		{ID: "h-2", Event: domain.EventTravelConfirmed, ChangedBy: domain.ActorHolder, InCountry: &in, CreatedAt: testNow},
	}, nil
}

func (f *fakeService) UpdateExpiry(_ context.Context, id string, expiry domain.Date, actor domain.Actor, note string) error {
	return f.record("expiry", id, expiry, actor, note)
}

func (f *fakeService) PauseByHolder(_ context.Context, id string, note string) error {
	return f.record("pause", id, note)
}

func (f *fakeService) MarkExtendedByAdmin(_ context.Context, id string, note string) error {
	return f.record("extended", id, note)
}

func (f *fakeService) PauseByAdmin(_ context.Context, id string, note string) error {
	return f.record("admin-pause", id, note)
}

func (f *fakeService) ConfirmTravel(_ context.Context, id string, inCountry bool) error {
	return f.record("travel", id, inCountry)
}

func (f *fakeService) SetNotifications(_ context.Context, id string, enabled bool) error {
	return f.record("notifications", id, enabled)
}

type fakeTicks struct {
	report scheduler.TickReport
	err    error
}

func (f fakeTicks) TriggerTick(context.Context) (scheduler.TickReport, error) {
	return f.report, f.err
}

type harness struct {
	service *fakeService
	router  http.Handler
	token   string
}

func newHarness(t *testing.T, ticks TickTrigger) *harness {
	t.Helper()
	auth, err := adminauth.New(bytes.Repeat([]byte{0x5a}, adminauth.MinKeyBytes), "", adminauth.WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	token, err := auth.Issue("ops", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	service := newFakeService()
	h := New(Deps{
		Service:  service,
		Ticks:    ticks,
		Verifier: auth,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
	return &harness{service: service, router: h.Router(), token: token}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func TestAdminRoutesRequireBearerToken(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing"},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "bad token", header: "Bearer nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/holders/holder-1/documents", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected WWW-Authenticate header")
			}
			body := decodeBody[errorResponse](t, rec)
			if body.Error.Code != string(apperrors.CodeUnauthenticated) {
				t.Fatalf("code = %q", body.Error.Code)
			}
		})
	}
	if len(h.service.calls) != 0 {
		t.Fatalf("service called without auth: %+v", h.service.calls)
	}
}

func TestMetricsIsPublic(t *testing.T) {
	h := newHarness(t, nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Fatalf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestOnboard(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/admin/holders", `{"chat_id": 77, "language": "ru", "citizenship_code": "uzb", "window": "22:00-07:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[onboardResponse](t, rec)
	if body.Holder.ID != "holder-9" || body.Holder.Window != "22:00-07:00" || len(body.Documents) != 1 {
		t.Fatalf("body = %+v", body)
	}
	if h.service.onboarded.Window == nil || h.service.onboarded.CitizenshipCode != "uzb" {
		t.Fatalf("input = %+v", h.service.onboarded)
	}
}

func TestOnboardValidation(t *testing.T) {
	h := newHarness(t, nil)
	for _, body := range []string{
		`{"language": "ru"}`,
		`{"chat_id": 1, "window": "late"}`,
		`{"chat_id": 1, "unknown": true}`,
		`not json`,
	} {
		rec := h.do(t, http.MethodPost, "/admin/holders", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestUpdateExpiryDefaultsToAdminActor(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPut, "/admin/documents/doc-1/expiry", `{"expiry_date": "2024-09-01", "note": "renewed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	got := h.service.calls[0]
	if got.op != "expiry" || got.id != "doc-1" {
		t.Fatalf("call = %+v", got)
	}
	if got.args[0] != domain.NewDate(2024, time.September, 1) || got.args[1] != domain.ActorAdmin || got.args[2] != "renewed" {
		t.Fatalf("args = %+v", got.args)
	}
	doc := decodeBody[documentResponse](t, rec)
	if doc.ID != "doc-1" || doc.ExpiryDate != "2024-03-20" || doc.Version != 3 {
		t.Fatalf("doc = %+v", doc)
	}

	rec = h.do(t, http.MethodPut, "/admin/documents/doc-1/expiry", `{"expiry_date": "01.09.2024"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", rec.Code)
	}
}

func TestTransitionsDispatch(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		op     string
		arg    any
	}{
		{method: http.MethodPost, path: "/admin/documents/doc-1/pause", op: "pause", arg: ""},
		{method: http.MethodPost, path: "/admin/documents/doc-1/extended", body: `{"note": "office visit"}`, op: "extended", arg: "office visit"},
		{method: http.MethodPost, path: "/admin/documents/doc-1/admin-pause", body: `{}`, op: "admin-pause", arg: ""},
		{method: http.MethodPost, path: "/admin/documents/doc-1/travel", body: `{"in_country": false}`, op: "travel", arg: false},
		{method: http.MethodPut, path: "/admin/documents/doc-1/notifications", body: `{"enabled": false}`, op: "notifications", arg: false},
	}
	for _, tc := range tests {
		t.Run(tc.op, func(t *testing.T) {
			h := newHarness(t, nil)
			rec := h.do(t, tc.method, tc.path, tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			if len(h.service.calls) != 1 || h.service.calls[0].op != tc.op || h.service.calls[0].args[0] != tc.arg {
				t.Fatalf("calls = %+v", h.service.calls)
			}
		})
	}
}

func TestTransitionRequiresFields(t *testing.T) {
	h := newHarness(t, nil)
	if rec := h.do(t, http.MethodPost, "/admin/documents/doc-1/travel", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("travel status = %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPut, "/admin/documents/doc-1/notifications", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("notifications status = %d", rec.Code)
	}
	if len(h.service.calls) != 0 {
		t.Fatalf("calls = %+v", h.service.calls)
	}
}

func TestTransitionOnMissingDocumentIsNoContent(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/admin/documents/ghost/admin-pause", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.Code
	}{
		{name: "precondition", err: apperrors.WithMetadata(apperrors.CodePreconditionUnmet, "pause requires an expiry date", map[string]string{"document_id": "doc-1"}), status: http.StatusUnprocessableEntity, code: apperrors.CodePreconditionUnmet},
		{name: "conflict", err: domain.ErrConflict, status: http.StatusConflict, code: apperrors.CodeConflict},
		{name: "not found", err: domain.ErrNotFound, status: http.StatusNotFound, code: apperrors.CodeNotFound},
		{name: "internal", err: errors.New("disk I/O error"), status: http.StatusInternalServerError, code: apperrors.CodeUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.service.err = tc.err
			rec := h.do(t, http.MethodPost, "/admin/documents/doc-1/pause", "")
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			body := decodeBody[errorResponse](t, rec)
			if body.Error.Code != string(tc.code) {
				t.Fatalf("code = %q, want %q", body.Error.Code, tc.code)
			}
			if tc.code == apperrors.CodeUnknown && strings.Contains(body.Error.Message, "disk") {
				t.Fatalf("internal detail leaked: %q", body.Error.Message)
			}
		})
	}
}

func TestHolderReads(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/admin/holders/holder-1/documents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("documents status = %d", rec.Code)
	}
	if docs := decodeBody[documentListResponse](t, rec); len(docs.Documents) != 1 || docs.Documents[0].ID != "doc-1" {
		t.Fatalf("documents = %+v", docs)
	}

	rec = h.do(t, http.MethodGet, "/admin/holders/holder-1/deadlines", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("deadlines status = %d", rec.Code)
	}
	deadlines := decodeBody[deadlinesResponse](t, rec)
	if deadlines.Rules.RegistrationDays != 60 || !deadlines.Rules.VisaRequired || deadlines.Registration == "" {
		t.Fatalf("deadlines = %+v", deadlines)
	}

	rec = h.do(t, http.MethodGet, "/admin/documents/doc-1/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	history := decodeBody[historyResponse](t, rec)
	if len(history.Records) != 2 || history.Records[1].InCountry == nil || !*history.Records[1].InCountry {
		t.Fatalf("history = %+v", history)
	}

	rec = h.do(t, http.MethodDelete, "/admin/holders/holder-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestTriggerTick(t *testing.T) {
	report := scheduler.TickReport{TickID: "tick-1", StartedAt: testNow, Candidates: 3, Sent: 2, Skipped: 1}
	h := newHarness(t, fakeTicks{report: report})
	rec := h.do(t, http.MethodPost, "/admin/ticks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[tickResponse](t, rec)
	if body.TickID != "tick-1" || body.Sent != 2 || body.Candidates != 3 {
		t.Fatalf("body = %+v", body)
	}

	busy := newHarness(t, fakeTicks{err: scheduler.ErrTickInProgress})
	if rec := busy.do(t, http.MethodPost, "/admin/ticks", ""); rec.Code != http.StatusConflict {
		t.Fatalf("busy status = %d, want 409", rec.Code)
	}
	stopped := newHarness(t, fakeTicks{err: scheduler.ErrRunnerStopped})
	if rec := stopped.do(t, http.MethodPost, "/admin/ticks", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stopped status = %d, want 503", rec.Code)
	}
	none := newHarness(t, nil)
	if rec := none.do(t, http.MethodPost, "/admin/ticks", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no scheduler status = %d, want 503", rec.Code)
	}
}
