package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/meetup/internal/clock"
	"github.com/me/meetup/internal/events"
	"github.com/me/meetup/internal/notify"
	"github.com/me/meetup/internal/random"
	"github.com/me/meetup/internal/ratelimit"
	"github.com/me/meetup/internal/store"
	"github.com/me/meetup/pkg/model"
)

var testNow = time.Date(2030, 3, 6, 10, 0, 0, 0, time.UTC)

// stubScheduler counts manual ticks.
type stubScheduler struct {
	mu    sync.Mutex
	ticks int
	err   error
}

func (s *stubScheduler) Start(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (s *stubScheduler) Stop() error                     { return nil }
func (s *stubScheduler) Tick(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	return s.err
}

type fixture struct {
	srv   *Server
	svc   *events.Service
	sched *stubScheduler
	sent  *notify.Recorder
	event *model.Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFake(testNow)
	svc := events.NewService(st, clk, random.NewSeeded(1), 2, logger)
	ev, err := svc.CreateEvent(context.Background(), "g1", testNow.Add(10*24*time.Hour), []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	rec := &notify.Recorder{}
	sched := &stubScheduler{}
	opts = append([]Option{
		WithNotifier(notify.NewMessenger(rec, nil, clk)),
		WithClock(clk),
	}, opts...)

	return &fixture{
		srv:   New(svc, sched, logger, opts...),
		svc:   svc,
		sched: sched,
		sent:  rec,
		event: ev,
	}
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Error     *model.APIError `json:"error"`
}

func do(t *testing.T, srv *Server, method, path, body string, wantStatus int) envelope {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status=%d, want %d, body=%s", method, path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON: %v", method, path, err)
	}
	return env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return v
}

func TestDiscovery(t *testing.T) {
	f := newFixture(t)
	env := do(t, f.srv, "GET", "/api/v1/", "", http.StatusOK)
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	data := decode[discoveryResponse](t, env)
	if data.Name != "Meetup API" {
		t.Errorf("name = %q, want Meetup API", data.Name)
	}
	if len(data.Endpoints) < 8 {
		t.Errorf("endpoints count = %d, want >= 8", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	data := decode[healthResponse](t, do(t, f.srv, "GET", "/api/v1/health", "", http.StatusOK))

	if data.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", data.Status)
	}
	if data.Store != "ok" {
		t.Errorf("store = %q, want ok", data.Store)
	}
	if data.Capacity != 2 {
		t.Errorf("capacity = %d, want 2", data.Capacity)
	}
	if data.Scheduler != "idle" {
		t.Errorf("scheduler = %q, want idle", data.Scheduler)
	}
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past, err := f.svc.CreateEvent(ctx, "g2", testNow.Add(-time.Hour), []string{"u9"})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	active := decode[[]model.Event](t, do(t, f.srv, "GET", "/api/v1/events", "", http.StatusOK))
	if len(active) != 1 || active[0].ID != f.event.ID {
		t.Errorf("active events = %+v, want only %s", active, f.event.ID)
	}

	all := decode[[]model.Event](t, do(t, f.srv, "GET", "/api/v1/events?all=true", "", http.StatusOK))
	if len(all) != 2 || all[0].ID != past.ID {
		t.Errorf("all events = %d, want 2 with %s first", len(all), past.ID)
	}
}

func TestGetEvent(t *testing.T) {
	f := newFixture(t)
	ev := decode[model.Event](t, do(t, f.srv, "GET", "/api/v1/events/"+f.event.ID, "", http.StatusOK))
	if ev.ID != f.event.ID || len(ev.Invites) != 3 {
		t.Errorf("event = %+v", ev)
	}

	env := do(t, f.srv, "GET", "/api/v1/events/evt_missing", "", http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.ErrCodeNotFound {
		t.Errorf("error = %v, want NOT_FOUND", env.Error)
	}
}

func TestAcceptDecline(t *testing.T) {
	f := newFixture(t)
	base := "/api/v1/events/" + f.event.ID

	ev := decode[model.Event](t, do(t, f.srv, "POST", base+"/accept", `{"user_id":"u1"}`, http.StatusOK))
	if !ev.HasAccepted("u1") || ev.IsInvited("u1") {
		t.Errorf("u1 should be accepted: %+v", ev)
	}

	ev = decode[model.Event](t, do(t, f.srv, "POST", base+"/decline", `{"user_id":"u2"}`, http.StatusOK))
	if !ev.HasDeclined("u2") {
		t.Errorf("u2 should be declined: %+v", ev)
	}

	homes := f.sent.OfKind(model.NotificationHome)
	if len(homes) != 2 {
		t.Fatalf("home refreshes = %d, want 2", len(homes))
	}
	if homes[0].Home.UserID != "u1" || len(homes[0].Home.Accepted) != 1 {
		t.Errorf("home view for u1 = %+v", homes[0].Home)
	}
}

func TestAccept_StaleResponseIsNotFound(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/events/" + f.event.ID + "/accept"
	do(t, f.srv, "POST", path, `{"user_id":"u1"}`, http.StatusOK)

	before, _ := f.svc.GetEvent(context.Background(), f.event.ID)
	env := do(t, f.srv, "POST", path, `{"user_id":"u1"}`, http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.ErrCodeNotFound {
		t.Errorf("error = %v, want NOT_FOUND", env.Error)
	}
	do(t, f.srv, "POST", path, `{"user_id":"stranger"}`, http.StatusNotFound)

	after, _ := f.svc.GetEvent(context.Background(), f.event.ID)
	if len(after.Accepted) != len(before.Accepted) || len(after.Invites) != len(before.Invites) {
		t.Error("event changed after stale response")
	}
}

func TestAccept_Validation(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/events/" + f.event.ID + "/accept"

	for _, body := range []string{"not json", `{}`} {
		env := do(t, f.srv, "POST", path, body, http.StatusBadRequest)
		if env.Error == nil || env.Error.Code != model.ErrCodeValidation {
			t.Errorf("body %q: error = %v, want VALIDATION_ERROR", body, env.Error)
		}
	}
}

func TestAccept_AnnouncedIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, u := range []string{"u1", "u2"} {
		if _, err := f.svc.AcceptInvitation(ctx, u, f.event.ID); err != nil {
			t.Fatalf("AcceptInvitation(%s): %v", u, err)
		}
	}
	if _, err := f.svc.FinalizeEvent(ctx, f.event.ID); err != nil {
		t.Fatalf("FinalizeEvent: %v", err)
	}

	env := do(t, f.srv, "POST", "/api/v1/events/"+f.event.ID+"/decline", `{"user_id":"u3"}`, http.StatusConflict)
	if env.Error == nil || env.Error.Code != model.ErrCodeConflict {
		t.Errorf("error = %v, want CONFLICT", env.Error)
	}
}

func TestUserEvents(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.DeclineInvitation(context.Background(), "u2", f.event.ID); err != nil {
		t.Fatalf("DeclineInvitation: %v", err)
	}

	view := decode[model.HomeView](t, do(t, f.srv, "GET", "/api/v1/users/u2/events", "", http.StatusOK))
	if view.UserID != "u2" || len(view.Declined) != 1 || len(view.Invited) != 0 {
		t.Errorf("view = %+v", view)
	}

	view = decode[model.HomeView](t, do(t, f.srv, "GET", "/api/v1/users/nobody/events", "", http.StatusOK))
	if len(view.Invited)+len(view.Accepted)+len(view.Declined) != 0 {
		t.Errorf("stranger view = %+v, want empty", view)
	}
}

func TestOptOutOptIn(t *testing.T) {
	f := newFixture(t)

	got := decode[optOutResponse](t, do(t, f.srv, "POST", "/api/v1/users/u1/opt-out", "", http.StatusOK))
	if !got.OptedOut || !got.Changed {
		t.Errorf("opt-out = %+v, want opted out and changed", got)
	}
	got = decode[optOutResponse](t, do(t, f.srv, "POST", "/api/v1/users/u1/opt-out", "", http.StatusOK))
	if got.Changed {
		t.Error("second opt-out should not change anything")
	}

	optedOut, err := f.svc.IsOptedOut(context.Background(), "u1")
	if err != nil || !optedOut {
		t.Fatalf("IsOptedOut = %v, %v", optedOut, err)
	}
	view := decode[model.HomeView](t, do(t, f.srv, "GET", "/api/v1/users/u1/events", "", http.StatusOK))
	if !view.OptedOut || len(view.Invited) != 1 {
		t.Errorf("opt-out must not remove existing invites: %+v", view)
	}

	got = decode[optOutResponse](t, do(t, f.srv, "POST", "/api/v1/users/u1/opt-in", "", http.StatusOK))
	if got.OptedOut || !got.Changed {
		t.Errorf("opt-in = %+v", got)
	}

	if n := len(f.sent.OfKind(model.NotificationHome)); n != 2 {
		t.Errorf("home refreshes = %d, want 2 (only on change)", n)
	}
}

func TestAdminTick(t *testing.T) {
	f := newFixture(t)
	do(t, f.srv, "POST", "/api/v1/admin/tick", "", http.StatusOK)
	if f.sched.ticks != 1 {
		t.Errorf("ticks = %d, want 1", f.sched.ticks)
	}

	f.sched.err = errors.New("phase 3 (plan): directory down")
	env := do(t, f.srv, "POST", "/api/v1/admin/tick", "", http.StatusInternalServerError)
	if env.Error == nil || !strings.Contains(env.Error.Message, "phase 3") {
		t.Errorf("error = %v, want phase error", env.Error)
	}
}

func TestAdminTick_NoScheduler(t *testing.T) {
	f := newFixture(t)
	srv := New(f.svc, nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	env := do(t, srv, "POST", "/api/v1/admin/tick", "", http.StatusServiceUnavailable)
	if env.Error == nil || env.Error.Code != model.ErrCodeUnavailable {
		t.Errorf("error = %v, want UNAVAILABLE", env.Error)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(0.001, 1, 0)
	defer limiter.Stop()
	f := newFixture(t, WithRateLimiter(limiter))

	do(t, f.srv, "POST", "/api/v1/users/u1/opt-out", "", http.StatusOK)
	env := do(t, f.srv, "POST", "/api/v1/users/u1/opt-in", "", http.StatusTooManyRequests)
	if env.Error == nil || env.Error.Code != model.ErrCodeRateLimited {
		t.Errorf("error = %v, want RATE_LIMITED", env.Error)
	}

	// Reads are not limited.
	do(t, f.srv, "GET", "/api/v1/users/u1/events", "", http.StatusOK)
}
