package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/meetup/internal/clock"
	"github.com/me/meetup/internal/directory"
	"github.com/me/meetup/internal/events"
	"github.com/me/meetup/internal/notify"
	"github.com/me/meetup/internal/planner"
	"github.com/me/meetup/internal/random"
	"github.com/me/meetup/internal/scheduler"
	"github.com/me/meetup/internal/server"
	"github.com/me/meetup/internal/store"
	"github.com/me/meetup/pkg/model"
)

const testRoster = `
groups:
  g1: [u1, u2, u3, u4]
`

type testEnv struct {
	url  string
	svc  *events.Service
	sent *notify.Recorder
}

// startTestServer starts a server with an in-memory SQLite store, a real
// scheduler loop and a fake clock inside the invite window.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()
	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.NewSQLiteStore(":memory:", srvLogger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir, err := directory.ParseRoster([]byte(testRoster), srvLogger)
	if err != nil {
		t.Fatalf("parse roster: %v", err)
	}

	clk := clock.NewFake(time.Date(2030, 3, 6, 10, 0, 0, 0, time.UTC))
	rnd := random.NewSeeded(7)
	groups := []model.Group{{ID: "g1", Name: "Pizza", AnnouncementChannel: "#pizza"}}

	svc := events.NewService(st, clk, rnd, 2, srvLogger)
	pl := planner.New(dir, svc, rnd, planner.DefaultPolicy(), srvLogger)
	rec := &notify.Recorder{}
	n := notify.NewMessenger(rec, groups, clk)
	loop := scheduler.NewLoop(svc, pl, n, clk, groups, scheduler.DefaultConfig(), srvLogger)

	srv := server.New(svc, loop, srvLogger, server.WithNotifier(n), server.WithClock(clk))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{url: ts.URL, svc: svc, sent: rec}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// tickOnce runs the scheduler through the CLI and returns the created event.
func tickOnce(t *testing.T, env *testEnv) *model.Event {
	t.Helper()
	out, err := runCLI(t, "--server", env.url, "tick")
	if err != nil {
		t.Fatalf("tick error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Tick complete") {
		t.Errorf("tick output = %q", out)
	}

	evs, err := env.svc.ListActiveEvents(context.Background())
	if err != nil {
		t.Fatalf("ListActiveEvents: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("events after tick = %d, want 1", len(evs))
	}
	return evs[0]
}

func TestEventsCommand_Empty(t *testing.T) {
	env := startTestServer(t)
	out, err := runCLI(t, "--server", env.url, "events")
	if err != nil {
		t.Fatalf("events error: %v", err)
	}
	if !strings.Contains(out, "No events found.") {
		t.Errorf("output = %q, want empty message", out)
	}
}

func TestTickThenList(t *testing.T) {
	env := startTestServer(t)
	ev := tickOnce(t, env)

	if len(ev.Invites) != 2 {
		t.Fatalf("invites = %d, want 2", len(ev.Invites))
	}
	if n := len(env.sent.OfKind(model.NotificationInvite)); n != 2 {
		t.Errorf("invites delivered = %d, want 2", n)
	}

	out, err := runCLI(t, "--server", env.url, "events")
	if err != nil {
		t.Fatalf("events error: %v", err)
	}
	for _, want := range []string{"ID", ev.ID, "g1", "open", "0/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("events output missing %q:\n%s", want, out)
		}
	}
}

func TestShowCommand(t *testing.T) {
	env := startTestServer(t)
	ev := tickOnce(t, env)

	out, err := runCLI(t, "--server", env.url, "show", ev.ID)
	if err != nil {
		t.Fatalf("show error: %v", err)
	}
	for _, inv := range ev.Invites {
		if !strings.Contains(out, inv.UserID+" (sent ") {
			t.Errorf("show output missing pending %s:\n%s", inv.UserID, out)
		}
	}

	_, err = runCLI(t, "--server", env.url, "show", "evt_missing")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("show missing: err = %v, want NOT_FOUND", err)
	}
}

func TestAcceptDeclineCommands(t *testing.T) {
	env := startTestServer(t)
	ev := tickOnce(t, env)
	first, second := ev.Invites[0].UserID, ev.Invites[1].UserID

	out, err := runCLI(t, "--server", env.url, "accept", ev.ID, "--user", first)
	if err != nil {
		t.Fatalf("accept error: %v", err)
	}
	if !strings.Contains(out, first+": accepted "+ev.ID) {
		t.Errorf("accept output = %q", out)
	}

	out, err = runCLI(t, "--server", env.url, "decline", ev.ID, "-u", second)
	if err != nil {
		t.Fatalf("decline error: %v", err)
	}
	if !strings.Contains(out, "declined") || !strings.Contains(out, "1 accepted, 0 pending") {
		t.Errorf("decline output = %q", out)
	}

	// Answering twice is rejected.
	if _, err := runCLI(t, "--server", env.url, "accept", ev.ID, "--user", first); err == nil {
		t.Error("second accept should fail")
	}
	if _, err := runCLI(t, "--server", env.url, "accept", ev.ID); err == nil {
		t.Error("accept without --user should fail")
	}
}

func TestHomeAndOptOutCommands(t *testing.T) {
	env := startTestServer(t)
	ev := tickOnce(t, env)
	user := ev.Invites[0].UserID

	out, err := runCLI(t, "--server", env.url, "opt-out", user)
	if err != nil {
		t.Fatalf("opt-out error: %v", err)
	}
	if !strings.Contains(out, user+": opted out") {
		t.Errorf("opt-out output = %q", out)
	}

	out, err = runCLI(t, "--server", env.url, "opt-out", user)
	if err != nil {
		t.Fatalf("opt-out again error: %v", err)
	}
	if !strings.Contains(out, "already opted out") {
		t.Errorf("second opt-out output = %q", out)
	}

	out, err = runCLI(t, "--server", env.url, "home", user)
	if err != nil {
		t.Fatalf("home error: %v", err)
	}
	for _, want := range []string{"User: " + user, "Opted out", "Invited: 1", ev.ID} {
		if !strings.Contains(out, want) {
			t.Errorf("home output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "--server", env.url, "opt-in", user)
	if err != nil {
		t.Fatalf("opt-in error: %v", err)
	}
	if !strings.Contains(out, user+": opted in") {
		t.Errorf("opt-in output = %q", out)
	}
}

func TestServerUnreachable(t *testing.T) {
	_, err := runCLI(t, "--server", "http://127.0.0.1:1", "events")
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
