package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxtrace/voxtrace/internal/app"
	"github.com/voxtrace/voxtrace/internal/config"
	"github.com/voxtrace/voxtrace/pkg/audio"
	"github.com/voxtrace/voxtrace/pkg/audio/playback"
	livemock "github.com/voxtrace/voxtrace/pkg/provider/live/mock"
	synthmock "github.com/voxtrace/voxtrace/pkg/provider/synth/mock"
	tracemock "github.com/voxtrace/voxtrace/pkg/provider/tracegen/mock"
)

// instantMic is a capture device that opens successfully and produces
// nothing.
type instantMic struct {
	mu    sync.Mutex
	stops int
}

func (m *instantMic) Start(func(audio.Frame)) error { return nil }

func (m *instantMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

// instantOut completes every buffer the moment it is scheduled, so
// narrations finish without real time passing.
type instantOut struct {
	mu     sync.Mutex
	plays  int
	closed bool
}

func (d *instantOut) Now() time.Time { return time.Unix(1000, 0) }

func (d *instantOut) Play(buf *audio.Buffer, at time.Time, done func()) (playback.Handle, error) {
	d.mu.Lock()
	d.plays++
	d.mu.Unlock()
	done()
	return nopHandle{}, nil
}

func (d *instantOut) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *instantOut) playCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plays
}

type nopHandle struct{}

func (nopHandle) Stop() {}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Providers.Live.Name = "mock"
	if err := config.Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func writeSource(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

const traceJSON = "```json\n" +
	`{"steps": [
		{"line": 1, "narration": "x becomes one"},
		{"line": 2, "narration": "x is printed"}
	]}` + "\n```"

func newApp(t *testing.T) (*app.App, *livemock.Session, *instantOut) {
	t.Helper()
	sess := &livemock.Session{}
	providers := &app.Providers{
		Live:     &livemock.Provider{Session: sess, OpenOnConnect: true},
		Synth:    &synthmock.Provider{PCM: make([]byte, 4800)},
		TraceGen: &tracemock.Provider{Trace: traceJSON},
	}
	out := &instantOut{}
	a, err := app.New(context.Background(), testConfig(), providers,
		app.WithCaptureDevice(&instantMic{}),
		app.WithPlaybackDevice(out),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.Shutdown(ctx)
	})
	return a, sess, out
}

func TestNewRequiresLiveProvider(t *testing.T) {
	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Fatal("New succeeded without a live provider")
	}
}

func TestStartSessionInjectsCode(t *testing.T) {
	sess := &livemock.Session{}
	prov := &livemock.Provider{Session: sess, OpenOnConnect: true}
	a, err := app.New(context.Background(), testConfig(), &app.Providers{Live: prov},
		app.WithCaptureDevice(&instantMic{}),
		app.WithPlaybackDevice(&instantOut{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.StopSession()

	path := writeSource(t, "demo.py", "x = 1\nprint(x)")
	if err := a.StartSession(context.Background(), path); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if len(prov.ConnectCalls) != 1 {
		t.Fatalf("Connect calls = %d, want 1", len(prov.ConnectCalls))
	}
	instruction := prov.ConnectCalls[0].Cfg.Instruction
	if !strings.Contains(instruction, "python") || !strings.Contains(instruction, "print(x)") {
		t.Errorf("instruction missing code context: %q", instruction)
	}
}

func TestStartSessionMissingFile(t *testing.T) {
	a, _, _ := newApp(t)

	err := a.StartSession(context.Background(), filepath.Join(t.TempDir(), "absent.py"))
	if err == nil {
		t.Fatal("StartSession succeeded for a missing file")
	}
}

func TestTraceWalkthrough(t *testing.T) {
	a, _, out := newApp(t)

	path := writeSource(t, "demo.py", "x = 1\nprint(x)")
	if err := a.StartSession(context.Background(), path); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	tr, err := a.GenerateTrace(context.Background())
	if err != nil {
		t.Fatalf("GenerateTrace: %v", err)
	}
	if len(tr.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(tr.Steps))
	}

	// Narration needs the playback path to itself; end the session first.
	if err := a.StopSession(); err != nil {
		t.Fatalf("StopSession: %v", err)
	}

	step, err := a.StepTrace(context.Background())
	if err != nil {
		t.Fatalf("StepTrace: %v", err)
	}
	if step.Line != 1 {
		t.Errorf("first step line = %d, want 1", step.Line)
	}
	if err := a.PlayTrace(context.Background()); err != nil {
		t.Fatalf("PlayTrace: %v", err)
	}
	if got := out.playCount(); got != 2 {
		t.Errorf("narrations played = %d, want 2", got)
	}

	a.RewindTrace()
	if _, err := a.StepTrace(context.Background()); err != nil {
		t.Fatalf("StepTrace after rewind: %v", err)
	}
}

func TestTraceNarrationRefusedDuringSession(t *testing.T) {
	a, _, out := newApp(t)
	ctx := context.Background()

	path := writeSource(t, "demo.py", "x = 1\nprint(x)")
	if err := a.StartSession(ctx, path); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := a.GenerateTrace(ctx); err != nil {
		t.Fatalf("GenerateTrace: %v", err)
	}

	// Stepping or playing now would silence the tutor mid-sentence and
	// interleave narration with session audio on the same playback clock.
	if _, err := a.StepTrace(ctx); err == nil {
		t.Error("StepTrace succeeded during a live session")
	}
	if err := a.PlayTrace(ctx); err == nil {
		t.Error("PlayTrace succeeded during a live session")
	}
	if got := out.playCount(); got != 0 {
		t.Errorf("narrations played during session = %d, want 0", got)
	}

	if err := a.StopSession(); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if _, err := a.StepTrace(ctx); err != nil {
		t.Fatalf("StepTrace after stop: %v", err)
	}
}

func TestGenerateTraceWithoutCode(t *testing.T) {
	a, _, _ := newApp(t)

	if _, err := a.GenerateTrace(context.Background()); err == nil {
		t.Fatal("GenerateTrace succeeded with no code loaded")
	}
}

func TestHandleCommandLifecycle(t *testing.T) {
	a, sess, _ := newApp(t)
	ctx := context.Background()
	path := writeSource(t, "demo.go", "package main")

	steps := []struct {
		line string
		want string
	}{
		{"start " + path, "session started"},
		{"ask what does this do", "sent"},
		{"trace", "2 steps"},
		{"stop", "session stopped"},
		{"step", "line 1"},
	}
	for _, s := range steps {
		out, err := a.HandleCommand(ctx, s.line)
		if err != nil {
			t.Fatalf("HandleCommand(%q): %v", s.line, err)
		}
		if !strings.Contains(out, s.want) {
			t.Errorf("HandleCommand(%q) = %q, want substring %q", s.line, out, s.want)
		}
	}

	if len(sess.TextSent) != 1 || sess.TextSent[0] != "what does this do" {
		t.Errorf("TextSent = %v", sess.TextSent)
	}
}

func TestHandleCommandErrors(t *testing.T) {
	a, _, _ := newApp(t)
	ctx := context.Background()

	if _, err := a.HandleCommand(ctx, "quit"); !errors.Is(err, app.ErrQuit) {
		t.Errorf("quit error = %v, want ErrQuit", err)
	}
	if _, err := a.HandleCommand(ctx, "frobnicate"); err == nil {
		t.Error("unknown command did not error")
	}
	if _, err := a.HandleCommand(ctx, "start"); err == nil {
		t.Error("start without a file did not error")
	}
	if out, err := a.HandleCommand(ctx, "   "); err != nil || out != "" {
		t.Errorf("blank line = (%q, %v), want empty no-op", out, err)
	}
	if _, err := a.HandleCommand(ctx, "help"); err != nil {
		t.Errorf("help: %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a, _, _ := newApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	a, _, out := newApp(t)

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	out.mu.Lock()
	closed := out.closed
	out.mu.Unlock()
	if !closed {
		t.Error("playback device not closed")
	}
}
