// Package app wires all Voxtrace subsystems into a running application.
//
/// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the interactive command loop, and Shutdown tears
// everything down in order.
//
// For testing, inject fakes via functional options (WithCaptureDevice,
// WithPlaybackDevice, etc.). When an option is not provided, New creates
// real devices from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxtrace/voxtrace/internal/config"
	"github.com/voxtrace/voxtrace/internal/observe"
	"github.com/voxtrace/voxtrace/internal/trace"
	"github.com/voxtrace/voxtrace/internal/tutor"
	"github.com/voxtrace/voxtrace/pkg/audio/capture"
	"github.com/voxtrace/voxtrace/pkg/audio/playback"
	"github.com/voxtrace/voxtrace/pkg/provider/live"
	"github.com/voxtrace/voxtrace/pkg/provider/synth"
	"github.com/voxtrace/voxtrace/pkg/provider/tracegen"
	"github.com/voxtrace/voxtrace/pkg/screen"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Live     live.Provider
	Synth    synth.Provider
	TraceGen tracegen.Provider
}

// App owns all subsystem lifetimes and orchestrates the tutoring session.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems. Initialised in New, torn down in Shutdown.
	out        playback.Device
	mic        capture.Device
	sched      *playback.Scheduler
	grabber    screen.Grabber
	controller *tutor.Controller
	narrator   *tutor.Narrator
	player     *trace.Player

	// Loaded code and session identity. Guarded by mu.
	mu        sync.Mutex
	code      tutor.CodeContext
	sessionID string

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCaptureDevice injects a microphone instead of opening the default one.
func WithCaptureDevice(d capture.Device) Option {
	return func(a *App) { a.mic = d }
}

// WithPlaybackDevice injects an output device instead of opening the default
// one.
func WithPlaybackDevice(d playback.Device) Option {
	return func(a *App) { a.out = d }
}

// WithGrabber injects a screen grabber instead of capturing a real display.
func WithGrabber(g screen.Grabber) Option {
	return func(a *App) { a.grabber = g }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any device.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Live == nil {
		return nil, errors.New("app: a live provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Playback path ─────────────────────────────────────────────────
	if a.out == nil {
		out, err := playback.NewOtoDevice(cfg.Audio.PlaybackRate, 1)
		if err != nil {
			return nil, fmt.Errorf("app: open playback device: %w", err)
		}
		a.out = out
	}
	a.closers = append(a.closers, a.out.Close)
	a.sched = playback.NewScheduler(a.out)

	// ── 2. Capture path ──────────────────────────────────────────────────
	if a.mic == nil {
		a.mic = capture.NewMalgoDevice(cfg.Audio.CaptureRate)
	}

	// ── 3. Screen grabber ────────────────────────────────────────────────
	// A missing display is not fatal; the session just cannot share the
	// screen.
	if a.grabber == nil {
		g, err := screen.NewDisplayGrabber(cfg.Screen.Display)
		if err != nil {
			slog.Warn("screen capture unavailable", "display", cfg.Screen.Display, "err", err)
		} else {
			a.grabber = g
		}
	}

	// ── 4. Session controller ────────────────────────────────────────────
	ctrlOpts := []tutor.Option{
		tutor.WithVoice(cfg.Tutor.Voice),
		tutor.WithBlockSize(cfg.Audio.BlockSize),
		tutor.WithPlaybackRate(cfg.Audio.PlaybackRate),
	}
	if cfg.Tutor.Instruction != "" {
		ctrlOpts = append(ctrlOpts, tutor.WithInstruction(cfg.Tutor.Instruction))
	}
	if a.grabber != nil {
		ctrlOpts = append(ctrlOpts, tutor.WithGrabber(a.grabber,
			screen.WithInterval(time.Duration(cfg.Screen.IntervalMS)*time.Millisecond),
			screen.WithMaxWidth(cfg.Screen.MaxWidth),
			screen.WithJPEGQuality(cfg.Screen.JPEGQuality),
		))
	}
	a.controller = tutor.NewController(providers.Live, a.mic, a.sched, ctrlOpts...)
	a.closers = append(a.closers, a.controller.Stop)

	// ── 5. Trace narration ───────────────────────────────────────────────
	if providers.Synth != nil {
		a.narrator = tutor.NewNarrator(providers.Synth, a.sched,
			tutor.WithNarratorVoice(cfg.Tutor.Voice),
			tutor.WithNarratorRate(cfg.Audio.PlaybackRate),
		)
		a.player = trace.NewPlayer(a.narrator, slog.Default())
	}

	return a, nil
}

// ─── Session commands ────────────────────────────────────────────────────────

// StartSession loads the source file at path and opens a live session over
// it.
func (a *App) StartSession(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("app: read source: %w", err)
	}
	code := tutor.CodeContext{
		Language: languageOf(path),
		Source:   string(src),
	}

	if err := a.controller.Start(ctx, code); err != nil {
		return err
	}

	a.mu.Lock()
	a.code = code
	a.sessionID = uuid.NewString()
	id := a.sessionID
	a.mu.Unlock()

	slog.Info("session started", "id", id, "file", path, "language", code.Language)
	return nil
}

// StopSession ends the live session. The loaded code and any generated trace
// survive so the walkthrough can continue offline.
func (a *App) StopSession() error {
	if a.narrator != nil {
		a.narrator.Silence()
	}
	return a.controller.Stop()
}

// Ask sends a typed question into the live session.
func (a *App) Ask(text string) error {
	return a.controller.SendText(text)
}

// ShareScreen starts streaming frames into the live session.
func (a *App) ShareScreen() error {
	return a.controller.StartScreenShare()
}

// UnshareScreen stops streaming frames.
func (a *App) UnshareScreen() {
	a.controller.StopScreenShare()
}

// GenerateTrace asks the trace provider for a walkthrough of the loaded code
// and loads it into the player.
func (a *App) GenerateTrace(ctx context.Context) (*trace.Trace, error) {
	if a.providers.TraceGen == nil {
		return nil, errors.New("app: no trace provider configured")
	}
	if a.player == nil {
		return nil, errors.New("app: no synthesis provider configured; cannot narrate traces")
	}

	a.mu.Lock()
	code := a.code
	a.mu.Unlock()
	if code.Source == "" {
		return nil, errors.New("app: no code loaded; start a session first")
	}

	start := time.Now()
	raw, err := a.providers.TraceGen.GenerateTrace(ctx, code.Language, code.Source)
	a.metrics.TraceGenDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("app: generate trace: %w", err)
	}

	tr, err := trace.Parse(raw)
	if err != nil {
		return nil, err
	}
	tr.Language = code.Language
	tr.Source = code.Source

	a.player.Load(tr)
	slog.Info("trace loaded", "steps", len(tr.Steps))
	return tr, nil
}

// StepTrace narrates the current trace step. Narration shares the playback
// path with live session audio, so it is refused while a session is running.
func (a *App) StepTrace(ctx context.Context) (trace.Step, error) {
	if a.player == nil {
		return trace.Step{}, errors.New("app: no synthesis provider configured")
	}
	if err := a.ensureNoLiveSession(); err != nil {
		return trace.Step{}, err
	}
	return a.player.Step(ctx)
}

// PlayTrace narrates from the current step to the end of the trace,
// stopping early if a narration is interrupted. Like [App.StepTrace] it is
// refused while a live session is running.
func (a *App) PlayTrace(ctx context.Context) error {
	if a.player == nil {
		return errors.New("app: no synthesis provider configured")
	}
	if err := a.ensureNoLiveSession(); err != nil {
		return err
	}
	return a.player.Play(ctx)
}

// ensureNoLiveSession rejects trace narration while the session controller
// is anywhere but idle, so narration never interrupts or interleaves with
// the tutor's own speech.
func (a *App) ensureNoLiveSession() error {
	if state := a.controller.State(); state != tutor.StateIdle {
		return fmt.Errorf("app: cannot narrate while a session is %s; run stop first", state)
	}
	return nil
}

// RewindTrace returns the walkthrough to its first step.
func (a *App) RewindTrace() {
	if a.player != nil {
		a.player.Rewind()
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the Prometheus metrics endpoint and blocks until ctx is
// cancelled. The interactive command loop runs separately; see
// [App.HandleCommand].
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		return ctx.Err()
	}
	return err
}

// HandleCommand executes one interactive command line and returns its
// output. Returns [ErrQuit] when the user asked to exit.
func (a *App) HandleCommand(ctx context.Context, line string) (string, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return "", nil

	case "start":
		if arg == "" {
			return "", errors.New("usage: start <source-file>")
		}
		if err := a.StartSession(ctx, arg); err != nil {
			return "", err
		}
		return "session started; speak or type 'ask <question>'", nil

	case "stop":
		if err := a.StopSession(); err != nil {
			return "", err
		}
		return "session stopped", nil

	case "ask":
		if arg == "" {
			return "", errors.New("usage: ask <question>")
		}
		if err := a.Ask(arg); err != nil {
			return "", err
		}
		return "sent", nil

	case "share":
		if err := a.ShareScreen(); err != nil {
			return "", err
		}
		return "screen sharing", nil

	case "unshare":
		a.UnshareScreen()
		return "screen sharing stopped", nil

	case "trace":
		tr, err := a.GenerateTrace(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("trace ready: %d steps; 'step' or 'play'", len(tr.Steps)), nil

	case "step":
		step, err := a.StepTrace(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("line %d: %s", step.Line, step.Narration), nil

	case "play":
		if err := a.PlayTrace(ctx); err != nil {
			return "", err
		}
		return "walkthrough paused or finished", nil

	case "rewind":
		a.RewindTrace()
		return "rewound to step 1", nil

	case "help":
		return commandHelp, nil

	case "quit", "exit":
		return "", ErrQuit

	default:
		return "", fmt.Errorf("unknown command %q; try 'help'", cmd)
	}
}

// ErrQuit signals that the user asked to exit the command loop.
var ErrQuit = errors.New("quit")

const commandHelp = `commands:
  start <file>   load a source file and open a voice session over it
  stop           end the session
  ask <text>     type a question instead of speaking it
  share          stream the screen into the session
  unshare        stop streaming the screen
  trace          generate a line-by-line walkthrough of the loaded code
  step           narrate the next walkthrough step
  play           narrate to the end (interrupt to pause)
  rewind         return to the first step
  quit           exit`

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.narrator != nil {
			a.narrator.Silence()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// languageOf guesses the language from a file extension. Unknown extensions
// fall back to the bare extension so the model still gets a hint.
func languageOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".py":
		return "python"
	case ".go":
		return "go"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cc", ".cpp", ".hpp":
		return "c++"
	case ".rb":
		return "ruby"
	case ".rs":
		return "rust"
	case ".sh":
		return "shell"
	}
	return strings.TrimPrefix(ext, ".")
}
