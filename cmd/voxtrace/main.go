// Command voxtrace is an interactive voice tutor for reading code: it opens
// a live speech session over a source file, optionally shares the screen,
// and can narrate a generated line-by-line walkthrough.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxtrace/voxtrace/internal/app"
	"github.com/voxtrace/voxtrace/internal/config"
	"github.com/voxtrace/voxtrace/internal/observe"
	"github.com/voxtrace/voxtrace/pkg/provider/live"
	livegemini "github.com/voxtrace/voxtrace/pkg/provider/live/gemini"
	livemock "github.com/voxtrace/voxtrace/pkg/provider/live/mock"
	"github.com/voxtrace/voxtrace/pkg/provider/synth"
	synthgemini "github.com/voxtrace/voxtrace/pkg/provider/synth/gemini"
	synthmock "github.com/voxtrace/voxtrace/pkg/provider/synth/mock"
	"github.com/voxtrace/voxtrace/pkg/provider/tracegen"
	tracegengemini "github.com/voxtrace/voxtrace/pkg/provider/tracegen/gemini"
	tracegenmock "github.com/voxtrace/voxtrace/pkg/provider/tracegen/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxtrace: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxtrace: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxtrace starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Metrics ───────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxtrace",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	go func() {
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
		}
	}()

	fmt.Println("voxtrace ready — type 'help' for commands, Ctrl+C to exit")
	commandLoop(ctx, stop, application)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// commandLoop reads commands from stdin until EOF, quit, or ctx cancellation.
func commandLoop(ctx context.Context, stop func(), a *app.App) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			out, err := a.HandleCommand(ctx, line)
			if errors.Is(err, app.ErrQuit) {
				stop()
				return
			}
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if out != "" {
				fmt.Println(out)
			}
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages. The "mock" providers exist so the
// app can be exercised end to end without credentials.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLive("gemini", func(entry config.ProviderEntry) (live.Provider, error) {
		if entry.APIKey == "" {
			return nil, errors.New("live/gemini requires api_key")
		}
		opts := []livegemini.Option{
			livegemini.WithLogger(slog.Default()),
			livegemini.WithDecodeObserver(func() {
				observe.DefaultMetrics().DecodeErrors.Add(context.Background(), 1)
			}),
		}
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		return livegemini.New(entry.APIKey, opts...), nil
	})
	reg.RegisterLive("mock", func(entry config.ProviderEntry) (live.Provider, error) {
		return &livemock.Provider{OpenOnConnect: true}, nil
	})

	reg.RegisterSynth("gemini", func(entry config.ProviderEntry) (synth.Provider, error) {
		var opts []synthgemini.Option
		if entry.Model != "" {
			opts = append(opts, synthgemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, synthgemini.WithBaseURL(entry.BaseURL))
		}
		return synthgemini.New(entry.APIKey, opts...)
	})
	reg.RegisterSynth("mock", func(entry config.ProviderEntry) (synth.Provider, error) {
		return &synthmock.Provider{PCM: make([]byte, 4800)}, nil
	})

	reg.RegisterTraceGen("gemini", func(entry config.ProviderEntry) (tracegen.Provider, error) {
		var opts []tracegengemini.Option
		if entry.Model != "" {
			opts = append(opts, tracegengemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, tracegengemini.WithBaseURL(entry.BaseURL))
		}
		return tracegengemini.New(entry.APIKey, opts...)
	})
	reg.RegisterTraceGen("mock", func(entry config.ProviderEntry) (tracegen.Provider, error) {
		return &tracegenmock.Provider{
			Trace: `{"steps": [{"line": 1, "narration": "the first line runs"}]}`,
		}, nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateLive(cfg.Providers.Live)
	if err != nil {
		return nil, fmt.Errorf("create live provider %q: %w", cfg.Providers.Live.Name, err)
	}
	ps.Live = p
	slog.Info("provider created", "kind", "live", "name", cfg.Providers.Live.Name)

	if name := cfg.Providers.Synth.Name; name != "" {
		p, err := reg.CreateSynth(cfg.Providers.Synth)
		if err != nil {
			return nil, fmt.Errorf("create synth provider %q: %w", name, err)
		}
		ps.Synth = p
		slog.Info("provider created", "kind", "synth", "name", name)
	}

	if name := cfg.Providers.TraceGen.Name; name != "" {
		p, err := reg.CreateTraceGen(cfg.Providers.TraceGen)
		if err != nil {
			return nil, fmt.Errorf("create tracegen provider %q: %w", name, err)
		}
		ps.TraceGen = p
		slog.Info("provider created", "kind", "tracegen", "name", name)
	}

	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
