// Package tutor contains the session lifecycle controller and the narration
// sequencer that together drive a voice tutoring session: microphone and
// screen media flowing up to a live provider, model speech flowing down
// through the gapless playback scheduler.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxtrace/voxtrace/internal/observe"
	"github.com/voxtrace/voxtrace/pkg/audio"
	"github.com/voxtrace/voxtrace/pkg/audio/capture"
	"github.com/voxtrace/voxtrace/pkg/audio/playback"
	"github.com/voxtrace/voxtrace/pkg/provider/live"
	"github.com/voxtrace/voxtrace/pkg/screen"
)

// State describes the controller lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CodeContext is the program under discussion, injected into the session's
// system instruction so the model can answer questions about it.
type CodeContext struct {
	Language string
	Source   string
}

const defaultInstruction = `You are a patient programming tutor on a voice
call. The student has the code below open and may also share their screen.
Answer questions about what the code does, step by step, with concrete
values. Keep answers short and conversational; the student will interrupt
when they have heard enough.`

// Option configures a [Controller].
type Option func(*Controller)

// WithVoice sets the session voice.
func WithVoice(voice string) Option {
	return func(c *Controller) { c.voice = voice }
}

// WithInstruction replaces the built-in tutoring system prompt.
func WithInstruction(instruction string) Option {
	return func(c *Controller) { c.instruction = instruction }
}

// WithGrabber enables screen sharing through the given grabber.
func WithGrabber(g screen.Grabber, opts ...screen.SamplerOption) Option {
	return func(c *Controller) {
		c.grabber = g
		c.samplerOpts = opts
	}
}

// WithBlockSize sets the upstream audio block size in samples.
func WithBlockSize(samples int) Option {
	return func(c *Controller) { c.blockSize = samples }
}

// WithPlaybackRate sets the expected sample rate of inbound model speech.
func WithPlaybackRate(hz int) Option {
	return func(c *Controller) { c.playbackRate = hz }
}

// WithLogger sets the controller logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller owns one tutoring session at a time: it acquires the
// microphone, connects the live provider, fans inbound speech into the
// playback scheduler, and tears everything down in order on stop.
//
// The controller is the session's media sink: capture blocks and screen
// frames pass through it so that media arriving outside the active state is
// dropped instead of hitting a dead session.
type Controller struct {
	provider    live.Provider
	mic         capture.Device
	sched       *playback.Scheduler
	grabber     screen.Grabber
	samplerOpts []screen.SamplerOption

	voice        string
	instruction  string
	blockSize    int
	playbackRate int
	log          *slog.Logger
	metrics      *observe.Metrics

	mu       sync.Mutex
	state    State
	session  live.Session
	pipeline *capture.Pipeline
	sampler  *screen.Sampler
}

// NewController wires a controller over the given provider, microphone and
// scheduler.
func NewController(provider live.Provider, mic capture.Device, sched *playback.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		provider:     provider,
		mic:          mic,
		sched:        sched,
		instruction:  defaultInstruction,
		blockSize:    capture.DefaultBlockSize,
		playbackRate: 24000,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins a session over the given code. The microphone is acquired
// first: if it cannot be opened, no session is created and no resources are
// held. Returns an error if a session is already running.
func (c *Controller) Start(ctx context.Context, code CodeContext) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("tutor: cannot start in state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	pipeline := capture.NewPipeline(c.mic, c,
		capture.WithBlockSize(c.blockSize),
		capture.WithLogger(c.log),
	)
	pipeline.SetBlockObserver(func() {
		c.metrics.AudioBlocksSent.Add(context.Background(), 1)
	})
	if err := pipeline.Start(); err != nil {
		c.setState(StateIdle)
		return fmt.Errorf("tutor: microphone unavailable: %w", err)
	}

	cfg := live.SessionConfig{
		Voice:       c.voice,
		Instruction: c.buildInstruction(code),
	}
	sess, err := c.provider.Connect(ctx, cfg, c)
	if err != nil {
		pipeline.Stop()
		c.setState(StateIdle)
		return fmt.Errorf("tutor: connect: %w", err)
	}

	c.mu.Lock()
	// HandleOpen may already have fired from the session's receive loop, so
	// Active is as good as Connecting here. Anything else means Stop raced
	// the connect.
	if c.state != StateConnecting && c.state != StateActive {
		c.mu.Unlock()
		sess.Close()
		pipeline.Stop()
		return errors.New("tutor: session stopped during connect")
	}
	c.session = sess
	c.pipeline = pipeline
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(ctx, 1)
	c.log.Info("session connecting", "language", code.Language, "source_bytes", len(code.Source))
	return nil
}

func (c *Controller) buildInstruction(code CodeContext) string {
	instruction := c.instruction
	if code.Source == "" {
		return instruction
	}
	lang := code.Language
	if lang == "" {
		lang = "code"
	}
	return fmt.Sprintf("%s\n\nThe student's %s:\n\n%s", instruction, lang, code.Source)
}

// Stop ends the session and releases the microphone, screen sampler and any
// queued playback, in that order. Idempotent; safe to call from HandleClose.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	sess := c.session
	pipeline := c.pipeline
	sampler := c.sampler
	c.session = nil
	c.pipeline = nil
	c.sampler = nil
	c.mu.Unlock()

	var errs []error
	if sampler != nil {
		sampler.Stop()
	}
	if pipeline != nil {
		if err := pipeline.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	c.sched.Interrupt()
	if sess != nil {
		if err := sess.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.setState(StateIdle)
	if sess != nil {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	c.log.Info("session stopped")
	return errors.Join(errs...)
}

// StartScreenShare begins streaming screen frames into the session. The
// first grab happens synchronously so a permission failure surfaces here.
func (c *Controller) StartScreenShare() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return fmt.Errorf("tutor: cannot share screen in state %s", c.state)
	}
	if c.grabber == nil {
		c.mu.Unlock()
		return errors.New("tutor: no screen grabber configured")
	}
	if c.sampler != nil {
		c.mu.Unlock()
		return nil
	}

	opts := append([]screen.SamplerOption{screen.WithSamplerLogger(c.log)}, c.samplerOpts...)
	sampler := screen.NewSampler(c.grabber, c, opts...)
	sampler.SetFrameObserver(func() {
		c.metrics.FramesSent.Add(context.Background(), 1)
	})
	c.sampler = sampler
	c.mu.Unlock()

	if err := sampler.Start(); err != nil {
		c.mu.Lock()
		if c.sampler == sampler {
			c.sampler = nil
		}
		c.mu.Unlock()
		return err
	}
	c.log.Info("screen share started")
	return nil
}

// StopScreenShare halts frame streaming. The session continues. Idempotent.
func (c *Controller) StopScreenShare() {
	c.mu.Lock()
	sampler := c.sampler
	c.sampler = nil
	c.mu.Unlock()

	if sampler != nil {
		sampler.Stop()
		c.log.Info("screen share stopped")
	}
}

// SendText forwards a typed question into the active session.
func (c *Controller) SendText(text string) error {
	c.mu.Lock()
	sess := c.session
	active := c.state == StateActive
	c.mu.Unlock()

	if !active || sess == nil {
		return errors.New("tutor: no active session")
	}
	return sess.SendText(text)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ── media sinks ────────────────────────────────────────────────────────────────

var _ capture.Sink = (*Controller)(nil)
var _ screen.Sink = (*Controller)(nil)

// SendAudio forwards a microphone block to the session. Blocks arriving
// while the session is not active are dropped silently; that is the normal
// condition between Connect and the open ack, and briefly during teardown.
func (c *Controller) SendAudio(pcm []byte) error {
	c.mu.Lock()
	sess := c.session
	active := c.state == StateActive
	c.mu.Unlock()

	if !active || sess == nil {
		return nil
	}
	return sess.SendAudio(pcm)
}

// SendImage forwards a screen frame to the session.
func (c *Controller) SendImage(jpeg []byte) error {
	c.mu.Lock()
	sess := c.session
	active := c.state == StateActive
	c.mu.Unlock()

	if !active || sess == nil {
		return nil
	}
	return sess.SendImage(jpeg)
}

// ── live.Handler ───────────────────────────────────────────────────────────────

var _ live.Handler = (*Controller)(nil)

// HandleOpen marks the session active; microphone blocks start flowing
// upstream from this point.
func (c *Controller) HandleOpen() {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateActive
	}
	c.mu.Unlock()
	c.log.Info("session active")
}

// HandleAudio schedules one inbound speech chunk for gapless playback. A
// malformed chunk is dropped; the stream continues.
func (c *Controller) HandleAudio(pcm []byte) {
	buf, err := audio.NewBuffer(pcm, c.playbackRate, 1)
	if err != nil {
		c.log.Warn("dropping malformed audio chunk", "error", err, "bytes", len(pcm))
		c.metrics.DecodeErrors.Add(context.Background(), 1)
		return
	}
	if _, err := c.sched.Schedule(buf, nil); err != nil {
		c.log.Warn("playback schedule failed", "error", err, "duration", buf.Duration())
		return
	}
	c.metrics.ChunksScheduled.Add(context.Background(), 1)
}

// HandleInterrupted discards all queued playback so the user hears silence
// immediately after barging in.
func (c *Controller) HandleInterrupted() {
	c.sched.Interrupt()
	c.metrics.Interruptions.Add(context.Background(), 1)
	c.log.Debug("playback interrupted by user speech")
}

// HandleClose tears the session down after a remote failure. Runs Stop on a
// fresh goroutine because the handler is called from the session's receive
// loop, which Stop waits on.
func (c *Controller) HandleClose(err error) {
	c.log.Error("session closed by remote", "error", err)
	go c.Stop()
}
