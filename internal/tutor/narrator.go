package tutor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxtrace/voxtrace/internal/observe"
	"github.com/voxtrace/voxtrace/pkg/audio"
	"github.com/voxtrace/voxtrace/pkg/audio/playback"
	"github.com/voxtrace/voxtrace/pkg/provider/synth"
)

// NarratorOption configures a [Narrator].
type NarratorOption func(*Narrator)

// WithNarratorVoice sets the synthesis voice.
func WithNarratorVoice(voice string) NarratorOption {
	return func(n *Narrator) { n.voice = voice }
}

// WithNarratorRate sets the sample rate of synthesized speech.
func WithNarratorRate(hz int) NarratorOption {
	return func(n *Narrator) { n.rate = hz }
}

// WithNarratorLogger sets the narrator logger.
func WithNarratorLogger(log *slog.Logger) NarratorOption {
	return func(n *Narrator) { n.log = log }
}

// WithNarratorMetrics sets the metrics instance.
func WithNarratorMetrics(m *observe.Metrics) NarratorOption {
	return func(n *Narrator) { n.metrics = m }
}

// Narrator speaks one utterance at a time. At most one narration is in
// flight: a new Speak supersedes the previous one, silencing it immediately
// even if its audio is mid-playback. Callers stepping through a sequence use
// the return value to decide whether to advance.
type Narrator struct {
	synth   synth.Provider
	sched   *playback.Scheduler
	voice   string
	rate    int
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	token   uint64
	pending *pendingSpeech
}

type pendingSpeech struct {
	superseded chan struct{}
	handle     *playback.Scheduled
}

// NewNarrator builds a narrator over the given synthesizer and scheduler.
func NewNarrator(provider synth.Provider, sched *playback.Scheduler, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		synth: provider,
		sched: sched,
		rate:  24000,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.metrics == nil {
		n.metrics = observe.DefaultMetrics()
	}
	return n
}

// Speak synthesizes text and plays it to completion. It returns true when
// the utterance finished playing, and false when it was superseded by a
// newer Speak or cancelled through ctx.
//
// Synthesis and playback failures return true: a broken speech path should
// not wedge a caller that advances on completion. The failure is logged and
// counted instead.
func (n *Narrator) Speak(ctx context.Context, text string) bool {
	n.mu.Lock()
	n.token++
	token := n.token
	if n.pending != nil {
		close(n.pending.superseded)
		n.pending = nil
	}
	cur := &pendingSpeech{superseded: make(chan struct{})}
	n.pending = cur
	n.mu.Unlock()

	// Clear anything the previous narration still had queued.
	n.sched.Interrupt()

	start := time.Now()
	pcm, err := n.synth.Synthesize(ctx, text, n.voice)
	n.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())

	if n.supersededBy(token) {
		n.metrics.RecordNarration(ctx, observe.NarrationSuperseded)
		return false
	}
	if err != nil {
		if ctx.Err() != nil {
			n.finish(cur)
			n.metrics.RecordNarration(ctx, observe.NarrationCancelled)
			return false
		}
		n.log.Warn("synthesis failed, skipping narration", "error", err)
		n.finish(cur)
		n.metrics.RecordNarration(ctx, observe.NarrationFailedOpen)
		return true
	}

	buf, err := audio.NewBuffer(pcm, n.rate, 1)
	if err != nil {
		n.log.Warn("synthesized audio malformed, skipping narration", "error", err)
		n.finish(cur)
		n.metrics.RecordNarration(ctx, observe.NarrationFailedOpen)
		return true
	}

	done := make(chan struct{})
	handle, err := n.sched.Schedule(buf, func() { close(done) })
	if err != nil {
		n.log.Warn("narration playback failed", "error", err)
		n.finish(cur)
		n.metrics.RecordNarration(ctx, observe.NarrationFailedOpen)
		return true
	}

	n.mu.Lock()
	if n.pending == cur {
		cur.handle = handle
	}
	n.mu.Unlock()

	select {
	case <-done:
		// done and superseded can become ready together when a barge-in
		// lands at the last sample; the token decides which one happened.
		if n.supersededBy(token) {
			n.metrics.RecordNarration(ctx, observe.NarrationSuperseded)
			return false
		}
		n.finish(cur)
		n.metrics.RecordNarration(ctx, observe.NarrationCompleted)
		return true
	case <-cur.superseded:
		n.metrics.RecordNarration(ctx, observe.NarrationSuperseded)
		return false
	case <-ctx.Done():
		handle.Stop()
		n.finish(cur)
		n.metrics.RecordNarration(ctx, observe.NarrationCancelled)
		return false
	}
}

// Silence stops the current narration, if any, without starting a new one.
func (n *Narrator) Silence() {
	n.mu.Lock()
	n.token++
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()

	if pending != nil {
		close(pending.superseded)
		n.sched.Interrupt()
	}
}

func (n *Narrator) supersededBy(token uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.token != token
}

func (n *Narrator) finish(cur *pendingSpeech) {
	n.mu.Lock()
	if n.pending == cur {
		n.pending = nil
	}
	n.mu.Unlock()
}
