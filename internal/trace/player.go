package trace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNoTrace is returned by playback operations before a trace is loaded.
var ErrNoTrace = errors.New("trace: no trace loaded")

// ErrDone is returned when every step has been narrated.
var ErrDone = errors.New("trace: walkthrough finished")

// Speaker narrates one utterance to completion. It reports false when the
// utterance was cut short, which the player treats as the listener taking
// back control.
type Speaker interface {
	Speak(ctx context.Context, text string) bool
}

// Player walks a trace through a speaker. Manual stepping replays the
// current step until it is heard in full; Play auto-advances and halts as
// soon as a narration is interrupted.
type Player struct {
	speaker Speaker
	log     *slog.Logger

	mu    sync.Mutex
	trace *Trace
	pos   int
}

// NewPlayer returns a player speaking through speaker.
func NewPlayer(speaker Speaker, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{speaker: speaker, log: log}
}

// Load sets the trace to walk and rewinds to its first step.
func (p *Player) Load(tr *Trace) {
	p.mu.Lock()
	p.trace = tr
	p.pos = 0
	p.mu.Unlock()
}

// Rewind returns to the first step of the loaded trace.
func (p *Player) Rewind() {
	p.mu.Lock()
	p.pos = 0
	p.mu.Unlock()
}

// Remaining reports how many steps have not yet been narrated in full.
func (p *Player) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trace == nil {
		return 0
	}
	return len(p.trace.Steps) - p.pos
}

// Step narrates the current step and advances past it if the narration
// completed. An interrupted narration leaves the position unchanged so the
// step can be replayed.
func (p *Player) Step(ctx context.Context) (Step, error) {
	step, idx, err := p.current()
	if err != nil {
		return Step{}, err
	}

	if p.speaker.Speak(ctx, step.Narration) {
		p.advancePast(idx)
	}
	return step, nil
}

// Play narrates from the current position to the end. It stops early when a
// narration is interrupted or ctx is cancelled, leaving the position at the
// interrupted step.
func (p *Player) Play(ctx context.Context) error {
	for {
		step, idx, err := p.current()
		if errors.Is(err, ErrDone) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Debug("narrating step", "line", step.Line)
		if !p.speaker.Speak(ctx, step.Narration) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		p.advancePast(idx)
	}
}

func (p *Player) current() (Step, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trace == nil {
		return Step{}, 0, ErrNoTrace
	}
	if p.pos >= len(p.trace.Steps) {
		return Step{}, 0, ErrDone
	}
	return p.trace.Steps[p.pos], p.pos, nil
}

// advancePast moves forward only if the position still points at idx, so a
// concurrent Load or Rewind is not clobbered by a stale completion.
func (p *Player) advancePast(idx int) {
	p.mu.Lock()
	if p.trace != nil && p.pos == idx {
		p.pos++
	}
	p.mu.Unlock()
}
