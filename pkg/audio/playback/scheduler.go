package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/voxtrace/voxtrace/pkg/audio"
)

// Scheduled is a chunk the scheduler has handed to the device. Stop removes
// it from the active set and halts its output without firing the completion
// callback.
type Scheduled struct {
	s      *Scheduler
	handle Handle

	mu      sync.Mutex
	stopped bool
}

// Stop force-stops this chunk. Idempotent. The next-start timestamp is left
// untouched; only [Scheduler.Interrupt] may reset it.
func (sc *Scheduled) Stop() {
	sc.mu.Lock()
	if sc.stopped {
		sc.mu.Unlock()
		return
	}
	sc.stopped = true
	h := sc.handle
	sc.mu.Unlock()

	sc.s.remove(sc)
	if h != nil {
		h.Stop()
	}
}

// Scheduler assigns start times to audio buffers so consecutive chunks play
// back to back with no gap. Each buffer starts at max(nextStart, now) and
// advances nextStart by its own duration, so a burst of short chunks queues
// seamlessly while a chunk arriving after a silence starts immediately.
//
// nextStart only ever moves forward, with one exception: Interrupt resets it
// to the device clock so speech resumes immediately after a barge-in instead
// of waiting out audio that was just discarded.
type Scheduler struct {
	dev Device

	mu        sync.Mutex
	nextStart time.Time
	active    map[*Scheduled]struct{}
}

// NewScheduler returns a scheduler that plays through dev.
func NewScheduler(dev Device) *Scheduler {
	return &Scheduler{
		dev:    dev,
		active: make(map[*Scheduled]struct{}),
	}
}

// Schedule queues buf for gapless playback. If done is non-nil it is invoked
// once when the buffer plays to natural completion; it does not fire if the
// chunk is stopped or interrupted first.
func (s *Scheduler) Schedule(buf *audio.Buffer, done func()) (*Scheduled, error) {
	s.mu.Lock()
	now := s.dev.Now()
	start := s.nextStart
	if start.Before(now) {
		start = now
	}
	s.nextStart = start.Add(buf.Duration())

	sc := &Scheduled{s: s}
	s.active[sc] = struct{}{}
	s.mu.Unlock()

	h, err := s.dev.Play(buf, start, func() {
		s.remove(sc)
		if done != nil {
			done()
		}
	})
	if err != nil {
		s.remove(sc)
		return nil, fmt.Errorf("playback schedule: %w", err)
	}

	// An interrupt or stop may have landed while the device call was in
	// flight, before the handle existed to stop. Bind the handle under the
	// chunk lock and halt it here if so.
	sc.mu.Lock()
	sc.handle = h
	stopped := sc.stopped
	sc.mu.Unlock()
	if stopped {
		h.Stop()
	}
	return sc, nil
}

// Interrupt force-stops every active chunk and resets the next-start
// timestamp to the device clock. Used on barge-in and when a narration is
// superseded.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := make([]*Scheduled, 0, len(s.active))
	for sc := range s.active {
		stopped = append(stopped, sc)
	}
	s.active = make(map[*Scheduled]struct{})
	s.nextStart = s.dev.Now()
	s.mu.Unlock()

	for _, sc := range stopped {
		sc.mu.Lock()
		already := sc.stopped
		sc.stopped = true
		h := sc.handle
		sc.mu.Unlock()
		if !already && h != nil {
			h.Stop()
		}
	}
}

// NextStart reports when the next scheduled buffer would begin. A zero time
// means nothing has been scheduled since the last interrupt.
func (s *Scheduler) NextStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// ActiveCount reports how many scheduled chunks have not yet completed or
// been stopped.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) remove(sc *Scheduled) {
	s.mu.Lock()
	delete(s.active, sc)
	s.mu.Unlock()
}
