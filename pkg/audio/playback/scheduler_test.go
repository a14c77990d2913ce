package playback_test

import (
	"sync"
	"testing"
	"time"

	"github.com/voxtrace/voxtrace/pkg/audio"
	"github.com/voxtrace/voxtrace/pkg/audio/playback"
)

// fakeDevice records Play calls against a manually advanced clock. Handles
// complete only when the test fires them. When playGate is set, Play signals
// playStarted and then blocks until the gate closes.
type fakeDevice struct {
	mu          sync.Mutex
	now         time.Time
	plays       []*fakePlay
	playStarted chan struct{}
	playGate    chan struct{}
}

type fakePlay struct {
	at   time.Time
	done func()

	mu      sync.Mutex
	stopped bool
}

func (h *fakePlay) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *fakePlay) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{now: time.Unix(1000, 0)}
}

func (d *fakeDevice) Now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

func (d *fakeDevice) advance(by time.Duration) {
	d.mu.Lock()
	d.now = d.now.Add(by)
	d.mu.Unlock()
}

func (d *fakeDevice) Play(buf *audio.Buffer, at time.Time, done func()) (playback.Handle, error) {
	h := &fakePlay{at: at, done: done}
	d.mu.Lock()
	d.plays = append(d.plays, h)
	d.mu.Unlock()
	if d.playGate != nil {
		d.playStarted <- struct{}{}
		<-d.playGate
	}
	return h, nil
}

func (d *fakeDevice) play(i int) *fakePlay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plays[i]
}

func (d *fakeDevice) Close() error { return nil }

// chunk builds a buffer of the given duration at 24kHz mono.
func chunk(t *testing.T, dur time.Duration) *audio.Buffer {
	t.Helper()
	n := int(dur.Seconds() * 24000)
	buf, err := audio.NewBuffer(make([]byte, n*2), 24000, 1)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	return buf
}

func TestScheduleGaplessChain(t *testing.T) {
	dev := newFakeDevice()
	s := playback.NewScheduler(dev)
	t0 := dev.Now()

	for i := 0; i < 3; i++ {
		if _, err := s.Schedule(chunk(t, 100*time.Millisecond), nil); err != nil {
			t.Fatalf("Schedule %d: %v", i, err)
		}
	}

	want := []time.Time{t0, t0.Add(100 * time.Millisecond), t0.Add(200 * time.Millisecond)}
	for i, p := range dev.plays {
		if !p.at.Equal(want[i]) {
			t.Errorf("chunk %d start = %v, want %v", i, p.at, want[i])
		}
	}
	if got := s.NextStart(); !got.Equal(t0.Add(300 * time.Millisecond)) {
		t.Errorf("NextStart = %v, want %v", got, t0.Add(300*time.Millisecond))
	}
}

func TestScheduleAfterSilenceStartsNow(t *testing.T) {
	dev := newFakeDevice()
	s := playback.NewScheduler(dev)

	if _, err := s.Schedule(chunk(t, 100*time.Millisecond), nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// The chunk finished long ago; the next one must not be scheduled into
	// the past.
	dev.advance(500 * time.Millisecond)
	if _, err := s.Schedule(chunk(t, 100*time.Millisecond), nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	now := dev.Now()
	if got := dev.plays[1].at; !got.Equal(now) {
		t.Errorf("late chunk start = %v, want %v", got, now)
	}
	if got := s.NextStart(); !got.Equal(now.Add(100 * time.Millisecond)) {
		t.Errorf("NextStart = %v, want %v", got, now.Add(100*time.Millisecond))
	}
}

func TestInterruptStopsAllAndResetsClock(t *testing.T) {
	dev := newFakeDevice()
	s := playback.NewScheduler(dev)

	for i := 0; i < 4; i++ {
		if _, err := s.Schedule(chunk(t, 100*time.Millisecond), nil); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	if got := s.ActiveCount(); got != 4 {
		t.Fatalf("ActiveCount = %d, want 4", got)
	}

	dev.advance(50 * time.Millisecond)
	s.Interrupt()

	if got := s.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after interrupt = %d, want 0", got)
	}
	for i, p := range dev.plays {
		if !p.isStopped() {
			t.Errorf("chunk %d not stopped by interrupt", i)
		}
	}
	if got := s.NextStart(); !got.Equal(dev.Now()) {
		t.Errorf("NextStart after interrupt = %v, want %v", got, dev.Now())
	}

	// Speech scheduled right after the interrupt starts immediately.
	if _, err := s.Schedule(chunk(t, 100*time.Millisecond), nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got := dev.plays[len(dev.plays)-1].at; !got.Equal(dev.Now()) {
		t.Errorf("post-interrupt start = %v, want %v", got, dev.Now())
	}
}

func TestInterruptDuringDeviceStartStopsChunk(t *testing.T) {
	dev := newFakeDevice()
	dev.playStarted = make(chan struct{})
	dev.playGate = make(chan struct{})
	s := playback.NewScheduler(dev)

	buf := chunk(t, 100*time.Millisecond)
	scheduled := make(chan error, 1)
	go func() {
		_, err := s.Schedule(buf, nil)
		scheduled <- err
	}()

	// Interrupt lands while the device call is still in flight, before the
	// chunk has a handle to stop.
	<-dev.playStarted
	s.Interrupt()
	close(dev.playGate)

	if err := <-scheduled; err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !dev.play(0).isStopped() {
		t.Error("chunk kept playing through the interrupt")
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after interrupt = %d, want 0", got)
	}
}

func TestCompletionRemovesFromActiveSet(t *testing.T) {
	dev := newFakeDevice()
	s := playback.NewScheduler(dev)

	fired := false
	if _, err := s.Schedule(chunk(t, 100*time.Millisecond), func() { fired = true }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	dev.plays[0].done()
	if !fired {
		t.Error("completion callback did not fire")
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after completion = %d, want 0", got)
	}
}

func TestStopDoesNotFireDoneOrTouchClock(t *testing.T) {
	dev := newFakeDevice()
	s := playback.NewScheduler(dev)

	fired := false
	sc, err := s.Schedule(chunk(t, 100*time.Millisecond), func() { fired = true })
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	next := s.NextStart()

	sc.Stop()
	sc.Stop() // idempotent

	if fired {
		t.Error("Stop must not fire the completion callback")
	}
	if !dev.plays[0].isStopped() {
		t.Error("device handle not stopped")
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after stop = %d, want 0", got)
	}
	if got := s.NextStart(); !got.Equal(next) {
		t.Errorf("Stop moved NextStart from %v to %v", next, got)
	}
}
