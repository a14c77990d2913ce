package capture_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxtrace/voxtrace/pkg/audio"
	"github.com/voxtrace/voxtrace/pkg/audio/capture"
)

// fakeMic hands its Start callback to the test so frame delivery is under
// test control.
type fakeMic struct {
	mu      sync.Mutex
	onFrame func(audio.Frame)
	stops   int
}

func (m *fakeMic) Start(onFrame func(audio.Frame)) error {
	m.mu.Lock()
	m.onFrame = onFrame
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) Stop() error {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) feed(samples []float32) {
	m.mu.Lock()
	fn := m.onFrame
	m.mu.Unlock()
	fn(audio.Frame{Samples: samples, SampleRate: 16000})
}

type recordingSink struct {
	mu     sync.Mutex
	blocks [][]byte
	err    error
}

func (s *recordingSink) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	b := make([]byte, len(pcm))
	copy(b, pcm)
	s.blocks = append(s.blocks, b)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPipelineSlicesBlocks(t *testing.T) {
	mic := &fakeMic{}
	sink := &recordingSink{}
	p := capture.NewPipeline(mic, sink, capture.WithBlockSize(100))

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 250 samples in uneven batches makes two full blocks plus a remainder.
	mic.feed(make([]float32, 70))
	mic.feed(make([]float32, 70))
	mic.feed(make([]float32, 110))

	waitFor(t, func() bool { return sink.count() == 2 })
	for i, b := range sink.blocks {
		if len(b) != 200 {
			t.Errorf("block %d size = %d bytes, want 200", i, len(b))
		}
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// The 50-sample remainder is discarded, not flushed.
	if got := sink.count(); got != 2 {
		t.Errorf("blocks after stop = %d, want 2", got)
	}
}

func TestPipelineEncodesPCM(t *testing.T) {
	mic := &fakeMic{}
	sink := &recordingSink{}
	p := capture.NewPipeline(mic, sink, capture.WithBlockSize(4))

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	mic.feed([]float32{1, -1, 0, 0.5})
	waitFor(t, func() bool { return sink.count() == 1 })

	want := []byte{0xff, 0x7f, 0x00, 0x80, 0x00, 0x00, 0x00, 0x40}
	got := sink.blocks[0]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("block bytes = %x, want %x", got, want)
		}
	}
}

func TestPipelineContinuesOnSinkError(t *testing.T) {
	mic := &fakeMic{}
	sink := &recordingSink{err: errors.New("session gone")}
	p := capture.NewPipeline(mic, sink, capture.WithBlockSize(10))

	var sends int
	var mu sync.Mutex
	p.SetBlockObserver(func() {
		mu.Lock()
		sends++
		mu.Unlock()
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	mic.feed(make([]float32, 30))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sends == 3
	})

	// The sink rejected everything; the failing sends must not have stalled
	// the pipeline or recorded blocks.
	if got := sink.count(); got != 0 {
		t.Errorf("recorded blocks = %d, want 0", got)
	}
}

func TestPipelineStopIdempotent(t *testing.T) {
	mic := &fakeMic{}
	p := capture.NewPipeline(mic, &recordingSink{})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if mic.stops != 1 {
		t.Errorf("device stops = %d, want 1", mic.stops)
	}
}
