package playback

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/voxtrace/voxtrace/pkg/audio"
)

var _ Device = (*OtoDevice)(nil)

// OtoDevice plays PCM buffers through the system output using oto. It holds
// one long-lived oto context and creates a short-lived player per buffer,
// started by a timer so scheduled instants are honored.
type OtoDevice struct {
	ctx        *oto.Context
	sampleRate int
	channels   int

	mu      sync.Mutex
	closed  bool
	handles map[*otoHandle]struct{}
}

// NewOtoDevice opens the default output device at the given rate and channel
// count. Signed 16-bit little-endian throughout.
func NewOtoDevice(sampleRate, channels int) (*OtoDevice, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	<-ready
	return &OtoDevice{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		handles:    make(map[*otoHandle]struct{}),
	}, nil
}

// Now returns the wall clock. time.Time carries a monotonic reading, which
// is what the scheduler arithmetic relies on.
func (d *OtoDevice) Now() time.Time { return time.Now() }

// Play schedules buf to start at the given instant.
func (d *OtoDevice) Play(buf *audio.Buffer, at time.Time, done func()) (Handle, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("play: device closed")
	}

	h := &otoHandle{dev: d, done: done}
	d.handles[h] = struct{}{}
	d.mu.Unlock()

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	h.startTimer = time.AfterFunc(delay, func() {
		h.start(buf)
	})
	return h, nil
}

// Close stops all active playback and releases the device. oto contexts have
// no close of their own; stopping the players silences output.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	hs := make([]*otoHandle, 0, len(d.handles))
	for h := range d.handles {
		hs = append(hs, h)
	}
	d.handles = nil
	d.mu.Unlock()

	for _, h := range hs {
		h.Stop()
	}
	return d.ctx.Suspend()
}

func (d *OtoDevice) forget(h *otoHandle) {
	d.mu.Lock()
	if d.handles != nil {
		delete(d.handles, h)
	}
	d.mu.Unlock()
}

type otoHandle struct {
	dev  *OtoDevice
	done func()

	mu         sync.Mutex
	stopped    bool
	startTimer *time.Timer
	endTimer   *time.Timer
	player     *oto.Player
}

func (h *otoHandle) start(buf *audio.Buffer) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	p := h.dev.ctx.NewPlayer(bytes.NewReader(buf.PCM()))
	h.player = p
	h.endTimer = time.AfterFunc(buf.Duration(), h.finish)
	h.mu.Unlock()

	p.Play()
}

// finish fires when the buffer has had time to drain. The completion
// callback runs only if the handle was not stopped first.
func (h *otoHandle) finish() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	p := h.player
	h.mu.Unlock()

	if p != nil {
		p.Close()
	}
	h.dev.forget(h)
	if h.done != nil {
		h.done()
	}
}

// Stop halts output immediately. The completion callback does not fire.
func (h *otoHandle) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	if h.startTimer != nil {
		h.startTimer.Stop()
	}
	if h.endTimer != nil {
		h.endTimer.Stop()
	}
	p := h.player
	h.mu.Unlock()

	if p != nil {
		p.Pause()
		p.Close()
	}
	h.dev.forget(h)
}
