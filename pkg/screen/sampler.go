package screen

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// Defaults for the sampler. One frame a second keeps the session aware of
// the screen without flooding the uplink.
const (
	DefaultInterval    = time.Second
	DefaultMaxWidth    = 1280
	DefaultJPEGQuality = 70
)

// Sink receives encoded frames from the sampler.
type Sink interface {
	SendImage(jpeg []byte) error
}

// SamplerOption configures a [Sampler].
type SamplerOption func(*Sampler)

// WithInterval sets the capture period.
func WithInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) { s.interval = d }
}

// WithMaxWidth caps the encoded frame width; taller frames are scaled down
// preserving aspect ratio.
func WithMaxWidth(w int) SamplerOption {
	return func(s *Sampler) { s.maxWidth = w }
}

// WithJPEGQuality sets the encoder quality, 1 to 100.
func WithJPEGQuality(q int) SamplerOption {
	return func(s *Sampler) { s.quality = q }
}

// WithSamplerLogger sets the sampler logger.
func WithSamplerLogger(log *slog.Logger) SamplerOption {
	return func(s *Sampler) { s.log = log }
}

// Sampler periodically grabs the screen, downscales and JPEG-encodes the
// frame, and hands it to the sink. A failed grab or send skips that tick;
// the sampler keeps running.
type Sampler struct {
	grabber  Grabber
	sink     Sink
	interval time.Duration
	maxWidth int
	quality  int
	log      *slog.Logger
	onFrame  func()

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSampler wires grabber to sink.
func NewSampler(grabber Grabber, sink Sink, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		grabber:  grabber,
		sink:     sink,
		interval: DefaultInterval,
		maxWidth: DefaultMaxWidth,
		quality:  DefaultJPEGQuality,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFrameObserver registers a callback invoked after each successful send.
// Used for metrics.
func (s *Sampler) SetFrameObserver(fn func()) { s.onFrame = fn }

// Start begins sampling. The first grab happens synchronously so permission
// problems surface as an error here rather than as silent skipped ticks.
func (s *Sampler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if _, err := s.grabber.Grab(); err != nil {
		return fmt.Errorf("screen share unavailable: %w", err)
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.started = true
	go s.run(s.stop, s.done)
	return nil
}

func (s *Sampler) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	img, err := s.grabber.Grab()
	if err != nil {
		s.log.Warn("screen grab failed, skipping frame", "error", err)
		return
	}
	encoded, err := s.encode(img)
	if err != nil {
		s.log.Warn("frame encode failed, skipping frame", "error", err)
		return
	}
	if err := s.sink.SendImage(encoded); err != nil {
		s.log.Warn("frame dropped", "error", err, "bytes", len(encoded))
		return
	}
	if s.onFrame != nil {
		s.onFrame()
	}
}

func (s *Sampler) encode(img *image.RGBA) ([]byte, error) {
	var src image.Image = img
	b := img.Bounds()
	if s.maxWidth > 0 && b.Dx() > s.maxWidth {
		h := b.Dy() * s.maxWidth / b.Dx()
		dst := image.NewRGBA(image.Rect(0, 0, s.maxWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		src = dst
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Stop halts sampling and waits for the loop to exit. Idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	close(s.stop)
	<-s.done
}
