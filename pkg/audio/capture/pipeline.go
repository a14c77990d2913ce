package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxtrace/voxtrace/pkg/audio"
)

// DefaultBlockSize is the number of samples per upstream audio block,
// 128ms at 16kHz.
const DefaultBlockSize = 2048

// Sink receives fixed-size PCM blocks from the pipeline.
type Sink interface {
	SendAudio(pcm []byte) error
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithBlockSize overrides the number of samples per block.
func WithBlockSize(samples int) PipelineOption {
	return func(p *Pipeline) { p.blockSize = samples }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

// Pipeline reads the microphone, accumulates samples into fixed-size blocks,
// encodes each block as 16-bit PCM and hands it to the sink.
//
// Sends are fire and forget: a sink error is logged and the block dropped,
// capture continues. The real-time capture callback never blocks on the
// sink; sample batches cross to a worker goroutine through a buffered
// channel and are discarded if the worker falls behind.
type Pipeline struct {
	dev       Device
	sink      Sink
	blockSize int
	log       *slog.Logger
	onBlock   func()

	mu      sync.Mutex
	started bool
	batches chan []float32
	done    chan struct{}
}

// NewPipeline wires dev to sink.
func NewPipeline(dev Device, sink Sink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		dev:       dev,
		sink:      sink,
		blockSize: DefaultBlockSize,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetBlockObserver registers a callback invoked after each block send
// attempt. Used for metrics.
func (p *Pipeline) SetBlockObserver(fn func()) { p.onBlock = fn }

// Start begins capture. Blocks only until the device is running.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("capture pipeline: already started")
	}

	p.batches = make(chan []float32, 64)
	p.done = make(chan struct{})
	go p.run(p.batches, p.done)

	if err := p.dev.Start(p.onFrame); err != nil {
		close(p.batches)
		<-p.done
		return err
	}
	p.started = true
	return nil
}

// onFrame runs on the device's real-time thread. The frame's sample slice is
// device-owned, so it is copied before crossing to the worker.
func (p *Pipeline) onFrame(frame audio.Frame) {
	batch := make([]float32, len(frame.Samples))
	copy(batch, frame.Samples)
	select {
	case p.batches <- batch:
	default:
		// Worker is stalled; dropping input beats blocking the device.
	}
}

func (p *Pipeline) run(batches chan []float32, done chan struct{}) {
	defer close(done)

	pending := make([]float32, 0, p.blockSize*2)
	for batch := range batches {
		pending = append(pending, batch...)
		off := 0
		for len(pending)-off >= p.blockSize {
			p.send(pending[off : off+p.blockSize])
			off += p.blockSize
		}
		if off > 0 {
			pending = pending[:copy(pending, pending[off:])]
		}
	}
}

func (p *Pipeline) send(block []float32) {
	pcm := audio.Float32ToPCM16(block)
	if err := p.sink.SendAudio(pcm); err != nil {
		p.log.Warn("audio block dropped", "error", err, "samples", len(block))
	}
	if p.onBlock != nil {
		p.onBlock()
	}
}

// Stop halts capture and waits for the worker to drain. Idempotent. Samples
// short of a full block are discarded.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false

	err := p.dev.Stop()
	close(p.batches)
	<-p.done
	return err
}
