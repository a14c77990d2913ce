package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/voxtrace/voxtrace/pkg/audio"
)

var _ Device = (*MalgoDevice)(nil)

// MalgoDevice captures from the default microphone via malgo (miniaudio).
type MalgoDevice struct {
	sampleRate int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	scratch []float32
	started bool
}

// NewMalgoDevice prepares a capture device at the given sample rate, mono.
// The underlying device is not opened until Start.
func NewMalgoDevice(sampleRate int) *MalgoDevice {
	return &MalgoDevice{sampleRate: sampleRate}
}

// Start opens the default microphone and begins delivering frames.
func (d *MalgoDevice) Start(onFrame func(frame audio.Frame)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("capture: already started")
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return fmt.Errorf("capture: init context: %w", err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = 1
	devCfg.SampleRate = uint32(d.sampleRate)
	devCfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			onFrame(audio.Frame{
				Samples:    d.decode(input, int(frameCount)),
				SampleRate: d.sampleRate,
			})
		},
	}
	dev, err := malgo.InitDevice(ctx.Context, devCfg, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("capture: init device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("capture: start device: %w", err)
	}

	d.ctx = ctx
	d.device = dev
	d.started = true
	return nil
}

// decode reinterprets malgo's raw f32le bytes. The returned slice is reused
// between callbacks.
func (d *MalgoDevice) decode(input []byte, frames int) []float32 {
	if cap(d.scratch) < frames {
		d.scratch = make([]float32, frames)
	}
	out := d.scratch[:frames]
	for i := range out {
		bits := binary.LittleEndian.Uint32(input[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// Stop halts capture and tears down the malgo context.
func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false

	d.device.Stop()
	d.device.Uninit()
	d.device = nil
	d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	return nil
}
