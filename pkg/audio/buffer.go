package audio

import "time"

// Buffer is decoded audio ready for output-device playback. It interprets a
// raw PCM byte payload as little-endian 16-bit signed samples at a declared
// sample rate. A Buffer is owned exclusively by whichever scheduled output
// node plays it and is discarded when playback completes.
//
// Buffers are never resampled: the declared rate is carried through to the
// output subsystem, which tolerates mismatches against the device's native
// rate rather than correcting them here.
type Buffer struct {
	pcm        []byte
	sampleRate int
	channels   int
}

// NewBuffer builds a Buffer from raw 16-bit PCM bytes at the declared sample
// rate. channels <= 0 defaults to mono. It fails with a [*DecodeError] if the
// byte length is not a whole multiple of the sample width times the channel
// count.
func NewBuffer(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		channels = 1
	}
	if sampleRate <= 0 {
		return nil, &DecodeError{Reason: "sample rate must be positive"}
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, &DecodeError{Reason: "pcm byte length is not a multiple of the frame size"}
	}
	return &Buffer{pcm: pcm, sampleRate: sampleRate, channels: channels}, nil
}

// PCM returns the raw little-endian 16-bit sample data. The returned slice is
// shared, not copied; callers must not mutate it.
func (b *Buffer) PCM() []byte { return b.pcm }

// SampleRate returns the declared sample rate in Hz.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// Channels returns the channel count.
func (b *Buffer) Channels() int { return b.channels }

// Frames returns the number of sample frames: byte length / 2 / channels.
func (b *Buffer) Frames() int {
	return len(b.pcm) / 2 / b.channels
}

// Duration returns the playing time of the buffer at its declared rate.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.sampleRate)
}
