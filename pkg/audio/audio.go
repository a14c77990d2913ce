// Package audio provides the pure PCM sample codec and the audio data types
// shared by the capture and playback pipelines.
//
// Two representations flow through the system:
//
//   - [Frame] — a block of floating-point microphone samples in [-1, 1],
//     produced by the capture device at the input rate.
//   - [Buffer] — decoded 16-bit PCM ready for output-device playback,
//     produced from a received network payload at the declared output rate.
//
// All conversion functions are stateless and safe for concurrent use. The
// only failure mode is malformed-length input, reported as a [*DecodeError] —
// payloads are never silently truncated.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DecodeError reports a malformed audio payload: a byte length that is not a
// whole multiple of the sample width, or invalid wire-encoded text.
type DecodeError struct {
	// Reason describes what was malformed.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: %s: %v", e.Reason, e.Err)
	}
	return "audio: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// Frame is one block of captured microphone samples. Frames are created per
// capture callback and consumed immediately; they are not retained.
type Frame struct {
	// Samples holds floating-point PCM in [-1, 1].
	Samples []float32

	// SampleRate in Hz at which the samples were captured.
	SampleRate int
}

// Duration returns the playing time of the frame at its capture rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Float32ToPCM16 converts floating-point samples in [-1, 1] to little-endian
// 16-bit signed PCM. Samples are scaled by 32768 and rounded to the nearest
// step, with the positive rail clamped to 32767; the scale matches the
// decoder's divisor, so a round trip never drifts by more than one
// quantization step (1/32768).
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(math.Round(float64(s) * 32768))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat32 converts little-endian 16-bit signed PCM back to
// floating-point samples by dividing by 32768. An odd byte length fails with
// a [*DecodeError] rather than truncating the trailing byte.
func PCM16ToFloat32(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("pcm byte length %d is not a multiple of the sample width", len(pcm))}
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// EncodeWire converts raw bytes to the text-safe transport encoding used for
// media payloads on the wire.
func EncodeWire(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeWire converts a text-safe wire payload back to raw bytes. Malformed
// input fails with a [*DecodeError].
func DecodeWire(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Reason: "malformed wire encoding", Err: err}
	}
	return data, nil
}
