// Package playback provides the output-device abstraction and the gapless
// playback scheduler that drives it.
//
// The [Scheduler] is the single writer of all playback timing state: it owns
// the monotonic next-start timestamp and the set of active handles. Both the
// live conversation path and the narration path schedule through it, though
// caller discipline keeps the two from being active at the same time.
package playback

import (
	"time"

	"github.com/voxtrace/voxtrace/pkg/audio"
)

// Handle is a single in-flight output unit on a [Device]. Stop halts output
// immediately without invoking the completion callback; it is safe to call
// more than once.
type Handle interface {
	Stop()
}

// Device is an audio output device capable of starting buffer playback at a
// scheduled instant on its own clock.
//
// The done callback passed to Play fires exactly once when the buffer plays
// to natural completion, on an internal goroutine. It must NOT fire when the
// handle is stopped — the scheduler distinguishes natural completion from
// force-stop by that contract.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Now returns the current reading of the device's monotonic clock.
	Now() time.Time

	// Play schedules buf to start at the given instant (immediately if the
	// instant has passed) and returns a handle for force-stopping it.
	Play(buf *audio.Buffer, at time.Time, done func()) (Handle, error)

	// Close releases the device. Playback handles still active are stopped.
	Close() error
}
