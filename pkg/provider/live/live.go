// Package live defines the provider abstraction for bidirectional realtime
// speech sessions. A session streams microphone audio and screen frames up
// and receives synthesized speech back, with the remote endpoint handling
// speech detection and barge-in.
package live

import "context"

// SessionConfig carries the per-session parameters sent at connection time.
type SessionConfig struct {
	// Voice selects the provider's prebuilt voice. Empty means the
	// provider default.
	Voice string

	// Instruction is the system prompt establishing the tutoring persona
	// and the code under discussion.
	Instruction string
}

// Handler receives session events. All methods are invoked sequentially from
// the session's receive goroutine; implementations must not block for long.
type Handler interface {
	// HandleOpen is called once when the remote endpoint acknowledges the
	// session setup. Audio sent before this point may be dropped upstream.
	HandleOpen()

	// HandleAudio is called for each inbound speech chunk, raw 16-bit PCM
	// at the provider's output rate.
	HandleAudio(pcm []byte)

	// HandleInterrupted is called when the remote endpoint detects the
	// user speaking over model playback. Queued output audio is stale and
	// must be discarded.
	HandleInterrupted()

	// HandleClose is called once when the session terminates for any
	// reason other than a local Close. err carries the cause.
	HandleClose(err error)
}

// Session is a live connection. Send methods are safe for concurrent use and
// fail once the session is closed.
type Session interface {
	// SendAudio streams a block of 16-bit PCM microphone audio.
	SendAudio(pcm []byte) error

	// SendImage streams a JPEG-encoded screen frame.
	SendImage(jpeg []byte) error

	// SendText injects a user text turn, for typed questions alongside
	// speech.
	SendText(text string) error

	// Close terminates the session. Idempotent. A local Close does not
	// trigger HandleClose.
	Close() error
}

// Provider creates live sessions.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig, h Handler) (Session, error)
}
