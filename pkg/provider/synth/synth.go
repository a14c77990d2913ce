// Package synth defines the one-shot speech synthesis abstraction used for
// trace narration, where each piece of text becomes a single block of speech
// outside any live session.
package synth

import "context"

// Provider turns text into speech in a single round trip.
type Provider interface {
	// Synthesize returns the spoken form of text as raw 16-bit PCM at
	// 24 kHz mono. voice selects the provider's prebuilt voice; empty
	// means the provider default.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
