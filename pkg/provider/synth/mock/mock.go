// Package mock provides a test double for the synth.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxtrace/voxtrace/pkg/provider/synth"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice string
}

// Provider is a mock implementation of synth.Provider.
type Provider struct {
	mu sync.Mutex

	// PCM is returned by Synthesize when SynthesizeFn is nil.
	PCM []byte

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// SynthesizeFn, if non-nil, is invoked instead of the default
	// behavior. Useful for per-call results or blocking synthesis.
	SynthesizeFn func(ctx context.Context, text, voice string) ([]byte, error)

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns PCM, Err or delegates to
// SynthesizeFn.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	fn := p.SynthesizeFn
	pcm, err := p.PCM, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	if err != nil {
		return nil, err
	}
	return pcm, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Ensure Provider implements synth.Provider at compile time.
var _ synth.Provider = (*Provider)(nil)
