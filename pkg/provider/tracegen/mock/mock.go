// Package mock provides a test double for the tracegen.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxtrace/voxtrace/pkg/provider/tracegen"
)

// GenerateCall records a single invocation of Provider.GenerateTrace.
type GenerateCall struct {
	Language string
	Source   string
}

// Provider is a mock implementation of tracegen.Provider.
type Provider struct {
	mu sync.Mutex

	// Trace is returned by GenerateTrace.
	Trace string

	// Err, if non-nil, is returned by every GenerateTrace call.
	Err error

	// Calls records every call to GenerateTrace in order.
	Calls []GenerateCall
}

// GenerateTrace records the call and returns Trace, Err.
func (p *Provider) GenerateTrace(_ context.Context, language, source string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, GenerateCall{Language: language, Source: source})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Trace, nil
}

// Ensure Provider implements tracegen.Provider at compile time.
var _ tracegen.Provider = (*Provider)(nil)
