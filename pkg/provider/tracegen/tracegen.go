// Package tracegen defines the provider abstraction for generating execution
// traces from source code. A trace is a JSON document of ordered steps, each
// tying a line of code to a short narration of what executing it does.
package tracegen

import "context"

// Provider generates an execution trace for a piece of code.
type Provider interface {
	// GenerateTrace returns the raw trace document for the given source.
	// language is an informal hint such as "python" or "go".
	GenerateTrace(ctx context.Context, language, source string) (string, error)
}
