// Package gemini provides a Gemini-backed trace generator using the
// generateContent REST API. It implements the tracegen.Provider interface.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voxtrace/voxtrace/pkg/provider/tracegen"
)

var _ tracegen.Provider = (*Provider)(nil)

const (
	defaultModel   = "gemini-2.0-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com"
)

const tracePrompt = `You are a code tutor. Produce an execution trace of the
following %s program as a JSON object with this shape:

{"steps": [{"line": <1-based line number>, "narration": "<one spoken sentence
describing what executing this line does, including concrete values>",
"state": {<variable name>: <value after this line>}}]}

Trace the program in execution order, not source order. Unroll loops up to
three iterations, then summarize. Respond with JSON only.

Program:
%s`

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Gemini model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements tracegen.Provider backed by the Gemini generateContent API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Gemini trace generator. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini tracegen: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateTrace performs one generateContent round trip and returns the text
// of the first candidate.
func (p *Provider) GenerateTrace(ctx context.Context, language, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", errors.New("gemini tracegen: source must not be empty")
	}
	if language == "" {
		language = "unknown language"
	}

	reqBody := generateRequest{
		Contents: []content{
			{Parts: []part{{Text: fmt.Sprintf(tracePrompt, language, source)}}},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini tracegen: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini tracegen: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini tracegen: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini tracegen: unexpected status %d: %s", resp.StatusCode, msg)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("gemini tracegen: decode response: %w", err)
	}

	for _, cand := range gr.Candidates {
		for _, pt := range cand.Content.Parts {
			if pt.Text != "" {
				return pt.Text, nil
			}
		}
	}
	return "", errors.New("gemini tracegen: response contained no text")
}
