// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand controlled sessions to the
// code under test. Use Session to inspect the media the client sent and to
// drive the registered live.Handler from the test.
//
// Example:
//
//	sess := &mock.Session{}
//	p := &mock.Provider{Session: sess}
//	// ... connect the code under test, then:
//	sess.Handler().HandleAudio(pcm)
package mock

import (
	"context"
	"sync"

	"github.com/voxtrace/voxtrace/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the Session returned by Connect. If nil, Connect returns a
	// new default Session.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// OpenOnConnect, when true, fires HandleOpen synchronously inside
	// Connect, saving tests the ceremony of acking setup themselves.
	OpenOnConnect bool

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call, wires the handler into the session and returns
// Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig, h live.Handler) (live.Session, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		p.mu.Unlock()
		return nil, p.ConnectErr
	}
	sess := p.Session
	if sess == nil {
		sess = &Session{}
		p.Session = sess
	}
	open := p.OpenOnConnect
	p.mu.Unlock()

	sess.setHandler(h)
	if open {
		h.HandleOpen()
	}
	return sess, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// Session is a mock implementation of live.Session. It records every send
// and exposes the handler registered at Connect so tests can push events.
type Session struct {
	mu      sync.Mutex
	handler live.Handler

	// --- Configurable errors ---

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendImageErr, if non-nil, is returned by every SendImage call.
	SendImageErr error

	// SendTextErr, if non-nil, is returned by every SendText call.
	SendTextErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// AudioSent records a copy of every SendAudio chunk in order.
	AudioSent [][]byte

	// ImagesSent records a copy of every SendImage frame in order.
	ImagesSent [][]byte

	// TextSent records every SendText string in order.
	TextSent []string

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

func (s *Session) setHandler(h live.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Handler returns the live.Handler registered by the last Connect.
// Thread-safe. Tests use it to simulate server events.
func (s *Session) Handler() live.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.AudioSent = append(s.AudioSent, cp)
	return s.SendAudioErr
}

// SendImage records the call and returns SendImageErr.
func (s *Session) SendImage(jpeg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(jpeg))
	copy(cp, jpeg)
	s.ImagesSent = append(s.ImagesSent, cp)
	return s.SendImageErr
}

// SendText records the call and returns SendTextErr.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TextSent = append(s.TextSent, text)
	return s.SendTextErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// AudioSentCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) AudioSentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.AudioSent)
}

// ImagesSentCount returns the number of SendImage calls. Thread-safe.
func (s *Session) ImagesSentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ImagesSent)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioSent = nil
	s.ImagesSent = nil
	s.TextSent = nil
	s.CloseCallCount = 0
}

// Ensure Session implements live.Session at compile time.
var _ live.Session = (*Session)(nil)
