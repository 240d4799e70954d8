// Package mock provides a test double for the slots package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/agalue/jarvis-voice/pkg/provider/slots"
)

// ExtractCall records a single invocation of Provider.Extract.
type ExtractCall struct {
	Text   string
	Labels []string
}

// Provider is a mock implementation of slots.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Extract call.
	Result []slots.Span

	// Err, if non-nil, is returned by every Extract call.
	Err error

	// Calls records every call to Extract in order.
	Calls []ExtractCall
}

// Extract records the call and returns Result, Err.
func (p *Provider) Extract(_ context.Context, text string, labels []string) ([]slots.Span, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(labels))
	copy(cp, labels)
	p.Calls = append(p.Calls, ExtractCall{Text: text, Labels: cp})
	return p.Result, p.Err
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements slots.Provider at compile time.
var _ slots.Provider = (*Provider)(nil)
