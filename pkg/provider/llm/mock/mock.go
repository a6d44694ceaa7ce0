// Package mock provides a mock llm.Provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cadence/pkg/provider/llm"
)

// Provider is a configurable mock implementation of llm.Provider.
type Provider struct {
	// Response is returned by Complete when CompleteFunc is nil.
	Response string
	// Err is returned by Complete when CompleteFunc is nil.
	Err error
	// CompleteFunc, if set, overrides the canned Response/Err pair.
	CompleteFunc func(ctx context.Context, req llm.Request) (string, error)

	mu    sync.Mutex
	calls []llm.Request
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	if p.Err != nil {
		return "", p.Err
	}
	return p.Response, nil
}

// Close implements llm.Provider.
func (p *Provider) Close() error {
	return nil
}

// Calls returns a copy of all requests seen so far.
func (p *Provider) Calls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.calls))
	copy(out, p.calls)
	return out
}
