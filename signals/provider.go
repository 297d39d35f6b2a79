// Package signals sources trade signals for the agent loop. Providers
// are interchangeable: the pipeline neither knows nor cares whether a
// signal came from a stub generator, a recorded session, or a live
// strategy feed.
package signals

import (
	"context"

	"github.com/rustyeddy/agent/trade"
)

// Provider hands the agent loop whatever signals are pending at this
// tick. An empty slice is a quiet tick, not an error.
type Provider interface {
	Pending(ctx context.Context) ([]trade.Signal, error)
}

// None is the provider for an agent that only runs flows.
type None struct{}

func (None) Pending(ctx context.Context) ([]trade.Signal, error) {
	return nil, nil
}
