// Package gateway defines the contract between the pipeline and an
// upstream quote source. Adapters normalize whatever the source
// delivers into md.Tick values and publish them on the event bus; the
// rest of the pipeline never sees source-specific shapes.
package gateway

import "context"

// Adapter is one upstream quote source under supervisor control.
type Adapter interface {
	// Start brings the session up. Implementations keep their own
	// goroutines and reconnect on their own; Start returning nil means
	// the adapter is trying, not that a session is live.
	Start(ctx context.Context) error

	// Stop tears the session down and joins the adapter's goroutines.
	Stop(ctx context.Context) error

	// SubscribeMarketData requests quote delivery for the given
	// instruments. The contract registry issues this once, after both
	// gateway sessions are ready.
	SubscribeMarketData(instrumentIDs []string) error
}
