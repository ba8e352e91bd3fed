package md

import (
	"time"
)

// Contract is one tradable instrument's registry entry. Contracts are
// allocated in a fixed-size slab at startup and referred to by index;
// only Subscribed and LastTickAt change after load.
type Contract struct {
	InstrumentID string
	ExchangeID   Exchange
	Subscribed   bool
	LastTickAt   time.Time
}
