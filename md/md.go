// Package md defines the market-data model shared across the pipeline:
// ticks, bars, contracts, intervals, exchanges, and write batches.
//
// Values in this package are plain data. Ticks are never mutated after
// the gateway publishes them; bars are mutated only by their owning
// generator until closed.
package md

import (
	"time"

	"github.com/openfutures/tickd/errors"
)

// CST is the exchange-local zone for all supported exchanges (UTC+8).
// A fixed zone avoids a tzdata dependency at runtime.
var CST = time.FixedZone("CST", 8*60*60)

// Exchange is an exchange identifier, e.g. "SHFE".
type Exchange string

// Supported exchanges.
const (
	CFFEX Exchange = "CFFEX" // China Financial Futures Exchange
	SHFE  Exchange = "SHFE"  // Shanghai Futures Exchange
	CZCE  Exchange = "CZCE"  // Zhengzhou Commodity Exchange
	DCE   Exchange = "DCE"   // Dalian Commodity Exchange
	INE   Exchange = "INE"   // Shanghai International Energy Exchange
	GFEX  Exchange = "GFEX"  // Guangzhou Futures Exchange
)

var exchanges = map[Exchange]bool{
	CFFEX: true,
	SHFE:  true,
	CZCE:  true,
	DCE:   true,
	INE:   true,
	GFEX:  true,
}

// ParseExchange validates an exchange id string.
func ParseExchange(s string) (Exchange, error) {
	ex := Exchange(s)
	if !exchanges[ex] {
		return "", errors.Wrapf(errors.ErrUnknownExchange, "%q", s)
	}
	return ex, nil
}

// Exchanges returns the supported exchange ids in stable order.
func Exchanges() []Exchange {
	return []Exchange{CFFEX, SHFE, CZCE, DCE, INE, GFEX}
}
