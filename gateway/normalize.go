package gateway

import (
	"time"

	"github.com/openfutures/tickd/md"
)

// maxFloatSentinel is the "no value" marker some feeds put on price
// fields (DBL_MAX on the wire). Anything at or above it normalizes to
// zero.
const maxFloatSentinel = 1e308

// WireTick is the quote record as delivered by a feed, before
// normalization. Depth arrays may be shorter than the ladder; missing
// levels read as zero.
type WireTick struct {
	InstrumentID       string    `json:"instrument_id"`
	ExchangeID         string    `json:"exchange_id"`
	ExchangeInstID     string    `json:"exchange_inst_id"`
	TradingDay         string    `json:"trading_day"`
	ActionDay          string    `json:"action_day"`
	LastPrice          float64   `json:"last_price"`
	PreSettlementPrice float64   `json:"pre_settlement_price"`
	PreClosePrice      float64   `json:"pre_close_price"`
	PreOpenInterest    int64     `json:"pre_open_interest"`
	OpenPrice          float64   `json:"open_price"`
	HighestPrice       float64   `json:"highest_price"`
	LowestPrice        float64   `json:"lowest_price"`
	Volume             int64     `json:"volume"`
	Turnover           float64   `json:"turnover"`
	OpenInterest       int64     `json:"open_interest"`
	ClosePrice         float64   `json:"close_price"`
	SettlementPrice    float64   `json:"settlement_price"`
	UpperLimitPrice    float64   `json:"upper_limit_price"`
	LowerLimitPrice    float64   `json:"lower_limit_price"`
	PreDelta           float64   `json:"pre_delta"`
	CurrDelta          float64   `json:"curr_delta"`
	UpdateTime         string    `json:"update_time"` // "HH:MM:SS"
	UpdateMillisec     int       `json:"update_millisec"`
	BidPrice           []float64 `json:"bid_price"`
	BidVolume          []int64   `json:"bid_volume"`
	AskPrice           []float64 `json:"ask_price"`
	AskVolume          []int64   `json:"ask_volume"`
	AveragePrice       float64   `json:"average_price"`
	BandingUpperPrice  float64   `json:"banding_upper_price"`
	BandingLowerPrice  float64   `json:"banding_lower_price"`
}

// Normalize converts a wire record into the pipeline's tick: sentinel
// prices scrubbed to zero and the timestamp derived from action day +
// update time + millisecond in the exchange zone. A record without a
// parseable wall clock gets a zero timestamp and fails Tick.Valid.
func (w *WireTick) Normalize() *md.Tick {
	t := &md.Tick{
		TradingDay:         w.TradingDay,
		ExchangeID:         w.ExchangeID,
		LastPrice:          scrub(w.LastPrice),
		PreSettlementPrice: scrub(w.PreSettlementPrice),
		PreClosePrice:      scrub(w.PreClosePrice),
		PreOpenInterest:    w.PreOpenInterest,
		OpenPrice:          scrub(w.OpenPrice),
		HighestPrice:       scrub(w.HighestPrice),
		LowestPrice:        scrub(w.LowestPrice),
		Volume:             w.Volume,
		Turnover:           w.Turnover,
		OpenInterest:       w.OpenInterest,
		ClosePrice:         scrub(w.ClosePrice),
		SettlementPrice:    scrub(w.SettlementPrice),
		UpperLimitPrice:    scrub(w.UpperLimitPrice),
		LowerLimitPrice:    scrub(w.LowerLimitPrice),
		PreDelta:           scrub(w.PreDelta),
		CurrDelta:          scrub(w.CurrDelta),
		UpdateTime:         w.UpdateTime,
		UpdateMillisec:     w.UpdateMillisec,
		AveragePrice:       scrub(w.AveragePrice),
		ActionDay:          w.ActionDay,
		InstrumentID:       w.InstrumentID,
		ExchangeInstID:     w.ExchangeInstID,
		BandingUpperPrice:  scrub(w.BandingUpperPrice),
		BandingLowerPrice:  scrub(w.BandingLowerPrice),
		Timestamp:          w.timestamp(),
	}
	for i := 0; i < md.DepthLevels; i++ {
		if i < len(w.BidPrice) {
			t.BidPrice[i] = scrub(w.BidPrice[i])
		}
		if i < len(w.BidVolume) {
			t.BidVolume[i] = w.BidVolume[i]
		}
		if i < len(w.AskPrice) {
			t.AskPrice[i] = scrub(w.AskPrice[i])
		}
		if i < len(w.AskVolume) {
			t.AskVolume[i] = w.AskVolume[i]
		}
	}
	return t
}

// timestamp combines the calendar day and wall clock of the quote.
// ActionDay is the calendar day; TradingDay diverges from it during
// night sessions and is only a fallback.
func (w *WireTick) timestamp() time.Time {
	day := w.ActionDay
	if day == "" {
		day = w.TradingDay
	}
	if day == "" || w.UpdateTime == "" {
		return time.Time{}
	}
	ts, err := time.ParseInLocation("20060102 15:04:05", day+" "+w.UpdateTime, md.CST)
	if err != nil {
		return time.Time{}
	}
	return ts.Add(time.Duration(w.UpdateMillisec) * time.Millisecond)
}

func scrub(v float64) float64 {
	if v >= maxFloatSentinel {
		return 0
	}
	return v
}
