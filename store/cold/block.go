package cold

import (
	"time"

	"github.com/openfutures/tickd/md"
)

// tickBlock is the on-disk tick partition: one slice per column, all
// the same length. Column-major layout compresses far better than row
// structs because each column's values are self-similar.
type tickBlock struct {
	TradingDay         []string
	ExchangeID         []string
	LastPrice          []float64
	PreSettlementPrice []float64
	PreClosePrice      []float64
	PreOpenInterest    []int64
	OpenPrice          []float64
	HighestPrice       []float64
	LowestPrice        []float64
	Volume             []int64
	Turnover           []float64
	OpenInterest       []int64
	ClosePrice         []float64
	SettlementPrice    []float64
	UpperLimitPrice    []float64
	LowerLimitPrice    []float64
	PreDelta           []float64
	CurrDelta          []float64
	UpdateTime         []string
	UpdateMillisec     []int
	BidPrice           [][md.DepthLevels]float64
	BidVolume          [][md.DepthLevels]int64
	AskPrice           [][md.DepthLevels]float64
	AskVolume          [][md.DepthLevels]int64
	AveragePrice       []float64
	ActionDay          []string
	InstrumentID       []string
	ExchangeInstID     []string
	BandingUpperPrice  []float64
	BandingLowerPrice  []float64
	Timestamp          []time.Time
}

func buildTickBlock(rows []*md.Tick) *tickBlock {
	b := &tickBlock{}
	for _, t := range rows {
		b.TradingDay = append(b.TradingDay, t.TradingDay)
		b.ExchangeID = append(b.ExchangeID, t.ExchangeID)
		b.LastPrice = append(b.LastPrice, t.LastPrice)
		b.PreSettlementPrice = append(b.PreSettlementPrice, t.PreSettlementPrice)
		b.PreClosePrice = append(b.PreClosePrice, t.PreClosePrice)
		b.PreOpenInterest = append(b.PreOpenInterest, t.PreOpenInterest)
		b.OpenPrice = append(b.OpenPrice, t.OpenPrice)
		b.HighestPrice = append(b.HighestPrice, t.HighestPrice)
		b.LowestPrice = append(b.LowestPrice, t.LowestPrice)
		b.Volume = append(b.Volume, t.Volume)
		b.Turnover = append(b.Turnover, t.Turnover)
		b.OpenInterest = append(b.OpenInterest, t.OpenInterest)
		b.ClosePrice = append(b.ClosePrice, t.ClosePrice)
		b.SettlementPrice = append(b.SettlementPrice, t.SettlementPrice)
		b.UpperLimitPrice = append(b.UpperLimitPrice, t.UpperLimitPrice)
		b.LowerLimitPrice = append(b.LowerLimitPrice, t.LowerLimitPrice)
		b.PreDelta = append(b.PreDelta, t.PreDelta)
		b.CurrDelta = append(b.CurrDelta, t.CurrDelta)
		b.UpdateTime = append(b.UpdateTime, t.UpdateTime)
		b.UpdateMillisec = append(b.UpdateMillisec, t.UpdateMillisec)
		b.BidPrice = append(b.BidPrice, t.BidPrice)
		b.BidVolume = append(b.BidVolume, t.BidVolume)
		b.AskPrice = append(b.AskPrice, t.AskPrice)
		b.AskVolume = append(b.AskVolume, t.AskVolume)
		b.AveragePrice = append(b.AveragePrice, t.AveragePrice)
		b.ActionDay = append(b.ActionDay, t.ActionDay)
		b.InstrumentID = append(b.InstrumentID, t.InstrumentID)
		b.ExchangeInstID = append(b.ExchangeInstID, t.ExchangeInstID)
		b.BandingUpperPrice = append(b.BandingUpperPrice, t.BandingUpperPrice)
		b.BandingLowerPrice = append(b.BandingLowerPrice, t.BandingLowerPrice)
		b.Timestamp = append(b.Timestamp, t.Timestamp)
	}
	return b
}

func (b *tickBlock) rows() []*md.Tick {
	out := make([]*md.Tick, len(b.Timestamp))
	for i := range b.Timestamp {
		out[i] = &md.Tick{
			TradingDay:         b.TradingDay[i],
			ExchangeID:         b.ExchangeID[i],
			LastPrice:          b.LastPrice[i],
			PreSettlementPrice: b.PreSettlementPrice[i],
			PreClosePrice:      b.PreClosePrice[i],
			PreOpenInterest:    b.PreOpenInterest[i],
			OpenPrice:          b.OpenPrice[i],
			HighestPrice:       b.HighestPrice[i],
			LowestPrice:        b.LowestPrice[i],
			Volume:             b.Volume[i],
			Turnover:           b.Turnover[i],
			OpenInterest:       b.OpenInterest[i],
			ClosePrice:         b.ClosePrice[i],
			SettlementPrice:    b.SettlementPrice[i],
			UpperLimitPrice:    b.UpperLimitPrice[i],
			LowerLimitPrice:    b.LowerLimitPrice[i],
			PreDelta:           b.PreDelta[i],
			CurrDelta:          b.CurrDelta[i],
			UpdateTime:         b.UpdateTime[i],
			UpdateMillisec:     b.UpdateMillisec[i],
			BidPrice:           b.BidPrice[i],
			BidVolume:          b.BidVolume[i],
			AskPrice:           b.AskPrice[i],
			AskVolume:          b.AskVolume[i],
			AveragePrice:       b.AveragePrice[i],
			ActionDay:          b.ActionDay[i],
			InstrumentID:       b.InstrumentID[i],
			ExchangeInstID:     b.ExchangeInstID[i],
			BandingUpperPrice:  b.BandingUpperPrice[i],
			BandingLowerPrice:  b.BandingLowerPrice[i],
			Timestamp:          b.Timestamp[i],
		}
	}
	return out
}

// barBlock is the on-disk bar partition, column-major like tickBlock.
type barBlock struct {
	BarType      []string
	TradingDay   []string
	UpdateTime   []string
	InstrumentID []string
	ExchangeID   []string
	Volume       []int64
	OpenInterest []int64
	OpenPrice    []float64
	HighestPrice []float64
	LowestPrice  []float64
	ClosePrice   []float64
	LastVolume   []int64
	Timestamp    []time.Time
}

func buildBarBlock(rows []*md.Bar) *barBlock {
	b := &barBlock{}
	for _, bar := range rows {
		b.BarType = append(b.BarType, bar.BarType)
		b.TradingDay = append(b.TradingDay, bar.TradingDay)
		b.UpdateTime = append(b.UpdateTime, bar.UpdateTime)
		b.InstrumentID = append(b.InstrumentID, bar.InstrumentID)
		b.ExchangeID = append(b.ExchangeID, bar.ExchangeID)
		b.Volume = append(b.Volume, bar.Volume)
		b.OpenInterest = append(b.OpenInterest, bar.OpenInterest)
		b.OpenPrice = append(b.OpenPrice, bar.OpenPrice)
		b.HighestPrice = append(b.HighestPrice, bar.HighestPrice)
		b.LowestPrice = append(b.LowestPrice, bar.LowestPrice)
		b.ClosePrice = append(b.ClosePrice, bar.ClosePrice)
		b.LastVolume = append(b.LastVolume, bar.LastVolume)
		b.Timestamp = append(b.Timestamp, bar.Timestamp)
	}
	return b
}

func (b *barBlock) rows() []*md.Bar {
	out := make([]*md.Bar, len(b.Timestamp))
	for i := range b.Timestamp {
		out[i] = &md.Bar{
			BarType:      b.BarType[i],
			TradingDay:   b.TradingDay[i],
			UpdateTime:   b.UpdateTime[i],
			InstrumentID: b.InstrumentID[i],
			ExchangeID:   b.ExchangeID[i],
			Volume:       b.Volume[i],
			OpenInterest: b.OpenInterest[i],
			OpenPrice:    b.OpenPrice[i],
			HighestPrice: b.HighestPrice[i],
			LowestPrice:  b.LowestPrice[i],
			ClosePrice:   b.ClosePrice[i],
			LastVolume:   b.LastVolume[i],
			Timestamp:    b.Timestamp[i],
		}
	}
	return out
}

// readTickBlock loads one partition as rows; missing files load empty.
func readTickBlock(path string) ([]*md.Tick, error) {
	var block tickBlock
	ok, err := readBlock(path, &block)
	if err != nil || !ok {
		return nil, err
	}
	return block.rows(), nil
}

func writeTickBlock(path string, rows []*md.Tick) error {
	return writeBlock(path, buildTickBlock(rows))
}

func readBarBlock(path string) ([]*md.Bar, error) {
	var block barBlock
	ok, err := readBlock(path, &block)
	if err != nil || !ok {
		return nil, err
	}
	return block.rows(), nil
}

func writeBarBlock(path string, rows []*md.Bar) error {
	return writeBlock(path, buildBarBlock(rows))
}
