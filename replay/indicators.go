// Package replay derives data from recorded days: technical indicators over
// the trade stream and a msgpack export for downstream consumers.
package replay

import (
	movingaverage "github.com/RobinUS2/golang-moving-average"

	"github.com/dimitryors/pulsedb"
)

const defaultWindow = 20

// TechnicalIndicators can be used to calculate technical indicators over one
// recorded day.
type TechnicalIndicators interface {
	// SMA calculates the simple moving average of trade prices.
	SMA(params SMAParams) (*SMA, error)
	// VWAP calculates the volume-weighted average trade price.
	VWAP(params VWAPParams) (*VWAP, error)
}

type indicators struct {
	// mockable in tests
	events func() ([]pulsedb.Event, error)
}

// IndicatorsOpts contains options for NewIndicators.
type IndicatorsOpts struct {
	Reader *pulsedb.Reader
}

// NewIndicators returns indicators computed over the given reader's events.
func NewIndicators(opts IndicatorsOpts) TechnicalIndicators {
	return &indicators{events: opts.Reader.Events}
}

// SMAParams contains parameters for the simple moving average.
type SMAParams struct {
	// Window is the number of trades averaged. Default 20.
	Window int
	// Start and End restrict the trades by timestamp when non-zero.
	Start int64
	End   int64
}

// SMA is the simple moving average of the last Window trade prices, along
// with the number of trades seen.
type SMA struct {
	Average float64
	Trades  int
}

func (i *indicators) SMA(params SMAParams) (*SMA, error) {
	if params.Window == 0 {
		params.Window = defaultWindow
	}
	ma := movingaverage.New(params.Window)
	count := 0
	if err := i.eachTrade(params.Start, params.End, func(t *pulsedb.Trade) {
		ma.Add(t.Price)
		count++
	}); err != nil {
		return nil, err
	}
	if count == 0 {
		return &SMA{}, nil
	}
	return &SMA{Average: ma.Avg(), Trades: count}, nil
}

// VWAPParams contains parameters for the volume-weighted average price.
type VWAPParams struct {
	// Start and End restrict the trades by timestamp when non-zero.
	Start int64
	End   int64
}

// VWAP is the volume-weighted average trade price and the total volume it
// covers.
type VWAP struct {
	Price  float64
	Volume uint64
}

func (i *indicators) VWAP(params VWAPParams) (*VWAP, error) {
	var (
		notional float64
		volume   uint64
	)
	if err := i.eachTrade(params.Start, params.End, func(t *pulsedb.Trade) {
		notional += t.Price * float64(t.Volume)
		volume += uint64(t.Volume)
	}); err != nil {
		return nil, err
	}
	if volume == 0 {
		return &VWAP{}, nil
	}
	return &VWAP{Price: notional / float64(volume), Volume: volume}, nil
}

func (i *indicators) eachTrade(start, end int64, f func(*pulsedb.Trade)) error {
	events, err := i.events()
	if err != nil {
		return err
	}
	for _, ev := range events {
		t, ok := ev.(*pulsedb.Trade)
		if !ok {
			continue
		}
		if start != 0 && t.Timestamp < start {
			continue
		}
		if end != 0 && t.Timestamp > end {
			continue
		}
		f(t)
	}
	return nil
}
