// Package indicator computes EMA, SMA, and RSI over a bar series snapshot.
//
// All values are recomputed in full over the retained series on every call.
// There is no carried state: the same series prefix always yields
// bit-identical results, which keeps the outputs auditable and trivially
// testable. Series length is bounded by trading-day volume, so the
// recomputation cost is acceptable.
package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// Default periods.
const (
	DefaultEMAPeriod = 10
	DefaultSMAPeriod = 10
	DefaultRSIPeriod = 14
)

// Snapshot carries the indicator values attached to the latest bar. A value
// is None until the series holds enough history for its minimum period.
type Snapshot struct {
	EMA optional.Option[float64]
	SMA optional.Option[float64]
	RSI optional.Option[float64]
}

// Engine computes a Snapshot from a bar series with configured periods.
type Engine struct {
	emaPeriod int
	smaPeriod int
	rsiPeriod int
}

// NewEngine creates an Engine with default periods.
func NewEngine() *Engine {
	return &Engine{
		emaPeriod: DefaultEMAPeriod,
		smaPeriod: DefaultSMAPeriod,
		rsiPeriod: DefaultRSIPeriod,
	}
}

// NewEngineWithPeriods creates an Engine with the given periods.
func NewEngineWithPeriods(emaPeriod, smaPeriod, rsiPeriod int) (*Engine, error) {
	if emaPeriod <= 0 || smaPeriod <= 0 || rsiPeriod <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod,
			"periods must be positive, got ema=%d sma=%d rsi=%d", emaPeriod, smaPeriod, rsiPeriod)
	}

	return &Engine{
		emaPeriod: emaPeriod,
		smaPeriod: smaPeriod,
		rsiPeriod: rsiPeriod,
	}, nil
}

// MaxLookback returns the longest history any configured indicator needs.
func (e *Engine) MaxLookback() int {
	lookback := e.emaPeriod
	if e.smaPeriod > lookback {
		lookback = e.smaPeriod
	}

	// RSI needs period+1 closes for period deltas.
	if e.rsiPeriod+1 > lookback {
		lookback = e.rsiPeriod + 1
	}

	return lookback
}

// Compute recomputes all indicators over the given series snapshot.
// Indicators without enough history are None; that is not an error.
func (e *Engine) Compute(bars []types.Bar) Snapshot {
	snap := Snapshot{
		EMA: optional.None[float64](),
		SMA: optional.None[float64](),
		RSI: optional.None[float64](),
	}

	if ema, err := EMA(bars, e.emaPeriod); err == nil {
		snap.EMA = optional.Some(ema)
	}

	if sma, err := SMA(bars, e.smaPeriod); err == nil {
		snap.SMA = optional.Some(sma)
	}

	if rsi, err := RSI(bars, e.rsiPeriod); err == nil {
		snap.RSI = optional.Some(rsi)
	}

	return snap
}
