package indicator

import (
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// EMA computes the exponential moving average of closing prices over the
// given series, oldest bar first. The first EMA value is seeded with the
// simple average of the first period closes, then each later close is folded
// in with alpha = 2/(period+1). Undefined until len(bars) >= period.
func EMA(bars []types.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	if len(bars) < period {
		return 0, errors.NewInsufficientDataErrorf(period, len(bars), instrumentOf(bars),
			"EMA(%d) needs %d bars, have %d", period, period, len(bars))
	}

	// Seed with the SMA of the first period closes.
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += bars[i].Close
	}

	seed /= float64(period)

	alpha := 2.0 / float64(period+1)

	ema := seed
	for i := period; i < len(bars); i++ {
		ema = (bars[i].Close * alpha) + (ema * (1 - alpha))
	}

	return ema, nil
}

func instrumentOf(bars []types.Bar) string {
	if len(bars) == 0 {
		return ""
	}

	return bars[0].Instrument
}
