package indicator

import (
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// SMA computes the arithmetic mean of the last period closing prices.
// Undefined until len(bars) >= period.
func SMA(bars []types.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	if len(bars) < period {
		return 0, errors.NewInsufficientDataErrorf(period, len(bars), instrumentOf(bars),
			"SMA(%d) needs %d bars, have %d", period, period, len(bars))
	}

	sum := 0.0
	for _, bar := range bars[len(bars)-period:] {
		sum += bar.Close
	}

	return sum / float64(period), nil
}
