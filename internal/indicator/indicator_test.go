package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// barsFromCloses builds a minute-bar series from closing prices, oldest first.
func barsFromCloses(closes ...float64) []types.Bar {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))

	for i, c := range closes {
		bars[i] = types.Bar{
			Instrument:  "EUR_USD",
			WindowStart: base.Add(time.Duration(i) * time.Minute),
			Open:        c,
			High:        c,
			Low:         c,
			Close:       c,
			Volume:      1,
		}
	}

	return bars
}

type EngineTestSuite struct {
	suite.Suite
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (suite *EngineTestSuite) TestNewEngineDefaults() {
	engine := NewEngine()
	suite.Equal(DefaultEMAPeriod, engine.emaPeriod)
	suite.Equal(DefaultSMAPeriod, engine.smaPeriod)
	suite.Equal(DefaultRSIPeriod, engine.rsiPeriod)
}

func (suite *EngineTestSuite) TestNewEngineWithPeriodsRejectsNonPositive() {
	for _, periods := range [][3]int{{0, 10, 14}, {10, -1, 14}, {10, 10, 0}} {
		_, err := NewEngineWithPeriods(periods[0], periods[1], periods[2])
		suite.Error(err)
		suite.True(errors.HasCode(err, errors.ErrCodeInvalidPeriod))
	}
}

func (suite *EngineTestSuite) TestMaxLookback() {
	engine := NewEngine()
	// RSI(14) needs 15 bars, which dominates EMA(10)/SMA(10).
	suite.Equal(15, engine.MaxLookback())

	engine, err := NewEngineWithPeriods(20, 10, 14)
	suite.NoError(err)
	suite.Equal(20, engine.MaxLookback())
}

func (suite *EngineTestSuite) TestComputeAllAbsentOnShortSeries() {
	engine := NewEngine()

	snap := engine.Compute(barsFromCloses(1.10, 1.11, 1.12))
	suite.True(snap.EMA.IsNone())
	suite.True(snap.SMA.IsNone())
	suite.True(snap.RSI.IsNone())
}

func (suite *EngineTestSuite) TestComputePartialAvailability() {
	engine := NewEngine()

	// 10 bars: EMA(10) and SMA(10) defined, RSI(14) still absent.
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 1.10 + float64(i)*0.001
	}

	snap := engine.Compute(barsFromCloses(closes...))
	suite.True(snap.EMA.IsSome())
	suite.True(snap.SMA.IsSome())
	suite.True(snap.RSI.IsNone())
}

func (suite *EngineTestSuite) TestComputeFullAvailability() {
	engine := NewEngine()

	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 1.10 + float64(i%5)*0.002
	}

	snap := engine.Compute(barsFromCloses(closes...))
	suite.True(snap.EMA.IsSome())
	suite.True(snap.SMA.IsSome())
	suite.True(snap.RSI.IsSome())

	rsi := snap.RSI.Unwrap()
	suite.GreaterOrEqual(rsi, 0.0)
	suite.LessOrEqual(rsi, 100.0)
}

func (suite *EngineTestSuite) TestComputeDeterministic() {
	engine := NewEngine()

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 1.10 + float64((i*37)%11)*0.0007
	}

	bars := barsFromCloses(closes...)

	first := engine.Compute(bars)
	second := engine.Compute(bars)

	// Bit-identical on the same prefix: no hidden carried state.
	suite.Equal(first.EMA.Unwrap(), second.EMA.Unwrap())
	suite.Equal(first.SMA.Unwrap(), second.SMA.Unwrap())
	suite.Equal(first.RSI.Unwrap(), second.RSI.Unwrap())
}
