package engine

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/rxtech-lab/fxstream-trading/internal/aggregator"
	"github.com/rxtech-lab/fxstream-trading/internal/config"
	"github.com/rxtech-lab/fxstream-trading/internal/indicator"
	"github.com/rxtech-lab/fxstream-trading/internal/logger"
	"github.com/rxtech-lab/fxstream-trading/internal/series"
	"github.com/rxtech-lab/fxstream-trading/internal/strategy"
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/mocks"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// tickOrErr is one scripted feed event.
type tickOrErr struct {
	tick types.Tick
	err  error
}

// scriptedFeed replays one script per connection attempt.
type scriptedFeed struct {
	mu          sync.Mutex
	connections [][]tickOrErr
	attempts    int
}

func (f *scriptedFeed) Stream(ctx context.Context, _ []string) iter.Seq2[types.Tick, error] {
	f.mu.Lock()

	var script []tickOrErr
	if f.attempts < len(f.connections) {
		script = f.connections[f.attempts]
	}

	f.attempts++
	f.mu.Unlock()

	return func(yield func(types.Tick, error) bool) {
		for _, event := range script {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !yield(event.tick, event.err) {
				return
			}
		}
	}
}

type TradingEngineTestSuite struct {
	suite.Suite

	ctrl   *gomock.Controller
	broker *mocks.MockBroker
}

func TestTradingEngineSuite(t *testing.T) {
	suite.Run(t, new(TradingEngineTestSuite))
}

func (s *TradingEngineTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.broker = mocks.NewMockBroker(s.ctrl)
}

func (s *TradingEngineTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

var streamStart = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func (s *TradingEngineTestSuite) testConfig() *config.Config {
	cfg := config.Default()
	cfg.Window = 60 * time.Second
	cfg.Reconnect.MaxRetries = 0
	cfg.Reconnect.InitialInterval = time.Millisecond
	cfg.Reconnect.MaxInterval = time.Millisecond

	return cfg
}

// newEngine wires a TradingEngine around the scripted feed with a trading
// window that is always open, so dispatch decisions depend only on the data.
func (s *TradingEngineTestSuite) newEngine(cfg *config.Config, provider *scriptedFeed) *TradingEngine {
	log := logger.NewNopLogger()

	window, err := strategy.NewTradingWindow(config.TradingHoursConfig{
		Days:     []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"},
		Start:    "00:00",
		End:      "23:59",
		Timezone: "UTC",
	})
	s.Require().NoError(err)

	evaluator := strategy.NewEvaluator(s.broker, window, strategy.Params{
		RSILower:       cfg.Signal.RSILower,
		RSIUpper:       cfg.Signal.RSIUpper,
		Leverage:       cfg.Signal.Leverage,
		StopLossPips:   cfg.Signal.StopLossPips,
		TakeProfitPips: cfg.Signal.TakeProfitPips,
	}, log)

	return New(cfg, provider, aggregator.New(log), series.NewStore(), indicator.NewEngine(), evaluator, nil, log)
}

// barCollector gathers OnBar invocations.
type barCollector struct {
	mu   sync.Mutex
	bars []types.Bar
}

func (c *barCollector) callback() OnBarCallback {
	return func(bar types.Bar) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.bars = append(c.bars, bar)

		return nil
	}
}

func (c *barCollector) all() []types.Bar {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]types.Bar(nil), c.bars...)
}

func tickAt(offset time.Duration, bid float64) tickOrErr {
	return tickOrErr{tick: types.Tick{
		Instrument: "EUR_USD",
		Bid:        bid,
		Ask:        bid + 0.0002,
		Time:       streamStart.Add(offset),
	}}
}

func (s *TradingEngineTestSuite) TestSixtyOneTicksProduceOneBar() {
	// 61 strictly increasing prices, one per simulated second. The 61st tick
	// arrives as the window elapses and must land in the next window.
	var script []tickOrErr
	for i := 0; i <= 60; i++ {
		script = append(script, tickAt(time.Duration(i)*time.Second, 1.1000+float64(i)*0.0001))
	}

	provider := &scriptedFeed{connections: [][]tickOrErr{script}}
	engine := s.newEngine(s.testConfig(), provider)

	collector := &barCollector{}
	onBar := collector.callback()

	err := engine.Run(context.Background(), Callbacks{OnBar: &onBar})

	// The scripted feed just ends, which a live feed never does.
	s.Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeFeedExhausted))

	bars := collector.all()
	s.Require().Len(bars, 1)

	bar := bars[0]
	s.Equal("EUR_USD", bar.Instrument)
	s.Equal(streamStart, bar.WindowStart)
	s.InDelta(1.1000, bar.Open, 1e-9)
	s.InDelta(1.1059, bar.High, 1e-9)
	s.InDelta(1.1000, bar.Low, 1e-9)
	s.InDelta(1.1059, bar.Close, 1e-9)
	s.Equal(int64(60), bar.Volume)

	// RSI is absent after a single bar, so no broker interaction happened
	// (the mock controller verifies no unexpected calls).
}

func (s *TradingEngineTestSuite) TestInvalidTickDroppedAccumulatorUnaffected() {
	script := []tickOrErr{
		tickAt(0, 1.1000),
		tickAt(time.Second, -5),
		tickAt(2*time.Second, 1.1004),
		tickAt(61*time.Second, 1.1005),
	}

	provider := &scriptedFeed{connections: [][]tickOrErr{script}}
	engine := s.newEngine(s.testConfig(), provider)

	collector := &barCollector{}
	onBar := collector.callback()

	var (
		errMu      sync.Mutex
		seenErrors []error
	)

	onError := OnErrorCallback(func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		seenErrors = append(seenErrors, err)
	})

	_ = engine.Run(context.Background(), Callbacks{OnBar: &onBar, OnError: &onError})

	bars := collector.all()
	s.Require().Len(bars, 1)
	s.Equal(int64(2), bars[0].Volume)
	s.InDelta(1.1000, bars[0].Low, 1e-9)

	errMu.Lock()
	defer errMu.Unlock()

	s.Require().NotEmpty(seenErrors)
	s.True(errors.HasCode(seenErrors[0], errors.ErrCodeInvalidTick))
}

func (s *TradingEngineTestSuite) TestParseErrorDoesNotAbortStream() {
	script := []tickOrErr{
		tickAt(0, 1.1000),
		{err: errors.New(errors.ErrCodeParseError, "malformed stream message")},
		tickAt(time.Second, 1.1001),
		tickAt(61*time.Second, 1.1002),
	}

	provider := &scriptedFeed{connections: [][]tickOrErr{script}}
	engine := s.newEngine(s.testConfig(), provider)

	collector := &barCollector{}
	onBar := collector.callback()

	_ = engine.Run(context.Background(), Callbacks{OnBar: &onBar})

	bars := collector.all()
	s.Require().Len(bars, 1)
	s.Equal(int64(2), bars[0].Volume)
}

func (s *TradingEngineTestSuite) TestZeroTickWindowProducesNoBar() {
	// One tick, then a long quiet gap, then another tick three windows later.
	script := []tickOrErr{
		tickAt(0, 1.1000),
		tickAt(185*time.Second, 1.1001),
		tickAt(250*time.Second, 1.1002),
	}

	provider := &scriptedFeed{connections: [][]tickOrErr{script}}
	engine := s.newEngine(s.testConfig(), provider)

	collector := &barCollector{}
	onBar := collector.callback()

	_ = engine.Run(context.Background(), Callbacks{OnBar: &onBar})

	// The gap closes the first window once; the empty windows in between
	// produce nothing.
	bars := collector.all()
	s.Require().Len(bars, 2)
	s.Equal(int64(1), bars[0].Volume)
	s.Equal(int64(1), bars[1].Volume)
}

func (s *TradingEngineTestSuite) TestReconnectWithFreshAccumulators() {
	first := []tickOrErr{
		tickAt(0, 1.1000),
		{err: errors.New(errors.ErrCodeFeedDisconnected, "connection reset")},
	}

	second := []tickOrErr{
		tickAt(120*time.Second, 1.2000),
		tickAt(181*time.Second, 1.2001),
	}

	provider := &scriptedFeed{connections: [][]tickOrErr{first, second}}

	cfg := s.testConfig()
	cfg.Reconnect.MaxRetries = 2

	engine := s.newEngine(cfg, provider)

	collector := &barCollector{}
	onBar := collector.callback()

	err := engine.Run(context.Background(), Callbacks{OnBar: &onBar})
	s.True(errors.HasCode(err, errors.ErrCodeFeedExhausted))

	s.Equal(2, provider.attempts)

	// The pre-disconnect tick was discarded with its accumulator; the bar
	// comes entirely from the second connection.
	bars := collector.all()
	s.Require().Len(bars, 1)
	s.InDelta(1.2000, bars[0].Open, 1e-9)
	s.Equal(int64(1), bars[0].Volume)
}

func (s *TradingEngineTestSuite) TestReconnectBudgetExhausted() {
	drop := func() []tickOrErr {
		return []tickOrErr{{err: errors.New(errors.ErrCodeFeedDisconnected, "connection reset")}}
	}

	provider := &scriptedFeed{connections: [][]tickOrErr{drop(), drop(), drop(), drop()}}

	cfg := s.testConfig()
	cfg.Reconnect.MaxRetries = 3

	engine := s.newEngine(cfg, provider)

	err := engine.Run(context.Background(), Callbacks{})
	s.Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeFeedExhausted))
	s.Equal(4, provider.attempts)
}

func (s *TradingEngineTestSuite) TestFallingMarketDispatchesBuyOrder() {
	// One tick per window with strictly decreasing prices. After 15 closed
	// bars RSI is 0, which reads as oversold and triggers a buy.
	var script []tickOrErr
	for i := 0; i <= 15; i++ {
		script = append(script, tickAt(time.Duration(i*60)*time.Second, 1.2000-float64(i)*0.0010))
	}
	// One more tick to close the 16th window is not needed; RSI fires on
	// the 15th bar.

	s.broker.EXPECT().GetPosition(gomock.Any(), "EUR_USD").Return(
		optional.None[types.Position](), nil)
	s.broker.EXPECT().GetAccountInfo(gomock.Any()).Return(
		types.AccountInfo{Balance: 1000, Currency: "USD", MarginAvailable: 1000}, nil)
	s.broker.EXPECT().GetPrice(gomock.Any(), "EUR_USD").Return(
		types.Price{Instrument: "EUR_USD", Bid: 1.1848, Ask: 1.1852, Time: streamStart}, nil)

	var placed types.ExecuteOrder

	s.broker.EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, order types.ExecuteOrder) error {
			placed = order
			return nil
		})

	provider := &scriptedFeed{connections: [][]tickOrErr{script}}
	engine := s.newEngine(s.testConfig(), provider)

	var (
		sigMu   sync.Mutex
		signals []types.Signal
	)

	onSignal := OnSignalCallback(func(sig types.Signal) {
		sigMu.Lock()
		defer sigMu.Unlock()
		signals = append(signals, sig)
	})

	err := engine.Run(context.Background(), Callbacks{OnSignal: &onSignal})
	s.True(errors.HasCode(err, errors.ErrCodeFeedExhausted))

	s.Equal(types.SideBuy, placed.Side)
	s.Equal(int64(20000), placed.Units) // floor(1000 * 20)
	s.NoError(placed.Validate())

	sigMu.Lock()
	defer sigMu.Unlock()

	// One evaluation per closed bar; exactly one of them is the buy
	// (dispatch goroutines complete in arbitrary order).
	s.Require().Len(signals, 15)

	var buys int

	for _, sig := range signals {
		if sig.Type == types.SignalTypeBuy {
			buys++

			s.InDelta(0, sig.RawValue["rsi"], 1e-9)
		}
	}

	s.Equal(1, buys)
}
