// Package aggregator accumulates price ticks into fixed-duration OHLC bars.
//
// One accumulator exists per instrument. All mutation for a given instrument
// happens under that instrument's lock, so tick updates, the window-elapsed
// check, and finalize-and-reset are never interleaved. Different instruments
// never share state and may be processed fully in parallel.
package aggregator

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/fxstream-trading/internal/logger"
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// accumulator is the in-progress bar for one instrument.
// Invariant: once open is set it never changes until reset; high >= low once
// at least one tick has been observed; windowStart is fixed for the
// accumulator's lifetime.
type accumulator struct {
	mu sync.Mutex

	open        float64
	hasOpen     bool
	high        float64
	low         float64
	close       float64
	tickCount   int64
	windowStart time.Time
}

func (a *accumulator) reset(now time.Time) {
	a.open = 0
	a.hasOpen = false
	a.high = math.Inf(-1)
	a.low = math.Inf(1)
	a.close = 0
	a.tickCount = 0
	a.windowStart = now
}

// Aggregator owns the keyed per-instrument accumulator store.
type Aggregator struct {
	mu   sync.RWMutex
	accs map[string]*accumulator
	log  *logger.Logger
}

// New creates an empty Aggregator.
func New(log *logger.Logger) *Aggregator {
	return &Aggregator{
		accs: make(map[string]*accumulator),
		log:  log,
	}
}

// Register creates a fresh accumulator for the instrument with the given
// window start. Registering an already-known instrument resets it; the engine
// uses this to re-initialize state after a feed reconnect.
func (agg *Aggregator) Register(instrument string, now time.Time) {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	acc, ok := agg.accs[instrument]
	if !ok {
		acc = &accumulator{}
		agg.accs[instrument] = acc
	}

	acc.mu.Lock()
	acc.reset(now)
	acc.mu.Unlock()
}

// Instruments returns the registered instrument names.
func (agg *Aggregator) Instruments() []string {
	agg.mu.RLock()
	defer agg.mu.RUnlock()

	names := make([]string, 0, len(agg.accs))
	for name := range agg.accs {
		names = append(names, name)
	}

	return names
}

// acquire returns the accumulator for the instrument, creating one lazily on
// first tick.
func (agg *Aggregator) acquire(instrument string, now time.Time) *accumulator {
	agg.mu.RLock()
	acc, ok := agg.accs[instrument]
	agg.mu.RUnlock()

	if ok {
		return acc
	}

	agg.mu.Lock()
	defer agg.mu.Unlock()

	if acc, ok = agg.accs[instrument]; ok {
		return acc
	}

	acc = &accumulator{}
	acc.reset(now)
	agg.accs[instrument] = acc

	return acc
}

// Update records one tick. The first tick of a fresh window sets the open;
// every tick updates high, low, close, and the tick count. A non-finite or
// non-positive price fails with ErrCodeInvalidTick and leaves the accumulator
// unchanged.
func (agg *Aggregator) Update(instrument string, price float64, now time.Time) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		agg.log.Warn("dropping invalid tick",
			zap.String("instrument", instrument),
			zap.Float64("price", price),
		)

		return errors.Newf(errors.ErrCodeInvalidTick, "invalid price %f for %s", price, instrument)
	}

	acc := agg.acquire(instrument, now)

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if !acc.hasOpen {
		acc.open = price
		acc.hasOpen = true
	}

	acc.high = math.Max(acc.high, price)
	acc.low = math.Min(acc.low, price)
	acc.close = price
	acc.tickCount++

	return nil
}

// WindowElapsed reports whether the instrument's window has run for at least
// the given duration.
func (agg *Aggregator) WindowElapsed(instrument string, now time.Time, window time.Duration) bool {
	agg.mu.RLock()
	acc, ok := agg.accs[instrument]
	agg.mu.RUnlock()

	if !ok {
		return false
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	return now.Sub(acc.windowStart) >= window
}

// FinalizeAndReset snapshots the current window into an immutable Bar and
// resets the accumulator with windowStart = now, as a single atomic step. A
// window that saw no ticks produces no bar but still advances windowStart so
// an idle instrument does not grow an ever-longer window.
func (agg *Aggregator) FinalizeAndReset(instrument string, now time.Time) (types.Bar, bool) {
	agg.mu.RLock()
	acc, ok := agg.accs[instrument]
	agg.mu.RUnlock()

	if !ok {
		return types.Bar{}, false
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.tickCount == 0 {
		acc.windowStart = now

		return types.Bar{}, false
	}

	bar := types.Bar{
		Instrument:  instrument,
		WindowStart: acc.windowStart,
		Open:        acc.open,
		High:        acc.high,
		Low:         acc.low,
		Close:       acc.close,
		Volume:      acc.tickCount,
	}

	acc.reset(now)

	return bar, true
}
