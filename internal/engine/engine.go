// Package engine drives the tick-to-order pipeline: it consumes the feed,
// routes ticks into the aggregator, detects window closure, and hands
// finalized bars through the indicator engine to the signal evaluator.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rxtech-lab/fxstream-trading/internal/aggregator"
	"github.com/rxtech-lab/fxstream-trading/internal/config"
	"github.com/rxtech-lab/fxstream-trading/internal/feed"
	"github.com/rxtech-lab/fxstream-trading/internal/indicator"
	"github.com/rxtech-lab/fxstream-trading/internal/logger"
	"github.com/rxtech-lab/fxstream-trading/internal/series"
	"github.com/rxtech-lab/fxstream-trading/internal/strategy"
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/barlog"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// TradingEngine owns one run of the streaming pipeline. Window timing is
// driven by tick timestamps, not the wall clock, so a replayed feed produces
// the same bars as a live one.
type TradingEngine struct {
	cfg        *config.Config
	provider   feed.Provider
	aggregator *aggregator.Aggregator
	store      *series.Store
	indicators *indicator.Engine
	evaluator  *strategy.Evaluator
	barWriter  barlog.Writer
	log        *logger.Logger

	// seen tracks which instruments have received their first tick on the
	// current connection; it is cleared on reconnect so accumulators start
	// fresh with no attempt to reconcile missed ticks.
	seen map[string]bool

	// dispatchWG tracks in-flight order dispatches. Shutdown lets them
	// complete but never starts new ones.
	dispatchWG sync.WaitGroup
}

// New wires a TradingEngine from its collaborators. barWriter may be nil to
// disable bar persistence.
func New(
	cfg *config.Config,
	provider feed.Provider,
	agg *aggregator.Aggregator,
	store *series.Store,
	indicators *indicator.Engine,
	evaluator *strategy.Evaluator,
	barWriter barlog.Writer,
	log *logger.Logger,
) *TradingEngine {
	return &TradingEngine{
		cfg:        cfg,
		provider:   provider,
		aggregator: agg,
		store:      store,
		indicators: indicators,
		evaluator:  evaluator,
		barWriter:  barWriter,
		log:        log,
		seen:       make(map[string]bool),
	}
}

// Run consumes the feed until the context is cancelled or the reconnect
// budget is exhausted. Disconnects inside the loop trigger a bounded
// exponential-backoff reconnect with fresh accumulator state.
func (e *TradingEngine) Run(ctx context.Context, callbacks Callbacks) error {
	var runErr error

	defer func() {
		e.dispatchWG.Wait()

		if callbacks.OnEngineStop != nil {
			(*callbacks.OnEngineStop)(runErr)
		}
	}()

	if callbacks.OnEngineStart != nil {
		if err := (*callbacks.OnEngineStart)(e.cfg.Instruments, e.cfg.Window); err != nil {
			runErr = err

			return runErr
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.Reconnect.InitialInterval
	policy.MaxInterval = e.cfg.Reconnect.MaxInterval
	policy.Reset()

	var retries uint64

	for {
		clear(e.seen)

		disconnect, fatal := e.consume(ctx, callbacks)

		if ctx.Err() != nil {
			// In-flight window data is discarded, not flushed.
			runErr = ctx.Err()

			return runErr
		}

		if fatal != nil {
			runErr = fatal

			return runErr
		}

		if disconnect == nil {
			runErr = errors.New(errors.ErrCodeFeedExhausted, "pricing stream ended without error")

			return runErr
		}

		if retries >= e.cfg.Reconnect.MaxRetries {
			runErr = errors.Wrapf(errors.ErrCodeFeedExhausted, disconnect,
				"feed unrecoverable after %d reconnect attempts", retries)

			return runErr
		}

		retries++
		wait := policy.NextBackOff()

		e.log.Warn("feed disconnected, reconnecting",
			zap.Error(disconnect),
			zap.Uint64("attempt", retries),
			zap.Duration("backoff", wait))

		if callbacks.OnError != nil {
			(*callbacks.OnError)(disconnect)
		}

		select {
		case <-ctx.Done():
			runErr = ctx.Err()

			return runErr
		case <-time.After(wait):
		}
	}
}

// consume drains one feed connection. disconnect is the feed error that
// ended the connection; fatal is a lifecycle callback error that must end
// the run.
func (e *TradingEngine) consume(ctx context.Context, callbacks Callbacks) (disconnect, fatal error) {
	for tick, err := range e.provider.Stream(ctx, e.cfg.Instruments) {
		select {
		case <-ctx.Done():
			return nil, nil
		default:
		}

		if err != nil {
			if errors.HasCode(err, errors.ErrCodeFeedDisconnected) {
				return err, nil
			}

			// Parse errors drop one message and never abort the stream.
			e.log.Warn("skipping feed message", zap.Error(err))

			if callbacks.OnError != nil {
				(*callbacks.OnError)(err)
			}

			continue
		}

		if cbErr := e.processTick(ctx, tick, callbacks); cbErr != nil {
			return nil, cbErr
		}
	}

	return nil, nil
}

// processTick checks window closure before routing the tick, so a tick
// arriving after the window elapsed lands in the next window, not the one it
// closes.
func (e *TradingEngine) processTick(ctx context.Context, tick types.Tick, callbacks Callbacks) error {
	if !e.seen[tick.Instrument] {
		e.seen[tick.Instrument] = true
		e.aggregator.Register(tick.Instrument, tick.Time)
	}

	if e.aggregator.WindowElapsed(tick.Instrument, tick.Time, e.cfg.Window) {
		if err := e.closeWindow(ctx, tick.Instrument, tick.Time, callbacks); err != nil {
			return err
		}
	}

	if err := e.aggregator.Update(tick.Instrument, tick.Bid, tick.Time); err != nil {
		if callbacks.OnError != nil {
			(*callbacks.OnError)(err)
		}

		return nil
	}

	if callbacks.OnTick != nil {
		if err := (*callbacks.OnTick)(tick); err != nil {
			return err
		}
	}

	return nil
}

// closeWindow finalizes the elapsed window and runs the bar through
// persistence, indicators, and signal evaluation. A zero-tick window advances
// silently.
func (e *TradingEngine) closeWindow(ctx context.Context, instrument string, now time.Time, callbacks Callbacks) error {
	bar, ok := e.aggregator.FinalizeAndReset(instrument, now)
	if !ok {
		return nil
	}

	if err := e.store.Append(bar); err != nil {
		// An out-of-order bar indicates a scheduling bug upstream; it is
		// dropped before it can corrupt indicator state.
		e.log.Error("dropping out-of-order bar",
			zap.String("instrument", instrument),
			zap.Time("window_start", bar.WindowStart),
			zap.Error(err))

		if callbacks.OnError != nil {
			(*callbacks.OnError)(err)
		}

		return nil
	}

	e.log.Info("window closed",
		zap.String("instrument", bar.Instrument),
		zap.Time("window_start", bar.WindowStart),
		zap.Float64("open", bar.Open),
		zap.Float64("high", bar.High),
		zap.Float64("low", bar.Low),
		zap.Float64("close", bar.Close),
		zap.Int64("volume", bar.Volume))

	if e.barWriter != nil {
		if err := e.barWriter.Write(bar); err != nil {
			e.log.Error("failed to persist bar", zap.Error(err))

			if callbacks.OnError != nil {
				(*callbacks.OnError)(err)
			}
		}
	}

	if callbacks.OnBar != nil {
		if err := (*callbacks.OnBar)(bar); err != nil {
			return err
		}
	}

	snapshot := e.indicators.Compute(e.store.All(instrument))

	// Dispatch is fire-and-forget relative to the window loop: it may run
	// concurrently with aggregation of the next window's ticks. The detached
	// context lets an in-flight dispatch complete across shutdown.
	dispatchCtx := context.WithoutCancel(ctx)

	e.dispatchWG.Add(1)

	go func() {
		defer e.dispatchWG.Done()

		signal, err := e.evaluator.Evaluate(dispatchCtx, bar, snapshot)
		if err != nil {
			e.log.Error("signal evaluation failed",
				zap.String("instrument", bar.Instrument),
				zap.Error(err))

			if callbacks.OnError != nil {
				(*callbacks.OnError)(err)
			}
		}

		if callbacks.OnSignal != nil {
			(*callbacks.OnSignal)(signal)
		}
	}()

	return nil
}
