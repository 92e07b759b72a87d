package engine

import (
	"time"

	"github.com/rxtech-lab/fxstream-trading/internal/types"
)

// OnEngineStartCallback is called once the engine is about to connect.
type OnEngineStartCallback func(instruments []string, window time.Duration) error

// OnEngineStopCallback is called when the engine stops (always called via defer).
type OnEngineStopCallback func(err error)

// OnTickCallback is called for each tick routed into an accumulator.
type OnTickCallback func(tick types.Tick) error

// OnBarCallback is called for each finalized bar, after it has been appended
// to the series.
type OnBarCallback func(bar types.Bar) error

// OnSignalCallback is called with the evaluator's decision for each closed
// window, including no-action outcomes.
type OnSignalCallback func(signal types.Signal)

// OnErrorCallback is called when a non-fatal error occurs.
type OnErrorCallback func(err error)

// Callbacks are optional hooks into the engine lifecycle. Any field may be
// nil.
type Callbacks struct {
	// OnEngineStart is called before the first connection attempt. A non-nil
	// return aborts the run.
	OnEngineStart *OnEngineStartCallback

	// OnEngineStop is called when the engine stops (always called via defer).
	OnEngineStop *OnEngineStopCallback

	// OnTick is called for each accepted tick. A non-nil return aborts the run.
	OnTick *OnTickCallback

	// OnBar is called for each finalized bar. A non-nil return aborts the run.
	OnBar *OnBarCallback

	// OnSignal is called with each evaluation outcome.
	OnSignal *OnSignalCallback

	// OnError is called for non-fatal errors: dropped ticks, parse errors,
	// dispatch failures, reconnects.
	OnError *OnErrorCallback
}
