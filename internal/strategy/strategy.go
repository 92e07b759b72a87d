// Package strategy evaluates indicator snapshots into trade signals and
// dispatches sized orders through a broker.
package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/fxstream-trading/internal/broker"
	"github.com/rxtech-lab/fxstream-trading/internal/indicator"
	"github.com/rxtech-lab/fxstream-trading/internal/logger"
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// State is the evaluator lifecycle state, exposed for observability.
type State string

const (
	StateIdle           State = "idle"
	StateEvaluating     State = "evaluating"
	StateOrderSubmitted State = "order_submitted"
)

// Params holds the signal thresholds and sizing knobs.
type Params struct {
	// RSILower triggers a buy when RSI drops below it.
	RSILower float64
	// RSIUpper triggers a sell when RSI rises above it.
	RSIUpper float64
	// Leverage multiplies account balance into position units.
	Leverage float64
	// StopLossPips and TakeProfitPips are pip offsets from the fresh quote.
	StopLossPips   float64
	TakeProfitPips float64
}

// Evaluator turns an indicator snapshot for a freshly closed bar into at most
// one order per window. Evaluation short-circuits in a fixed order: missing
// RSI, open position, trading hours, then thresholds. A dispatch failure is
// reported but never retried; the next window evaluates normally.
type Evaluator struct {
	mu     sync.Mutex
	broker broker.Broker
	window *TradingWindow
	params Params
	log    *logger.Logger

	state State
	// dispatched records the last window an order was sent for, per
	// instrument. instrument+windowStart is the idempotency key.
	dispatched map[string]time.Time

	now func() time.Time
}

func NewEvaluator(b broker.Broker, window *TradingWindow, params Params, log *logger.Logger) *Evaluator {
	return &Evaluator{
		broker:     b,
		window:     window,
		params:     params,
		log:        log,
		state:      StateIdle,
		dispatched: make(map[string]time.Time),
		now:        time.Now,
	}
}

// State returns the current evaluator state.
func (e *Evaluator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Evaluate runs the signal decision for a closed bar. It returns the emitted
// signal and, when dispatch was attempted and failed, the dispatch error. A
// no-action outcome is not an error.
func (e *Evaluator) Evaluate(ctx context.Context, bar types.Bar, snap indicator.Snapshot) (types.Signal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = StateEvaluating
	defer func() { e.state = StateIdle }()

	sig := types.Signal{
		Time:       bar.WindowStart,
		Type:       types.SignalTypeNoAction,
		Instrument: bar.Instrument,
		RawValue:   rawValues(snap),
	}

	if snap.RSI.IsNone() {
		sig.Reason = "rsi unavailable: insufficient history"
		return sig, nil
	}

	rsi := snap.RSI.Unwrap()

	if last, ok := e.dispatched[bar.Instrument]; ok && last.Equal(bar.WindowStart) {
		sig.Reason = "order already dispatched for this window"
		return sig, nil
	}

	position, err := e.broker.GetPosition(ctx, bar.Instrument)
	if err != nil {
		sig.Reason = "position query failed"
		return sig, err
	}

	if position.IsSome() {
		open := position.Unwrap()
		e.log.Debug("skipping signal, position already open",
			zap.String("instrument", bar.Instrument),
			zap.String("direction", string(open.Direction)),
			zap.Int64("units", open.Units))

		sig.Reason = "position already open"

		return sig, nil
	}

	if !e.window.Contains(e.now()) {
		sig.Reason = "outside trading hours"
		return sig, nil
	}

	var side types.Side

	switch {
	case rsi < e.params.RSILower:
		side = types.SideBuy
		sig.Type = types.SignalTypeBuy
		sig.Reason = fmt.Sprintf("rsi %.2f below %.2f", rsi, e.params.RSILower)
	case rsi > e.params.RSIUpper:
		side = types.SideSell
		sig.Type = types.SignalTypeSell
		sig.Reason = fmt.Sprintf("rsi %.2f above %.2f", rsi, e.params.RSIUpper)
	default:
		sig.Reason = "rsi within neutral band"
		return sig, nil
	}

	order, err := e.buildOrder(ctx, bar, side, sig.Reason)
	if err != nil {
		return sig, err
	}

	if err := e.broker.PlaceOrder(ctx, order); err != nil {
		return sig, errors.Wrapf(errors.ErrCodeOrderDispatchFailed, err,
			"order dispatch failed for %s", bar.Instrument)
	}

	e.dispatched[bar.Instrument] = bar.WindowStart
	e.state = StateOrderSubmitted

	e.log.Info("order dispatched",
		zap.String("instrument", order.Instrument),
		zap.String("side", string(order.Side)),
		zap.Int64("units", order.Units),
		zap.String("stop_loss", order.StopLoss.String()),
		zap.String("take_profit", order.TakeProfit.String()),
		zap.Time("window_start", bar.WindowStart))

	return sig, nil
}

// buildOrder sizes the position from the account balance and anchors SL/TP
// pip offsets on a fresh quote. The bar close is never used for pricing, it
// may be up to a full window stale.
func (e *Evaluator) buildOrder(ctx context.Context, bar types.Bar, side types.Side, reason string) (types.ExecuteOrder, error) {
	account, err := e.broker.GetAccountInfo(ctx)
	if err != nil {
		return types.ExecuteOrder{}, err
	}

	units := int64(math.Floor(account.Balance * e.params.Leverage))
	if units <= 0 {
		return types.ExecuteOrder{}, errors.Newf(errors.ErrCodeInvalidOrder,
			"computed position size %d from balance %.2f", units, account.Balance)
	}

	quote, err := e.broker.GetPrice(ctx, bar.Instrument)
	if err != nil {
		return types.ExecuteOrder{}, err
	}

	pip := PipValue(bar.Instrument)
	slOffset := decimal.NewFromFloat(e.params.StopLossPips).Mul(pip)
	tpOffset := decimal.NewFromFloat(e.params.TakeProfitPips).Mul(pip)

	var (
		stopLoss    decimal.Decimal
		takeProfit  decimal.Decimal
		orderUnits  int64
		orderReason string
	)

	switch side {
	case types.SideBuy:
		anchor := decimal.NewFromFloat(quote.Ask)
		stopLoss = anchor.Sub(slOffset)
		takeProfit = anchor.Add(tpOffset)
		orderUnits = units
		orderReason = types.OrderReasonBuySignal
	case types.SideSell:
		anchor := decimal.NewFromFloat(quote.Bid)
		stopLoss = anchor.Add(slOffset)
		takeProfit = anchor.Sub(tpOffset)
		orderUnits = -units
		orderReason = types.OrderReasonSellSignal
	}

	return types.ExecuteOrder{
		ID:         uuid.New().String(),
		Instrument: bar.Instrument,
		Side:       side,
		Units:      orderUnits,
		Reason: types.Reason{
			Reason:  orderReason,
			Message: reason,
		},
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		WindowStart: bar.WindowStart,
	}, nil
}

// PipValue returns the standard pip increment for an instrument's quote
// currency: 0.01 for JPY-quoted pairs, 0.0001 otherwise.
func PipValue(instrument string) decimal.Decimal {
	if strings.HasSuffix(instrument, "_JPY") {
		return decimal.NewFromFloat(0.01)
	}

	return decimal.NewFromFloat(0.0001)
}

func rawValues(snap indicator.Snapshot) map[string]float64 {
	raw := make(map[string]float64, 3)

	if snap.EMA.IsSome() {
		raw["ema"] = snap.EMA.Unwrap()
	}

	if snap.SMA.IsSome() {
		raw["sma"] = snap.SMA.Unwrap()
	}

	if snap.RSI.IsSome() {
		raw["rsi"] = snap.RSI.Unwrap()
	}

	return raw
}
