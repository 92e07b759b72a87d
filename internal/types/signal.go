package types

import "time"

type SignalType string

const (
	// SignalTypeBuy is a signal that tells the evaluator to buy
	SignalTypeBuy SignalType = "buy"
	// SignalTypeSell is a signal that tells the evaluator to sell
	SignalTypeSell SignalType = "sell"
	// SignalTypeNoAction is a signal that tells the evaluator to take no action
	SignalTypeNoAction SignalType = "no_action"
)

type Signal struct {
	// Time is the time of the signal
	Time time.Time
	// Type is the type of the signal
	Type SignalType
	// Reason is the reason for the signal
	Reason string
	// RawValue carries the indicator values behind the signal
	RawValue map[string]float64
	// Instrument is the instrument of the signal
	Instrument string
}
