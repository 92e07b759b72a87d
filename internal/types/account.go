package types

// AccountInfo represents the current account state as reported by the broker.
type AccountInfo struct {
	// Balance is the current cash balance (excluding unrealized P&L)
	Balance float64 `json:"balance" yaml:"balance"`
	// Currency is the account's home currency
	Currency string `json:"currency" yaml:"currency"`
	// MarginAvailable is the margin available for new positions
	MarginAvailable float64 `json:"margin_available" yaml:"margin_available"`
}

// Position is an open, unsettled quantity of an instrument held by the
// trading account. Read-only to this core; the broker is the oracle.
type Position struct {
	Instrument string       `json:"instrument" yaml:"instrument"`
	Direction  PositionType `json:"direction" yaml:"direction"`
	// Units is always positive; Direction carries the sign.
	Units int64 `json:"units" yaml:"units"`
}
