package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

type Side string

type PositionType string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

const (
	OrderReasonBuySignal  string = "buy_signal"
	OrderReasonSellSignal string = "sell_signal"
)

type Reason struct {
	Reason  string `yaml:"reason" json:"reason" validate:"required"`
	Message string `yaml:"message" json:"message" validate:"required"`
}

// ExecuteOrder is a market order handed to the broker for dispatch.
// Units are direction-signed: negative units sell, positive units buy.
type ExecuteOrder struct {
	ID         string `yaml:"id" json:"id" validate:"required,uuid"`
	Instrument string `yaml:"instrument" json:"instrument" validate:"required"`
	Side       Side   `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Units      int64  `yaml:"units" json:"units" validate:"required"`
	Reason     Reason `yaml:"reason" json:"reason" validate:"required"`
	// StopLoss and TakeProfit are absolute prices computed from pip offsets
	// against a fresh quote at order time.
	StopLoss   decimal.Decimal `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit decimal.Decimal `yaml:"take_profit" json:"take_profit"`
	// WindowStart identifies the bar window that produced this order.
	// instrument+WindowStart is the idempotency key for any retry layer.
	WindowStart time.Time `yaml:"window_start" json:"window_start"`
}

// Validate validates the ExecuteOrder struct.
func (eo *ExecuteOrder) Validate() error {
	validate := validator.New()

	if err := validate.Struct(eo); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid execute order", err)
	}

	if eo.Side == SideBuy && eo.Units <= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrder, "buy order must have positive units, got %d", eo.Units)
	}

	if eo.Side == SideSell && eo.Units >= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrder, "sell order must have negative units, got %d", eo.Units)
	}

	return nil
}
