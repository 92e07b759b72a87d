// Package broker talks to the trading account: order placement, open
// position lookup, account summary, and fresh price quotes.
package broker

import (
	"context"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/fxstream-trading/internal/types"
)

// Broker is the external trading collaborator. The core treats order
// placement as single-shot fire: any failure is logged and ignored, never
// retried, never rolled back.
type Broker interface {
	// PlaceOrder places a single market order.
	PlaceOrder(ctx context.Context, order types.ExecuteOrder) error
	// GetPosition returns the open position for an instrument, or None.
	GetPosition(ctx context.Context, instrument string) (optional.Option[types.Position], error)
	// GetAccountInfo returns the current account state including balance.
	GetAccountInfo(ctx context.Context) (types.AccountInfo, error)
	// GetPrice returns a fresh bid/ask quote for the instrument.
	GetPrice(ctx context.Context, instrument string) (types.Price, error)
}
