// Package feed streams price ticks from an external market data source.
package feed

import (
	"context"
	"iter"

	"github.com/rxtech-lab/fxstream-trading/internal/types"
)

// Provider streams realtime ticks for a set of instruments.
//
// The iterator yields Tick and error pairs. A yielded ParseError means one
// message was dropped and the stream continues; a FeedDisconnected error is
// terminal for this connection and ends the sequence. Cancel the context to
// stop streaming.
type Provider interface {
	Stream(ctx context.Context, instruments []string) iter.Seq2[types.Tick, error]
}
