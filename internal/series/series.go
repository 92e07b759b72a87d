// Package series holds the append-only per-instrument collection of
// finalized bars that indicator computation reads from.
package series

import (
	"sync"

	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// Store is an ordered, append-only collection of completed bars keyed by
// instrument. Insertion order is chronological order; Append enforces it.
type Store struct {
	mu   sync.RWMutex
	bars map[string][]types.Bar
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		bars: make(map[string][]types.Bar),
	}
}

// Append adds a finalized bar to the instrument's series. The bar's window
// start must be strictly after the previous bar's; a violation fails with
// ErrCodeOutOfOrderBar and leaves the series unchanged. This cannot happen
// when windows are driven by a monotonic reset sequence, but it indicates a
// scheduling bug upstream and must not be silently absorbed.
func (s *Store) Append(bar types.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.bars[bar.Instrument]
	if n := len(existing); n > 0 {
		prev := existing[n-1]
		if !bar.WindowStart.After(prev.WindowStart) {
			return errors.Newf(errors.ErrCodeOutOfOrderBar,
				"bar for %s at %s is not after previous bar at %s",
				bar.Instrument, bar.WindowStart, prev.WindowStart)
		}
	}

	s.bars[bar.Instrument] = append(existing, bar)

	return nil
}

// Latest returns the last n bars for the instrument, oldest first. Fewer are
// returned when the series is shorter than n. The result is a copy.
func (s *Store) Latest(instrument string, n int) []types.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.bars[instrument]
	if n > len(all) {
		n = len(all)
	}

	if n <= 0 {
		return nil
	}

	out := make([]types.Bar, n)
	copy(out, all[len(all)-n:])

	return out
}

// All returns a copy of the full series for the instrument, oldest first.
func (s *Store) All(instrument string) []types.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.bars[instrument]
	if len(all) == 0 {
		return nil
	}

	out := make([]types.Bar, len(all))
	copy(out, all)

	return out
}

// Count returns the number of bars stored for the instrument.
func (s *Store) Count(instrument string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.bars[instrument])
}
