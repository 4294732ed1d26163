package marketdata

import (
	"sync"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-tradlet/internal/types"
)

// SnapshotStore answers best bid/ask lookups for an instrument.
type SnapshotStore interface {
	// LastTick returns the most recent tick seen for the instrument, if any.
	LastTick(instrument string) optional.Option[types.Tick]
}

// MemorySnapshotStore keeps the latest tick per instrument in memory.
// Writers and readers may live on different goroutines.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	ticks map[string]types.Tick
}

// NewMemorySnapshotStore creates an empty store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		mu:    sync.RWMutex{},
		ticks: make(map[string]types.Tick),
	}
}

// Update records tick as the latest one for its instrument. Out-of-order ticks are ignored.
func (s *MemorySnapshotStore) Update(tick types.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.ticks[tick.Instrument]; ok && tick.Time.Before(prev.Time) {
		return
	}

	s.ticks[tick.Instrument] = tick
}

// LastTick implements SnapshotStore.
func (s *MemorySnapshotStore) LastTick(instrument string) optional.Option[types.Tick] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tick, ok := s.ticks[instrument]
	if !ok {
		return optional.None[types.Tick]()
	}

	return optional.Some(tick)
}

// Instruments returns the instruments that have at least one tick.
func (s *MemorySnapshotStore) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instruments := make([]string, 0, len(s.ticks))
	for instrument := range s.ticks {
		instruments = append(instruments, instrument)
	}

	return instruments
}
