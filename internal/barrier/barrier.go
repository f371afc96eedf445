// Package barrier implements a reusable N-party rendezvous.
//
// Every round, exactly Parties callers block in Await until the last one
// arrives. The last arrival is the releaser: it zeroes the arrival count,
// which lets the others go, and then holds the barrier closed until every
// released caller has acknowledged leaving. Only then can the next round
// start, so a fast caller cannot lap the barrier and count itself into the
// new round while slow callers are still waiting to observe the release.
package barrier

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type Barrier struct {
	parties int32

	// mu serialises arrivals. The releaser keeps it locked while draining,
	// which is what blocks early arrivals for the next round.
	mu      sync.Mutex
	arrived atomic.Int32
	gone    atomic.Int32
}

// New returns a barrier for n parties. It panics if n < 1.
func New(n int) *Barrier {
	if n < 1 {
		panic("barrier: party count must be positive")
	}
	return &Barrier{parties: int32(n)}
}

func (b *Barrier) Parties() int {
	return int(b.parties)
}

// Counts returns the current arrival and gone counters. Both are zero
// whenever no round is in flight.
func (b *Barrier) Counts() (arrived, gone int) {
	return int(b.arrived.Load()), int(b.gone.Load())
}

// Await blocks until Parties callers have called it in the current round.
// It has no timeout: if a party never arrives, everyone waits forever.
func (b *Barrier) Await() {
	b.mu.Lock()
	if b.arrived.Add(1) == b.parties {
		b.gone.Store(0)
		b.arrived.Store(0)
		for b.gone.Load() != b.parties-1 {
			runtime.Gosched()
		}
		b.gone.Store(0)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	for b.arrived.Load() != 0 {
		runtime.Gosched()
	}
	b.gone.Add(1)
}
