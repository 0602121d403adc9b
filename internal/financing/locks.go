package financing

import (
	"sync"

	"github.com/google/uuid"
)

// invoiceLocks serializes work on a single invoice while letting different
// invoices proceed in parallel. Entries are dropped once no holder or waiter
// references them.
type invoiceLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*invoiceLock
}

type invoiceLock struct {
	mu   sync.Mutex
	refs int
}

func newInvoiceLocks() *invoiceLocks {
	return &invoiceLocks{locks: make(map[uuid.UUID]*invoiceLock)}
}

// lock blocks until id is held and returns the matching unlock
func (l *invoiceLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &invoiceLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// size reports how many invoices currently have a holder or waiter
func (l *invoiceLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
