package financing

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestInvoiceLocksSerializeSameInvoice(t *testing.T) {
	locks := newInvoiceLocks()
	id := uuid.New()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(id)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}

func TestInvoiceLocksAreIndependentPerInvoice(t *testing.T) {
	locks := newInvoiceLocks()
	first, second := uuid.New(), uuid.New()

	unlockFirst := locks.lock(first)
	done := make(chan struct{})
	go func() {
		unlock := locks.lock(second)
		unlock()
		close(done)
	}()
	<-done

	assert.Equal(t, 1, locks.size())
	unlockFirst()
	assert.Equal(t, 0, locks.size())
}
