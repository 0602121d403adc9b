package financing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"invoice-financing/ledger-backend/internal/dashboard"
)

var testEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// stepClock advances one second on every reading so ordering is deterministic
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: testEpoch}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingSink keeps every published event
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(ctx context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type testLedger struct {
	store     Store
	clock     *stepClock
	events    *recordingSink
	directory *Directory
	registry  *Registry
	ledger    *Ledger
	queries   *Queries
	cache     *dashboard.AggregateCache
}

func newTestLedger(t *testing.T, store Store) *testLedger {
	t.Helper()

	clock := newStepClock()
	events := &recordingSink{}
	cache := dashboard.NewAggregateCache(time.Minute)
	t.Cleanup(cache.Stop)

	logger := zap.NewNop()
	queries := NewQueries(store, cache, logger, QueryOptions{Now: clock.Now})
	directory := NewDirectory(store, logger)
	registry := NewRegistry(store, directory, logger, Options{
		PageSize: 5,
		Events:   Fanout{events, queries},
		Now:      clock.Now,
	})
	return &testLedger{
		store:     store,
		clock:     clock,
		events:    events,
		directory: directory,
		registry:  registry,
		ledger:    NewLedger(registry, logger),
		queries:   queries,
		cache:     cache,
	}
}

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(SQLiteDialector(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return NewGormStore(db)
}

// forEachStore runs the test against the in-memory store and a sqlite-backed
// gorm store
func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteStore(t))
	})
}

func (tl *testLedger) createInvoice(t *testing.T, issuer, amount string, risk int) *Invoice {
	t.Helper()
	created, err := tl.registry.Create(context.Background(), InvoiceInput{
		IssuerAddress: issuer,
		BuyerAddress:  "0xbuyer",
		Amount:        Lenient(amount),
		DueDate:       "2025-06-30",
		Description:   "Consulting Services",
		RiskScore:     Lenient(decimal.NewFromInt(int64(risk)).String()),
	})
	require.NoError(t, err)
	return created.Invoice
}

func (tl *testLedger) invest(t *testing.T, invoice *Invoice, investor, principal, rate string) *Investment {
	t.Helper()
	investment, err := tl.ledger.Invest(context.Background(), InvestRequest{
		InvoiceID:       invoice.ID.String(),
		InvestorAddress: investor,
		Principal:       decimal.RequireFromString(principal),
		InterestRate:    decimal.RequireFromString(rate),
	})
	require.NoError(t, err)
	return investment
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}
