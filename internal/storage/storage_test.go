package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/config"
	"invoice-financing/ledger-backend/internal/financing"
)

func seedInvoice(t *testing.T, store financing.Store) *financing.Invoice {
	t.Helper()
	logger := zap.NewNop()
	directory := financing.NewDirectory(store, logger)
	registry := financing.NewRegistry(store, directory, logger, financing.Options{})

	created, err := registry.Create(context.Background(), financing.InvoiceInput{
		IssuerAddress: "0xissuer",
		BuyerAddress:  "0xbuyer",
		Amount:        financing.Lenient("12.5"),
		DueDate:       "2025-06-30",
		RiskScore:     financing.Lenient("700"),
	})
	require.NoError(t, err)
	return created.Invoice
}

func TestOpenMemoryWithoutSnapshot(t *testing.T) {
	cfg := config.Default()
	cfg.Snapshot.Path = filepath.Join(t.TempDir(), "missing.json")

	store, closeStore, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	count, err := store.Invoices().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSaveThenOpenMemoryRestores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	source := financing.NewMemoryStore()
	invoice := seedInvoice(t, source)
	snap, err := Save(ctx, source, path)
	require.NoError(t, err)
	assert.Len(t, snap.Invoices, 1)

	cfg := config.Default()
	cfg.Snapshot.Path = path
	store, closeStore, err := Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	restored, err := store.Invoices().GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoiceNumber, restored.InvoiceNumber)
	assert.True(t, invoice.Amount.Equal(restored.Amount))
}

func TestRestoreSkipsEmptyPath(t *testing.T) {
	restored, err := Restore(context.Background(), financing.NewMemoryStore(), "", zap.NewNop())
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestOpenSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "ledger.db")

	store, closeStore, err := Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	invoice := seedInvoice(t, store)
	closeStore()

	reopened, closeReopened, err := Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeReopened()

	got, err := reopened.Invoices().GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, financing.InvoiceStatusPending, got.Status)
	assert.Equal(t, "0xissuer", got.IssuerAddress)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"
	_, _, err := Open(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
