package financing

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populate leaves one pending, one funded and one settled invoice
func populate(t *testing.T, tl *testLedger) {
	t.Helper()
	tl.createInvoice(t, "0xissuer", "5.8", 750)
	funded := tl.createInvoice(t, "0xissuer", "12.5", 620)
	settled := tl.createInvoice(t, "0xother", "3.2", 850)
	tl.invest(t, funded, "0xinvestor", "12.5", "12")
	tl.invest(t, settled, "0xinvestor", "3.2", "15")
	_, err := tl.ledger.Settle(context.Background(), settled.ID.String())
	require.NoError(t, err)
}

func snapshotJSON(t *testing.T, snap *Snapshot) string {
	t.Helper()
	copied := *snap
	copied.TakenAt = time.Time{}
	data, err := json.Marshal(copied)
	require.NoError(t, err)
	return string(data)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newTestLedger(t, NewMemoryStore())
	populate(t, source)

	snap, err := ExportSnapshot(ctx, source.store)
	require.NoError(t, err)
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Len(t, snap.Invoices, 3)
	assert.Len(t, snap.Investments, 2)
	assert.Len(t, snap.Participants, 3)

	path := filepath.Join(t.TempDir(), "snapshots", "ledger.json")
	require.NoError(t, WriteSnapshotFile(path, snap))
	loaded, err := ReadSnapshotFile(path)
	require.NoError(t, err)

	target := NewMemoryStore()
	require.NoError(t, RestoreSnapshot(ctx, target, loaded))

	again, err := ExportSnapshot(ctx, target)
	require.NoError(t, err)
	assert.JSONEq(t, snapshotJSON(t, snap), snapshotJSON(t, again))

	// restored state keeps serving ledger operations
	restored := newTestLedger(t, target)
	stats, err := restored.queries.PlatformStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FinancedInvoices)
	assertDecimal(t, "15.7", stats.TotalVolume)
}

func TestSnapshotRestoreIntoSQLite(t *testing.T) {
	ctx := context.Background()
	source := newTestLedger(t, NewMemoryStore())
	populate(t, source)

	snap, err := ExportSnapshot(ctx, source.store)
	require.NoError(t, err)

	target := newSQLiteStore(t)
	require.NoError(t, RestoreSnapshot(ctx, target, snap))

	again, err := ExportSnapshot(ctx, target)
	require.NoError(t, err)
	require.Len(t, again.Invoices, len(snap.Invoices))
	require.Len(t, again.Investments, len(snap.Investments))
	require.Len(t, again.Participants, len(snap.Participants))

	for i, invoice := range snap.Invoices {
		assert.Equal(t, invoice.ID, again.Invoices[i].ID)
		assert.Equal(t, invoice.Status, again.Invoices[i].Status)
		assertDecimal(t, invoice.Amount.String(), again.Invoices[i].Amount)
	}
	for i, investment := range snap.Investments {
		assert.Equal(t, investment.ID, again.Investments[i].ID)
		assert.Equal(t, investment.Status, again.Investments[i].Status)
		assert.Equal(t, investment.ReturnAmount.Valid, again.Investments[i].ReturnAmount.Valid)
	}
	for i, participant := range snap.Participants {
		assert.Equal(t, participant.Address, again.Participants[i].Address)
		assertDecimal(t, participant.TotalInvested.String(), again.Participants[i].TotalInvested)
		assertDecimal(t, participant.TotalReturned.String(), again.Participants[i].TotalReturned)
	}
}

func TestSnapshotRestoreRejects(t *testing.T) {
	ctx := context.Background()
	source := newTestLedger(t, NewMemoryStore())
	populate(t, source)
	snap, err := ExportSnapshot(ctx, source.store)
	require.NoError(t, err)

	err = RestoreSnapshot(ctx, source.store, snap)
	assert.ErrorIs(t, err, ErrStoreNotEmpty)

	future := *snap
	future.Version = SnapshotVersion + 1
	assert.Error(t, RestoreSnapshot(ctx, NewMemoryStore(), &future))
	assert.Error(t, RestoreSnapshot(ctx, NewMemoryStore(), nil))
}

func TestReadSnapshotFileMissing(t *testing.T) {
	_, err := ReadSnapshotFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
