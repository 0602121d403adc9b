package financing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeedDemoData(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tl := newTestLedger(t, store)

		seeded, err := SeedDemoData(ctx, tl.registry, tl.ledger, zap.NewNop())
		require.NoError(t, err)
		assert.True(t, seeded)

		stats, err := tl.queries.PlatformStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalInvoices)
		assert.Equal(t, 1, stats.PendingInvoices)
		assert.Equal(t, 1, stats.FundedInvoices)
		assert.Equal(t, 1, stats.SettledInvoices)
		assertDecimal(t, "15.7", stats.TotalVolume)

		investor, err := tl.directory.Get(ctx, DemoInvestor)
		require.NoError(t, err)
		assert.Equal(t, VerificationVerified, investor.Verification)
		assertDecimal(t, "15.7", investor.TotalInvested)
		assertDecimal(t, "0.48", investor.TotalReturned)

		issuer, err := tl.directory.Get(ctx, DemoIssuerB)
		require.NoError(t, err)
		assert.Equal(t, VerificationPending, issuer.Verification)

		again, err := SeedDemoData(ctx, tl.registry, tl.ledger, zap.NewNop())
		require.NoError(t, err)
		assert.False(t, again)

		count, err := store.Invoices().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}
