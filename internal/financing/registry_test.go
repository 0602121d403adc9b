package financing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreate(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tl := newTestLedger(t, store)

		created, err := tl.registry.Create(ctx, InvoiceInput{
			IssuerAddress: "0xIssuer",
			Amount:        Lenient("not-a-number"),
			DueDate:       "2025-06-30",
		})
		require.NoError(t, err)

		invoice := created.Invoice
		assert.Equal(t, InvoiceStatusPending, invoice.Status)
		assert.True(t, invoice.Amount.IsZero())
		assert.Equal(t, DefaultRiskScore, invoice.RiskScore)
		assert.True(t, strings.HasPrefix(invoice.InvoiceNumber, "INV-"))
		assert.True(t, strings.HasPrefix(invoice.DocumentRef, "Qm"))
		assert.Len(t, created.Defaults, 2)

		issuer, err := tl.directory.Get(ctx, "0xissuer")
		require.NoError(t, err)
		assert.Equal(t, RoleIssuer, issuer.Role)

		stored, err := tl.registry.Get(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.InvoiceNumber, stored.InvoiceNumber)
		assert.Equal(t, []EventType{EventInvoiceCreated}, tl.events.types())
	})
}

func TestRegistryCreateRejectsMissingIssuer(t *testing.T) {
	tl := newTestLedger(t, NewMemoryStore())

	_, err := tl.registry.Create(context.Background(), InvoiceInput{DueDate: "2025-06-30"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	count, err := tl.store.Invoices().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, tl.events.types())
}

func TestRegistryLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tl := newTestLedger(t, store)
		invoice := tl.createInvoice(t, "0xissuer", "10", 750)

		_, err := tl.registry.MarkSettled(ctx, invoice.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		funded, err := tl.registry.MarkFunded(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusFunded, funded.Status)
		assert.True(t, funded.UpdatedAt.After(invoice.UpdatedAt))

		_, err = tl.registry.MarkFunded(ctx, invoice.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		settled, err := tl.registry.MarkSettled(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusSettled, settled.Status)

		for _, next := range []func(context.Context, uuid.UUID) (*Invoice, error){tl.registry.MarkFunded, tl.registry.MarkSettled} {
			_, err = next(ctx, invoice.ID)
			var ledgerErr *LedgerError
			require.ErrorAs(t, err, &ledgerErr)
			assert.Equal(t, InvoiceStatusSettled, ledgerErr.Status)
		}

		_, err = tl.registry.MarkFunded(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRegistryListFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tl := newTestLedger(t, store)

		low := tl.createInvoice(t, "0xa", "1", 800)
		medium := tl.createInvoice(t, "0xb", "2", 500)
		high := tl.createInvoice(t, "0xa", "3", 100)
		_, err := tl.registry.MarkFunded(ctx, medium.ID)
		require.NoError(t, err)

		all, err := tl.registry.List(ctx, InvoiceFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []uuid.UUID{high.ID, medium.ID, low.ID}, ids(all))

		funded := InvoiceStatusFunded
		byStatus, err := tl.registry.List(ctx, InvoiceFilter{Status: &funded})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{medium.ID}, ids(byStatus))

		band := RiskBandLow
		byBand, err := tl.registry.List(ctx, InvoiceFilter{RiskBand: &band})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{low.ID}, ids(byBand))

		byIssuer, err := tl.registry.List(ctx, InvoiceFilter{Issuer: "0xA"})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{high.ID, low.ID}, ids(byIssuer))
	})
}

func TestRegistryListRiskBandBoundaries(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tl := newTestLedger(t, store)

		byScore := make(map[int]uuid.UUID)
		for _, score := range []int{0, 399, 400, 699, 700, 1000} {
			byScore[score] = tl.createInvoice(t, "0xissuer", "1", score).ID
		}

		tests := []struct {
			band RiskBand
			want []int
		}{
			{RiskBandHigh, []int{0, 399}},
			{RiskBandMedium, []int{400, 699}},
			{RiskBandLow, []int{700, 1000}},
		}
		for _, tt := range tests {
			band := tt.band
			got, err := tl.registry.List(ctx, InvoiceFilter{RiskBand: &band})
			require.NoError(t, err)

			want := make([]uuid.UUID, 0, len(tt.want))
			for _, score := range tt.want {
				want = append(want, byScore[score])
			}
			assert.ElementsMatch(t, want, ids(got), "band %s", band)
		}
	})
}

func TestRegistryListCapsPageSize(t *testing.T) {
	ctx := context.Background()
	tl := newTestLedger(t, NewMemoryStore())
	for i := 0; i < 7; i++ {
		tl.createInvoice(t, "0xissuer", "1", 500)
	}

	page, err := tl.registry.List(ctx, InvoiceFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, page, 5)

	small, err := tl.registry.List(ctx, InvoiceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, small, 2)

	everything, err := tl.registry.ListAll(ctx, InvoiceFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, everything, 7)
}

func TestRegistryAdminSetStatusBypassesLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		tl := newTestLedger(t, store)
		invoice := tl.createInvoice(t, "0xissuer", "5", 750)
		tl.invest(t, invoice, "0xinvestor", "5", "10")
		_, err := tl.ledger.Settle(ctx, invoice.ID.String())
		require.NoError(t, err)

		// settled -> pending is not a lifecycle transition, only an override
		reverted, err := tl.registry.Admin().SetStatus(ctx, invoice.ID, InvoiceStatusPending)
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusPending, reverted.Status)
		assert.Contains(t, tl.events.types(), EventInvoiceOverridden)

		_, err = tl.registry.Admin().SetStatus(ctx, invoice.ID, InvoiceStatus("archived"))
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = tl.registry.Admin().SetStatus(ctx, uuid.New(), InvoiceStatusFunded)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestParseID(t *testing.T) {
	id := uuid.New()
	parsed, err := ParseID("invoice", " "+id.String()+" ")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseID("invoice", "12")
	assert.ErrorIs(t, err, ErrNotFound)
}

func ids(invoices []Invoice) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(invoices))
	for _, invoice := range invoices {
		out = append(out, invoice.ID)
	}
	return out
}
