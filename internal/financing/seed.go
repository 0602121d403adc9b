package financing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Demo addresses used by SeedDemoData
const (
	DemoIssuerA  = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	DemoIssuerB  = "0x90f79bf6eb2c4f870365e785982e1f101e93b906"
	DemoInvestor = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
)

type demoInvoice struct {
	input  InvoiceInput
	target InvoiceStatus
	rate   string
}

// SeedDemoData populates an empty ledger with one pending, one funded and
// one settled invoice. It goes through the regular operations so every
// total stays consistent. It reports whether anything was seeded.
func SeedDemoData(ctx context.Context, registry *Registry, ledger *Ledger, logger *zap.Logger) (bool, error) {
	count, err := registry.store.Invoices().Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	now := time.Now().UTC()
	demo := []demoInvoice{
		{
			input: InvoiceInput{
				InvoiceNumber: "INV-2024-001",
				IssuerAddress: DemoIssuerA,
				BuyerAddress:  "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc",
				Amount:        Lenient("5.8"),
				DueDate:       now.AddDate(0, 0, 30).Format(time.RFC3339),
				Description:   "Web Development Services",
				DocumentRef:   "QmSample1",
				RiskScore:     Lenient("750"),
			},
			target: InvoiceStatusPending,
		},
		{
			input: InvoiceInput{
				InvoiceNumber: "INV-2024-002",
				IssuerAddress: DemoIssuerB,
				BuyerAddress:  "0x15d34aaf54267db7d7c367839aaf71a00a2c6a65",
				Amount:        Lenient("12.5"),
				DueDate:       now.AddDate(0, 0, 45).Format(time.RFC3339),
				Description:   "Manufacturing Equipment",
				DocumentRef:   "QmSample2",
				RiskScore:     Lenient("620"),
			},
			target: InvoiceStatusFunded,
			rate:   "12",
		},
		{
			input: InvoiceInput{
				InvoiceNumber: "INV-2024-003",
				IssuerAddress: DemoIssuerA,
				BuyerAddress:  "0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc",
				Amount:        Lenient("3.2"),
				DueDate:       now.AddDate(0, 0, -10).Format(time.RFC3339),
				Description:   "Consulting Services",
				DocumentRef:   "QmSample3",
				RiskScore:     Lenient("850"),
			},
			target: InvoiceStatusSettled,
			rate:   "15",
		},
	}

	for i, d := range demo {
		tokenID := int64(i + 1)
		d.input.TokenID = &tokenID

		created, err := registry.Create(ctx, d.input)
		if err != nil {
			return false, fmt.Errorf("failed to seed invoice %s: %w", d.input.InvoiceNumber, err)
		}
		if d.target == InvoiceStatusPending {
			continue
		}

		amount, _ := d.input.Amount.Decimal()
		_, err = ledger.Invest(ctx, InvestRequest{
			InvoiceID:       created.Invoice.ID.String(),
			InvestorAddress: DemoInvestor,
			Principal:       amount,
			InterestRate:    decimal.RequireFromString(d.rate),
		})
		if err != nil {
			return false, fmt.Errorf("failed to seed investment for %s: %w", d.input.InvoiceNumber, err)
		}
		if d.target == InvoiceStatusSettled {
			if _, err := ledger.Settle(ctx, created.Invoice.ID.String()); err != nil {
				return false, fmt.Errorf("failed to seed settlement for %s: %w", d.input.InvoiceNumber, err)
			}
		}
	}

	for _, address := range []string{DemoIssuerA, DemoInvestor} {
		if _, err := registry.directory.Verify(ctx, address); err != nil {
			return false, fmt.Errorf("failed to verify demo participant: %w", err)
		}
	}

	logger.Info("Demo data seeded", zap.Int("invoices", len(demo)))
	return true, nil
}
