package financing

import (
	"invoice-financing/ledger-backend/internal/financing/export"
)

var invoiceColumns = []string{
	"id", "token_id", "invoice_number", "issuer_address", "buyer_address", "amount",
	"due_date", "risk_score", "risk_band", "status", "created_at", "updated_at",
}

var investmentColumns = []string{
	"id", "invoice_id", "investor_address", "principal", "interest_rate", "status",
	"created_at", "settled_at", "return_amount",
}

// InvoiceTable renders invoices for export
func InvoiceTable(name string, invoices []Invoice) (*export.Table, error) {
	table := &export.Table{Name: name, Columns: invoiceColumns}
	for _, inv := range invoices {
		var tokenID any
		if inv.TokenID != nil {
			tokenID = *inv.TokenID
		}
		err := table.AddRow(
			inv.ID.String(), tokenID, inv.InvoiceNumber, inv.IssuerAddress, inv.BuyerAddress, inv.Amount,
			export.Date(inv.DueDate), inv.RiskScore, string(inv.RiskBand()), string(inv.Status), inv.CreatedAt, inv.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

// InvestmentTable renders investments for export
func InvestmentTable(name string, investments []Investment) (*export.Table, error) {
	table := &export.Table{Name: name, Columns: investmentColumns}
	for _, inv := range investments {
		err := table.AddRow(
			inv.ID.String(), inv.InvoiceID.String(), inv.InvestorAddress, inv.Principal, inv.InterestRate,
			string(inv.Status), inv.CreatedAt, inv.SettledAt, inv.ReturnAmount,
		)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

// PortfolioTables renders a portfolio as summary, issued invoice and
// investment sheets.
func PortfolioTables(p *Portfolio) ([]*export.Table, error) {
	summary := &export.Table{Name: "Summary", Columns: []string{"field", "value"}}
	rows := [][2]any{
		{"address", p.Address},
		{"role", string(p.Participant.Role)},
		{"verification", string(p.Participant.Verification)},
		{"registered", p.Registered},
		{"total_invested", p.Participant.TotalInvested},
		{"total_returned", p.Participant.TotalReturned},
		{"created_invoices", len(p.CreatedInvoices)},
		{"investments", len(p.Investments)},
	}
	for _, row := range rows {
		if err := summary.AddRow(row[0], row[1]); err != nil {
			return nil, err
		}
	}

	created, err := InvoiceTable("Created Invoices", p.CreatedInvoices)
	if err != nil {
		return nil, err
	}
	investments, err := InvestmentTable("Investments", p.Investments)
	if err != nil {
		return nil, err
	}
	return []*export.Table{summary, created, investments}, nil
}
