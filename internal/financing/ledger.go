package financing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/financing/calculation"
	"invoice-financing/ledger-backend/internal/observability"
)

// Ledger owns investments and performs funding and settlement
type Ledger struct {
	store     Store
	registry  *Registry
	directory *Directory
	engine    *calculation.Engine
	locks     *invoiceLocks
	events    EventSink
	metrics   *observability.LedgerMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// SettlementLine is one investor's share of a settlement
type SettlementLine struct {
	InvestmentID uuid.UUID          `json:"investment_id"`
	Investor     string             `json:"investor"`
	Principal    decimal.Decimal    `json:"principal"`
	InterestRate decimal.Decimal    `json:"interest_rate"`
	Interest     decimal.Decimal    `json:"interest"`
	TotalReturn  decimal.Decimal    `json:"total_return"`
	Steps        []calculation.Step `json:"steps"`
}

// SettlementResult is a settled invoice with its distribution breakdown
type SettlementResult struct {
	Invoice        *Invoice         `json:"invoice"`
	Settlements    []SettlementLine `json:"settlements"`
	TotalPrincipal decimal.Decimal  `json:"total_principal"`
	TotalInterest  decimal.Decimal  `json:"total_interest"`
}

// InvestorSummary aggregates the investments of one address
type InvestorSummary struct {
	Address        string          `json:"address"`
	Investments    []Investment    `json:"investments"`
	Total          int             `json:"total"`
	Active         int             `json:"active"`
	Settled        int             `json:"settled"`
	TotalPrincipal decimal.Decimal `json:"total_principal"`
	TotalReturns   decimal.Decimal `json:"total_returns"`
}

// InvestmentEstimate is an investment with its projected return
type InvestmentEstimate struct {
	Investment        *Investment        `json:"investment"`
	Invoice           *Invoice           `json:"invoice"`
	EstimatedInterest decimal.Decimal    `json:"estimated_interest"`
	EstimatedReturn   decimal.Decimal    `json:"estimated_return"`
	Steps             []calculation.Step `json:"steps"`
}

// NewLedger creates the investment ledger on top of the registry. Both share
// the same store, invoice locks and event sink.
func NewLedger(registry *Registry, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:     registry.store,
		registry:  registry,
		directory: registry.directory,
		engine:    calculation.NewEngine(),
		locks:     registry.locks,
		events:    registry.events,
		metrics:   registry.metrics,
		logger:    logger,
		now:       registry.now,
	}
}

// Invest commits principal against a pending invoice and marks it funded
func (l *Ledger) Invest(ctx context.Context, req InvestRequest) (investment *Investment, err error) {
	defer l.observe("invest", time.Now(), &err)

	if err := req.validate(); err != nil {
		return nil, err
	}
	invoiceID, err := ParseID("invoice", req.InvoiceID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(invoiceID)
	defer unlock()

	var funded *Invoice
	err = l.store.Atomic(ctx, func(tx Store) error {
		invoice, err := tx.Invoices().GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceStatusPending {
			return statusConflict(ErrAlreadyFunded, invoiceID.String(), invoice.Status)
		}

		funded, err = l.registry.transition(ctx, tx, invoiceID, InvoiceStatusFunded)
		if err != nil {
			var conflict *LedgerError
			if errors.As(err, &conflict) && errors.Is(err, ErrInvalidTransition) {
				return statusConflict(ErrAlreadyFunded, invoiceID.String(), conflict.Status)
			}
			return err
		}

		investment = &Investment{
			ID:              uuid.New(),
			InvoiceID:       invoiceID,
			InvestorAddress: NormalizeAddress(req.InvestorAddress),
			Principal:       req.Principal,
			InterestRate:    req.InterestRate,
			Status:          InvestmentStatusActive,
			CreatedAt:       funded.UpdatedAt,
		}
		if err := tx.Investments().Create(ctx, investment); err != nil {
			return err
		}
		_, err = l.directory.withStore(tx).RecordInvestment(ctx, investment.InvestorAddress, investment.Principal)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Invoice funded",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("investment_id", investment.ID.String()),
		zap.String("investor", investment.InvestorAddress),
		zap.String("principal", investment.Principal.String()))
	l.metrics.AddPrincipal(investment.Principal.InexactFloat64())

	investmentID := investment.ID
	l.events.Publish(ctx, Event{
		Type:       EventInvoiceFunded,
		InvoiceID:  invoiceID,
		Amount:     funded.Amount,
		Status:     funded.Status,
		OccurredAt: funded.UpdatedAt,
	})
	l.events.Publish(ctx, Event{
		Type:         EventInvestmentCreated,
		InvoiceID:    invoiceID,
		InvestmentID: &investmentID,
		Address:      investment.InvestorAddress,
		Amount:       investment.Principal,
		Status:       funded.Status,
		OccurredAt:   investment.CreatedAt,
	})
	return investment, nil
}

// Settle closes a funded invoice and distributes principal plus interest to
// every active investment against it.
func (l *Ledger) Settle(ctx context.Context, rawInvoiceID string) (result *SettlementResult, err error) {
	defer l.observe("settle", time.Now(), &err)

	invoiceID, err := ParseID("invoice", rawInvoiceID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(invoiceID)
	defer unlock()

	err = l.store.Atomic(ctx, func(tx Store) error {
		invoice, err := tx.Invoices().GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceStatusFunded {
			return statusConflict(ErrNotFunded, invoiceID.String(), invoice.Status)
		}

		settled, err := l.registry.transition(ctx, tx, invoiceID, InvoiceStatusSettled)
		if err != nil {
			var conflict *LedgerError
			if errors.As(err, &conflict) && errors.Is(err, ErrInvalidTransition) {
				return statusConflict(ErrNotFunded, invoiceID.String(), conflict.Status)
			}
			return err
		}

		investments, err := tx.Investments().ListByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}

		active := make([]Investment, 0, len(investments))
		positions := make([]calculation.Position, 0, len(investments))
		for _, inv := range investments {
			if inv.Status != InvestmentStatusActive {
				continue
			}
			active = append(active, inv)
			positions = append(positions, calculation.Position{Principal: inv.Principal, InterestRate: inv.InterestRate})
		}
		calcs, totalPrincipal, totalInterest := l.engine.SettleAll(positions)

		result = &SettlementResult{
			Invoice:        settled,
			Settlements:    make([]SettlementLine, 0, len(active)),
			TotalPrincipal: totalPrincipal,
			TotalInterest:  totalInterest,
		}
		directory := l.directory.withStore(tx)
		for i, inv := range active {
			calc := calcs[i]
			if _, err := tx.Investments().MarkSettled(ctx, inv.ID, settled.UpdatedAt, calc.TotalReturn); err != nil {
				return err
			}
			if _, err := directory.RecordReturn(ctx, inv.InvestorAddress, calc.Interest); err != nil {
				return err
			}
			result.Settlements = append(result.Settlements, SettlementLine{
				InvestmentID: inv.ID,
				Investor:     inv.InvestorAddress,
				Principal:    calc.Principal,
				InterestRate: calc.InterestRate,
				Interest:     calc.Interest,
				TotalReturn:  calc.TotalReturn,
				Steps:        calc.Steps,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Invoice settled",
		zap.String("invoice_id", invoiceID.String()),
		zap.Int("investments", len(result.Settlements)),
		zap.String("interest", result.TotalInterest.String()))
	l.metrics.AddInterest(result.TotalInterest.InexactFloat64())

	l.events.Publish(ctx, Event{
		Type:       EventInvoiceSettled,
		InvoiceID:  invoiceID,
		Amount:     result.Invoice.Amount,
		Status:     result.Invoice.Status,
		OccurredAt: result.Invoice.UpdatedAt,
	})
	return result, nil
}

// Get returns a single investment
func (l *Ledger) Get(ctx context.Context, rawID string) (*Investment, error) {
	id, err := ParseID("investment", rawID)
	if err != nil {
		return nil, err
	}
	return l.store.Investments().GetByID(ctx, id)
}

// List returns every investment on the ledger, oldest first
func (l *Ledger) List(ctx context.Context) ([]Investment, error) {
	investments, err := l.store.Investments().ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if investments == nil {
		investments = make([]Investment, 0)
	}
	return investments, nil
}

// ListByInvoice returns the investments made against an invoice
func (l *Ledger) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Investment, error) {
	if _, err := l.store.Invoices().GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return l.store.Investments().ListByInvoice(ctx, invoiceID)
}

// ListByInvestor summarises the investments of an address. Unknown
// addresses yield an empty summary.
func (l *Ledger) ListByInvestor(ctx context.Context, address string) (*InvestorSummary, error) {
	address = NormalizeAddress(address)
	investments, err := l.store.Investments().ListByInvestor(ctx, address)
	if err != nil {
		return nil, err
	}

	summary := &InvestorSummary{
		Address:        address,
		Investments:    investments,
		Total:          len(investments),
		TotalPrincipal: decimal.Zero,
		TotalReturns:   decimal.Zero,
	}
	for _, inv := range investments {
		summary.TotalPrincipal = summary.TotalPrincipal.Add(inv.Principal)
		switch inv.Status {
		case InvestmentStatusActive:
			summary.Active++
		case InvestmentStatusSettled:
			summary.Settled++
			if inv.ReturnAmount.Valid {
				summary.TotalReturns = summary.TotalReturns.Add(inv.ReturnAmount.Decimal)
			}
		}
	}
	return summary, nil
}

// Estimate projects the interest an investment earns at settlement
func (l *Ledger) Estimate(ctx context.Context, rawID string) (*InvestmentEstimate, error) {
	investment, err := l.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	invoice, err := l.store.Invoices().GetByID(ctx, investment.InvoiceID)
	if err != nil {
		return nil, err
	}
	calc := l.engine.Settle(investment.Principal, investment.InterestRate)
	return &InvestmentEstimate{
		Investment:        investment,
		Invoice:           invoice,
		EstimatedInterest: calc.Interest,
		EstimatedReturn:   calc.TotalReturn,
		Steps:             calc.Steps,
	}, nil
}

func (l *Ledger) observe(operation string, started time.Time, err *error) {
	if *err != nil && !errors.Is(*err, ErrInvalidInput) && !errors.Is(*err, ErrNotFound) {
		l.logger.Debug("Ledger operation rejected", zap.String("operation", operation), zap.Error(*err))
	}
	l.metrics.ObserveOperation(operation, outcomeOf(*err), time.Since(started))
}
