package financing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceFilter narrows invoice listings. Zero values mean no constraint.
type InvoiceFilter struct {
	Status   *InvoiceStatus
	RiskBand *RiskBand
	Issuer   string
	Limit    int
}

// InvoiceOrder selects the timestamp invoice listings are sorted by (descending)
type InvoiceOrder int

const (
	OrderByCreated InvoiceOrder = iota
	OrderByUpdated
)

// InvoiceRepository owns invoice records
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, filter InvoiceFilter, order InvoiceOrder) ([]Invoice, error)
	Count(ctx context.Context) (int64, error)
	// TransitionStatus moves the invoice from expected to next and fails with
	// ErrInvalidTransition when the stored status is not expected.
	TransitionStatus(ctx context.Context, id uuid.UUID, expected, next InvoiceStatus, at time.Time) (*Invoice, error)
	// ForceStatus sets the status without checking the current one.
	ForceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus, at time.Time) (*Invoice, error)
}

// InvestmentRepository owns investment records
type InvestmentRepository interface {
	Create(ctx context.Context, investment *Investment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Investment, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Investment, error)
	ListByInvestor(ctx context.Context, address string) ([]Investment, error)
	ListRecent(ctx context.Context, limit int) ([]Investment, error)
	ListAll(ctx context.Context) ([]Investment, error)
	MarkSettled(ctx context.Context, id uuid.UUID, at time.Time, returnAmount decimal.Decimal) (*Investment, error)
}

// ParticipantRepository owns participant records
type ParticipantRepository interface {
	Create(ctx context.Context, participant *Participant) error
	Get(ctx context.Context, address string) (*Participant, error)
	// GetForUpdate reads the participant and holds it until the unit of work ends.
	GetForUpdate(ctx context.Context, address string) (*Participant, error)
	Save(ctx context.Context, participant *Participant) error
	List(ctx context.Context) ([]Participant, error)
}

// Store groups the three ledger collections
type Store interface {
	Invoices() InvoiceRepository
	Investments() InvestmentRepository
	Participants() ParticipantRepository
	// Atomic runs fn as a single unit of work; every write made through the
	// Store passed to fn is applied together or not at all.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
