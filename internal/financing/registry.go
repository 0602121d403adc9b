package financing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/observability"
	"invoice-financing/ledger-backend/pkg/workflows"
)

// DefaultPageSize caps invoice listings when no page size is configured
const DefaultPageSize = 50

// Options carries the collaborators shared by the registry, ledger and queries
type Options struct {
	PageSize int
	Events   EventSink
	Metrics  *observability.LedgerMetrics
	Now      func() time.Time
}

// Registry owns invoices and their lifecycle
type Registry struct {
	store     Store
	directory *Directory
	machine   *workflows.StateMachine
	locks     *invoiceLocks
	events    EventSink
	metrics   *observability.LedgerMetrics
	logger    *zap.Logger
	now       func() time.Time
	pageSize  int
}

// CreatedInvoice is a new invoice plus the defaults applied to its input
type CreatedInvoice struct {
	Invoice  *Invoice         `json:"invoice"`
	Defaults []AppliedDefault `json:"applied_defaults"`
}

// NewInvoiceStateMachine returns the pending -> funded -> settled lifecycle
func NewInvoiceStateMachine() *workflows.StateMachine {
	return workflows.NewStateMachine(map[string][]string{
		string(InvoiceStatusPending): {string(InvoiceStatusFunded)},
		string(InvoiceStatusFunded):  {string(InvoiceStatusSettled)},
		string(InvoiceStatusSettled): {},
	})
}

// NewRegistry creates the invoice registry
func NewRegistry(store Store, directory *Directory, logger *zap.Logger, opts Options) *Registry {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Events == nil {
		opts.Events = discardSink{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	directory.now = opts.Now

	return &Registry{
		store:     store,
		directory: directory,
		machine:   NewInvoiceStateMachine(),
		locks:     newInvoiceLocks(),
		events:    opts.Events,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       opts.Now,
		pageSize:  opts.PageSize,
	}
}

// ParseID parses an invoice or investment identifier. Malformed identifiers
// cannot name a stored record and are reported as not found.
func ParseID(entity, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, notFound(entity, raw)
	}
	return id, nil
}

// Create records a new pending invoice and registers its issuer
func (r *Registry) Create(ctx context.Context, in InvoiceInput) (created *CreatedInvoice, err error) {
	defer r.observe("create_invoice", time.Now(), &err)

	normalized, defaults, err := NormalizeInvoiceInput(in)
	if err != nil {
		return nil, err
	}

	now := r.now()
	invoice := &Invoice{
		ID:            uuid.New(),
		TokenID:       normalized.TokenID,
		InvoiceNumber: normalized.InvoiceNumber,
		IssuerAddress: normalized.IssuerAddress,
		BuyerAddress:  normalized.BuyerAddress,
		Amount:        normalized.Amount,
		DueDate:       normalized.DueDate,
		Description:   normalized.Description,
		DocumentRef:   normalized.DocumentRef,
		RiskScore:     normalized.RiskScore,
		Status:        InvoiceStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if invoice.InvoiceNumber == "" {
		invoice.InvoiceNumber = fmt.Sprintf("INV-%d", now.UnixMilli())
	}
	if invoice.DocumentRef == "" {
		invoice.DocumentRef = "Qm" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	err = r.store.Atomic(ctx, func(tx Store) error {
		if err := tx.Invoices().Create(ctx, invoice); err != nil {
			return err
		}
		_, err := r.directory.withStore(tx).Upsert(ctx, invoice.IssuerAddress, RoleIssuer)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, d := range defaults {
		r.logger.Warn("Invoice field defaulted",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("field", d.Field),
			zap.String("received", d.Received),
			zap.String("reason", d.Reason))
	}
	r.logger.Info("Invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("issuer", invoice.IssuerAddress),
		zap.String("amount", invoice.Amount.String()))

	r.events.Publish(ctx, Event{
		Type:       EventInvoiceCreated,
		InvoiceID:  invoice.ID,
		Address:    invoice.IssuerAddress,
		Amount:     invoice.Amount,
		Status:     invoice.Status,
		OccurredAt: now,
	})

	return &CreatedInvoice{Invoice: invoice, Defaults: defaults}, nil
}

// MarkFunded moves a pending invoice to funded
func (r *Registry) MarkFunded(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.lockedTransition(ctx, id, InvoiceStatusFunded, EventInvoiceFunded)
}

// MarkSettled moves a funded invoice to settled
func (r *Registry) MarkSettled(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.lockedTransition(ctx, id, InvoiceStatusSettled, EventInvoiceSettled)
}

func (r *Registry) lockedTransition(ctx context.Context, id uuid.UUID, next InvoiceStatus, eventType EventType) (invoice *Invoice, err error) {
	defer r.observe("transition_invoice", time.Now(), &err)

	unlock := r.locks.lock(id)
	defer unlock()

	invoice, err = r.transition(ctx, r.store, id, next)
	if err != nil {
		return nil, err
	}
	r.events.Publish(ctx, Event{
		Type:       eventType,
		InvoiceID:  invoice.ID,
		Amount:     invoice.Amount,
		Status:     invoice.Status,
		OccurredAt: invoice.UpdatedAt,
	})
	return invoice, nil
}

// transition applies a lifecycle step through store. Callers hold the
// invoice lock.
func (r *Registry) transition(ctx context.Context, store Store, id uuid.UUID, next InvoiceStatus) (*Invoice, error) {
	invoice, err := store.Invoices().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.machine.CanTransition(string(invoice.Status), string(next)) {
		return nil, statusConflict(ErrInvalidTransition, id.String(), invoice.Status)
	}
	return store.Invoices().TransitionStatus(ctx, id, invoice.Status, next, r.now())
}

// Get returns a single invoice
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.store.Invoices().GetByID(ctx, id)
}

// List returns invoices newest first, at most one page
func (r *Registry) List(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	if filter.Limit <= 0 || filter.Limit > r.pageSize {
		filter.Limit = r.pageSize
	}
	return r.store.Invoices().List(ctx, filter, OrderByCreated)
}

// ListAll returns every matching invoice newest first, without paging
func (r *Registry) ListAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	filter.Limit = 0
	return r.store.Invoices().List(ctx, filter, OrderByCreated)
}

// Admin exposes operator-only operations
func (r *Registry) Admin() *RegistryAdmin {
	return &RegistryAdmin{registry: r}
}

// RegistryAdmin holds operations that bypass the invoice lifecycle
type RegistryAdmin struct {
	registry *Registry
}

// SetStatus overwrites the invoice status without lifecycle checks
func (a *RegistryAdmin) SetStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus) (invoice *Invoice, err error) {
	r := a.registry
	defer r.observe("set_invoice_status", time.Now(), &err)

	if !status.Valid() {
		return nil, invalidInput("status", fmt.Sprintf("unknown status %q", status))
	}

	unlock := r.locks.lock(id)
	defer unlock()

	previous, err := r.store.Invoices().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	invoice, err = r.store.Invoices().ForceStatus(ctx, id, status, r.now())
	if err != nil {
		return nil, err
	}

	r.logger.Warn("Invoice status overridden",
		zap.String("invoice_id", id.String()),
		zap.String("from", string(previous.Status)),
		zap.String("to", string(status)))
	r.events.Publish(ctx, Event{
		Type:       EventInvoiceOverridden,
		InvoiceID:  invoice.ID,
		Amount:     invoice.Amount,
		Status:     invoice.Status,
		OccurredAt: invoice.UpdatedAt,
	})
	return invoice, nil
}

func (r *Registry) observe(operation string, started time.Time, err *error) {
	r.metrics.ObserveOperation(operation, outcomeOf(*err), time.Since(started))
}

// outcomeOf maps an operation error to its metrics outcome label
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, ErrInvalidInput):
		return observability.OutcomeInvalid
	case errors.Is(err, ErrAlreadyFunded), errors.Is(err, ErrNotFunded), errors.Is(err, ErrInvalidTransition):
		return observability.OutcomeConflict
	default:
		return observability.OutcomeError
	}
}
