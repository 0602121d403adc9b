package financing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps the three collections in process memory. Readers hold
// the read lock, units of work hold the write lock for their whole duration
// and are rolled back through an undo journal when they fail.
type MemoryStore struct {
	mu sync.RWMutex

	invoices     map[uuid.UUID]*Invoice
	invoiceOrder []uuid.UUID

	investments     map[uuid.UUID]*Investment
	investmentOrder []uuid.UUID

	participants     map[string]*Participant
	participantOrder []string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invoices:     make(map[uuid.UUID]*Invoice),
		investments:  make(map[uuid.UUID]*Investment),
		participants: make(map[string]*Participant),
	}
}

func (s *MemoryStore) Invoices() InvoiceRepository {
	return &memoryInvoices{memoryScope{store: s}}
}

func (s *MemoryStore) Investments() InvestmentRepository {
	return &memoryInvestments{memoryScope{store: s}}
}

func (s *MemoryStore) Participants() ParticipantRepository {
	return &memoryParticipants{memoryScope{store: s}}
}

// Atomic runs fn while holding the write lock
func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memoryTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memoryTx) Invoices() InvoiceRepository {
	return &memoryInvoices{memoryScope{store: t.store, tx: t}}
}

func (t *memoryTx) Investments() InvestmentRepository {
	return &memoryInvestments{memoryScope{store: t.store, tx: t}}
}

func (t *memoryTx) Participants() ParticipantRepository {
	return &memoryParticipants{memoryScope{store: t.store, tx: t}}
}

// Atomic joins the enclosing unit of work
func (t *memoryTx) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// memoryScope is either the store itself or a unit of work that already
// holds the write lock.
type memoryScope struct {
	store *MemoryStore
	tx    *memoryTx
}

func (m memoryScope) read() func() {
	if m.tx != nil {
		return func() {}
	}
	m.store.mu.RLock()
	return m.store.mu.RUnlock
}

func (m memoryScope) write() func() {
	if m.tx != nil {
		return func() {}
	}
	m.store.mu.Lock()
	return m.store.mu.Unlock
}

func (m memoryScope) journal(undo func()) {
	if m.tx != nil {
		m.tx.undo = append(m.tx.undo, undo)
	}
}

// =====================================================
// Invoices
// =====================================================

type memoryInvoices struct {
	memoryScope
}

func (r *memoryInvoices) Create(ctx context.Context, invoice *Invoice) error {
	defer r.write()()

	s := r.store
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	if _, exists := s.invoices[invoice.ID]; exists {
		return fmt.Errorf("failed to create invoice: duplicate id %s", invoice.ID)
	}
	stored := *invoice
	s.invoices[invoice.ID] = &stored
	s.invoiceOrder = append(s.invoiceOrder, invoice.ID)
	r.journal(func() {
		delete(s.invoices, stored.ID)
		s.invoiceOrder = s.invoiceOrder[:len(s.invoiceOrder)-1]
	})
	return nil
}

func (r *memoryInvoices) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	defer r.read()()

	invoice, ok := r.store.invoices[id]
	if !ok {
		return nil, notFound("invoice", id.String())
	}
	out := *invoice
	return &out, nil
}

func (r *memoryInvoices) List(ctx context.Context, filter InvoiceFilter, order InvoiceOrder) ([]Invoice, error) {
	defer r.read()()

	s := r.store
	issuer := NormalizeAddress(filter.Issuer)
	invoices := make([]Invoice, 0, len(s.invoiceOrder))
	// newest insertion first so equal timestamps keep a stable, recent-first order
	for i := len(s.invoiceOrder) - 1; i >= 0; i-- {
		invoice := s.invoices[s.invoiceOrder[i]]
		if filter.Status != nil && invoice.Status != *filter.Status {
			continue
		}
		if filter.RiskBand != nil && invoice.RiskBand() != *filter.RiskBand {
			continue
		}
		if issuer != "" && invoice.IssuerAddress != issuer {
			continue
		}
		invoices = append(invoices, *invoice)
	}

	sort.SliceStable(invoices, func(i, j int) bool {
		if order == OrderByUpdated {
			return invoices[i].UpdatedAt.After(invoices[j].UpdatedAt)
		}
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})

	if filter.Limit > 0 && len(invoices) > filter.Limit {
		invoices = invoices[:filter.Limit]
	}
	return invoices, nil
}

func (r *memoryInvoices) Count(ctx context.Context) (int64, error) {
	defer r.read()()
	return int64(len(r.store.invoices)), nil
}

func (r *memoryInvoices) TransitionStatus(ctx context.Context, id uuid.UUID, expected, next InvoiceStatus, at time.Time) (*Invoice, error) {
	defer r.write()()

	invoice, ok := r.store.invoices[id]
	if !ok {
		return nil, notFound("invoice", id.String())
	}
	if invoice.Status != expected {
		return nil, statusConflict(ErrInvalidTransition, id.String(), invoice.Status)
	}
	return r.setStatus(invoice, next, at), nil
}

func (r *memoryInvoices) ForceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus, at time.Time) (*Invoice, error) {
	defer r.write()()

	invoice, ok := r.store.invoices[id]
	if !ok {
		return nil, notFound("invoice", id.String())
	}
	return r.setStatus(invoice, status, at), nil
}

func (r *memoryInvoices) setStatus(invoice *Invoice, status InvoiceStatus, at time.Time) *Invoice {
	previous := *invoice
	invoice.Status = status
	invoice.UpdatedAt = at
	r.journal(func() { *invoice = previous })

	out := *invoice
	return &out
}

// =====================================================
// Investments
// =====================================================

type memoryInvestments struct {
	memoryScope
}

func cloneInvestment(in *Investment) Investment {
	out := *in
	if in.SettledAt != nil {
		settledAt := *in.SettledAt
		out.SettledAt = &settledAt
	}
	return out
}

func (r *memoryInvestments) Create(ctx context.Context, investment *Investment) error {
	defer r.write()()

	s := r.store
	if investment.ID == uuid.Nil {
		investment.ID = uuid.New()
	}
	if _, exists := s.investments[investment.ID]; exists {
		return fmt.Errorf("failed to create investment: duplicate id %s", investment.ID)
	}
	stored := cloneInvestment(investment)
	s.investments[investment.ID] = &stored
	s.investmentOrder = append(s.investmentOrder, investment.ID)
	r.journal(func() {
		delete(s.investments, stored.ID)
		s.investmentOrder = s.investmentOrder[:len(s.investmentOrder)-1]
	})
	return nil
}

func (r *memoryInvestments) GetByID(ctx context.Context, id uuid.UUID) (*Investment, error) {
	defer r.read()()

	investment, ok := r.store.investments[id]
	if !ok {
		return nil, notFound("investment", id.String())
	}
	out := cloneInvestment(investment)
	return &out, nil
}

func (r *memoryInvestments) collect(match func(*Investment) bool) []Investment {
	s := r.store
	out := make([]Investment, 0)
	for _, id := range s.investmentOrder {
		investment := s.investments[id]
		if match(investment) {
			out = append(out, cloneInvestment(investment))
		}
	}
	return out
}

func (r *memoryInvestments) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Investment, error) {
	defer r.read()()
	return r.collect(func(i *Investment) bool { return i.InvoiceID == invoiceID }), nil
}

func (r *memoryInvestments) ListByInvestor(ctx context.Context, address string) ([]Investment, error) {
	defer r.read()()

	address = NormalizeAddress(address)
	return r.collect(func(i *Investment) bool { return i.InvestorAddress == address }), nil
}

func (r *memoryInvestments) ListRecent(ctx context.Context, limit int) ([]Investment, error) {
	defer r.read()()

	all := r.collect(func(*Investment) bool { return true })
	// reverse first so ties on created_at favour the latest insertion
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memoryInvestments) ListAll(ctx context.Context) ([]Investment, error) {
	defer r.read()()
	return r.collect(func(*Investment) bool { return true }), nil
}

func (r *memoryInvestments) MarkSettled(ctx context.Context, id uuid.UUID, at time.Time, returnAmount decimal.Decimal) (*Investment, error) {
	defer r.write()()

	investment, ok := r.store.investments[id]
	if !ok {
		return nil, notFound("investment", id.String())
	}
	previous := cloneInvestment(investment)
	settledAt := at
	investment.Status = InvestmentStatusSettled
	investment.SettledAt = &settledAt
	investment.ReturnAmount = decimal.NewNullDecimal(returnAmount)
	r.journal(func() { *investment = previous })

	out := cloneInvestment(investment)
	return &out, nil
}

// =====================================================
// Participants
// =====================================================

type memoryParticipants struct {
	memoryScope
}

func (r *memoryParticipants) Create(ctx context.Context, participant *Participant) error {
	defer r.write()()

	if _, exists := r.store.participants[participant.Address]; exists {
		return fmt.Errorf("failed to create participant: duplicate address %s", participant.Address)
	}
	r.insert(participant)
	return nil
}

func (r *memoryParticipants) insert(participant *Participant) {
	s := r.store
	stored := *participant
	s.participants[stored.Address] = &stored
	s.participantOrder = append(s.participantOrder, stored.Address)
	r.journal(func() {
		delete(s.participants, stored.Address)
		s.participantOrder = s.participantOrder[:len(s.participantOrder)-1]
	})
}

func (r *memoryParticipants) Get(ctx context.Context, address string) (*Participant, error) {
	defer r.read()()

	participant, ok := r.store.participants[address]
	if !ok {
		return nil, notFound("participant", address)
	}
	out := *participant
	return &out, nil
}

func (r *memoryParticipants) GetForUpdate(ctx context.Context, address string) (*Participant, error) {
	return r.Get(ctx, address)
}

func (r *memoryParticipants) Save(ctx context.Context, participant *Participant) error {
	defer r.write()()

	existing, ok := r.store.participants[participant.Address]
	if !ok {
		r.insert(participant)
		return nil
	}
	previous := *existing
	*existing = *participant
	r.journal(func() { *existing = previous })
	return nil
}

func (r *memoryParticipants) List(ctx context.Context) ([]Participant, error) {
	defer r.read()()

	s := r.store
	out := make([]Participant, 0, len(s.participantOrder))
	for _, address := range s.participantOrder {
		out = append(out, *s.participants[address])
	}
	return out, nil
}
