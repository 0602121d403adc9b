package financing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists the ledger collections through gorm (postgres or sqlite)
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store backed by the provided database
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Invoices() InvoiceRepository {
	return &gormInvoices{db: s.db}
}

func (s *GormStore) Investments() InvestmentRepository {
	return &gormInvestments{db: s.db}
}

func (s *GormStore) Participants() ParticipantRepository {
	return &gormParticipants{db: s.db}
}

// Atomic runs fn inside a database transaction
func (s *GormStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// =====================================================
// Invoices
// =====================================================

type gormInvoices struct {
	db *gorm.DB
}

func (r *gormInvoices) Create(ctx context.Context, invoice *Invoice) error {
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (r *gormInvoices) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var invoice Invoice
	if err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("invoice", id.String())
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &invoice, nil
}

func (r *gormInvoices) List(ctx context.Context, filter InvoiceFilter, order InvoiceOrder) ([]Invoice, error) {
	query := r.db.WithContext(ctx).Model(&Invoice{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RiskBand != nil {
		low, high := filter.RiskBand.scoreRange()
		query = query.Where("risk_score BETWEEN ? AND ?", low, high)
	}
	if issuer := NormalizeAddress(filter.Issuer); issuer != "" {
		query = query.Where("issuer_address = ?", issuer)
	}
	if order == OrderByUpdated {
		query = query.Order("updated_at DESC")
	} else {
		query = query.Order("created_at DESC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var invoices []Invoice
	if err := query.Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

func (r *gormInvoices) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Invoice{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return count, nil
}

func (r *gormInvoices) TransitionStatus(ctx context.Context, id uuid.UUID, expected, next InvoiceStatus, at time.Time) (*Invoice, error) {
	res := r.db.WithContext(ctx).Model(&Invoice{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]interface{}{"status": next, "updated_at": at})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to transition invoice: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, statusConflict(ErrInvalidTransition, id.String(), current.Status)
	}
	return r.GetByID(ctx, id)
}

func (r *gormInvoices) ForceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus, at time.Time) (*Invoice, error) {
	res := r.db.WithContext(ctx).Model(&Invoice{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": at})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to set invoice status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound("invoice", id.String())
	}
	return r.GetByID(ctx, id)
}

// =====================================================
// Investments
// =====================================================

type gormInvestments struct {
	db *gorm.DB
}

func (r *gormInvestments) Create(ctx context.Context, investment *Investment) error {
	if err := r.db.WithContext(ctx).Create(investment).Error; err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}
	return nil
}

func (r *gormInvestments) GetByID(ctx context.Context, id uuid.UUID) (*Investment, error) {
	var investment Investment
	if err := r.db.WithContext(ctx).First(&investment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("investment", id.String())
		}
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return &investment, nil
}

func (r *gormInvestments) find(ctx context.Context, query func(*gorm.DB) *gorm.DB) ([]Investment, error) {
	var investments []Investment
	if err := query(r.db.WithContext(ctx)).Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	return investments, nil
}

func (r *gormInvestments) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Investment, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("invoice_id = ?", invoiceID).Order("created_at ASC")
	})
}

func (r *gormInvestments) ListByInvestor(ctx context.Context, address string) ([]Investment, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("investor_address = ?", NormalizeAddress(address)).Order("created_at ASC")
	})
}

func (r *gormInvestments) ListRecent(ctx context.Context, limit int) ([]Investment, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		db = db.Order("created_at DESC")
		if limit > 0 {
			db = db.Limit(limit)
		}
		return db
	})
}

func (r *gormInvestments) ListAll(ctx context.Context) ([]Investment, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	})
}

func (r *gormInvestments) MarkSettled(ctx context.Context, id uuid.UUID, at time.Time, returnAmount decimal.Decimal) (*Investment, error) {
	res := r.db.WithContext(ctx).Model(&Investment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        InvestmentStatusSettled,
			"settled_at":    at,
			"return_amount": decimal.NewNullDecimal(returnAmount),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to settle investment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound("investment", id.String())
	}
	return r.GetByID(ctx, id)
}

// =====================================================
// Participants
// =====================================================

type gormParticipants struct {
	db *gorm.DB
}

func (r *gormParticipants) Create(ctx context.Context, participant *Participant) error {
	if err := r.db.WithContext(ctx).Create(participant).Error; err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *gormParticipants) get(ctx context.Context, db *gorm.DB, address string) (*Participant, error) {
	var participant Participant
	if err := db.WithContext(ctx).First(&participant, "address = ?", address).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("participant", address)
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &participant, nil
}

func (r *gormParticipants) Get(ctx context.Context, address string) (*Participant, error) {
	return r.get(ctx, r.db, address)
}

func (r *gormParticipants) GetForUpdate(ctx context.Context, address string) (*Participant, error) {
	// sqlite has no row locks; its transactions already serialize writers
	if r.db.Dialector.Name() == "sqlite" {
		return r.get(ctx, r.db, address)
	}
	return r.get(ctx, r.db.Clauses(clause.Locking{Strength: "UPDATE"}), address)
}

func (r *gormParticipants) Save(ctx context.Context, participant *Participant) error {
	if err := r.db.WithContext(ctx).Save(participant).Error; err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

func (r *gormParticipants) List(ctx context.Context) ([]Participant, error) {
	var participants []Participant
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("address ASC").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}
