package financing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus represents the lifecycle status of a financed invoice
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusFunded  InvoiceStatus = "funded"
	InvoiceStatusSettled InvoiceStatus = "settled"
)

// Valid reports whether the status is one of the lifecycle statuses
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusFunded, InvoiceStatusSettled:
		return true
	}
	return false
}

// InvestmentStatus represents the status of a financing commitment
type InvestmentStatus string

const (
	InvestmentStatusActive  InvestmentStatus = "active"
	InvestmentStatusSettled InvestmentStatus = "settled"
)

// ParticipantRole is the most recently observed role of an address
type ParticipantRole string

const (
	RoleIssuer   ParticipantRole = "issuer"
	RoleInvestor ParticipantRole = "investor"
)

// VerificationStatus represents the KYC state of a participant
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

// RiskBand is a coarse classification derived from an invoice risk score
type RiskBand string

const (
	RiskBandLow    RiskBand = "low"
	RiskBandMedium RiskBand = "medium"
	RiskBandHigh   RiskBand = "high"
)

// Risk band boundaries on the 0-1000 score scale.
const (
	lowRiskFloor    = 700
	mediumRiskFloor = 400
)

// BandForScore classifies a risk score
func BandForScore(score int) RiskBand {
	switch {
	case score >= lowRiskFloor:
		return RiskBandLow
	case score >= mediumRiskFloor:
		return RiskBandMedium
	default:
		return RiskBandHigh
	}
}

// Valid reports whether the band is one of low, medium or high
func (b RiskBand) Valid() bool {
	switch b {
	case RiskBandLow, RiskBandMedium, RiskBandHigh:
		return true
	}
	return false
}

// scoreRange returns the inclusive score bounds of the band
func (b RiskBand) scoreRange() (int, int) {
	switch b {
	case RiskBandLow:
		return lowRiskFloor, MaxRiskScore
	case RiskBandMedium:
		return mediumRiskFloor, lowRiskFloor - 1
	default:
		return MinRiskScore, mediumRiskFloor - 1
	}
}

// Invoice represents a trade invoice submitted by an issuer for financing
type Invoice struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	TokenID       *int64          `json:"token_id,omitempty" gorm:"index"`
	InvoiceNumber string          `json:"invoice_number" gorm:"not null"`
	IssuerAddress string          `json:"issuer_address" gorm:"not null;index"`
	BuyerAddress  string          `json:"buyer_address"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(38,8);not null"`
	DueDate       time.Time       `json:"due_date"`
	Description   string          `json:"description"`
	DocumentRef   string          `json:"document_ref"`
	RiskScore     int             `json:"risk_score" gorm:"not null;index"`
	Status        InvoiceStatus   `json:"status" gorm:"not null;default:'pending';index"`
	CreatedAt     time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"index;autoUpdateTime:false"`
}

// RiskBand returns the band of the invoice risk score
func (i *Invoice) RiskBand() RiskBand {
	return BandForScore(i.RiskScore)
}

// Investment represents capital committed against a single invoice
type Investment struct {
	ID              uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	InvoiceID       uuid.UUID           `json:"invoice_id" gorm:"type:uuid;not null;index"`
	InvestorAddress string              `json:"investor_address" gorm:"not null;index"`
	Principal       decimal.Decimal     `json:"principal" gorm:"type:decimal(38,8);not null"`
	InterestRate    decimal.Decimal     `json:"interest_rate" gorm:"type:decimal(10,4);not null"`
	Status          InvestmentStatus    `json:"status" gorm:"not null;default:'active';index"`
	CreatedAt       time.Time           `json:"created_at" gorm:"index"`
	SettledAt       *time.Time          `json:"settled_at,omitempty"`
	ReturnAmount    decimal.NullDecimal `json:"return_amount" gorm:"type:decimal(38,8)"`
}

// Participant tracks an address and its running financing totals
type Participant struct {
	Address       string             `json:"address" gorm:"primaryKey"`
	Role          ParticipantRole    `json:"role" gorm:"not null"`
	Verification  VerificationStatus `json:"verification" gorm:"not null;default:'pending'"`
	TotalInvested decimal.Decimal    `json:"total_invested" gorm:"type:decimal(38,8);not null"`
	TotalReturned decimal.Decimal    `json:"total_returned" gorm:"type:decimal(38,8);not null"`
	CreatedAt     time.Time          `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time          `json:"updated_at" gorm:"autoUpdateTime:false"`
}

// NormalizeAddress case-normalizes an address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// BeforeCreate hook for UUID generation
func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i *Investment) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// AutoMigrate creates the three ledger collections
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Invoice{}, &Investment{}, &Participant{})
}
