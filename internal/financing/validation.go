package financing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoice-financing/ledger-backend/internal/financing/calculation"
)

const (
	MinRiskScore     = 0
	MaxRiskScore     = 1000
	DefaultRiskScore = 500
)

var maxInterestRate = decimal.NewFromInt(100)

// LenientValue holds a loosely typed input field as received. It accepts JSON
// numbers, strings, booleans and null and never fails to decode.
type LenientValue struct {
	raw     string
	present bool
}

// Lenient builds a LenientValue from its textual form
func Lenient(raw string) LenientValue {
	return LenientValue{raw: raw, present: true}
}

func (v *LenientValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = LenientValue{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Lenient(s)
		return nil
	}
	*v = Lenient(string(data))
	return nil
}

func (v LenientValue) MarshalJSON() ([]byte, error) {
	if !v.present {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}

// Present reports whether the field was supplied at all
func (v LenientValue) Present() bool {
	return v.present && strings.TrimSpace(v.raw) != ""
}

func (v LenientValue) String() string {
	return v.raw
}

// Decimal parses the value as a decimal number
func (v LenientValue) Decimal() (decimal.Decimal, bool) {
	if !v.Present() {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v.raw))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// InvoiceInput is an invoice submission as it arrives from a caller
type InvoiceInput struct {
	TokenID       *int64       `json:"token_id,omitempty"`
	InvoiceNumber string       `json:"invoice_number"`
	IssuerAddress string       `json:"issuer_address"`
	BuyerAddress  string       `json:"buyer_address"`
	Amount        LenientValue `json:"amount"`
	DueDate       string       `json:"due_date"`
	Description   string       `json:"description"`
	DocumentRef   string       `json:"document_ref"`
	RiskScore     LenientValue `json:"risk_score"`
}

// AppliedDefault records a field that was replaced by its documented default
type AppliedDefault struct {
	Field    string `json:"field"`
	Received string `json:"received"`
	Value    string `json:"value"`
	Reason   string `json:"reason"`
}

// NormalizedInvoice is an InvoiceInput after lenient validation
type NormalizedInvoice struct {
	TokenID       *int64
	InvoiceNumber string
	IssuerAddress string
	BuyerAddress  string
	Amount        decimal.Decimal
	DueDate       time.Time
	Description   string
	DocumentRef   string
	RiskScore     int
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDueDate accepts RFC3339 timestamps and plain dates
func parseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("due date is required")
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised due date %q", raw)
}

// NormalizeInvoiceInput validates an invoice submission. Malformed numeric
// fields are replaced by their defaults (amount 0, risk score 500) and
// reported back; only a missing issuer or an unparseable due date reject the
// submission.
func NormalizeInvoiceInput(in InvoiceInput) (NormalizedInvoice, []AppliedDefault, error) {
	var defaults []AppliedDefault

	issuer := NormalizeAddress(in.IssuerAddress)
	if issuer == "" {
		return NormalizedInvoice{}, nil, invalidInput("issuer_address", "issuer address is required")
	}

	dueDate, err := parseDueDate(in.DueDate)
	if err != nil {
		return NormalizedInvoice{}, nil, invalidInput("due_date", err.Error())
	}

	amount, ok := in.Amount.Decimal()
	switch {
	case !ok:
		amount = decimal.Zero
		defaults = append(defaults, AppliedDefault{
			Field: "amount", Received: in.Amount.String(), Value: "0",
			Reason: describeMissing(in.Amount, "not a number"),
		})
	case amount.IsNegative():
		defaults = append(defaults, AppliedDefault{
			Field: "amount", Received: in.Amount.String(), Value: "0", Reason: "negative",
		})
		amount = decimal.Zero
	case !fitsScale(amount, calculation.Scale):
		rounded := amount.Round(calculation.Scale)
		defaults = append(defaults, AppliedDefault{
			Field: "amount", Received: in.Amount.String(), Value: rounded.String(),
			Reason: fmt.Sprintf("rounded to %d decimal places", calculation.Scale),
		})
		amount = rounded
	}

	riskScore := DefaultRiskScore
	if score, ok := in.RiskScore.Decimal(); !ok {
		defaults = append(defaults, AppliedDefault{
			Field: "risk_score", Received: in.RiskScore.String(), Value: fmt.Sprint(DefaultRiskScore),
			Reason: describeMissing(in.RiskScore, "not a number"),
		})
	} else if truncated := score.Truncate(0); truncated.LessThan(decimal.NewFromInt(MinRiskScore)) ||
		truncated.GreaterThan(decimal.NewFromInt(MaxRiskScore)) {
		defaults = append(defaults, AppliedDefault{
			Field: "risk_score", Received: in.RiskScore.String(), Value: fmt.Sprint(DefaultRiskScore),
			Reason: fmt.Sprintf("outside %d-%d", MinRiskScore, MaxRiskScore),
		})
	} else {
		riskScore = int(truncated.IntPart())
	}

	return NormalizedInvoice{
		TokenID:       in.TokenID,
		InvoiceNumber: strings.TrimSpace(in.InvoiceNumber),
		IssuerAddress: issuer,
		BuyerAddress:  NormalizeAddress(in.BuyerAddress),
		Amount:        amount,
		DueDate:       dueDate,
		Description:   in.Description,
		DocumentRef:   strings.TrimSpace(in.DocumentRef),
		RiskScore:     riskScore,
	}, defaults, nil
}

func describeMissing(v LenientValue, malformed string) string {
	if !v.Present() {
		return "missing"
	}
	return malformed
}

// InvestRequest is a financing commitment against a pending invoice
type InvestRequest struct {
	InvoiceID       string          `json:"invoice_id"`
	InvestorAddress string          `json:"investor_address"`
	Principal       decimal.Decimal `json:"principal"`
	InterestRate    decimal.Decimal `json:"interest_rate"`
}

func (r InvestRequest) validate() error {
	if NormalizeAddress(r.InvestorAddress) == "" {
		return invalidInput("investor_address", "investor address is required")
	}
	if !r.Principal.IsPositive() {
		return invalidInput("principal", "principal must be positive")
	}
	if !fitsScale(r.Principal, calculation.Scale) {
		return invalidInput("principal", fmt.Sprintf("principal has more than %d decimal places", calculation.Scale))
	}
	if r.InterestRate.IsNegative() || r.InterestRate.GreaterThan(maxInterestRate) {
		return invalidInput("interest_rate", "interest rate must be between 0 and 100")
	}
	if !fitsScale(r.InterestRate, calculation.RateScale) {
		return invalidInput("interest_rate", fmt.Sprintf("interest rate has more than %d decimal places", calculation.RateScale))
	}
	return nil
}

// fitsScale reports whether d is representable with places decimals
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Round(places))
}
