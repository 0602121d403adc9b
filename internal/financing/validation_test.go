package financing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeInvoiceInputAppliesDefaults(t *testing.T) {
	tests := []struct {
		name       string
		amount     LenientValue
		risk       LenientValue
		wantAmount string
		wantRisk   int
		wantFields map[string]string
	}{
		{
			name:       "valid values",
			amount:     Lenient("12.5"),
			risk:       Lenient("720"),
			wantAmount: "12.5",
			wantRisk:   720,
			wantFields: map[string]string{},
		},
		{
			name:       "missing values",
			wantAmount: "0",
			wantRisk:   DefaultRiskScore,
			wantFields: map[string]string{"amount": "missing", "risk_score": "missing"},
		},
		{
			name:       "malformed values",
			amount:     Lenient("twelve"),
			risk:       Lenient("high"),
			wantAmount: "0",
			wantRisk:   DefaultRiskScore,
			wantFields: map[string]string{"amount": "not a number", "risk_score": "not a number"},
		},
		{
			name:       "negative amount and out of range score",
			amount:     Lenient("-3"),
			risk:       Lenient("1500"),
			wantAmount: "0",
			wantRisk:   DefaultRiskScore,
			wantFields: map[string]string{"amount": "negative", "risk_score": "outside 0-1000"},
		},
		{
			name:       "fractional score is truncated",
			amount:     Lenient("7"),
			risk:       Lenient("699.9"),
			wantAmount: "7",
			wantRisk:   699,
			wantFields: map[string]string{},
		},
		{
			name:       "amount beyond eight places is rounded",
			amount:     Lenient("1.123456789"),
			risk:       Lenient("500"),
			wantAmount: "1.12345679",
			wantRisk:   500,
			wantFields: map[string]string{"amount": "rounded to 8 decimal places"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, defaults, err := NormalizeInvoiceInput(InvoiceInput{
				IssuerAddress: "  0xABC ",
				DueDate:       "2025-06-30",
				Amount:        tt.amount,
				RiskScore:     tt.risk,
			})
			require.NoError(t, err)

			assertDecimal(t, tt.wantAmount, normalized.Amount)
			assert.Equal(t, tt.wantRisk, normalized.RiskScore)
			assert.Equal(t, "0xabc", normalized.IssuerAddress)

			got := make(map[string]string, len(defaults))
			for _, d := range defaults {
				got[d.Field] = d.Reason
			}
			assert.Equal(t, tt.wantFields, got)
		})
	}
}

func TestNormalizeInvoiceInputRejects(t *testing.T) {
	_, _, err := NormalizeInvoiceInput(InvoiceInput{DueDate: "2025-06-30"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "issuer_address")

	_, _, err = NormalizeInvoiceInput(InvoiceInput{IssuerAddress: "0xabc", DueDate: "next tuesday"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "due_date")
}

func TestParseDueDateLayouts(t *testing.T) {
	want := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2025-06-30", "2025-06-30T00:00:00", "2025-06-30T00:00:00Z", "2025-06-30T02:00:00+02:00"} {
		got, err := parseDueDate(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), raw)
		assert.Equal(t, time.UTC, got.Location(), raw)
	}
}

func TestInvoiceInputDecodesLenientJSON(t *testing.T) {
	var in InvoiceInput
	body := `{"issuer_address":"0xabc","due_date":"2025-06-30","amount":12.5,"risk_score":"oops"}`
	require.NoError(t, json.Unmarshal([]byte(body), &in))

	amount, ok := in.Amount.Decimal()
	assert.True(t, ok)
	assertDecimal(t, "12.5", amount)

	_, ok = in.RiskScore.Decimal()
	assert.False(t, ok)
	assert.Equal(t, "oops", in.RiskScore.String())

	require.NoError(t, json.Unmarshal([]byte(`{"amount":null,"risk_score":true}`), &in))
	assert.False(t, in.Amount.Present())
	assert.True(t, in.RiskScore.Present())
	assert.Equal(t, "true", in.RiskScore.String())
}

func TestInvestRequestValidate(t *testing.T) {
	valid := InvestRequest{
		InvestorAddress: "0xinv",
		Principal:       decimal.NewFromInt(5),
		InterestRate:    decimal.NewFromInt(10),
	}
	assert.NoError(t, valid.validate())

	exact := valid
	exact.Principal = decimal.RequireFromString("123456789012.12345678")
	exact.InterestRate = decimal.RequireFromString("12.5000")
	assert.NoError(t, exact.validate())

	tests := map[string]func(r *InvestRequest){
		"missing investor": func(r *InvestRequest) { r.InvestorAddress = "  " },
		"zero principal":   func(r *InvestRequest) { r.Principal = decimal.Zero },
		"negative rate":    func(r *InvestRequest) { r.InterestRate = decimal.NewFromInt(-1) },
		"rate above 100":   func(r *InvestRequest) { r.InterestRate = decimal.NewFromInt(101) },
		"principal beyond eight places": func(r *InvestRequest) {
			r.Principal = decimal.RequireFromString("1.000000001")
		},
		"rate beyond four places": func(r *InvestRequest) {
			r.InterestRate = decimal.RequireFromString("12.50001")
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			assert.ErrorIs(t, req.validate(), ErrInvalidInput)
		})
	}
}
