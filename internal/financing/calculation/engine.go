package calculation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places amounts are stored with.
const Scale int32 = 8

// RateScale is the number of decimal places interest rates are stored with.
const RateScale int32 = 4

var hundred = decimal.NewFromInt(100)

// Engine performs the settlement arithmetic for investments
type Engine struct {
	scale int32
}

// Result is the outcome of settling a single investment
type Result struct {
	Principal    decimal.Decimal `json:"principal"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	Interest     decimal.Decimal `json:"interest"`
	TotalReturn  decimal.Decimal `json:"total_return"`
	Steps        []Step          `json:"steps,omitempty"`
}

// Step records one stage of a calculation for audit output
type Step struct {
	Number  int             `json:"number"`
	Name    string          `json:"name"`
	Formula string          `json:"formula"`
	Output  decimal.Decimal `json:"output"`
}

// NewEngine creates an engine rounding to Scale places
func NewEngine() *Engine {
	return &Engine{scale: Scale}
}

// Interest returns principal * rate / 100, rate being a percentage
func (e *Engine) Interest(principal, ratePercent decimal.Decimal) decimal.Decimal {
	return principal.Mul(ratePercent).Div(hundred).Round(e.scale)
}

// Settle computes interest and total return for an investment
func (e *Engine) Settle(principal, ratePercent decimal.Decimal) Result {
	interest := e.Interest(principal, ratePercent)
	total := principal.Add(interest).Round(e.scale)

	return Result{
		Principal:    principal,
		InterestRate: ratePercent,
		Interest:     interest,
		TotalReturn:  total,
		Steps: []Step{
			{
				Number:  1,
				Name:    "interest",
				Formula: fmt.Sprintf("%s * %s / 100", principal, ratePercent),
				Output:  interest,
			},
			{
				Number:  2,
				Name:    "total_return",
				Formula: fmt.Sprintf("%s + %s", principal, interest),
				Output:  total,
			},
		},
	}
}

// SettleAll settles a batch and returns the per-investment results with
// the summed principal and interest.
func (e *Engine) SettleAll(positions []Position) ([]Result, decimal.Decimal, decimal.Decimal) {
	results := make([]Result, 0, len(positions))
	principal, interest := decimal.Zero, decimal.Zero
	for _, p := range positions {
		res := e.Settle(p.Principal, p.InterestRate)
		results = append(results, res)
		principal = principal.Add(res.Principal)
		interest = interest.Add(res.Interest)
	}
	return results, principal, interest
}

// Position is a principal lent at a percentage rate
type Position struct {
	Principal    decimal.Decimal
	InterestRate decimal.Decimal
}
