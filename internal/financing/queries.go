package financing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/dashboard"
	"invoice-financing/ledger-backend/internal/financing/calculation"
	"invoice-financing/ledger-backend/internal/observability"
)

const (
	// DefaultActivityLimit is the number of entries RecentActivity returns by default
	DefaultActivityLimit = 10
	// DefaultMaxActivityLimit caps the entries a single RecentActivity call returns
	DefaultMaxActivityLimit = 100

	platformStatsKey = "platform_stats"
)

// Activity labels
const (
	ActivityInvoiceCreated = "Invoice Created"
	ActivityInvoiceFunded  = "Invoice Funded"
	ActivitySettlement     = "Settlement"
	ActivityInvestment     = "Investment"
)

// PlatformStats summarises the whole ledger
type PlatformStats struct {
	TotalUsers         int             `json:"total_users"`
	TotalInvoices      int             `json:"total_invoices"`
	PendingInvoices    int             `json:"pending_invoices"`
	FundedInvoices     int             `json:"funded_invoices"`
	SettledInvoices    int             `json:"settled_invoices"`
	FinancedInvoices   int             `json:"financed_invoices"`
	TotalVolume        decimal.Decimal `json:"total_volume"`
	AverageInvoiceSize decimal.Decimal `json:"average_invoice_size"`
	ActiveInvestors    int             `json:"active_investors"`
	ComputedAt         time.Time       `json:"computed_at"`
}

// Portfolio is everything a single address is involved in
type Portfolio struct {
	Address         string       `json:"address"`
	Participant     Participant  `json:"participant"`
	Registered      bool         `json:"registered"`
	CreatedInvoices []Invoice    `json:"created_invoices"`
	FundedInvoices  []Invoice    `json:"funded_invoices"`
	Investments     []Investment `json:"investments"`
}

// Activity is one entry of the recent activity feed
type Activity struct {
	Type          string          `json:"type"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvestmentID  *uuid.UUID      `json:"investment_id,omitempty"`
	InvoiceNumber string          `json:"invoice_number"`
	Address       string          `json:"address"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	TimeAgo       string          `json:"time_ago"`
}

// Queries answers read-only aggregate questions over the ledger
type Queries struct {
	store         Store
	cache         *dashboard.AggregateCache
	metrics       *observability.LedgerMetrics
	logger        *zap.Logger
	now           func() time.Time
	activityLimit int
	maxActivity   int
}

// QueryOptions tunes the query layer
type QueryOptions struct {
	ActivityLimit    int
	MaxActivityLimit int
	Metrics          *observability.LedgerMetrics
	Now              func() time.Time
}

// NewQueries creates the query layer. cache may be nil to disable caching.
func NewQueries(store Store, cache *dashboard.AggregateCache, logger *zap.Logger, opts QueryOptions) *Queries {
	if opts.MaxActivityLimit <= 0 {
		opts.MaxActivityLimit = DefaultMaxActivityLimit
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = DefaultActivityLimit
	}
	if opts.ActivityLimit > opts.MaxActivityLimit {
		opts.ActivityLimit = opts.MaxActivityLimit
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Queries{
		store:         store,
		cache:         cache,
		metrics:       opts.Metrics,
		logger:        logger,
		now:           opts.Now,
		activityLimit: opts.ActivityLimit,
		maxActivity:   opts.MaxActivityLimit,
	}
}

// Publish drops cached aggregates whenever the ledger changes
func (q *Queries) Publish(ctx context.Context, event Event) {
	if q.cache != nil {
		q.cache.Invalidate()
	}
}

// PlatformStats returns platform-wide counts and volumes
func (q *Queries) PlatformStats(ctx context.Context) (*PlatformStats, error) {
	if q.cache == nil {
		return q.computeStats(ctx)
	}
	value, err := q.cache.GetOrCompute(platformStatsKey, func() (any, error) {
		return q.computeStats(ctx)
	})
	if err != nil {
		return nil, err
	}
	stats, ok := value.(*PlatformStats)
	if !ok {
		return nil, fmt.Errorf("unexpected cached stats type %T", value)
	}
	out := *stats
	return &out, nil
}

// RefreshStats recomputes platform stats, discarding any cached copy, so
// the invoice gauges track the store between requests.
func (q *Queries) RefreshStats(ctx context.Context) error {
	if q.cache != nil {
		q.cache.Invalidate()
	}
	_, err := q.PlatformStats(ctx)
	return err
}

func (q *Queries) computeStats(ctx context.Context) (*PlatformStats, error) {
	var (
		invoices     []Invoice
		participants []Participant
	)
	err := q.store.Atomic(ctx, func(tx Store) error {
		var err error
		if invoices, err = tx.Invoices().List(ctx, InvoiceFilter{}, OrderByCreated); err != nil {
			return err
		}
		participants, err = tx.Participants().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute platform stats: %w", err)
	}

	stats := &PlatformStats{
		TotalUsers:         len(participants),
		TotalInvoices:      len(invoices),
		TotalVolume:        decimal.Zero,
		AverageInvoiceSize: decimal.Zero,
		ComputedAt:         q.now(),
	}
	for _, invoice := range invoices {
		switch invoice.Status {
		case InvoiceStatusPending:
			stats.PendingInvoices++
		case InvoiceStatusFunded:
			stats.FundedInvoices++
			stats.TotalVolume = stats.TotalVolume.Add(invoice.Amount)
		case InvoiceStatusSettled:
			stats.SettledInvoices++
			stats.TotalVolume = stats.TotalVolume.Add(invoice.Amount)
		}
	}
	stats.FinancedInvoices = stats.FundedInvoices + stats.SettledInvoices
	if stats.TotalInvoices > 0 {
		stats.AverageInvoiceSize = stats.TotalVolume.
			Div(decimal.NewFromInt(int64(stats.TotalInvoices))).
			Round(calculation.Scale)
	}
	for _, p := range participants {
		if p.Role == RoleInvestor || p.TotalInvested.IsPositive() {
			stats.ActiveInvestors++
		}
	}

	q.metrics.SetInvoiceCounts(map[string]int{
		string(InvoiceStatusPending): stats.PendingInvoices,
		string(InvoiceStatusFunded):  stats.FundedInvoices,
		string(InvoiceStatusSettled): stats.SettledInvoices,
	})
	return stats, nil
}

// Portfolio collects an address's participant record, issued invoices and
// investments alongside every financed invoice on the platform. Unknown
// addresses get a zero-state participant that is not persisted.
func (q *Queries) Portfolio(ctx context.Context, address string) (*Portfolio, error) {
	address = NormalizeAddress(address)
	portfolio := &Portfolio{Address: address}

	err := q.store.Atomic(ctx, func(tx Store) error {
		participant, err := tx.Participants().Get(ctx, address)
		switch {
		case errors.Is(err, ErrNotFound):
			portfolio.Participant = Participant{
				Address:       address,
				Role:          RoleInvestor,
				Verification:  VerificationPending,
				TotalInvested: decimal.Zero,
				TotalReturned: decimal.Zero,
			}
		case err != nil:
			return err
		default:
			portfolio.Participant = *participant
			portfolio.Registered = true
		}

		invoices, err := tx.Invoices().List(ctx, InvoiceFilter{}, OrderByCreated)
		if err != nil {
			return err
		}
		portfolio.CreatedInvoices = make([]Invoice, 0)
		portfolio.FundedInvoices = make([]Invoice, 0)
		for _, invoice := range invoices {
			if address != "" && invoice.IssuerAddress == address {
				portfolio.CreatedInvoices = append(portfolio.CreatedInvoices, invoice)
			}
			if invoice.Status == InvoiceStatusFunded || invoice.Status == InvoiceStatusSettled {
				portfolio.FundedInvoices = append(portfolio.FundedInvoices, invoice)
			}
		}

		portfolio.Investments, err = tx.Investments().ListByInvestor(ctx, address)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build portfolio: %w", err)
	}
	return portfolio, nil
}

// RecentActivity merges the latest invoice changes and investments, newest
// first. A non-positive limit selects the configured default; larger limits
// are clamped to the configured maximum.
func (q *Queries) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = q.activityLimit
	}
	if limit > q.maxActivity {
		limit = q.maxActivity
	}

	var activity []Activity
	err := q.store.Atomic(ctx, func(tx Store) error {
		invoices, err := tx.Invoices().List(ctx, InvoiceFilter{Limit: limit}, OrderByUpdated)
		if err != nil {
			return err
		}
		investments, err := tx.Investments().ListRecent(ctx, limit)
		if err != nil {
			return err
		}

		activity = make([]Activity, 0, len(invoices)+len(investments))
		for _, invoice := range invoices {
			activity = append(activity, Activity{
				Type:          invoiceActivityLabel(invoice.Status),
				InvoiceID:     invoice.ID,
				InvoiceNumber: invoice.InvoiceNumber,
				Address:       invoice.IssuerAddress,
				Amount:        invoice.Amount,
				Status:        string(invoice.Status),
				Timestamp:     invoice.UpdatedAt,
			})
		}
		for _, investment := range investments {
			number := ""
			if invoice, err := tx.Invoices().GetByID(ctx, investment.InvoiceID); err == nil {
				number = invoice.InvoiceNumber
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
			investmentID := investment.ID
			activity = append(activity, Activity{
				Type:          ActivityInvestment,
				InvoiceID:     investment.InvoiceID,
				InvestmentID:  &investmentID,
				InvoiceNumber: number,
				Address:       investment.InvestorAddress,
				Amount:        investment.Principal,
				Status:        string(investment.Status),
				Timestamp:     investment.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent activity: %w", err)
	}

	sort.SliceStable(activity, func(i, j int) bool {
		return activity[i].Timestamp.After(activity[j].Timestamp)
	})
	if len(activity) > limit {
		activity = activity[:limit]
	}

	now := q.now()
	for i := range activity {
		activity[i].TimeAgo = humanize.RelTime(activity[i].Timestamp, now, "ago", "from now")
	}
	return activity, nil
}

func invoiceActivityLabel(status InvoiceStatus) string {
	switch status {
	case InvoiceStatusFunded:
		return ActivityInvoiceFunded
	case InvoiceStatusSettled:
		return ActivitySettlement
	default:
		return ActivityInvoiceCreated
	}
}
