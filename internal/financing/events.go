package financing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names a committed ledger change
type EventType string

const (
	EventInvoiceCreated    EventType = "invoice.created"
	EventInvoiceFunded     EventType = "invoice.funded"
	EventInvoiceSettled    EventType = "invoice.settled"
	EventInvoiceOverridden EventType = "invoice.status_overridden"
	EventInvestmentCreated EventType = "investment.created"
)

// Event describes a change after its unit of work has committed
type Event struct {
	Type         EventType       `json:"type"`
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	InvestmentID *uuid.UUID      `json:"investment_id,omitempty"`
	Address      string          `json:"address,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Status       InvoiceStatus   `json:"status"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// EventSink receives committed ledger events. Publish must not block.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

// Fanout delivers every event to each of its sinks in order
type Fanout []EventSink

func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, sink := range f {
		if sink != nil {
			sink.Publish(ctx, event)
		}
	}
}

type discardSink struct{}

func (discardSink) Publish(context.Context, Event) {}
