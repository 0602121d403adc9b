package notifications

import (
	"time"

	"invoice-financing/ledger-backend/internal/financing"
)

// Message types pushed to live subscribers
const (
	MessageTypeLedgerEvent = "ledger_event"
	MessageTypeWelcome     = "welcome"
	MessageTypeSubscribe   = "subscribe"
)

// Message is the envelope written to websocket subscribers
type Message struct {
	Type      string           `json:"type"`
	Event     *financing.Event `json:"event,omitempty"`
	Target    string           `json:"target,omitempty"`
	Channel   string           `json:"channel,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// FromEvent wraps a ledger event for delivery. Events that concern a single
// address target it; the rest go to every subscriber.
func FromEvent(event financing.Event) Message {
	e := event
	return Message{
		Type:      MessageTypeLedgerEvent,
		Event:     &e,
		Target:    event.Address,
		Channel:   string(event.Type),
		Timestamp: event.OccurredAt,
	}
}

// Subscription is a client request to narrow the events it receives
type Subscription struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// Matches reports whether a subscriber filtering on address should receive msg
func (m Message) Matches(address string) bool {
	if address == "" || m.Target == "" {
		return true
	}
	return financing.NormalizeAddress(address) == m.Target
}
