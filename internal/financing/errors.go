package financing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the supplied identifier was unknown.
	ErrNotFound = errors.New("financing: not found")
	// ErrInvalidTransition indicates the invoice lifecycle does not permit the transition.
	ErrInvalidTransition = errors.New("financing: invalid status transition")
	// ErrAlreadyFunded is returned when financing an invoice that is no longer pending.
	ErrAlreadyFunded = errors.New("financing: invoice already funded")
	// ErrNotFunded is returned when settling an invoice that is not funded.
	ErrNotFunded = errors.New("financing: invoice must be funded to settle")
	// ErrInvalidInput denotes a request that cannot be normalized into a record.
	ErrInvalidInput = errors.New("financing: invalid input")
)

// LedgerError carries the failing kind together with the entity it concerns
type LedgerError struct {
	Kind   error
	Entity string
	ID     string
	Status InvoiceStatus
	Detail string
}

func (e *LedgerError) Error() string {
	msg := e.Kind.Error()
	if e.Entity != "" {
		msg = fmt.Sprintf("%s: %s %s", msg, e.Entity, e.ID)
	}
	if e.Status != "" {
		msg = fmt.Sprintf("%s (status %s)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

func (e *LedgerError) Unwrap() error {
	return e.Kind
}

func notFound(entity, id string) error {
	return &LedgerError{Kind: ErrNotFound, Entity: entity, ID: id}
}

func invalidInput(field, detail string) error {
	return &LedgerError{Kind: ErrInvalidInput, Entity: "field", ID: field, Detail: detail}
}

func statusConflict(kind error, invoiceID string, status InvoiceStatus) error {
	return &LedgerError{Kind: kind, Entity: "invoice", ID: invoiceID, Status: status}
}
