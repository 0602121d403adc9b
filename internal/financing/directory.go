package financing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Directory owns participant records and is the only writer of their totals
type Directory struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewDirectory creates a participant directory over the store
func NewDirectory(store Store, logger *zap.Logger) *Directory {
	return &Directory{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// withStore returns a directory bound to a unit of work
func (d *Directory) withStore(tx Store) *Directory {
	return &Directory{store: tx, logger: d.logger, now: d.now}
}

// Upsert registers the address or refreshes its role
func (d *Directory) Upsert(ctx context.Context, address string, role ParticipantRole) (*Participant, error) {
	address = NormalizeAddress(address)
	repo := d.store.Participants()

	participant, err := repo.GetForUpdate(ctx, address)
	switch {
	case errors.Is(err, ErrNotFound):
		now := d.now()
		participant = &Participant{
			Address:       address,
			Role:          role,
			Verification:  VerificationPending,
			TotalInvested: decimal.Zero,
			TotalReturned: decimal.Zero,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repo.Create(ctx, participant); err != nil {
			return nil, err
		}
		return participant, nil
	case err != nil:
		return nil, err
	}

	participant.Role = role
	participant.UpdatedAt = d.now()
	if err := repo.Save(ctx, participant); err != nil {
		return nil, err
	}
	return participant, nil
}

// RecordInvestment adds principal to the investor's invested total,
// registering the investor when it has not been seen before.
func (d *Directory) RecordInvestment(ctx context.Context, address string, principal decimal.Decimal) (*Participant, error) {
	participant, err := d.Upsert(ctx, address, RoleInvestor)
	if err != nil {
		return nil, err
	}
	participant.TotalInvested = participant.TotalInvested.Add(principal)
	if err := d.store.Participants().Save(ctx, participant); err != nil {
		return nil, err
	}
	return participant, nil
}

// RecordReturn adds realized interest to the participant's returned total.
// Unknown participants are skipped.
func (d *Directory) RecordReturn(ctx context.Context, address string, amount decimal.Decimal) (*Participant, error) {
	address = NormalizeAddress(address)
	repo := d.store.Participants()

	participant, err := repo.GetForUpdate(ctx, address)
	if errors.Is(err, ErrNotFound) {
		d.logger.Warn("Return recorded for unknown participant",
			zap.String("address", address),
			zap.String("amount", amount.String()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	participant.TotalReturned = participant.TotalReturned.Add(amount)
	participant.UpdatedAt = d.now()
	if err := repo.Save(ctx, participant); err != nil {
		return nil, err
	}
	return participant, nil
}

// Verify marks the participant's KYC as verified
func (d *Directory) Verify(ctx context.Context, address string) (*Participant, error) {
	repo := d.store.Participants()
	participant, err := repo.GetForUpdate(ctx, NormalizeAddress(address))
	if err != nil {
		return nil, err
	}
	participant.Verification = VerificationVerified
	participant.UpdatedAt = d.now()
	if err := repo.Save(ctx, participant); err != nil {
		return nil, err
	}
	return participant, nil
}

// Get returns the participant for the address
func (d *Directory) Get(ctx context.Context, address string) (*Participant, error) {
	return d.store.Participants().Get(ctx, NormalizeAddress(address))
}

// List returns every participant in registration order
func (d *Directory) List(ctx context.Context) ([]Participant, error) {
	return d.store.Participants().List(ctx)
}
