package financing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SnapshotVersion is the format version written by ExportSnapshot
const SnapshotVersion = 1

// ErrStoreNotEmpty is returned when restoring into a store that holds records
var ErrStoreNotEmpty = errors.New("financing: store is not empty")

// Snapshot is a point-in-time copy of the three ledger collections
type Snapshot struct {
	Version      int           `json:"version"`
	TakenAt      time.Time     `json:"taken_at"`
	Invoices     []Invoice     `json:"invoices"`
	Investments  []Investment  `json:"investments"`
	Participants []Participant `json:"participants"`
}

// ExportSnapshot copies every record in a stable order
func ExportSnapshot(ctx context.Context, store Store) (*Snapshot, error) {
	snap := &Snapshot{Version: SnapshotVersion, TakenAt: time.Now().UTC()}

	err := store.Atomic(ctx, func(tx Store) error {
		var err error
		if snap.Invoices, err = tx.Invoices().List(ctx, InvoiceFilter{}, OrderByCreated); err != nil {
			return err
		}
		if snap.Investments, err = tx.Investments().ListAll(ctx); err != nil {
			return err
		}
		snap.Participants, err = tx.Participants().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export snapshot: %w", err)
	}

	sort.SliceStable(snap.Invoices, func(i, j int) bool {
		a, b := snap.Invoices[i], snap.Invoices[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	sort.SliceStable(snap.Investments, func(i, j int) bool {
		a, b := snap.Investments[i], snap.Investments[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	sort.SliceStable(snap.Participants, func(i, j int) bool {
		a, b := snap.Participants[i], snap.Participants[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Address < b.Address
	})
	return snap, nil
}

// RestoreSnapshot loads a snapshot into an empty store as one unit of work
func RestoreSnapshot(ctx context.Context, store Store, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("failed to restore snapshot: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("failed to restore snapshot: unsupported version %d", snap.Version)
	}

	return store.Atomic(ctx, func(tx Store) error {
		count, err := tx.Invoices().Count(ctx)
		if err != nil {
			return err
		}
		participants, err := tx.Participants().List(ctx)
		if err != nil {
			return err
		}
		investments, err := tx.Investments().ListRecent(ctx, 1)
		if err != nil {
			return err
		}
		if count > 0 || len(participants) > 0 || len(investments) > 0 {
			return ErrStoreNotEmpty
		}

		for i := range snap.Participants {
			p := snap.Participants[i]
			if err := tx.Participants().Create(ctx, &p); err != nil {
				return err
			}
		}
		for i := range snap.Invoices {
			invoice := snap.Invoices[i]
			if err := tx.Invoices().Create(ctx, &invoice); err != nil {
				return err
			}
		}
		for i := range snap.Investments {
			investment := snap.Investments[i]
			if err := tx.Investments().Create(ctx, &investment); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSnapshotFile writes the snapshot as JSON, replacing path atomically
func WriteSnapshotFile(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshotFile reads a snapshot written by WriteSnapshotFile
func ReadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
