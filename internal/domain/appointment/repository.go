package appointment

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Find returns every appointment matching f, ordered by StartTime ascending.
	Find(ctx context.Context, f Filter) ([]*Appointment, error)

	// FindByID returns ErrAppointmentNotFound when no record exists.
	FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	Insert(ctx context.Context, a *Appointment) error

	// UpdateByID applies the present fields of u, stamps modified_at and
	// returns the stored record.
	UpdateByID(ctx context.Context, id uuid.UUID, u *Update, modifiedAt time.Time) (*Appointment, error)

	// DeleteByID removes the record permanently. Returns ErrAppointmentNotFound
	// when nothing was deleted.
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// WithinLock runs fn while holding exclusive locks on every key, so that a
	// conflict check and the write that follows it cannot interleave with
	// another booking for the same doctor or patient. fn must use the
	// Repository it is handed.
	WithinLock(ctx context.Context, keys []uuid.UUID, fn func(ctx context.Context, repo Repository) error) error
}

// LockKeys returns keys de-duplicated, without uuid.Nil, in ascending order.
// Locks must always be taken in this order to rule out deadlocks.
func LockKeys(keys []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		if k != uuid.Nil {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(out)
}
