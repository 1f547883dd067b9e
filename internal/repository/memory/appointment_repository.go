// Package memory holds process-local stores used by tests and by
// STORE_DRIVER=memory development runs.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/interval"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
)

type AppointmentRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*appointment.Appointment

	locks   *keyedMutex
	metrics *metrics.Collector
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

func NewAppointmentRepository(m *metrics.Collector) *AppointmentRepository {
	return &AppointmentRepository{
		records: make(map[uuid.UUID]*appointment.Appointment),
		locks:   newKeyedMutex(),
		metrics: m,
	}
}

func (r *AppointmentRepository) Find(ctx context.Context, f appointment.Filter) ([]*appointment.Appointment, error) {
	defer r.metrics.ObserveStoreOp("find", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*appointment.Appointment, 0)
	for _, a := range r.records {
		if matches(a, f) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *appointment.Appointment) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (r *AppointmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	defer r.metrics.ObserveStoreOp("find_by_id", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.records[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a.Clone(), nil
}

func (r *AppointmentRepository) Insert(ctx context.Context, a *appointment.Appointment) error {
	defer r.metrics.ObserveStoreOp("insert", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.records[a.ID] = a.Clone()
	return nil
}

func (r *AppointmentRepository) UpdateByID(ctx context.Context, id uuid.UUID, u *appointment.Update, modifiedAt time.Time) (*appointment.Appointment, error) {
	defer r.metrics.ObserveStoreOp("update", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.records[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	u.ApplyTo(a, modifiedAt)
	return a.Clone(), nil
}

func (r *AppointmentRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	defer r.metrics.ObserveStoreOp("delete", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	delete(r.records, id)
	return nil
}

// WithinLock holds a mutex per key for the duration of fn. fn receives the
// repository itself: every single operation is already atomic.
func (r *AppointmentRepository) WithinLock(ctx context.Context, keys []uuid.UUID, fn func(ctx context.Context, repo appointment.Repository) error) error {
	unlock, err := r.locks.lock(ctx, appointment.LockKeys(keys))
	if err != nil {
		return err
	}
	defer unlock()

	return fn(ctx, r)
}

func matches(a *appointment.Appointment, f appointment.Filter) bool {
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.StartsFrom != nil && a.StartTime.Before(*f.StartsFrom) {
		return false
	}
	if f.OverlapStart != nil && f.OverlapEnd != nil &&
		!interval.Overlaps(a.StartTime, a.EndTime, *f.OverlapStart, *f.OverlapEnd) {
		return false
	}
	if f.ExcludeID != nil && a.ID == *f.ExcludeID {
		return false
	}
	return true
}
