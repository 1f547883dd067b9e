// Package postgres implements the domain repositories on gorm.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
)

// exclusion_violation, raised by the no-overlap constraints.
const pgExclusionViolation = "23P01"

type AppointmentRepository struct {
	db      *gorm.DB
	metrics *metrics.Collector
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

func NewAppointmentRepository(db *gorm.DB, m *metrics.Collector) *AppointmentRepository {
	return &AppointmentRepository{db: db, metrics: m}
}

func (r *AppointmentRepository) Find(ctx context.Context, f appointment.Filter) ([]*appointment.Appointment, error) {
	defer r.metrics.ObserveStoreOp("find", time.Now())

	q := r.db.WithContext(ctx).Model(&appointment.Appointment{})
	if f.PatientID != nil {
		q = q.Where("patient_id = ?", *f.PatientID)
	}
	if f.DoctorID != nil {
		q = q.Where("doctor_id = ?", *f.DoctorID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.StartsFrom != nil {
		q = q.Where("start_time >= ?", *f.StartsFrom)
	}
	if f.OverlapStart != nil && f.OverlapEnd != nil {
		q = q.Where("start_time < ? AND end_time > ?", *f.OverlapEnd, *f.OverlapStart)
	}
	if f.ExcludeID != nil {
		q = q.Where("id <> ?", *f.ExcludeID)
	}

	var out []*appointment.Appointment
	if err := q.Order("start_time ASC, created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AppointmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	defer r.metrics.ObserveStoreOp("find_by_id", time.Now())

	var a appointment.Appointment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appointment.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentRepository) Insert(ctx context.Context, a *appointment.Appointment) error {
	defer r.metrics.ObserveStoreOp("insert", time.Now())

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(a).Error, a)
}

func (r *AppointmentRepository) UpdateByID(ctx context.Context, id uuid.UUID, u *appointment.Update, modifiedAt time.Time) (*appointment.Appointment, error) {
	defer r.metrics.ObserveStoreOp("update", time.Now())

	cols := map[string]any{"modified_at": modifiedAt}
	if u.StartTime != nil {
		cols["start_time"] = *u.StartTime
	}
	if u.EndTime != nil {
		cols["end_time"] = *u.EndTime
	}
	if u.Reason != nil {
		cols["reason"] = *u.Reason
	}
	if u.Status != nil {
		cols["status"] = *u.Status
	}

	db := r.db.WithContext(ctx)

	// The stored row names the doctor and patient a constraint violation
	// should be reported against.
	var current appointment.Appointment
	err := db.Select("id", "doctor_id", "patient_id").Where("id = ?", id).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appointment.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}

	var a appointment.Appointment
	res := db.Model(&a).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(cols)
	if res.Error != nil {
		return nil, translate(res.Error, &current)
	}
	if res.RowsAffected == 0 {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *AppointmentRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	defer r.metrics.ObserveStoreOp("delete", time.Now())

	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&appointment.Appointment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return nil
}

// WithinLock opens a transaction, takes a transaction-scoped advisory lock
// per key and runs fn against a repository bound to that transaction. The
// locks are released on commit or rollback.
func (r *AppointmentRepository) WithinLock(ctx context.Context, keys []uuid.UUID, fn func(ctx context.Context, repo appointment.Repository) error) error {
	defer r.metrics.ObserveStoreOp("within_lock", time.Now())

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range appointment.LockKeys(keys) {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key.String()).Error; err != nil {
				return err
			}
		}
		return fn(ctx, &AppointmentRepository{db: tx, metrics: r.metrics})
	})
}

// translate turns a no-overlap constraint violation into the conflict error
// the availability checker would have reported. It only fires when a writer
// slipped past the advisory lock.
func translate(err error, a *appointment.Appointment) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgExclusionViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case database.DoctorNoOverlapConstraint:
		return &appointment.ConflictError{Subject: appointment.SubjectDoctor, SubjectID: a.DoctorID}
	case database.PatientNoOverlapConstraint:
		return &appointment.ConflictError{Subject: appointment.SubjectPatient, SubjectID: a.PatientID}
	}
	return err
}
