package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
)

// openTestDB connects to DATABASE_URL and migrates it. Every row a test
// inserts carries a doctor id from newDoctor, and those rows are removed
// when the test ends.
func openTestDB(t *testing.T) (*AppointmentRepository, func() uuid.UUID) {
	t.Helper()
	_ = godotenv.Load("../../../.env")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, zap.NewNop()))

	var doctors []uuid.UUID
	t.Cleanup(func() {
		if len(doctors) > 0 {
			db.Where("doctor_id IN ?", doctors).Delete(&appointment.Appointment{})
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	newDoctor := func() uuid.UUID {
		id := uuid.New()
		doctors = append(doctors, id)
		return id
	}
	return NewAppointmentRepository(db, metrics.NewCollector("pg_test")), newDoctor
}

var day = time.Date(2031, time.June, 2, 0, 0, 0, 0, time.UTC)

func hour(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

func insert(t *testing.T, repo *AppointmentRepository, doctorID, patientID uuid.UUID, start, end time.Time) *appointment.Appointment {
	t.Helper()
	a := &appointment.Appointment{
		ID:         uuid.New(),
		CreatedAt:  time.Now().UTC(),
		ModifiedAt: time.Now().UTC(),
		DoctorID:   doctorID,
		PatientID:  patientID,
		StartTime:  start,
		EndTime:    end,
		Reason:     "checkup",
		Status:     appointment.StatusScheduled,
	}
	require.NoError(t, repo.Insert(context.Background(), a))
	return a
}

func ids(as []*appointment.Appointment) []uuid.UUID {
	out := make([]uuid.UUID, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestAppointmentRepository_FindOverlapping(t *testing.T) {
	repo, newDoctor := openTestDB(t)
	ctx := context.Background()
	doctorID := newDoctor()

	early := insert(t, repo, doctorID, uuid.New(), hour(9), hour(10))
	late := insert(t, repo, doctorID, uuid.New(), hour(11), hour(12))
	cancelled := insert(t, repo, doctorID, uuid.New(), hour(10), hour(11))
	status := appointment.StatusCancelled
	_, err := repo.UpdateByID(ctx, cancelled.ID, &appointment.Update{Status: &status}, time.Now().UTC())
	require.NoError(t, err)

	f := appointment.Overlapping(hour(9).Add(30*time.Minute), hour(11).Add(30*time.Minute), nil)
	f.DoctorID = &doctorID
	got, err := repo.Find(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{early.ID, late.ID}, ids(got), "ordered by start, cancelled rows ignored")

	// Touching windows do not overlap.
	f = appointment.Overlapping(hour(10), hour(11), nil)
	f.DoctorID = &doctorID
	got, err = repo.Find(ctx, f)
	require.NoError(t, err)
	assert.Empty(t, got)

	f = appointment.Overlapping(hour(9), hour(12), &early.ID)
	f.DoctorID = &doctorID
	got, err = repo.Find(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{late.ID}, ids(got))
}

func TestAppointmentRepository_UpdateAndDelete(t *testing.T) {
	repo, newDoctor := openTestDB(t)
	ctx := context.Background()
	a := insert(t, repo, newDoctor(), uuid.New(), hour(9), hour(10))

	modifiedAt := time.Now().UTC().Truncate(time.Microsecond)
	reason := "follow-up"
	got, err := repo.UpdateByID(ctx, a.ID, &appointment.Update{
		StartTime: ptr(hour(13)),
		EndTime:   ptr(hour(14)),
		Reason:    &reason,
	}, modifiedAt)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.DoctorID, got.DoctorID)
	assert.Equal(t, a.PatientID, got.PatientID)
	assert.True(t, got.StartTime.Equal(hour(13)), got.StartTime)
	assert.True(t, got.EndTime.Equal(hour(14)), got.EndTime)
	assert.True(t, got.ModifiedAt.Equal(modifiedAt), got.ModifiedAt)
	assert.Equal(t, reason, got.Reason)
	assert.Equal(t, appointment.StatusScheduled, got.Status)

	_, err = repo.UpdateByID(ctx, uuid.New(), &appointment.Update{Reason: &reason}, modifiedAt)
	require.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	require.NoError(t, repo.DeleteByID(ctx, a.ID))
	require.ErrorIs(t, repo.DeleteByID(ctx, a.ID), appointment.ErrAppointmentNotFound)
	require.ErrorIs(t, repo.DeleteByID(ctx, uuid.New()), appointment.ErrAppointmentNotFound)
	_, err = repo.FindByID(ctx, a.ID)
	require.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestAppointmentRepository_ConstraintReportsStoredSubject(t *testing.T) {
	repo, newDoctor := openTestDB(t)
	ctx := context.Background()
	doctorID := newDoctor()
	patientID := uuid.New()

	insert(t, repo, doctorID, uuid.New(), hour(9), hour(10))
	clash := &appointment.Appointment{
		ID: uuid.New(), CreatedAt: time.Now().UTC(), ModifiedAt: time.Now().UTC(),
		DoctorID: doctorID, PatientID: uuid.New(),
		StartTime: hour(9).Add(30 * time.Minute), EndTime: hour(10).Add(30 * time.Minute),
		Reason: "walk-in", Status: appointment.StatusScheduled,
	}
	err := repo.Insert(ctx, clash)
	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, appointment.SubjectDoctor, conflict.Subject)
	assert.Equal(t, doctorID, conflict.SubjectID)

	// An update that runs into the patient constraint names the stored patient.
	insert(t, repo, newDoctor(), patientID, hour(15), hour(16))
	moving := insert(t, repo, newDoctor(), patientID, hour(11), hour(12))
	_, err = repo.UpdateByID(ctx, moving.ID, &appointment.Update{
		StartTime: ptr(hour(15)),
		EndTime:   ptr(hour(16)),
	}, time.Now().UTC())
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, appointment.SubjectPatient, conflict.Subject)
	assert.Equal(t, patientID, conflict.SubjectID)
}

func TestAppointmentRepository_WithinLockSerialisesBookings(t *testing.T) {
	repo, newDoctor := openTestDB(t)
	doctorID := newDoctor()
	errTaken := errors.New("window taken")

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			patientID := uuid.New()
			err := repo.WithinLock(context.Background(), []uuid.UUID{doctorID, patientID}, func(ctx context.Context, tx appointment.Repository) error {
				f := appointment.Overlapping(hour(9), hour(10), nil)
				f.DoctorID = &doctorID
				existing, err := tx.Find(ctx, f)
				if err != nil {
					return err
				}
				if len(existing) > 0 {
					return errTaken
				}
				return tx.Insert(ctx, &appointment.Appointment{
					CreatedAt: time.Now().UTC(), ModifiedAt: time.Now().UTC(),
					DoctorID: doctorID, PatientID: patientID,
					StartTime: hour(9), EndTime: hour(10),
					Reason: "checkup", Status: appointment.StatusScheduled,
				})
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, errTaken)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	got, err := repo.Find(context.Background(), appointment.Filter{DoctorID: &doctorID})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func ptr[T any](v T) *T { return &v }
