package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/doctor"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/repository/memory"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
)

// Monday 4 March 2030; the fixed clock sits before it so every booking below
// is in the future unless a test says otherwise.
var (
	monday   = time.Date(2030, time.March, 4, 0, 0, 0, 0, time.UTC)
	saturday = time.Date(2030, time.March, 9, 0, 0, 0, 0, time.UTC)
	clock    = time.Date(2030, time.March, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc     *AppointmentService
	repo    *memory.AppointmentRepository
	doctors *memory.DoctorRepository
	audit   *memory.AuditRepository
	metrics *metrics.Collector
	doctorA uuid.UUID
	doctorB uuid.UUID
	staff   Actor
}

func newFixture(t *testing.T, loc *time.Location) *fixture {
	t.Helper()

	m := metrics.NewCollector("clinicflow_test")
	repo := memory.NewAppointmentRepository(m)
	doctors := memory.NewDoctorRepository()
	auditRepo := memory.NewAuditRepository()
	auditSvc := NewAuditService(auditRepo, m, zap.NewNop())
	t.Cleanup(func() { auditSvc.Shutdown(time.Second) })

	f := &fixture{
		svc:     NewAppointmentService(repo, doctors, auditSvc, m, loc, zap.NewNop()),
		repo:    repo,
		doctors: doctors,
		audit:   auditRepo,
		metrics: m,
		doctorA: doctors.Add(doctor.Doctor{FirstName: "Ada", LastName: "Okafor", LicenseNumber: "A-1"}),
		doctorB: doctors.Add(doctor.Doctor{FirstName: "Lin", LastName: "Moreau", LicenseNumber: "B-2"}),
		staff:   Actor{ID: uuid.New(), Role: domain.RoleReceptionist},
	}
	f.svc.now = func() time.Time { return clock }
	return f
}

func at(day time.Time, hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func (f *fixture) book(t *testing.T, doctorID, patientID uuid.UUID, start, end time.Time) *appointment.Appointment {
	t.Helper()
	a, err := f.svc.Book(context.Background(), &appointment.BookCommand{
		PatientID: patientID,
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   end,
		Reason:    "checkup",
	}, f.staff)
	require.NoError(t, err)
	return a
}

func (f *fixture) tryBook(doctorID, patientID uuid.UUID, start, end time.Time) (*appointment.Appointment, error) {
	return f.svc.Book(context.Background(), &appointment.BookCommand{
		PatientID: patientID,
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   end,
	}, f.staff)
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	all, err := f.repo.Find(context.Background(), appointment.Filter{})
	require.NoError(t, err)
	return len(all)
}

func ptr[T any](v T) *T { return &v }
