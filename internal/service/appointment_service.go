package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/doctor"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
)

const resourceAppointment = "appointment"

// AppointmentService books, moves and cancels appointments without ever
// letting a doctor or a patient hold two overlapping scheduled appointments.
// Check and write run under the repository lock for the doctor and patient
// involved, so concurrent requests for the same people are serialised.
type AppointmentService struct {
	repo     appointment.Repository
	doctors  doctor.Directory
	checker  AvailabilityChecker
	slots    SlotGenerator
	auditSvc *AuditService
	metrics  *metrics.Collector
	tracer   trace.Tracer
	log      *zap.Logger
	now      func() time.Time
}

func NewAppointmentService(
	repo appointment.Repository,
	doctors doctor.Directory,
	auditSvc *AuditService,
	m *metrics.Collector,
	loc *time.Location,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		repo:     repo,
		doctors:  doctors,
		slots:    NewSlotGenerator(loc),
		auditSvc: auditSvc,
		metrics:  m,
		tracer:   otel.Tracer("github.com/dmehra2102/prod-golang-projects/clinicflow/internal/service"),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AppointmentService) Book(ctx context.Context, cmd *appointment.BookCommand, actor Actor) (*appointment.Appointment, error) {
	if err := validateBook(cmd); err != nil {
		return nil, err
	}
	if actor.IsPatient() && !actor.owns(cmd.PatientID) {
		return nil, ErrForbidden
	}

	ctx, span := s.tracer.Start(ctx, "AppointmentService.Book", trace.WithAttributes(
		attribute.String("doctor.id", cmd.DoctorID.String()),
		attribute.String("patient.id", cmd.PatientID.String()),
	))
	defer span.End()

	if _, err := s.doctors.GetByID(ctx, cmd.DoctorID); err != nil {
		return nil, s.fail(span, storeErr("verifying doctor", err))
	}

	var created *appointment.Appointment
	err := s.repo.WithinLock(ctx, []uuid.UUID{cmd.DoctorID, cmd.PatientID}, func(ctx context.Context, repo appointment.Repository) error {
		if err := s.checker.Check(ctx, repo, cmd.DoctorID, cmd.PatientID, cmd.StartTime, cmd.EndTime, nil); err != nil {
			return err
		}

		now := s.now()
		a := &appointment.Appointment{
			ID:         uuid.New(),
			CreatedAt:  now,
			ModifiedAt: now,
			PatientID:  cmd.PatientID,
			DoctorID:   cmd.DoctorID,
			StartTime:  cmd.StartTime.UTC(),
			EndTime:    cmd.EndTime.UTC(),
			Reason:     cmd.Reason,
			Status:     appointment.StatusScheduled,
		}
		if err := repo.Insert(ctx, a); err != nil {
			return storeErr("inserting appointment", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	span.SetAttributes(attribute.String("appointment.id", created.ID.String()))
	s.metrics.ObserveAppointment(string(domain.ActionBook))
	s.audit(actor, domain.ActionBook, created.ID, map[string]any{
		"doctor_id":  created.DoctorID,
		"patient_id": created.PatientID,
		"start_time": created.StartTime,
		"end_time":   created.EndTime,
	})
	s.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.String("patient_id", created.PatientID.String()),
		zap.Time("start_time", created.StartTime),
	)
	return created, nil
}

// Reschedule applies u to the appointment. When u moves the window of an
// appointment that stays scheduled, both availability checks are re-run with
// the appointment itself excluded. patientID is the patient checked for
// overlaps; uuid.Nil means the appointment's own patient.
func (s *AppointmentService) Reschedule(
	ctx context.Context,
	id, patientID uuid.UUID,
	u *appointment.Update,
	actor Actor,
) (*appointment.Appointment, error) {
	if err := validateUpdate(u); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "AppointmentService.Reschedule", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, storeErr("loading appointment", err))
	}
	if actor.IsPatient() && !actor.owns(current.PatientID) {
		return nil, s.fail(span, ErrForbidden)
	}
	// Completion is recorded by clinical staff only, whichever route asks for it.
	if actor.IsPatient() && u.Status != nil && *u.Status == appointment.StatusCompleted {
		return nil, s.fail(span, ErrForbidden)
	}
	if patientID == uuid.Nil {
		patientID = current.PatientID
	}

	var updated *appointment.Appointment
	err = s.repo.WithinLock(ctx, []uuid.UUID{current.DoctorID, patientID}, func(ctx context.Context, repo appointment.Repository) error {
		// Re-read under the lock; the record may have moved since.
		a, err := repo.FindByID(ctx, id)
		if err != nil {
			return storeErr("loading appointment", err)
		}
		if a.Status.IsTerminal() {
			return appointment.ErrInvalidStatusTransition
		}
		if u.Status != nil && !a.CanTransitionTo(*u.Status) {
			return appointment.ErrInvalidStatusTransition
		}

		start, end := u.Window(a)
		if !end.After(start) {
			return appointment.ErrInvalidInterval
		}

		stillScheduled := u.Status == nil || *u.Status == appointment.StatusScheduled
		if u.ChangesTime() && stillScheduled {
			if err := s.checker.Check(ctx, repo, a.DoctorID, patientID, start, end, &a.ID); err != nil {
				return err
			}
		}

		updated, err = repo.UpdateByID(ctx, id, normalizeUpdate(u), s.now())
		if err != nil {
			return storeErr("updating appointment", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	action := actionFor(u)
	s.metrics.ObserveAppointment(string(action))
	s.audit(actor, action, id, updateChanges(u))
	s.log.Info("appointment updated",
		zap.String("appointment_id", id.String()),
		zap.String("action", string(action)),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// Cancel keeps the record; a cancelled appointment no longer blocks its window.
func (s *AppointmentService) Cancel(ctx context.Context, id, patientID uuid.UUID, actor Actor) (*appointment.Appointment, error) {
	cancelled := appointment.StatusCancelled
	return s.Reschedule(ctx, id, patientID, &appointment.Update{Status: &cancelled}, actor)
}

func (s *AppointmentService) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*appointment.Appointment, error) {
	completed := appointment.StatusCompleted
	return s.Reschedule(ctx, id, uuid.Nil, &appointment.Update{Status: &completed}, actor)
}

// Delete removes the record permanently. It is meant for corrections, not
// clinical cancellation, and is not available to patients.
func (s *AppointmentService) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	if actor.IsPatient() {
		return ErrForbidden
	}

	ctx, span := s.tracer.Start(ctx, "AppointmentService.Delete", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return s.fail(span, storeErr("loading appointment", err))
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return s.fail(span, storeErr("deleting appointment", err))
	}

	s.metrics.ObserveAppointment(string(domain.ActionDelete))
	s.audit(actor, domain.ActionDelete, id, nil)
	s.log.Info("appointment deleted", zap.String("appointment_id", id.String()))
	return nil
}

func (s *AppointmentService) ListAll(ctx context.Context) ([]*appointment.Appointment, error) {
	out, err := s.repo.Find(ctx, appointment.Filter{})
	if err != nil {
		return nil, internal("listing appointments", err)
	}
	return out, nil
}

func (s *AppointmentService) Get(ctx context.Context, id uuid.UUID, actor Actor) (*appointment.Appointment, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("loading appointment", err)
	}
	if actor.IsPatient() && !actor.owns(a.PatientID) {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListByPatient returns the patient's appointments by ascending start time.
// With upcomingOnly, only scheduled appointments starting now or later.
func (s *AppointmentService) ListByPatient(ctx context.Context, patientID uuid.UUID, upcomingOnly bool, actor Actor) ([]*appointment.Appointment, error) {
	if actor.IsPatient() && !actor.owns(patientID) {
		return nil, ErrForbidden
	}

	f := appointment.Filter{PatientID: &patientID}
	if upcomingOnly {
		scheduled := appointment.StatusScheduled
		now := s.now()
		f.Status = &scheduled
		f.StartsFrom = &now
	}

	out, err := s.repo.Find(ctx, f)
	if err != nil {
		return nil, internal("listing patient appointments", err)
	}
	return out, nil
}

func (s *AppointmentService) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*appointment.Appointment, error) {
	out, err := s.repo.Find(ctx, appointment.Filter{DoctorID: &doctorID})
	if err != nil {
		return nil, internal("listing doctor appointments", err)
	}
	return out, nil
}

type DoctorSlots struct {
	Doctor *doctor.Doctor `json:"doctor"`
	Slots  []Slot         `json:"slots"`
}

// DoctorSlots returns the slot grid for one doctor on date.
func (s *AppointmentService) DoctorSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	ctx, span := s.tracer.Start(ctx, "AppointmentService.DoctorSlots", trace.WithAttributes(
		attribute.String("doctor.id", doctorID.String()),
	))
	defer span.End()

	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, s.fail(span, storeErr("verifying doctor", err))
	}

	slots, err := s.slotsFor(ctx, doctorID, date)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return slots, nil
}

// DoctorsWithSlots returns every doctor in the directory with their slot grid
// for date.
func (s *AppointmentService) DoctorsWithSlots(ctx context.Context, date time.Time) ([]DoctorSlots, error) {
	ctx, span := s.tracer.Start(ctx, "AppointmentService.DoctorsWithSlots")
	defer span.End()

	doctors, err := s.doctors.List(ctx)
	if err != nil {
		return nil, s.fail(span, internal("listing doctors", err))
	}

	out := make([]DoctorSlots, 0, len(doctors))
	for _, d := range doctors {
		slots, err := s.slotsFor(ctx, d.ID, date)
		if err != nil {
			return nil, s.fail(span, err)
		}
		out = append(out, DoctorSlots{Doctor: d, Slots: slots})
	}
	return out, nil
}

func (s *AppointmentService) slotsFor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	dayStart, dayEnd := s.slots.WorkingDay(date)

	f := appointment.Overlapping(dayStart, dayEnd, nil)
	f.DoctorID = &doctorID
	booked, err := s.repo.Find(ctx, f)
	if err != nil {
		return nil, internal("loading doctor appointments", err)
	}

	s.metrics.ObserveSlotQuery()
	return s.slots.Generate(date, booked), nil
}

// fail records err on span and counts conflicts. Errors that are not business
// outcomes come back as *InternalError.
func (s *AppointmentService) fail(span trace.Span, err error) error {
	var conflict *appointment.ConflictError
	if errors.As(err, &conflict) {
		s.metrics.ObserveConflict(string(conflict.Subject))
		span.SetAttributes(attribute.String("conflict.subject", string(conflict.Subject)))
		s.log.Info("scheduling conflict",
			zap.String("subject", string(conflict.Subject)),
			zap.String("subject_id", conflict.SubjectID.String()),
			zap.String("conflicting_id", conflict.ConflictingID.String()),
		)
	}

	if KindOf(err) == KindInternal {
		var ie *InternalError
		if !errors.As(err, &ie) {
			err = internal("scheduling", err)
		}
		s.log.Error("scheduling operation failed", zap.Error(err))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *AppointmentService) audit(actor Actor, action domain.AuditAction, id uuid.UUID, changes map[string]any) {
	if s.auditSvc == nil {
		return
	}

	entry := AuditEntry{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceAppointment,
		ResourceID:   id.String(),
	}
	if changes != nil {
		if b, err := json.Marshal(changes); err == nil {
			entry.Changes = string(b)
		}
	}
	s.auditSvc.LogAsync(entry)
}

func (a Actor) owns(patientID uuid.UUID) bool {
	return a.PatientID != nil && *a.PatientID == patientID
}

// storeErr passes business errors through and wraps anything else.
func storeErr(op string, err error) error {
	if KindOf(err) != KindInternal {
		return err
	}
	return internal(op, err)
}

func validateBook(cmd *appointment.BookCommand) error {
	if cmd == nil {
		return &ValidationError{Fields: []string{"request body is required"}}
	}

	var fields []string
	if cmd.PatientID == uuid.Nil {
		fields = append(fields, "patient_id is required")
	}
	if cmd.DoctorID == uuid.Nil {
		fields = append(fields, "doctor_id is required")
	}
	if cmd.StartTime.IsZero() {
		fields = append(fields, "start_time is required")
	}
	if cmd.EndTime.IsZero() {
		fields = append(fields, "end_time is required")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	if !cmd.EndTime.After(cmd.StartTime) {
		return appointment.ErrInvalidInterval
	}
	return nil
}

func validateUpdate(u *appointment.Update) error {
	if u == nil || u.IsEmpty() {
		return &ValidationError{Fields: []string{"at least one field must be provided"}}
	}

	var fields []string
	if u.StartTime != nil && u.StartTime.IsZero() {
		fields = append(fields, "start_time must not be zero")
	}
	if u.EndTime != nil && u.EndTime.IsZero() {
		fields = append(fields, "end_time must not be zero")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	if u.Status != nil && !u.Status.IsValid() {
		return appointment.ErrInvalidStatus
	}
	return nil
}

// normalizeUpdate stores instants in UTC without touching the caller's Update.
func normalizeUpdate(u *appointment.Update) *appointment.Update {
	out := *u
	if u.StartTime != nil {
		t := u.StartTime.UTC()
		out.StartTime = &t
	}
	if u.EndTime != nil {
		t := u.EndTime.UTC()
		out.EndTime = &t
	}
	return &out
}

func actionFor(u *appointment.Update) domain.AuditAction {
	if u.Status != nil {
		switch *u.Status {
		case appointment.StatusCancelled:
			return domain.ActionCancel
		case appointment.StatusCompleted:
			return domain.ActionComplete
		}
	}
	return domain.ActionReschedule
}

func updateChanges(u *appointment.Update) map[string]any {
	changes := make(map[string]any, 4)
	if u.StartTime != nil {
		changes["start_time"] = u.StartTime.UTC()
	}
	if u.EndTime != nil {
		changes["end_time"] = u.EndTime.UTC()
	}
	if u.Reason != nil {
		changes["reason"] = *u.Reason
	}
	if u.Status != nil {
		changes["status"] = *u.Status
	}
	return changes
}

// Location is the zone the working day is defined in.
func (s *AppointmentService) Location() *time.Location {
	return s.slots.loc
}
