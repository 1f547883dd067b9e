package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/interval"
)

// AvailabilityChecker answers whether a doctor or patient is free for a
// window. Only scheduled appointments occupy time.
type AvailabilityChecker struct{}

// Check runs the doctor check and then the patient check against repo. The
// first overlap found is returned as an *appointment.ConflictError; a doctor
// conflict therefore wins when both would conflict. excludeID, when set,
// keeps the appointment being moved from conflicting with itself.
func (AvailabilityChecker) Check(
	ctx context.Context,
	repo appointment.Repository,
	doctorID, patientID uuid.UUID,
	start, end time.Time,
	excludeID *uuid.UUID,
) error {
	if !interval.Valid(start, end) {
		return appointment.ErrInvalidInterval
	}

	if err := checkSubject(ctx, repo, appointment.SubjectDoctor, doctorID, start, end, excludeID); err != nil {
		return err
	}
	return checkSubject(ctx, repo, appointment.SubjectPatient, patientID, start, end, excludeID)
}

func checkSubject(
	ctx context.Context,
	repo appointment.Repository,
	subject appointment.Subject,
	subjectID uuid.UUID,
	start, end time.Time,
	excludeID *uuid.UUID,
) error {
	f := appointment.Overlapping(start, end, excludeID)
	if subject == appointment.SubjectDoctor {
		f.DoctorID = &subjectID
	} else {
		f.PatientID = &subjectID
	}

	existing, err := repo.Find(ctx, f)
	if err != nil {
		return internal("checking "+string(subject)+" availability", err)
	}

	for _, a := range existing {
		// Status, exclusion and overlap are re-checked against the filter.
		if !a.IsActive() || (excludeID != nil && a.ID == *excludeID) {
			continue
		}
		if interval.Overlaps(a.StartTime, a.EndTime, start, end) {
			return &appointment.ConflictError{
				Subject:       subject,
				SubjectID:     subjectID,
				ConflictingID: a.ID,
			}
		}
	}
	return nil
}
