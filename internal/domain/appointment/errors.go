package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrDoctorConflict          = errors.New("doctor is already booked during this time")
	ErrPatientConflict         = errors.New("patient already has an appointment during this time")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrInvalidInterval         = errors.New("end time must be after start time")
	ErrInvalidStatus           = errors.New("invalid appointment status")
)

// Subject identifies which party of an appointment a conflict was found for.
type Subject string

const (
	SubjectDoctor  Subject = "doctor"
	SubjectPatient Subject = "patient"
)

// ConflictError reports the first existing appointment found overlapping the
// requested window. It matches ErrDoctorConflict or ErrPatientConflict.
type ConflictError struct {
	Subject       Subject
	SubjectID     uuid.UUID
	ConflictingID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (%s %s, conflicting appointment %s)",
		e.sentinel().Error(), e.Subject, e.SubjectID, e.ConflictingID)
}

func (e *ConflictError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ConflictError) sentinel() error {
	if e.Subject == SubjectPatient {
		return ErrPatientConflict
	}
	return ErrDoctorConflict
}
