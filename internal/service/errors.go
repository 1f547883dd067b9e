package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/doctor"
)

var ErrForbidden = errors.New("forbidden: insufficient permissions")

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// InternalError wraps a persistence failure. It is never a business outcome.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internal(op string, err error) error {
	return &InternalError{Op: op, Err: err}
}

type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindValidation      ErrorKind = "validation"
	KindDoctorConflict  ErrorKind = "doctor_conflict"
	KindPatientConflict ErrorKind = "patient_conflict"
	KindNotFound        ErrorKind = "not_found"
	KindForbidden       ErrorKind = "forbidden"
	KindInternal        ErrorKind = "internal"
)

// KindOf classifies err. Anything unrecognised is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var validErr *ValidationError
	switch {
	case errors.As(err, &validErr),
		errors.Is(err, appointment.ErrInvalidInterval),
		errors.Is(err, appointment.ErrInvalidStatus),
		errors.Is(err, appointment.ErrInvalidStatusTransition):
		return KindValidation
	case errors.Is(err, appointment.ErrDoctorConflict):
		return KindDoctorConflict
	case errors.Is(err, appointment.ErrPatientConflict):
		return KindPatientConflict
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, doctor.ErrDoctorNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	}
	return KindInternal
}

type AuditEntry struct {
	Actor        Actor
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	Changes      string
}

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	ID        uuid.UUID
	Role      domain.Role
	PatientID *uuid.UUID
}

// IsPatient reports whether the caller must be scoped to their own records.
func (a Actor) IsPatient() bool {
	return a.Role == domain.RolePatient
}
