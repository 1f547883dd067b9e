package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/doctor"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{&ValidationError{Fields: []string{"x"}}, KindValidation},
		{appointment.ErrInvalidInterval, KindValidation},
		{fmt.Errorf("wrapped: %w", appointment.ErrInvalidStatusTransition), KindValidation},
		{&appointment.ConflictError{Subject: appointment.SubjectDoctor, SubjectID: uuid.New()}, KindDoctorConflict},
		{&appointment.ConflictError{Subject: appointment.SubjectPatient, SubjectID: uuid.New()}, KindPatientConflict},
		{appointment.ErrAppointmentNotFound, KindNotFound},
		{doctor.ErrDoctorNotFound, KindNotFound},
		{ErrForbidden, KindForbidden},
		{internal("op", errors.New("connection reset")), KindInternal},
		{errors.New("anything else"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestInternalError_Unwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := internal("inserting appointment", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "inserting appointment: dial tcp: refused", err.Error())
}
