package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/service"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

const (
	codeDoctorConflict  = "DOCTOR_CONFLICT"
	codePatientConflict = "PATIENT_CONFLICT"
	dateLayout          = "2006-01-02"
)

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, err error) {
	switch service.KindOf(err) {
	case service.KindValidation:
		var validErr *service.ValidationError
		if errors.As(err, &validErr) {
			c.JSON(http.StatusBadRequest, ValidationErrorResponse{
				Error:  "validation failed",
				Fields: validErr.Fields,
			})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case service.KindDoctorConflict:
		c.JSON(http.StatusConflict, conflictResponse(err, appointment.ErrDoctorConflict, codeDoctorConflict))

	case service.KindPatientConflict:
		c.JSON(http.StatusConflict, conflictResponse(err, appointment.ErrPatientConflict, codePatientConflict))

	case service.KindNotFound:
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case service.KindForbidden:
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func conflictResponse(err, sentinel error, code string) ErrorResponse {
	resp := ErrorResponse{Error: sentinel.Error(), Code: code}

	var conflict *appointment.ConflictError
	if errors.As(err, &conflict) {
		resp.Details = map[string]string{"subject_id": conflict.SubjectID.String()}
		if conflict.ConflictingID != uuid.Nil {
			resp.Details["conflicting_appointment_id"] = conflict.ConflictingID.String()
		}
	}
	return resp
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// parseDate reads the required ?date=YYYY-MM-DD query parameter as a calendar
// date in loc.
func parseDate(c *gin.Context, loc *time.Location) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		respondError(c, http.StatusBadRequest, "date query parameter is required (YYYY-MM-DD)")
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid date: must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}
