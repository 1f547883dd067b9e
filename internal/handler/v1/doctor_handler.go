package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/service"
)

type DoctorHandler struct {
	svc *service.AppointmentService
}

func NewDoctorHandler(svc *service.AppointmentService) *DoctorHandler {
	return &DoctorHandler{svc: svc}
}

// Slots handles GET /doctors/:id/slots?date=YYYY-MM-DD.
func (h *DoctorHandler) Slots(c *gin.Context) {
	doctorID, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	date, ok := parseDate(c, h.svc.Location())
	if !ok {
		return
	}

	slots, err := h.svc.DoctorSlots(c.Request.Context(), doctorID, date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, slots)
}

// AllSlots handles GET /doctors/slots?date=YYYY-MM-DD.
func (h *DoctorHandler) AllSlots(c *gin.Context) {
	date, ok := parseDate(c, h.svc.Location())
	if !ok {
		return
	}

	out, err := h.svc.DoctorsWithSlots(c.Request.Context(), date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, out)
}
