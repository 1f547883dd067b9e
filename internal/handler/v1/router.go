package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/service"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
)

type RouterDeps struct {
	Appointments *service.AppointmentService
	Tokens       *auth.Issuer
	Metrics      *metrics.Collector
	RateLimiter  *RateLimiter
	Log          *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		RequestID(),
		Recovery(deps.Log),
		AccessLog(deps.Log),
		Metrics(deps.Metrics),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	appointments := NewAppointmentHandler(deps.Appointments)
	doctors := NewDoctorHandler(deps.Appointments)

	api := r.Group("/api/v1")
	if deps.RateLimiter != nil {
		api.Use(RateLimit(deps.RateLimiter))
	}
	api.Use(Authenticate(deps.Tokens))

	staff := RequireRoles(domain.RoleAdmin, domain.RoleDoctor, domain.RoleReceptionist)

	appts := api.Group("/appointments")
	appts.POST("", appointments.Book)
	appts.GET("", staff, appointments.List)
	appts.GET("/:id", appointments.Get)
	appts.PATCH("/:id", appointments.Reschedule)
	appts.POST("/:id/cancel", appointments.Cancel)
	appts.POST("/:id/complete", RequireRoles(domain.RoleAdmin, domain.RoleDoctor), appointments.Complete)
	appts.DELETE("/:id", RequireRoles(domain.RoleAdmin, domain.RoleReceptionist), appointments.Delete)

	api.GET("/patients/:id/appointments", appointments.ListByPatient)

	docs := api.Group("/doctors")
	docs.GET("/slots", doctors.AllSlots)
	docs.GET("/:id/slots", doctors.Slots)
	docs.GET("/:id/appointments", staff, appointments.ListByDoctor)

	return r
}
