package v1

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
)

func TestMetrics_InFlightReleasedWhenHandlerPanics(t *testing.T) {
	m := metrics.NewCollector("middleware_test")
	r := gin.New()
	r.Use(Recovery(zap.NewNop()), Metrics(m))
	r.GET("/boom", func(*gin.Context) { panic("handler bug") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/boom", "/ok", "/boom"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlightGauge))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/ok", "204")))
}
