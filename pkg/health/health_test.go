package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func status(s Status, msg string) Check {
	return func(context.Context) ComponentHealth { return ComponentHealth{Status: s, Message: msg} }
}

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name     string
		critical Status
		optional Status
		want     Status
	}{
		{"all up", StatusUp, StatusUp, StatusUp},
		{"optional down degrades", StatusUp, StatusDown, StatusDegraded},
		{"critical down", StatusDown, StatusUp, StatusDown},
		{"both bad", StatusDown, StatusDegraded, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			c.Register("index", status(tt.critical, ""))
			c.RegisterOptional("redis", status(tt.optional, ""))
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, 2)
			assert.NotEmpty(t, report.Components["index"].Latency)
		})
	}
}

func TestOptionalDownIsReportedAsDegraded(t *testing.T) {
	c := NewChecker()
	c.RegisterOptional("kafka", status(StatusDown, "no brokers"))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Components["kafka"].Status)
	assert.Equal(t, "no brokers", report.Components["kafka"].Message)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index", status(StatusUp, "41995 verses"))
	c.RegisterOptional("redis", status(StatusDown, "refused"))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("index", status(StatusDown, "not loaded"))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
