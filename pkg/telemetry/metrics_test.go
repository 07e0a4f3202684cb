package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(MessagesSent)
	MessagesSent.Inc()
	require.Equal(t, before+1, testutil.ToFloat64(MessagesSent))

	RepairPending.Set(7)
	require.Equal(t, float64(7), testutil.ToFloat64(RepairPending))
	RepairPending.Set(0)
}

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Middleware)
	r.HandleFunc("/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/users/{id}", "404"))

	req := httptest.NewRequest(http.MethodGet, "/v1/users/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// per-id paths collapse onto the route template label
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/users/{id}", "404"))
	require.Equal(t, before+1, after)
}
