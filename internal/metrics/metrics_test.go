package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsEndToEnd(t *testing.T) {
	// promauto registers against the default registry, so build the sink
	// once for the whole test.
	m := New("sentinel_test")

	m.RecordLogin(OutcomeSuccess)
	m.RecordLogin(OutcomeLocked)
	m.RecordLockout()
	m.RecordUnlock()
	m.RecordRegistration()
	m.RecordVerification(OutcomeSuccess)

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// The scrape handler is a package function, not a method on Metrics;
	// it serves everything registered above.
	scrape := httptest.NewRecorder()
	Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, scrape.Code)
	require.Contains(t, scrape.Body.String(), "sentinel_test_logins_total")
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/auth/login", "/v1/auth/login"},
		{"/v1/accounts/42", "/v1/accounts/{id}"},
		{"/v1/accounts/42/unlock", "/v1/accounts/{id}"},
		{"/health", "/health"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, normalizePath(tt.path))
	}
}
