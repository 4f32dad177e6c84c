package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sentinel-identity/internal/domain"
	"github.com/prn-tf/sentinel-identity/internal/pkg/clock"
	"github.com/prn-tf/sentinel-identity/internal/service"
	"github.com/prn-tf/sentinel-identity/internal/token"
)

var routerTestTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newAuthRouter builds a router whose auth service can verify tokens from the
// returned issuer. Repositories are never reached by the middleware tests.
func newAuthRouter(t *testing.T) (*Router, *token.Issuer) {
	t.Helper()

	clk := clock.NewFake(routerTestTime)
	issuer, err := token.NewIssuer("router-test-key", "sentinel-identity", time.Hour, clk)
	require.NoError(t, err)

	auth := service.NewAuthService(nil, nil, nil, nil, issuer,
		service.LockoutPolicy{}, clk, nil, zerolog.Nop())

	return NewRouter(RouterConfig{AuthService: auth, Logger: zerolog.Nop()}), issuer
}

func issueToken(t *testing.T, issuer *token.Issuer, id int64, staff bool) string {
	t.Helper()
	signed, err := issuer.Issue(&domain.Account{
		ID:       id,
		Username: "jdoe",
		Email:    "jdoe@example.com",
		IsStaff:  staff,
	})
	require.NoError(t, err)
	return signed
}

func TestRouter_SelfOrStaffAuthorization(t *testing.T) {
	rt, issuer := newAuthRouter(t)

	r := chi.NewRouter()
	r.With(rt.requireSelfOrStaff).Get("/accounts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
	}{
		{
			name:       "no token",
			path:       "/accounts/7",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			path:       "/accounts/7",
			token:      "not-a-token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "own account",
			path:       "/accounts/7",
			token:      issueToken(t, issuer, 7, false),
			wantStatus: http.StatusOK,
		},
		{
			name:       "someone else's account",
			path:       "/accounts/8",
			token:      issueToken(t, issuer, 7, false),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "staff on someone else's account",
			path:       "/accounts/8",
			token:      issueToken(t, issuer, 99, true),
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			require.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRouter_StaffOnly(t *testing.T) {
	rt, issuer := newAuthRouter(t)

	r := chi.NewRouter()
	r.With(rt.requireStaff).Post("/accounts/{id}/unlock", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// A non-staff token is refused even for its own account.
	req := httptest.NewRequest(http.MethodPost, "/accounts/7/unlock", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, issuer, 7, false))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/accounts/7/unlock", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, issuer, 99, true))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
