// Package handler provides HTTP handlers for the Sentinel Identity API.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sentinel-identity/internal/metrics"
	"github.com/prn-tf/sentinel-identity/internal/repository"
	"github.com/prn-tf/sentinel-identity/internal/service"
)

// Router assembles the HTTP API.
type Router struct {
	authHandler    *AuthHandler
	accountHandler *AccountHandler
	roleHandler    *RoleHandler
	authService    *service.AuthService
	dbHealth       repository.DatabaseHealth
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	AuthHandler    *AuthHandler
	AccountHandler *AccountHandler
	RoleHandler    *RoleHandler
	AuthService    *service.AuthService
	DBHealth       repository.DatabaseHealth
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		authHandler:    config.AuthHandler,
		accountHandler: config.AccountHandler,
		roleHandler:    config.RoleHandler,
		authService:    config.AuthService,
		dbHealth:       config.DBHealth,
		metrics:        config.Metrics,
		logger:         config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
//
// Registration, login, and email verification are open. The self-service
// account routes require a session token for the account in the path (staff
// tokens pass for any account); everything else requires a staff token.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLogger)
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
	}

	r.Get("/health", rt.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", rt.authHandler.Login)
		r.Post("/auth/verify-email", rt.authHandler.VerifyEmail)
		r.Post("/accounts", rt.accountHandler.Register)

		r.Group(func(r chi.Router) {
			r.Use(rt.requireSelfOrStaff)

			r.Get("/accounts/{id}", rt.accountHandler.Get)
			r.Put("/accounts/{id}/profile", rt.accountHandler.UpdateProfile)
			r.Put("/accounts/{id}/password", rt.accountHandler.UpdatePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.requireStaff)

			r.Get("/accounts", rt.accountHandler.List)
			r.Put("/accounts/{id}/active", rt.accountHandler.SetActive)
			r.Post("/accounts/{id}/unlock", rt.accountHandler.Unlock)
			r.Get("/accounts/{id}/attempts", rt.accountHandler.Attempts)
			r.Post("/accounts/{id}/verification", rt.accountHandler.IssueVerification)
			r.Put("/accounts/{id}/roles/{name}", rt.roleHandler.Grant)
			r.Delete("/accounts/{id}/roles/{name}", rt.roleHandler.Revoke)

			r.Post("/roles", rt.roleHandler.Create)
			r.Get("/roles", rt.roleHandler.List)
			r.Get("/roles/{name}", rt.roleHandler.Get)
			r.Delete("/roles/{name}", rt.roleHandler.Delete)
		})
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.dbHealth != nil {
		if err := rt.dbHealth.Ping(r.Context()); err != nil {
			rt.logger.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// requestLogger logs each request at debug level.
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		rt.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("request handled")
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// requireSelfOrStaff restricts {id}-scoped routes to the account the session
// token was issued for, with staff tokens passing for any account.
func (rt *Router) requireSelfOrStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := rt.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		if !claims.IsStaff {
			subject, err := strconv.ParseInt(claims.Subject, 10, 64)
			pathID, pathErr := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil || pathErr != nil || subject != pathID {
				writeError(w, http.StatusForbidden, "access restricted to the account owner")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireStaff rejects requests whose session token does not carry the staff
// flag.
func (rt *Router) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := rt.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		if !claims.IsStaff {
			writeError(w, http.StatusForbidden, "staff access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
