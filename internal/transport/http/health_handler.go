package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"scanpro/internal/services"
)

// HealthHandler exposes liveness and license-subsystem readiness.
type HealthHandler struct {
	service services.LicenseService
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(service services.LicenseService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
		started: time.Now(),
	}
}

// Routes returns the chi router for health endpoints.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Live)
	r.Get("/live", h.Live)
	r.Get("/ready", h.Ready)
	return r
}

// Live handles GET /api/health/live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready handles GET /api/health/ready. The service is ready regardless of
// entitlement; the license snapshot is informational.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	licenseState := "unknown"
	if err == nil {
		licenseState = status.Status
	}
	render.JSON(w, r, map[string]interface{}{
		"status":  "ok",
		"license": licenseState,
	})
}
