package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "scanpro/internal/errors"
	"scanpro/internal/infrastructure"
	"scanpro/internal/license"
	"scanpro/internal/services"
)

var validate = validator.New()

// LicenseHandler handles license-related HTTP requests.
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the payload for POST /api/license/activate. Keys are
// opaque: only empty keys are rejected locally, the authority judges the rest.
type ActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required,max=128"`
}

// Bind implements the render.Binder interface.
func (a *ActivationRequest) Bind(r *http.Request) error {
	a.LicenseKey = license.NormalizeKey(a.LicenseKey)
	if err := validate.Struct(a); err != nil {
		return errors.New("license_key is required and must be at most 128 characters")
	}
	return nil
}

// Routes returns the chi router for license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/status", h.Status)
	r.Get("/detailed", h.DetailedStatus)
	r.Post("/activate", h.Activate)
	r.Post("/deactivate", h.Deactivate)
	r.Post("/check", h.CheckNow)
	r.Post("/invalidate-cache", h.InvalidateCache)

	return r
}

// Status handles GET /api/license/status.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())

	resp, err := h.service.Status(ctx)
	if err != nil {
		h.renderError(w, r.WithContext(ctx), err)
		return
	}
	render.JSON(w, r, resp)
}

// DetailedStatus handles GET /api/license/detailed.
func (h *LicenseHandler) DetailedStatus(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())

	resp, err := h.service.DetailedStatus(ctx)
	if err != nil {
		h.renderError(w, r.WithContext(ctx), err)
		return
	}
	render.JSON(w, r, resp)
}

// Activate handles POST /api/license/activate. Errors are surfaced directly
// to the calling user action: the user sees why activation failed, with the
// authority's reason verbatim on a rejection.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())
	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license_handler.activate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/activate"),
		),
	)
	defer span.End()

	req := &ActivationRequest{}
	if err := render.Bind(r, req); err != nil {
		h.logger.WarnContext(ctx, "invalid activation request",
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.NewErrorResponse(apperrors.InvalidRequestWithError(err)))
		return
	}

	resp, err := h.service.Activate(ctx, req.LicenseKey)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r.WithContext(ctx), err)
		return
	}

	span.SetAttributes(attribute.String("license.status", resp.Status))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Deactivate handles POST /api/license/deactivate. Local state is always
// cleared; a failed remote release shows up in the response message.
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())

	resp, err := h.service.Deactivate(ctx)
	if err != nil {
		h.renderError(w, r.WithContext(ctx), err)
		return
	}
	render.JSON(w, r, resp)
}

// CheckNow handles POST /api/license/check: a forced synchronous
// re-validation whose result the user sees immediately.
func (h *LicenseHandler) CheckNow(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())

	resp, err := h.service.CheckNow(ctx)
	if err != nil {
		h.renderError(w, r.WithContext(ctx), err)
		return
	}
	render.JSON(w, r, resp)
}

// InvalidateCache handles POST /api/license/invalidate-cache.
func (h *LicenseHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())
	h.service.InvalidateCache(ctx)
	render.JSON(w, r, map[string]interface{}{
		"success":  true,
		"trace_id": infrastructure.GetTraceID(ctx),
	})
}

func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apperrors.MapLicenseError(err)
	h.logger.WarnContext(r.Context(), "license request failed",
		slog.String("path", r.URL.Path),
		slog.String("error_code", apiErr.ErrorCode),
		slog.String("error", err.Error()),
	)
	render.Render(w, r, apperrors.NewErrorResponse(apiErr))
}
