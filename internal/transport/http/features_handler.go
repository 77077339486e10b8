package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "scanpro/internal/errors"
	"scanpro/internal/features"
)

// FeaturesHandler exposes the premium capability registry.
type FeaturesHandler struct {
	registry *features.Registry
	logger   *slog.Logger
}

// NewFeaturesHandler creates a new features handler.
func NewFeaturesHandler(registry *features.Registry, logger *slog.Logger) *FeaturesHandler {
	return &FeaturesHandler{
		registry: registry,
		logger:   logger.With(slog.String("handler", "features")),
	}
}

// Routes returns the chi router for feature endpoints. These live behind the
// license gate middleware; the registry additionally enforces the gate at
// the call site.
func (h *FeaturesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/{capability}/run", h.Run)
	return r
}

// List handles GET /api/features.
func (h *FeaturesHandler) List(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"capabilities": h.registry.List(),
	})
}

// Run handles POST /api/features/{capability}/run.
func (h *FeaturesHandler) Run(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "capability")

	result, err := h.registry.Run(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, features.ErrLocked):
			render.Render(w, r, apperrors.NewErrorResponse(apperrors.ErrFeatureLocked))
		default:
			render.Render(w, r, apperrors.NewErrorResponse(apperrors.NotFoundError("capability")))
		}
		return
	}
	render.JSON(w, r, result)
}
