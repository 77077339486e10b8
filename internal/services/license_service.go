package services

import (
	"context"
	"log/slog"
	"time"

	"scanpro/internal/infrastructure"
	"scanpro/internal/license"
)

// LicenseService provides business logic for license operations on top of
// the engine. Handlers depend on this interface, not on the Manager, so the
// transport layer can be tested with fakes.
type LicenseService interface {
	Status(ctx context.Context) (*StatusResponse, error)
	DetailedStatus(ctx context.Context) (*DetailedStatusResponse, error)
	Activate(ctx context.Context, key string) (*StatusResponse, error)
	Deactivate(ctx context.Context) (*StatusResponse, error)
	CheckNow(ctx context.Context) (*StatusResponse, error)
	InvalidateCache(ctx context.Context)
	IsActive(ctx context.Context) bool
}

// StatusResponse is the standard license status payload.
type StatusResponse struct {
	Status          string     `json:"status"`
	Message         string     `json:"message"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	SiteCount       int        `json:"site_count"`
	MaxSites        int        `json:"max_sites"`
	LastValidatedAt time.Time  `json:"last_validated_at"`
	GraceRemaining  string     `json:"grace_remaining,omitempty"`
	Active          bool       `json:"active"`
	TraceID         string     `json:"trace_id,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// DetailedStatusResponse adds diagnostics for the admin surface.
type DetailedStatusResponse struct {
	StatusResponse
	CacheStats map[string]interface{} `json:"cache_stats"`
}

// Engine is the slice of the license manager the service consumes.
type Engine interface {
	Activate(ctx context.Context, key string) (*license.StatusDetail, error)
	Deactivate(ctx context.Context) (*license.StatusDetail, error)
	Validate(ctx context.Context, force bool) (*license.StatusDetail, error)
	Detail(ctx context.Context) *license.StatusDetail
	IsActive(ctx context.Context) bool
	InvalidateCache()
	CacheStats() map[string]interface{}
}

type licenseService struct {
	engine Engine
	logger *slog.Logger
}

// NewLicenseService creates the license service.
func NewLicenseService(engine Engine, logger *slog.Logger) LicenseService {
	return &licenseService{
		engine: engine,
		logger: logger.With(slog.String("service", "license")),
	}
}

func (s *licenseService) Status(ctx context.Context) (*StatusResponse, error) {
	detail := s.engine.Detail(ctx)
	return s.toResponse(ctx, detail), nil
}

func (s *licenseService) DetailedStatus(ctx context.Context) (*DetailedStatusResponse, error) {
	detail := s.engine.Detail(ctx)
	return &DetailedStatusResponse{
		StatusResponse: *s.toResponse(ctx, detail),
		CacheStats:     s.engine.CacheStats(),
	}, nil
}

func (s *licenseService) Activate(ctx context.Context, key string) (*StatusResponse, error) {
	s.logger.InfoContext(ctx, "license activation requested",
		slog.String("license_key", license.MaskKey(key)),
	)
	detail, err := s.engine.Activate(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, detail), nil
}

func (s *licenseService) Deactivate(ctx context.Context) (*StatusResponse, error) {
	s.logger.InfoContext(ctx, "license deactivation requested")
	detail, err := s.engine.Deactivate(ctx)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, detail), nil
}

// CheckNow runs a forced, synchronous validation for the user-initiated
// "check now" action. The user sees the fresh result, not a cached one.
// On failure the status-machine outcome (grace, expired, invalid) has
// already been applied; the error tells the caller what to report.
func (s *licenseService) CheckNow(ctx context.Context) (*StatusResponse, error) {
	detail, err := s.engine.Validate(ctx, true)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, detail), nil
}

func (s *licenseService) InvalidateCache(ctx context.Context) {
	s.logger.InfoContext(ctx, "validation cache invalidated")
	s.engine.InvalidateCache()
}

func (s *licenseService) IsActive(ctx context.Context) bool {
	return s.engine.IsActive(ctx)
}

func (s *licenseService) toResponse(ctx context.Context, detail *license.StatusDetail) *StatusResponse {
	resp := &StatusResponse{
		Status:          string(detail.Status),
		Message:         detail.Message,
		ExpiresAt:       detail.ExpiresAt,
		SiteCount:       detail.SiteCount,
		MaxSites:        detail.MaxSites,
		LastValidatedAt: detail.LastValidatedAt,
		Active:          detail.Status == license.StatusActive || detail.Status == license.StatusGrace,
		TraceID:         infrastructure.GetTraceID(ctx),
		Timestamp:       time.Now().UTC(),
	}
	if detail.GraceRemaining > 0 {
		resp.GraceRemaining = detail.GraceRemaining.Round(time.Minute).String()
	}
	return resp
}
