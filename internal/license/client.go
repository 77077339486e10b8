package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultClientTimeout = 5 * time.Second
	maxResponseBytes     = 1 << 20 // 1 MB
)

// Remote actions understood by the license authority.
const (
	actionActivate   = "activate"
	actionDeactivate = "deactivate"
	actionValidate   = "validate"
)

// RemoteResult is the normalized successful answer from the authority.
type RemoteResult struct {
	Status    string
	ExpiresAt *time.Time
	SiteCount int
	MaxSites  int
}

// AuthorityClient issues license operations against the remote authority.
// Implementations must classify failures via the sentinel errors and
// RejectionError in errors.go; the state machine drives transitions off that
// classification.
type AuthorityClient interface {
	Activate(ctx context.Context, key, siteID string) (*RemoteResult, error)
	Deactivate(ctx context.Context, key, siteID string) (*RemoteResult, error)
	Validate(ctx context.Context, key, siteID string) (*RemoteResult, error)
}

// wireRequest is the payload sent for every license operation.
type wireRequest struct {
	LicenseKey     string `json:"license_key"`
	SiteIdentifier string `json:"site_identifier"`
	Action         string `json:"action"`
}

// wireResponse is the authority's structured answer.
type wireResponse struct {
	Result    string `json:"result"` // success | rejected | error
	Status    string `json:"status,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	SiteCount int    `json:"site_count,omitempty"`
	MaxSites  int    `json:"max_sites,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// HTTPClient talks to the license authority over HTTPS with bounded
// timeouts. A hung network call must never block the host's request cycle
// longer than the configured timeout.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// NewHTTPClient creates a client for the given authority base URL.
// A zero timeout falls back to the default of 5 seconds.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "scanpro-license/1.0",
		logger:     logger.With(slog.String("component", "license_client")),
	}
}

// Activate registers this site against the key on the authority.
func (c *HTTPClient) Activate(ctx context.Context, key, siteID string) (*RemoteResult, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: license key is empty", ErrInvalidInput)
	}
	return c.do(ctx, actionActivate, key, siteID)
}

// Deactivate releases this site's slot on the authority.
func (c *HTTPClient) Deactivate(ctx context.Context, key, siteID string) (*RemoteResult, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: license key is empty", ErrInvalidInput)
	}
	return c.do(ctx, actionDeactivate, key, siteID)
}

// Validate asks the authority for the key's current status.
func (c *HTTPClient) Validate(ctx context.Context, key, siteID string) (*RemoteResult, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: license key is empty", ErrInvalidInput)
	}
	return c.do(ctx, actionValidate, key, siteID)
}

func (c *HTTPClient) do(ctx context.Context, action, key, siteID string) (*RemoteResult, error) {
	payload, err := json.Marshal(wireRequest{
		LicenseKey:     key,
		SiteIdentifier: siteID,
		Action:         action,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/v1/license/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := classifyTransportError(err)
		c.logger.WarnContext(ctx, "authority request failed",
			slog.String("action", action),
			slog.String("license_key", MaskKey(key)),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", classified, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}

	var wire wireResponse
	decodeErr := json.Unmarshal(body, &wire)

	// A well-formed rejection payload is authoritative no matter which HTTP
	// status carried it. Anything else non-2xx is transient: the authority's
	// true answer is unknown, so bias toward availability.
	if decodeErr == nil && wire.Result == "rejected" {
		c.logger.InfoContext(ctx, "authority rejected license",
			slog.String("action", action),
			slog.String("license_key", MaskKey(key)),
			slog.String("status", wire.Status),
			slog.String("reason", wire.Reason),
		)
		return nil, &RejectionError{Status: wire.Status, Reason: wire.Reason}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	}

	if decodeErr != nil {
		// Never trust a response that fails to parse.
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}

	switch wire.Result {
	case "success":
		result, err := wire.toResult()
		if err != nil {
			return nil, err
		}
		c.logger.DebugContext(ctx, "authority request succeeded",
			slog.String("action", action),
			slog.String("license_key", MaskKey(key)),
			slog.String("status", result.Status),
			slog.Duration("elapsed", time.Since(start)),
		)
		return result, nil
	case "error":
		return nil, fmt.Errorf("%w: %s", ErrServerError, wire.Reason)
	default:
		return nil, fmt.Errorf("%w: unknown result %q", ErrMalformedResponse, wire.Result)
	}
}

func (w *wireResponse) toResult() (*RemoteResult, error) {
	result := &RemoteResult{
		Status:    w.Status,
		SiteCount: w.SiteCount,
		MaxSites:  w.MaxSites,
	}
	if w.ExpiresAt != "" {
		expires, err := time.Parse(time.RFC3339, w.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("%w: bad expires_at %q", ErrMalformedResponse, w.ExpiresAt)
		}
		result.ExpiresAt = &expires
	}
	return result, nil
}

// classifyTransportError distinguishes timeouts from plain connectivity
// failures so logs and diagnostics can tell them apart. Both are transient.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnreachable
}
