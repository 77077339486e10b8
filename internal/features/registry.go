// Package features holds the capability registry for ScanPro's premium
// feature modules. Every capability is registered unconditionally at
// startup; gating happens at the call site against the license engine, not
// through conditional loading.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrLocked is returned when a premium capability runs without entitlement.
var ErrLocked = errors.New("features: capability requires an active license")

// Gate is the entitlement query the registry consults at call time.
type Gate interface {
	IsActive(ctx context.Context) bool
}

// Capability identifiers. The table is fixed; there is no dynamic discovery.
const (
	CapVulnerabilityScan = "vulnerability-scan"
	CapPerformanceScan   = "performance-scan"
	CapAIAnalysis        = "ai-analysis"
)

// Runner executes one capability.
type Runner interface {
	ID() string
	Name() string
	Run(ctx context.Context) (*Result, error)
}

// Result is a capability run outcome.
type Result struct {
	CapabilityID string `json:"capability_id"`
	Summary      string `json:"summary"`
}

// Registry maps capability IDs to runners and enforces the license gate on
// every run.
type Registry struct {
	gate    Gate
	logger  *slog.Logger
	runners map[string]Runner
}

// NewRegistry builds the fixed capability table.
func NewRegistry(gate Gate, logger *slog.Logger) *Registry {
	r := &Registry{
		gate:    gate,
		logger:  logger.With(slog.String("component", "features")),
		runners: make(map[string]Runner),
	}
	for _, runner := range []Runner{
		&vulnerabilityScan{},
		&performanceScan{},
		&aiAnalysis{},
	} {
		r.runners[runner.ID()] = runner
	}
	return r
}

// List returns the registered capability IDs in stable order.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.runners))
	for id := range r.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run executes a capability if the license gate is open.
func (r *Registry) Run(ctx context.Context, id string) (*Result, error) {
	runner, ok := r.runners[id]
	if !ok {
		return nil, fmt.Errorf("features: unknown capability %q", id)
	}
	if !r.gate.IsActive(ctx) {
		r.logger.InfoContext(ctx, "capability run refused, license inactive",
			slog.String("capability", id),
		)
		return nil, ErrLocked
	}
	r.logger.InfoContext(ctx, "running capability",
		slog.String("capability", id),
	)
	return runner.Run(ctx)
}

type vulnerabilityScan struct{}

func (*vulnerabilityScan) ID() string   { return CapVulnerabilityScan }
func (*vulnerabilityScan) Name() string { return "Vulnerability Scan" }
func (*vulnerabilityScan) Run(ctx context.Context) (*Result, error) {
	return &Result{CapabilityID: CapVulnerabilityScan, Summary: "vulnerability scan queued"}, nil
}

type performanceScan struct{}

func (*performanceScan) ID() string   { return CapPerformanceScan }
func (*performanceScan) Name() string { return "Performance Scan" }
func (*performanceScan) Run(ctx context.Context) (*Result, error) {
	return &Result{CapabilityID: CapPerformanceScan, Summary: "performance scan queued"}, nil
}

type aiAnalysis struct{}

func (*aiAnalysis) ID() string   { return CapAIAnalysis }
func (*aiAnalysis) Name() string { return "AI Analysis" }
func (*aiAnalysis) Run(ctx context.Context) (*Result, error) {
	return &Result{CapabilityID: CapAIAnalysis, Summary: "analysis queued"}, nil
}
