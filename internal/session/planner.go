// SPDX-License-Identifier: MIT

package session

import (
	"sync/atomic"

	"github.com/aleczinn/loki-sub000/internal/capabilities"
	"github.com/aleczinn/loki-sub000/internal/decision"
	"github.com/aleczinn/loki-sub000/internal/media"
	"github.com/aleczinn/loki-sub000/internal/metrics"
)

// DecisionPlanner runs the decision engine with process-wide options.
type DecisionPlanner struct {
	hw               HardwareInfo
	preferFragmented atomic.Bool
}

// NewDecisionPlanner creates a planner. hw may be nil, in which case video
// transcodes carry no backend annotation.
func NewDecisionPlanner(hw HardwareInfo, preferFragmented bool) *DecisionPlanner {
	p := &DecisionPlanner{hw: hw}
	p.preferFragmented.Store(preferFragmented)
	return p
}

// SetPreferFragmented changes the override for sessions created afterwards.
func (p *DecisionPlanner) SetPreferFragmented(v bool) { p.preferFragmented.Store(v) }

// Plan implements Planner.
func (p *DecisionPlanner) Plan(m media.MediaDescriptor, caps capabilities.ClientCapabilities, opts decision.Options) decision.StreamPlan {
	opts.PreferFragmented = opts.PreferFragmented || p.preferFragmented.Load()
	if p.hw != nil && opts.PreferredBackend == "" {
		opts.PreferredBackend = string(p.hw.Info().Preferred)
	}
	plan := decision.Decide(m, caps, opts)
	metrics.RecordDecision(string(plan.Mode), plan.Profile,
		len(plan.DirectPlayReasons), len(plan.RemuxReasons), len(plan.TranscodeReasons))
	return plan
}
