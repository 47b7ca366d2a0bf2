// Package enhance defines the optional external enrichment step: a
// text-generation collaborator that rewrites and extends the heuristic
// analysis. The core never depends on a specific provider, only on the
// Enhancer interface, and every failure mode maps to ErrUnavailable so
// callers can silently fall back to the core result.
package enhance

import (
	"context"
	"errors"

	"github.com/tonalworks/sonata-api/internal/analysis"
	"github.com/tonalworks/sonata-api/internal/metrics"
)

// ErrUnavailable marks any non-success condition from the enrichment
// collaborator: rate limiting, quota exhaustion, malformed responses,
// network failure, or timeout. Non-fatal by contract; the core result
// stands on its own.
var ErrUnavailable = errors.New("enhancement unavailable")

// Token accounting shared by the providers.
var tokenMetrics = metrics.NewSentryMetrics()

// EnhancedResult is the enriched analysis: the core result shape plus
// the optional narrative fields the collaborator may add.
type EnhancedResult struct {
	analysis.Result
	HistoricalContext string   `json:"historicalContext,omitempty"`
	TechnicalAnalysis string   `json:"technicalAnalysis,omitempty"`
	EnhancedInsights  []string `json:"enhancedInsights,omitempty"`
}

// Enhancer is the pluggable enrichment interface. Enhance either
// returns a complete EnhancedResult or an error wrapping
// ErrUnavailable; it never returns a partial result.
type Enhancer interface {
	Enhance(ctx context.Context, result *analysis.Result) (*EnhancedResult, error)
	Name() string
}

// enhancementPayload is the JSON shape the providers ask the model for.
type enhancementPayload struct {
	Sections          []analysis.Section `json:"sections"`
	Summary           string             `json:"summary"`
	MusicalInsights   []string           `json:"musicalInsights"`
	HistoricalContext string             `json:"historicalContext"`
	TechnicalAnalysis string             `json:"technicalAnalysis"`
	EnhancedInsights  []string           `json:"enhancedInsights"`
}

// merge folds a model payload over the core result, keeping the core's
// sections whenever the model's fail validation. Enrichment is strictly
// additive: nothing the core computed is ever lost.
func merge(core *analysis.Result, p *enhancementPayload) *EnhancedResult {
	out := &EnhancedResult{Result: *core}
	if validSections(p.Sections, core.Sections) {
		out.Sections = p.Sections
	}
	if p.Summary != "" {
		out.Summary = p.Summary
	}
	if len(p.MusicalInsights) > 0 {
		out.MusicalInsights = p.MusicalInsights
	}
	out.HistoricalContext = p.HistoricalContext
	out.TechnicalAnalysis = p.TechnicalAnalysis
	out.EnhancedInsights = p.EnhancedInsights
	return out
}

// validSections accepts a replacement section list only when it keeps
// the structural contract the core guarantees: same time span, ordered,
// non-overlapping, confidences in range.
func validSections(candidate, core []analysis.Section) bool {
	if len(candidate) == 0 || len(core) == 0 {
		return false
	}
	totalEnd := core[len(core)-1].End
	const tol = 1e-6
	if candidate[0].Start > tol || candidate[len(candidate)-1].End < totalEnd-tol ||
		candidate[len(candidate)-1].End > totalEnd+tol {
		return false
	}
	for i, s := range candidate {
		if s.End <= s.Start || s.Confidence < 0 || s.Confidence > 1 {
			return false
		}
		if i > 0 && s.Start < candidate[i-1].End-tol {
			return false
		}
	}
	return true
}

const systemPrompt = `You are a musicologist reviewing an automated sonata-form analysis of a MIDI file.
You receive the analysis as JSON. Refine the section descriptions, add historical context about the
sonata form conventions the piece follows or breaks, add a short technical analysis, and add further
musical insights. Keep every section's type, startTime, endTime and confidence unless the structure is
clearly mislabeled; never change the overall time span. Respond with JSON only.`

// outputSchema is the JSON schema the providers enforce on the model
// output.
func outputSchema() map[string]any {
	sectionSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":        map[string]any{"type": "string"},
			"startTime":   map[string]any{"type": "number"},
			"endTime":     map[string]any{"type": "number"},
			"confidence":  map[string]any{"type": "number"},
			"description": map[string]any{"type": "string"},
			"musicalKey":  map[string]any{"type": "string"},
		},
		"required":             []string{"type", "startTime", "endTime", "confidence", "description"},
		"additionalProperties": false,
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sections":          map[string]any{"type": "array", "items": sectionSchema},
			"summary":           map[string]any{"type": "string"},
			"musicalInsights":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"historicalContext": map[string]any{"type": "string"},
			"technicalAnalysis": map[string]any{"type": "string"},
			"enhancedInsights":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"sections", "summary", "musicalInsights", "historicalContext", "technicalAnalysis", "enhancedInsights"},
		"additionalProperties": false,
	}
}
