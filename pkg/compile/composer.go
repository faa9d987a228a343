package compile

import (
	"context"
	"fmt"

	"github.com/brandbrain/compiler/pkg/bundler"
	"github.com/google/uuid"
)

// StubComposer is the default DraftComposer (spec.md §4.3: "in this spec the
// LLM step is stubbed"). It produces a deterministic draft and QA report
// from the bundle summary and onboarding snapshot, with no external call.
type StubComposer struct{}

// NewStubComposer constructs a StubComposer.
func NewStubComposer() *StubComposer {
	return &StubComposer{}
}

// Compose implements DraftComposer.
func (c *StubComposer) Compose(ctx context.Context, tenantID uuid.UUID, bundle bundler.Result, onboardingSnap map[string]any) (draft, qaReport map[string]any, err error) {
	brandName, _ := onboardingSnap["brand_name"].(string)
	if brandName == "" {
		brandName = tenantID.String()
	}

	draft = map[string]any{
		"headline": fmt.Sprintf("Brand voice summary for %s", brandName),
		"body": fmt.Sprintf("Compiled from %d evidence items across %d platform groups.",
			len(bundle.ItemIDs), len(bundle.Report.Groups)),
		"sources_considered": len(bundle.Report.Groups),
	}
	qaReport = map[string]any{
		"checks_run":   []string{"evidence_non_empty", "transcript_coverage"},
		"passed":       len(bundle.ItemIDs) > 0,
		"item_count":   len(bundle.ItemIDs),
		"coverage_pct": bundle.Report.TranscriptCoverage,
	}
	return draft, qaReport, nil
}
