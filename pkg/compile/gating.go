package compile

import (
	"context"
	"errors"
	"fmt"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/services"
	"github.com/google/uuid"
)

// tier0RequiredAnswers are the onboarding question identifiers gating
// requires to be present and non-empty (spec.md §4.7: "tier-0 required
// answers"). Not enumerated by the source; chosen to match the onboarding
// fields a first compile needs to produce a usable draft.
var tier0RequiredAnswers = []string{"brand_name", "brand_voice", "target_audience"}

// OnboardingLookup is the narrow dependency gating needs on the onboarding
// row.
type OnboardingLookup interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Onboarding, error)
}

// EnabledSourceCounter is the narrow dependency gating needs on source
// connections.
type EnabledSourceCounter interface {
	CountEnabled(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// checkGating implements spec.md §4.7's gating predicate, returning a
// structured list of per-error {code, message}. An empty slice means
// gating passed.
func checkGating(ctx context.Context, onboarding OnboardingLookup, sources EnabledSourceCounter, tenantID uuid.UUID) ([]GatingError, error) {
	var errs []GatingError

	ob, err := onboarding.Get(ctx, tenantID)
	switch {
	case err == nil:
		for _, key := range tier0RequiredAnswers {
			v, ok := ob.Answers[key]
			if !ok || isEmptyAnswer(v) {
				errs = append(errs, GatingError{
					Code:    "MISSING_TIER0_ANSWER",
					Message: fmt.Sprintf("tier-0 answer %q is missing or empty", key),
				})
			}
		}
	case errors.Is(err, services.ErrNotFound):
		errs = append(errs, GatingError{Code: "NO_ONBOARDING", Message: "tenant has not completed onboarding"})
	default:
		return nil, fmt.Errorf("check gating: load onboarding: %w", err)
	}

	count, err := sources.CountEnabled(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("check gating: count enabled sources: %w", err)
	}
	if count == 0 {
		errs = append(errs, GatingError{Code: "NO_ENABLED_SOURCES", Message: "tenant has no enabled source connections"})
	}

	return errs, nil
}

func isEmptyAnswer(v any) bool {
	switch val := v.(type) {
	case string:
		return val == ""
	case nil:
		return true
	default:
		return false
	}
}
