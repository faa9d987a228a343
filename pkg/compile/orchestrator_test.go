package compile

import (
	"context"
	"testing"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTenantExistenceChecker struct {
	exists bool
	err    error
}

func (f *fakeTenantExistenceChecker) Exists(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.exists, f.err
}

// unreachableGatingDeps panics if touched, asserting Kickoff short-circuits
// on a missing tenant before any gating or DB work happens.
type unreachableGatingDeps struct{}

func (unreachableGatingDeps) Get(_ context.Context, _ uuid.UUID) (*models.Onboarding, error) {
	panic("onboarding.Get should not be called for a missing tenant")
}

func (unreachableGatingDeps) CountEnabled(_ context.Context, _ uuid.UUID) (int, error) {
	panic("sources.CountEnabled should not be called for a missing tenant")
}

func (unreachableGatingDeps) ListEnabled(_ context.Context, _ uuid.UUID) ([]*models.SourceConnection, error) {
	panic("sources.ListEnabled should not be called for a missing tenant")
}

func TestKickoff_MissingTenantReturnsNotFoundBeforeGating(t *testing.T) {
	o := NewOrchestrator(
		&fakeTenantExistenceChecker{exists: false},
		unreachableGatingDeps{},
		unreachableGatingDeps{},
		nil,
		nil,
		nil,
		nil,
		nil,
		PromptSettings{},
	)

	_, err := o.Kickoff(context.Background(), uuid.New(), false)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestKickoff_TenantExistenceCheckErrorPropagates(t *testing.T) {
	o := NewOrchestrator(
		&fakeTenantExistenceChecker{err: assert.AnError},
		unreachableGatingDeps{},
		unreachableGatingDeps{},
		nil,
		nil,
		nil,
		nil,
		nil,
		PromptSettings{},
	)

	_, err := o.Kickoff(context.Background(), uuid.New(), false)
	require.Error(t, err)
}
