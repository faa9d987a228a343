// Package services holds the sentinel errors pkg/database's repositories
// return. They are the low-level vocabulary a repository speaks (akin to
// sql.ErrNoRows), independent of any one tenant or compile run; pkg/compile
// is the layer that recognizes them (via errors.Is, see reader.go,
// orchestrator.go, gating.go) and re-wraps them into the domain-facing
// compile.Error sum type an API handler actually switches on. Repositories
// never construct a compile.Error directly, since pkg/database must not
// import pkg/compile.
package services

import (
	"errors"
)

var (
	// ErrNotFound is returned when a repository row does not exist, or
	// exists but is soft-deleted (e.g. TenantRepository.Get).
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when a unique constraint rejects an
	// insert (e.g. a duplicate tenant slug or source connection).
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrConflict is returned when an operation conflicts with current
	// state under concurrent access (e.g. CompileRunRepository completing
	// a run twice, or JobRepository losing a claim race).
	ErrConflict = errors.New("conflict")
)
