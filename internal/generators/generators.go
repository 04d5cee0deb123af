package generators

import (
	"context"

	"github.com/edumint/edumint-backend/internal/types"
)

// Artifacts carries earlier-stage outputs into generators that build on
// them. First-stage generators receive the zero value.
type Artifacts struct {
	Reading *types.ReadingContent
	Visual  *types.VisualContent
}

// Generator produces one component artifact from the shared master context.
type Generator interface {
	Component() types.ComponentType

	// DependsOn lists components whose payloads must be in prior before
	// Generate runs. First-stage generators return nil.
	DependsOn() []types.ComponentType

	// Generate builds the component payload plus its per-component metadata
	// (word counts, durations, fallback markers).
	Generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, prior Artifacts, packageID string) (payload any, meta map[string]any, err error)

	// Revise rebuilds the component against reviewer feedback, reusing the
	// package's stored master context. Other components are untouched.
	Revise(ctx context.Context, pkg *types.ContentPackage, feedback string) (payload any, meta map[string]any, err error)
}

// requestFromPackage reconstructs the generation coordinate for revision
// passes from what the package already stores.
func requestFromPackage(pkg *types.ContentPackage) types.ContentRequest {
	req := types.ContentRequest{
		Subject:         pkg.Subject,
		Unit:            pkg.Unit,
		Skill:           pkg.Skill,
		Subskill:        pkg.Subskill,
		DifficultyLevel: types.DifficultyLevel(pkg.MasterContext.DifficultyLevel),
		Prerequisites:   pkg.MasterContext.Prerequisites,
	}
	req.Normalize()
	return req
}
