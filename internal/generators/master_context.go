package generators

import (
	"context"
	"fmt"

	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/llm"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/types"
)

// MasterContextGenerator produces the shared pedagogical foundation for a
// package. It runs exactly once per generation run, before any component
// generator starts.
type MasterContextGenerator interface {
	Generate(ctx context.Context, req types.ContentRequest) (*types.MasterContext, error)
}

type masterContextGenerator struct {
	log    *logger.Logger
	client llm.Client
}

func NewMasterContextGenerator(client llm.Client, log *logger.Logger) MasterContextGenerator {
	return &masterContextGenerator{
		log:    log.With("generator", "MasterContext"),
		client: client,
	}
}

var masterContextSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"core_concepts":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"key_terminology":         map[string]any{"type": "object"},
		"learning_objectives":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"real_world_applications": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []string{"core_concepts", "key_terminology", "learning_objectives", "real_world_applications"},
}

func (g *masterContextGenerator) Generate(ctx context.Context, req types.ContentRequest) (*types.MasterContext, error) {
	prompt := fmt.Sprintf(`You are designing the pedagogical foundation for a lesson.

Subject: %s
Unit: %s
Skill: %s
Subskill: %s
Audience: %s students
Prerequisites already mastered: %s

Produce a JSON object with:
- "core_concepts": 4-6 core concepts a learner must internalize for this subskill
- "key_terminology": an object mapping 5-8 key terms to one-sentence definitions
- "learning_objectives": 3-5 measurable learning objectives ("The student can ...")
- "real_world_applications": 3-4 concrete real-world applications of this subskill

Everything must target %s difficulty and stay specific to the subskill, not the whole unit.`,
		req.Subject, req.Unit, req.Skill, req.Subskill, req.GradeInfo(),
		joinList(req.Prerequisites), req.DifficultyLevel)

	raw, err := g.client.GenerateJSON(ctx, prompt, llm.GenerateOptions{
		Temperature:    0.4,
		ResponseSchema: masterContextSchema,
	})
	if err != nil {
		return nil, err
	}

	mc := &types.MasterContext{
		CoreConcepts:          toStringSlice(raw["core_concepts"]),
		KeyTerminology:        toStringMap(raw["key_terminology"]),
		LearningObjectives:    toStringSlice(raw["learning_objectives"]),
		DifficultyLevel:       string(req.DifficultyLevel),
		Prerequisites:         req.Prerequisites,
		RealWorldApplications: toStringSlice(raw["real_world_applications"]),
	}
	// Every downstream generator draws on all four fields, so a response
	// missing any one of them is unusable.
	switch {
	case len(mc.CoreConcepts) == 0:
		return nil, errs.Generationf("master context is missing core_concepts")
	case len(mc.KeyTerminology) == 0:
		return nil, errs.Generationf("master context is missing key_terminology")
	case len(mc.LearningObjectives) == 0:
		return nil, errs.Generationf("master context is missing learning_objectives")
	case len(mc.RealWorldApplications) == 0:
		return nil, errs.Generationf("master context is missing real_world_applications")
	}

	g.log.Info("master context generated",
		"subskill", req.Subskill,
		"concepts", len(mc.CoreConcepts),
		"objectives", len(mc.LearningObjectives),
	)
	return mc, nil
}
