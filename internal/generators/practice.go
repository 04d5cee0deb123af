package generators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/llm"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/types"
)

const practiceProblemCount = 8

// practiceGenerator runs after reading and visual: problems reference the
// concepts the reading passage covered and the interactions the visualization
// supports, so the set is traceable to both.
type practiceGenerator struct {
	log    *logger.Logger
	client llm.Client
	now    func() time.Time
}

func NewPracticeGenerator(client llm.Client, log *logger.Logger) Generator {
	return &practiceGenerator{
		log:    log.With("generator", "Practice"),
		client: client,
		now:    time.Now,
	}
}

func (g *practiceGenerator) Component() types.ComponentType { return types.ComponentPractice }

func (g *practiceGenerator) DependsOn() []types.ComponentType {
	return []types.ComponentType{types.ComponentReading, types.ComponentVisual}
}

var practiceSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"problems": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"problem_type":     map[string]any{"type": "string"},
					"problem":          map[string]any{"type": "string"},
					"answer":           map[string]any{"type": "string"},
					"success_criteria": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"teaching_note":    map[string]any{"type": "string"},
				},
				"required": []string{"problem_type", "problem", "answer"},
			},
		},
	},
	"required": []string{"problems"},
}

func (g *practiceGenerator) Generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, prior Artifacts, packageID string) (any, map[string]any, error) {
	practice, err := g.generate(ctx, req, mc, prior, "")
	if err != nil {
		return nil, nil, err
	}
	return practice, practiceMeta(practice), nil
}

func (g *practiceGenerator) Revise(ctx context.Context, pkg *types.ContentPackage, feedback string) (any, map[string]any, error) {
	req := requestFromPackage(pkg)
	prior, err := artifactsFromPackage(pkg)
	if err != nil {
		return nil, nil, err
	}
	note := fmt.Sprintf(`This is a revision pass. The previous problem set was reviewed and must
be rewritten to address this feedback:

%s`, feedback)
	practice, err := g.generate(ctx, req, pkg.MasterContext, prior, note)
	if err != nil {
		return nil, nil, err
	}
	return practice, practiceMeta(practice), nil
}

func artifactsFromPackage(pkg *types.ContentPackage) (Artifacts, error) {
	var reading types.ReadingContent
	if err := pkg.Component(types.ComponentReading, &reading); err != nil {
		return Artifacts{}, err
	}
	var visual types.VisualContent
	if err := pkg.Component(types.ComponentVisual, &visual); err != nil {
		return Artifacts{}, err
	}
	return Artifacts{Reading: &reading, Visual: &visual}, nil
}

func (g *practiceGenerator) generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, prior Artifacts, revision string) (*types.PracticeContent, error) {
	if prior.Reading == nil || prior.Visual == nil {
		return nil, errs.Generationf("practice generation requires the reading and visual artifacts")
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Write %d practice problems for this subskill, ordered from easiest to
hardest.

Subject: %s
Subskill: %s
Audience: %s students
Core concepts to exercise: %s
Learning objectives the set must cover: %s
Concepts the reading passage covered (problems should reference them): %s
Interactions the companion visualization supports (at least one problem
should build on them): %s

Produce a JSON object with "problems": an array where each problem has
"problem_type" (e.g. "word_problem", "calculation", "conceptual"),
"problem", "answer", "success_criteria" (2-3 observable criteria) and
"teaching_note" (one hint for an educator). Problem 1 should be solvable by
anyone who read the lesson; problem %d should stretch a strong student.`,
		practiceProblemCount, req.Subject, req.Subskill, req.GradeInfo(),
		joinList(mc.CoreConcepts), joinList(mc.LearningObjectives),
		joinList(readingConcepts(prior.Reading)), joinList(prior.Visual.InteractiveElements),
		practiceProblemCount)
	if revision != "" {
		b.WriteString("\n\n")
		b.WriteString(revision)
	}

	raw, err := g.client.GenerateJSON(ctx, b.String(), llm.GenerateOptions{
		Temperature:    0.6,
		ResponseSchema: practiceSchema,
	})
	if err != nil {
		return nil, err
	}

	items, _ := raw["problems"].([]any)
	practice := &types.PracticeContent{}
	ts := g.now().UTC()
	meta := problemMetadata(req, mc)
	for i, item := range items {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		problem := types.PracticeProblem{
			ID:              problemID(req, ts, i),
			ProblemType:     strFromAny(p["problem_type"]),
			Problem:         strFromAny(p["problem"]),
			Answer:          strFromAny(p["answer"]),
			SuccessCriteria: toStringSlice(p["success_criteria"]),
			TeachingNote:    strFromAny(p["teaching_note"]),
			// Difficulty ramps linearly with position in the set.
			Difficulty: 3.0 + 0.8*float64(i),
			Timestamp:  ts.Format(time.RFC3339),
			Metadata:   meta,
		}
		if problem.Problem == "" || problem.Answer == "" {
			continue
		}
		practice.Problems = append(practice.Problems, problem)
	}
	if len(practice.Problems) == 0 {
		return nil, errs.Generationf("practice set has no usable problems")
	}
	practice.ProblemCount = len(practice.Problems)
	practice.EstimatedTimeMinutes = practice.ProblemCount * 3

	g.log.Info("practice problems generated", "count", practice.ProblemCount)
	return practice, nil
}

// readingConcepts is the deduplicated union of concepts across the reading
// sections, in passage order.
func readingConcepts(r *types.ReadingContent) []string {
	seen := map[string]bool{}
	var out []string
	for _, sec := range r.Sections {
		for _, c := range sec.ConceptsCovered {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func problemID(req types.ContentRequest, ts time.Time, index int) string {
	return fmt.Sprintf("%s_%s_%d_%d_%s",
		slug(req.Subject), slug(req.Subskill), ts.Unix(), index, uuid.NewString()[:8])
}

func problemMetadata(req types.ContentRequest, mc types.MasterContext) types.PracticeProblemMeta {
	objectives := map[string]string{}
	for i, obj := range mc.LearningObjectives {
		objectives[fmt.Sprintf("objective_%d", i+1)] = obj
	}
	return types.PracticeProblemMeta{
		Subject:   req.Subject,
		Unit:      types.CurriculumRef{ID: slug(req.Unit), Description: req.Unit},
		Skill:     types.CurriculumRef{ID: slug(req.Skill), Description: req.Skill},
		Subskill:  types.CurriculumRef{ID: slug(req.Subskill), Description: req.Subskill},
		Objective: objectives,
	}
}

func practiceMeta(p *types.PracticeContent) map[string]any {
	return map[string]any{
		"problem_count":          p.ProblemCount,
		"estimated_time_minutes": p.EstimatedTimeMinutes,
	}
}
