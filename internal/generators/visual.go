package generators

import (
	"context"
	"fmt"
	"strings"

	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/llm"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/types"
)

// visualGenerator runs in two phases: code generation on the code model, then
// metadata extraction on the text model. A metadata failure never fails the
// component; the metadata is synthesized from the master context instead and
// the artifact is marked as a fallback.
type visualGenerator struct {
	log       *logger.Logger
	client    llm.Client
	codeModel string
}

func NewVisualGenerator(client llm.Client, codeModel string, log *logger.Logger) Generator {
	return &visualGenerator{
		log:       log.With("generator", "Visual"),
		client:    client,
		codeModel: codeModel,
	}
}

func (g *visualGenerator) Component() types.ComponentType { return types.ComponentVisual }

func (g *visualGenerator) DependsOn() []types.ComponentType { return nil }

var visualMetadataSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"description":                   map[string]any{"type": "string"},
		"interactive_elements":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"concepts_demonstrated":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"user_instructions":             map[string]any{"type": "string"},
		"grade_appropriate_features":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"learning_objectives_addressed": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"educational_value":             map[string]any{"type": "string"},
	},
	"required": []string{"description", "interactive_elements", "concepts_demonstrated", "user_instructions"},
}

func (g *visualGenerator) Generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, _ Artifacts, packageID string) (any, map[string]any, error) {
	visual, err := g.generate(ctx, req, mc, "")
	if err != nil {
		return nil, nil, err
	}
	return visual, visualMeta(visual), nil
}

func (g *visualGenerator) Revise(ctx context.Context, pkg *types.ContentPackage, feedback string) (any, map[string]any, error) {
	req := requestFromPackage(pkg)
	var current types.VisualContent
	if err := pkg.Component(types.ComponentVisual, &current); err != nil {
		return nil, nil, err
	}
	note := fmt.Sprintf(`This is a revision pass. The previous sketch was reviewed and must be
rewritten to address this feedback:

%s

Previous sketch for reference:
%s`, feedback, truncate(current.P5Code, 4000))
	visual, err := g.generate(ctx, req, pkg.MasterContext, note)
	if err != nil {
		return nil, nil, err
	}
	return visual, visualMeta(visual), nil
}

func (g *visualGenerator) generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, revision string) (*types.VisualContent, error) {
	code, err := g.generateCode(ctx, req, mc, revision)
	if err != nil {
		return nil, err
	}

	visual := &types.VisualContent{P5Code: code}
	if err := g.extractMetadata(ctx, req, code, visual); err != nil {
		// Phase two is best effort. Synthesize metadata from the master
		// context and mark the artifact so reviewers can tell.
		g.log.Warn("visual metadata extraction failed, using master context fallback", "error", err)
		applyMetadataFallback(visual, req, mc, err)
	}
	g.log.Info("visual content generated",
		"code_bytes", len(visual.P5Code),
		"metadata_fallback", visual.MetadataFallback,
	)
	return visual, nil
}

func (g *visualGenerator) generateCode(ctx context.Context, req types.ContentRequest, mc types.MasterContext, revision string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `Write a complete, self-contained p5.js sketch that lets a student explore
this subskill interactively.

Subject: %s
Subskill: %s
Audience: %s students
Core concepts to demonstrate: %s
Learning objectives: %s

Requirements:
- define setup() and draw(); canvas 800x600
- at least two interactive elements (mouse or keyboard)
- on-canvas text labels so the sketch is self-explanatory
- no external assets, no network calls, no libraries beyond p5.js itself

Return ONLY the JavaScript source, no commentary.`,
		req.Subject, req.Subskill, req.GradeInfo(),
		joinList(mc.CoreConcepts), joinList(mc.LearningObjectives))
	if revision != "" {
		b.WriteString("\n\n")
		b.WriteString(revision)
	}

	code, err := g.client.GenerateText(ctx, b.String(), llm.GenerateOptions{
		Model:       g.codeModel,
		Temperature: 0.5,
	})
	if err != nil {
		return "", err
	}
	code = stripCodeFences(code)
	if !strings.Contains(code, "setup") || !strings.Contains(code, "draw") {
		return "", errs.Generationf("generated sketch is missing setup/draw")
	}
	return code, nil
}

func (g *visualGenerator) extractMetadata(ctx context.Context, req types.ContentRequest, code string, visual *types.VisualContent) error {
	prompt := fmt.Sprintf(`Analyze this p5.js sketch written for %s students learning %q.

%s

Produce a JSON object with:
- "description": what the sketch shows, in two sentences
- "interactive_elements": the interactions it supports
- "concepts_demonstrated": the concepts it demonstrates
- "user_instructions": one short paragraph telling the student how to use it
- "grade_appropriate_features": why it suits this audience
- "learning_objectives_addressed": objectives it addresses
- "educational_value": one sentence on its pedagogical value`,
		req.GradeInfo(), req.Subskill, truncate(code, 8000))

	raw, err := g.client.GenerateJSON(ctx, prompt, llm.GenerateOptions{
		Temperature:    0.3,
		ResponseSchema: visualMetadataSchema,
	})
	if err != nil {
		return err
	}
	desc := strFromAny(raw["description"])
	if desc == "" {
		return errs.Generationf("visual metadata has no description")
	}
	visual.Description = desc
	visual.InteractiveElements = toStringSlice(raw["interactive_elements"])
	visual.ConceptsDemonstrated = toStringSlice(raw["concepts_demonstrated"])
	visual.UserInstructions = strFromAny(raw["user_instructions"])
	visual.GradeAppropriateFeatures = toStringSlice(raw["grade_appropriate_features"])
	visual.LearningObjectivesAddressed = toStringSlice(raw["learning_objectives_addressed"])
	visual.EducationalValue = strFromAny(raw["educational_value"])
	return nil
}

func applyMetadataFallback(visual *types.VisualContent, req types.ContentRequest, mc types.MasterContext, cause error) {
	visual.Description = fmt.Sprintf("Interactive visualization for %s", req.Subskill)
	visual.InteractiveElements = []string{"mouse interaction", "keyboard interaction"}
	visual.ConceptsDemonstrated = firstN(mc.CoreConcepts, 3)
	visual.UserInstructions = "Interact with the visualization to explore the concept."
	visual.GradeAppropriateFeatures = []string{fmt.Sprintf("designed for %s", req.GradeInfo())}
	visual.LearningObjectivesAddressed = firstN(mc.LearningObjectives, 3)
	visual.EducationalValue = fmt.Sprintf("Hands-on exploration of %s", req.Subskill)
	visual.MetadataFallback = true
	visual.FallbackReason = cause.Error()
}

func visualMeta(v *types.VisualContent) map[string]any {
	return map[string]any{
		"code_bytes":        len(v.P5Code),
		"metadata_fallback": v.MetadataFallback,
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
