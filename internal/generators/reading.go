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

type readingGenerator struct {
	log    *logger.Logger
	client llm.Client
}

func NewReadingGenerator(client llm.Client, log *logger.Logger) Generator {
	return &readingGenerator{
		log:    log.With("generator", "Reading"),
		client: client,
	}
}

func (g *readingGenerator) Component() types.ComponentType { return types.ComponentReading }

func (g *readingGenerator) DependsOn() []types.ComponentType { return nil }

var readingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{"type": "string"},
		"sections": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"heading":          map[string]any{"type": "string"},
					"content":          map[string]any{"type": "string"},
					"key_terms_used":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"concepts_covered": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"heading", "content"},
			},
		},
	},
	"required": []string{"title", "sections"},
}

func (g *readingGenerator) Generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, _ Artifacts, packageID string) (any, map[string]any, error) {
	reading, err := g.generate(ctx, req, mc, "")
	if err != nil {
		return nil, nil, err
	}
	return reading, readingMeta(reading), nil
}

func (g *readingGenerator) Revise(ctx context.Context, pkg *types.ContentPackage, feedback string) (any, map[string]any, error) {
	req := requestFromPackage(pkg)
	var current types.ReadingContent
	if err := pkg.Component(types.ComponentReading, &current); err != nil {
		return nil, nil, err
	}
	reading, err := g.generate(ctx, req, pkg.MasterContext, revisionNote(current.Title, feedback))
	if err != nil {
		return nil, nil, err
	}
	return reading, readingMeta(reading), nil
}

func (g *readingGenerator) generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, revision string) (*types.ReadingContent, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `Write expository reading content teaching this subskill.

Subject: %s
Subskill: %s
Audience: %s students

Core concepts to cover (all of them): %s
Key terminology to use and reinforce: %s
Learning objectives: %s
Real-world applications to weave in: %s

Produce a JSON object with:
- "title": an engaging title
- "sections": 3-5 sections, each with "heading", "content" (150-300 words of
  flowing prose, no bullet lists), "key_terms_used" (terms from the
  terminology list that appear in the section) and "concepts_covered"
  (concepts from the core concept list the section addresses)

Explain ideas with concrete examples before abstractions.`,
		req.Subject, req.Subskill, req.GradeInfo(),
		joinList(mc.CoreConcepts), describeTerms(mc.KeyTerminology),
		joinList(mc.LearningObjectives), joinList(mc.RealWorldApplications))
	if revision != "" {
		b.WriteString("\n\n")
		b.WriteString(revision)
	}

	raw, err := g.client.GenerateJSON(ctx, b.String(), llm.GenerateOptions{
		Temperature:    0.7,
		ResponseSchema: readingSchema,
	})
	if err != nil {
		return nil, err
	}

	reading := &types.ReadingContent{
		Title:        strFromAny(raw["title"]),
		ReadingLevel: req.GradeInfo(),
	}
	sections, _ := raw["sections"].([]any)
	for _, item := range sections {
		sec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		section := types.ReadingSection{
			Heading:         strFromAny(sec["heading"]),
			Content:         strFromAny(sec["content"]),
			KeyTermsUsed:    toStringSlice(sec["key_terms_used"]),
			ConceptsCovered: toStringSlice(sec["concepts_covered"]),
		}
		if section.Heading == "" || section.Content == "" {
			continue
		}
		reading.WordCount += wordCount(section.Content)
		reading.Sections = append(reading.Sections, section)
	}
	if reading.Title == "" || len(reading.Sections) == 0 {
		return nil, errs.Generationf("reading content has no usable sections")
	}

	g.log.Info("reading content generated",
		"title", truncate(reading.Title, 60),
		"sections", len(reading.Sections),
		"word_count", reading.WordCount,
	)
	return reading, nil
}

func readingMeta(r *types.ReadingContent) map[string]any {
	return map[string]any{
		"section_count": len(r.Sections),
		"word_count":    r.WordCount,
	}
}

func revisionNote(title, feedback string) string {
	return fmt.Sprintf(`This is a revision pass. The previous version, titled %q, was reviewed
and must be rewritten to address this feedback:

%s

Keep everything that was not criticized; change what was.`, title, feedback)
}
