package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/edumint/edumint-backend/internal/errs"
)

type ComponentType string

const (
	ComponentReading  ComponentType = "reading"
	ComponentVisual   ComponentType = "visual"
	ComponentAudio    ComponentType = "audio"
	ComponentPractice ComponentType = "practice"
)

// AllComponents is the closed set of artifact types inside a package, in
// presentation order.
var AllComponents = []ComponentType{ComponentReading, ComponentVisual, ComponentAudio, ComponentPractice}

func ParseComponentType(s string) (ComponentType, error) {
	switch ComponentType(strings.ToLower(strings.TrimSpace(s))) {
	case ComponentReading:
		return ComponentReading, nil
	case ComponentVisual:
		return ComponentVisual, nil
	case ComponentAudio:
		return ComponentAudio, nil
	case ComponentPractice:
		return ComponentPractice, nil
	default:
		return "", errs.Validationf("unknown component type %q", s)
	}
}

type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
)

type PackageStatus string

const (
	StatusGenerated     PackageStatus = "generated"
	StatusUnderReview   PackageStatus = "under_review"
	StatusApproved      PackageStatus = "approved"
	StatusRejected      PackageStatus = "rejected"
	StatusNeedsRevision PackageStatus = "needs_revision"
	// StatusNeedsReview is set after a revision pass so the reviewer sees
	// the regenerated components again.
	StatusNeedsReview PackageStatus = "needs_review"
)

// ContentRequest is the curriculum coordinate a generation run starts from.
// It is created by the caller and never mutated.
type ContentRequest struct {
	Subject         string          `json:"subject"`
	Unit            string          `json:"unit"`
	Skill           string          `json:"skill"`
	Subskill        string          `json:"subskill"`
	DifficultyLevel DifficultyLevel `json:"difficulty_level"`
	Prerequisites   []string        `json:"prerequisites"`
	Grade           string          `json:"grade,omitempty"`
	EducatorID      string          `json:"educator_id,omitempty"`
}

// Normalize trims the coordinate fields and applies defaults. Validate
// should be called afterwards.
func (r *ContentRequest) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Unit = strings.TrimSpace(r.Unit)
	r.Skill = strings.TrimSpace(r.Skill)
	r.Subskill = strings.TrimSpace(r.Subskill)
	r.Grade = strings.TrimSpace(r.Grade)
	if r.DifficultyLevel == "" {
		r.DifficultyLevel = DifficultyIntermediate
	}
	if r.Prerequisites == nil {
		r.Prerequisites = []string{}
	}
}

func (r ContentRequest) Validate() error {
	for _, f := range []struct{ name, val string }{
		{"subject", r.Subject},
		{"unit", r.Unit},
		{"skill", r.Skill},
		{"subskill", r.Subskill},
	} {
		if f.val == "" {
			return errs.Validationf("%s must not be empty", f.name)
		}
	}
	switch r.DifficultyLevel {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
	default:
		return errs.Validationf("invalid difficulty_level %q", r.DifficultyLevel)
	}
	return nil
}

// GradeInfo is the audience description used in prompts. Falls back to a
// difficulty-based phrase when no grade band is on the request.
func (r ContentRequest) GradeInfo() string {
	if r.Grade != "" {
		return r.Grade
	}
	return string(r.DifficultyLevel) + " level"
}

// PartitionKey groups packages for the same subject+unit on one store
// partition.
func (r ContentRequest) PartitionKey() string { return r.Subject + "-" + r.Unit }

// MasterContext is the shared pedagogical foundation every artifact
// generator draws from. It is immutable once generated; its lifetime is the
// lifetime of the owning package.
type MasterContext struct {
	CoreConcepts          []string          `json:"core_concepts"`
	KeyTerminology        map[string]string `json:"key_terminology"`
	LearningObjectives    []string          `json:"learning_objectives"`
	DifficultyLevel       string            `json:"difficulty_level"`
	Prerequisites         []string          `json:"prerequisites"`
	RealWorldApplications []string          `json:"real_world_applications"`
}

// ReadingSection is one heading-scoped block of the reading artifact.
type ReadingSection struct {
	Heading         string   `json:"heading"`
	Content         string   `json:"content"`
	KeyTermsUsed    []string `json:"key_terms_used"`
	ConceptsCovered []string `json:"concepts_covered"`
}

type ReadingContent struct {
	Title        string           `json:"title"`
	Sections     []ReadingSection `json:"sections"`
	WordCount    int              `json:"word_count"`
	ReadingLevel string           `json:"reading_level"`
}

// VisualContent is the combined result of the two-phase visual generation:
// runnable p5.js source plus structured metadata. MetadataFallback marks the
// metadata as synthesized from the master context rather than generated, so
// callers can tell the two apart after the fact.
type VisualContent struct {
	P5Code                      string   `json:"p5_code"`
	Description                 string   `json:"description"`
	InteractiveElements         []string `json:"interactive_elements"`
	ConceptsDemonstrated        []string `json:"concepts_demonstrated"`
	UserInstructions            string   `json:"user_instructions"`
	GradeAppropriateFeatures    []string `json:"grade_appropriate_features"`
	LearningObjectivesAddressed []string `json:"learning_objectives_addressed"`
	EducationalValue            string   `json:"educational_value"`
	MetadataFallback            bool     `json:"metadata_fallback,omitempty"`
	FallbackReason              string   `json:"fallback_reason,omitempty"`
}

type VoiceConfig struct {
	TeacherVoice string `json:"teacher_voice"`
	StudentVoice string `json:"student_voice"`
}

// AudioContent carries the dialogue script and, when TTS ran, the blob
// location of the rendered audio. AudioURL is nil when TTS is disabled.
type AudioContent struct {
	AudioURL        *string     `json:"audio_url"`
	BlobName        *string     `json:"blob_name"`
	AudioFilename   *string     `json:"audio_filename"`
	DialogueScript  string      `json:"dialogue_script"`
	DurationSeconds float64     `json:"duration_seconds"`
	Voices          VoiceConfig `json:"voice_config"`
	TTSStatus       string      `json:"tts_status"` // success|disabled
	Format          string      `json:"audio_format,omitempty"`
	FileSizeBytes   int         `json:"file_size_bytes"`
}

// PracticeProblemMeta mirrors the curriculum coordinate onto each problem so
// problems remain traceable when extracted from the package.
type PracticeProblemMeta struct {
	Subject   string            `json:"subject"`
	Unit      CurriculumRef     `json:"unit"`
	Skill     CurriculumRef     `json:"skill"`
	Subskill  CurriculumRef     `json:"subskill"`
	Objective map[string]string `json:"objectives"`
}

type CurriculumRef struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type PracticeProblem struct {
	ID              string              `json:"id"`
	ProblemType     string              `json:"problem_type"`
	Problem         string              `json:"problem"`
	Answer          string              `json:"answer"`
	SuccessCriteria []string            `json:"success_criteria"`
	TeachingNote    string              `json:"teaching_note"`
	Difficulty      float64             `json:"difficulty"`
	Timestamp       string              `json:"timestamp"`
	Metadata        PracticeProblemMeta `json:"metadata"`
}

type PracticeContent struct {
	Problems             []PracticeProblem `json:"problems"`
	ProblemCount         int               `json:"problem_count"`
	EstimatedTimeMinutes int               `json:"estimated_time_minutes"`
}

// GenerationMetadata describes the run that produced a package. The
// coherence score is a structural constant: artifacts are coherent by
// shared-context construction, not by measurement.
type GenerationMetadata struct {
	GeneratedBy      string  `json:"generated_by"`
	GenerationTimeMS int64   `json:"generation_time_ms"`
	CoherenceScore   float64 `json:"coherence_score"`
}

type ReviewEntry struct {
	Note      string        `json:"note"`
	Status    PackageStatus `json:"status"`
	Reviewer  string        `json:"reviewer,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type RevisionEntry struct {
	Component  ComponentType `json:"component"`
	Feedback   string        `json:"feedback"`
	Reviewer   string        `json:"reviewer,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	Timestamp  time.Time     `json:"timestamp"`
}

// StorageMetadata is maintained by the package repo, not by callers.
type StorageMetadata struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int       `json:"version"`
	ContentHash string    `json:"content_hash"`
}

// ContentPackage is the aggregate root of one generation run. It exclusively
// owns its MasterContext and the four artifact payloads; the document-store
// row is the durable representation.
type ContentPackage struct {
	ID           string `json:"id"`
	PartitionKey string `json:"partition_key"`

	Subject  string `json:"subject"`
	Unit     string `json:"unit"`
	Skill    string `json:"skill"`
	Subskill string `json:"subskill"`

	Status    PackageStatus `json:"status"`
	CreatedBy string        `json:"created_by,omitempty"`

	MasterContext MasterContext `json:"master_context"`

	// Content holds exactly the four component payloads once generation
	// completes. Payloads are replaced wholesale, never partially mutated.
	Content map[ComponentType]json.RawMessage `json:"content"`

	// ComponentMeta carries per-component counters and flags (word counts,
	// durations, fallback markers).
	ComponentMeta map[ComponentType]map[string]any `json:"component_metadata,omitempty"`

	GenerationMetadata GenerationMetadata `json:"generation_metadata"`

	ReviewHistory   []ReviewEntry   `json:"review_history"`
	RevisionHistory []RevisionEntry `json:"revision_history"`

	StorageMetadata StorageMetadata `json:"storage_metadata"`
}

// Complete reports whether all four component payloads are present and
// non-empty. A package is never persisted as "generated" unless this holds.
func (p *ContentPackage) Complete() bool {
	if len(p.Content) != len(AllComponents) {
		return false
	}
	for _, ct := range AllComponents {
		raw, ok := p.Content[ct]
		if !ok || len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
			return false
		}
	}
	return true
}

// Component decodes one artifact payload into out.
func (p *ContentPackage) Component(ct ComponentType, out any) error {
	raw, ok := p.Content[ct]
	if !ok {
		return errs.NotFoundf("package %s has no %s component", p.ID, ct)
	}
	return json.Unmarshal(raw, out)
}

// SetComponent replaces one artifact payload wholesale.
func (p *ContentPackage) SetComponent(ct ComponentType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if p.Content == nil {
		p.Content = map[ComponentType]json.RawMessage{}
	}
	p.Content[ct] = raw
	return nil
}
