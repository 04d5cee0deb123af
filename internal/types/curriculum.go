package types

// Curriculum lookup model. Loaded from the curriculum CSV at startup; the
// ingestion format itself is handled by internal/curriculum.

type Subskill struct {
	SubskillID          string  `json:"subskill_id"`
	SubskillDescription string  `json:"subskill_description"`
	DifficultyStart     float64 `json:"difficulty_start"`
	DifficultyEnd       float64 `json:"difficulty_end"`
	TargetDifficulty    float64 `json:"target_difficulty"`
}

type Skill struct {
	SkillID          string     `json:"skill_id"`
	SkillDescription string     `json:"skill_description"`
	Subskills        []Subskill `json:"subskills"`
}

type Unit struct {
	UnitID    string  `json:"unit_id"`
	UnitTitle string  `json:"unit_title"`
	Skills    []Skill `json:"skills"`
}

type Curriculum struct {
	Subject string `json:"subject"`
	Grade   string `json:"grade"`
	Units   []Unit `json:"units"`
}

// SubskillContext is the resolved coordinate for one subskill id, enough to
// start a generation run without the caller spelling the full coordinate.
type SubskillContext struct {
	Subject         string   `json:"subject"`
	Grade           string   `json:"grade"`
	Unit            string   `json:"unit"`
	Skill           string   `json:"skill"`
	Subskill        string   `json:"subskill"`
	SubskillID      string   `json:"subskill_id"`
	DifficultyLevel string   `json:"difficulty_level"`
	Prerequisites   []string `json:"prerequisites"`
	NextSubskill    string   `json:"next_subskill,omitempty"`
}
