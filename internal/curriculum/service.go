package curriculum

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/types"
)

// Service resolves curriculum coordinates. The curriculum is loaded once from
// CSV at startup and is read-only afterwards.
type Service interface {
	Curriculum() *types.Curriculum
	// SubskillContext resolves a subskill id into the full coordinate a
	// generation run needs, including difficulty level and prerequisites.
	SubskillContext(subskillID string) (*types.SubskillContext, error)
	ListUnits() []types.Unit
}

type service struct {
	log        *logger.Logger
	curriculum *types.Curriculum
	// byID indexes every subskill by id for O(1) context resolution.
	byID map[string]subskillSlot
}

type subskillSlot struct {
	unit     *types.Unit
	skill    *types.Skill
	index    int
	subskill *types.Subskill
}

func NewService(csvPath string, log *logger.Logger) (Service, error) {
	serviceLog := log.With("service", "CurriculumService")

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open curriculum csv %s: %w", csvPath, err)
	}
	defer f.Close()

	cur, err := parseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse curriculum csv %s: %w", csvPath, err)
	}

	s := &service{log: serviceLog, curriculum: cur, byID: map[string]subskillSlot{}}
	s.index()
	serviceLog.Info("curriculum loaded",
		"subject", cur.Subject,
		"units", len(cur.Units),
		"subskills", len(s.byID),
	)
	return s, nil
}

// NewServiceFromReader exists for tests and for curricula served from object
// storage instead of the local filesystem.
func NewServiceFromReader(r io.Reader, log *logger.Logger) (Service, error) {
	cur, err := parseCSV(r)
	if err != nil {
		return nil, err
	}
	s := &service{log: log.With("service", "CurriculumService"), curriculum: cur, byID: map[string]subskillSlot{}}
	s.index()
	return s, nil
}

func (s *service) index() {
	for ui := range s.curriculum.Units {
		unit := &s.curriculum.Units[ui]
		for si := range unit.Skills {
			skill := &unit.Skills[si]
			for bi := range skill.Subskills {
				sub := &skill.Subskills[bi]
				s.byID[sub.SubskillID] = subskillSlot{unit: unit, skill: skill, index: bi, subskill: sub}
			}
		}
	}
}

func (s *service) Curriculum() *types.Curriculum { return s.curriculum }

func (s *service) ListUnits() []types.Unit { return s.curriculum.Units }

func (s *service) SubskillContext(subskillID string) (*types.SubskillContext, error) {
	slot, ok := s.byID[strings.TrimSpace(subskillID)]
	if !ok {
		return nil, errs.NotFoundf("subskill %s", subskillID)
	}

	// Earlier subskills of the same skill are the prerequisites.
	prereqs := make([]string, 0, slot.index)
	for i := 0; i < slot.index; i++ {
		prereqs = append(prereqs, slot.skill.Subskills[i].SubskillDescription)
	}

	next := ""
	if slot.index+1 < len(slot.skill.Subskills) {
		next = slot.skill.Subskills[slot.index+1].SubskillID
	}

	return &types.SubskillContext{
		Subject:         s.curriculum.Subject,
		Grade:           s.curriculum.Grade,
		Unit:            slot.unit.UnitTitle,
		Skill:           slot.skill.SkillDescription,
		Subskill:        slot.subskill.SubskillDescription,
		SubskillID:      slot.subskill.SubskillID,
		DifficultyLevel: string(DifficultyFor(slot.subskill.TargetDifficulty)),
		Prerequisites:   prereqs,
		NextSubskill:    next,
	}, nil
}

// DifficultyFor buckets a numeric target difficulty (1-10 scale) into the
// three-level scheme the generators prompt with.
func DifficultyFor(target float64) types.DifficultyLevel {
	switch {
	case target <= 2.0:
		return types.DifficultyBeginner
	case target <= 4.0:
		return types.DifficultyIntermediate
	default:
		return types.DifficultyAdvanced
	}
}

// csv columns, in order
const (
	colSubject = iota
	colGrade
	colUnitID
	colUnitTitle
	colSkillID
	colSkillDescription
	colSubskillID
	colSubskillDescription
	colDifficultyStart
	colDifficultyEnd
	colTargetDifficulty
	colCount
)

func parseCSV(r io.Reader) (*types.Curriculum, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("curriculum csv has no data rows")
	}

	cur := &types.Curriculum{}
	unitIdx := map[string]int{}
	skillIdx := map[string]int{}

	for n, row := range rows[1:] {
		if len(row) < colCount {
			return nil, fmt.Errorf("row %d has %d columns, want %d", n+2, len(row), colCount)
		}
		if cur.Subject == "" {
			cur.Subject = strings.TrimSpace(row[colSubject])
			cur.Grade = strings.TrimSpace(row[colGrade])
		}

		unitID := strings.TrimSpace(row[colUnitID])
		ui, ok := unitIdx[unitID]
		if !ok {
			cur.Units = append(cur.Units, types.Unit{
				UnitID:    unitID,
				UnitTitle: strings.TrimSpace(row[colUnitTitle]),
			})
			ui = len(cur.Units) - 1
			unitIdx[unitID] = ui
		}

		skillID := strings.TrimSpace(row[colSkillID])
		si, ok := skillIdx[unitID+"/"+skillID]
		if !ok {
			cur.Units[ui].Skills = append(cur.Units[ui].Skills, types.Skill{
				SkillID:          skillID,
				SkillDescription: strings.TrimSpace(row[colSkillDescription]),
			})
			si = len(cur.Units[ui].Skills) - 1
			skillIdx[unitID+"/"+skillID] = si
		}

		start, err := parseFloat(row[colDifficultyStart], n+2, "difficulty_start")
		if err != nil {
			return nil, err
		}
		end, err := parseFloat(row[colDifficultyEnd], n+2, "difficulty_end")
		if err != nil {
			return nil, err
		}
		target, err := parseFloat(row[colTargetDifficulty], n+2, "target_difficulty")
		if err != nil {
			return nil, err
		}

		cur.Units[ui].Skills[si].Subskills = append(cur.Units[ui].Skills[si].Subskills, types.Subskill{
			SubskillID:          strings.TrimSpace(row[colSubskillID]),
			SubskillDescription: strings.TrimSpace(row[colSubskillDescription]),
			DifficultyStart:     start,
			DifficultyEnd:       end,
			TargetDifficulty:    target,
		})
	}
	return cur, nil
}

func parseFloat(s string, row int, col string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("row %d: bad %s %q", row, col, s)
	}
	return v, nil
}
