package domain

import (
	"encoding/json"
	"fmt"
)

// AssessmentMeta carries assessment-specific progress counters.
type AssessmentMeta struct {
	AnsweredCount int `json:"answeredCount"`
	CorrectCount  int `json:"correctCount"`
}

// PBLMeta carries project-based-learning state.
type PBLMeta struct {
	Phase        string   `json:"phase,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
}

// DiscoveryMeta carries career-discovery exploration state.
type DiscoveryMeta struct {
	ExploredPaths []string `json:"exploredPaths,omitempty"`
}

// ProgramMetadata is the typed replacement for the open metadata bag: one
// optional section per learning mode plus a small extension map for keys the
// engine does not interpret.
type ProgramMetadata struct {
	CurrentTaskID    *string                    `json:"currentTaskId,omitempty"`
	CurrentTaskIndex int                        `json:"currentTaskIndex"`
	XP               int                        `json:"xp"`
	Assessment       *AssessmentMeta            `json:"assessment,omitempty"`
	PBL              *PBLMeta                   `json:"pbl,omitempty"`
	Discovery        *DiscoveryMeta             `json:"discovery,omitempty"`
	Extra            map[string]json.RawMessage `json:"extra,omitempty"`
}

// NewProgramMetadata returns metadata with the section matching the mode
// initialized.
func NewProgramMetadata(mode Mode) ProgramMetadata {
	meta := ProgramMetadata{}
	switch mode {
	case ModeAssessment:
		meta.Assessment = &AssessmentMeta{}
	case ModePBL:
		meta.PBL = &PBLMeta{}
	case ModeDiscovery:
		meta.Discovery = &DiscoveryMeta{}
	}
	return meta
}

// Merge folds patch into m field by field; whole-bag replacement never
// happens. Rules:
//   - CurrentTaskID and CurrentTaskIndex are taken from patch (the
//     progression service is their only writer, and a nil CurrentTaskID
//     means the program ran out of tasks).
//   - XP keeps the larger value, so the accumulator never decreases.
//   - Mode sections are taken from patch when set, kept otherwise.
//   - Extra is a key-wise union with patch winning per key.
func (m ProgramMetadata) Merge(patch ProgramMetadata) ProgramMetadata {
	out := m
	out.CurrentTaskID = patch.CurrentTaskID
	out.CurrentTaskIndex = patch.CurrentTaskIndex
	if patch.XP > out.XP {
		out.XP = patch.XP
	}
	if patch.Assessment != nil {
		out.Assessment = patch.Assessment
	}
	if patch.PBL != nil {
		out.PBL = patch.PBL
	}
	if patch.Discovery != nil {
		out.Discovery = patch.Discovery
	}
	if len(patch.Extra) > 0 {
		merged := make(map[string]json.RawMessage, len(m.Extra)+len(patch.Extra))
		for k, v := range m.Extra {
			merged[k] = v
		}
		for k, v := range patch.Extra {
			merged[k] = v
		}
		out.Extra = merged
	}
	return out
}

// Validate checks the union shape at the repository boundary: at most one
// mode section, matching the program's mode when given, and sane counters.
func (m ProgramMetadata) Validate(mode Mode) error {
	sections := 0
	if m.Assessment != nil {
		sections++
		if mode != "" && mode != ModeAssessment {
			return fmt.Errorf("assessment metadata on %s program", mode)
		}
	}
	if m.PBL != nil {
		sections++
		if mode != "" && mode != ModePBL {
			return fmt.Errorf("pbl metadata on %s program", mode)
		}
	}
	if m.Discovery != nil {
		sections++
		if mode != "" && mode != ModeDiscovery {
			return fmt.Errorf("discovery metadata on %s program", mode)
		}
	}
	if sections > 1 {
		return fmt.Errorf("metadata carries %d mode sections, want at most 1", sections)
	}
	if m.XP < 0 {
		return fmt.Errorf("negative xp %d", m.XP)
	}
	if m.CurrentTaskIndex < 0 {
		return fmt.Errorf("negative current task index %d", m.CurrentTaskIndex)
	}
	return nil
}
