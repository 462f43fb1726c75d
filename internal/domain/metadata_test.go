package domain

import (
	"encoding/json"
	"testing"
)

func TestMergeKeepsExtraKeys(t *testing.T) {
	meta := ProgramMetadata{}
	meta = meta.Merge(ProgramMetadata{Extra: map[string]json.RawMessage{"a": json.RawMessage(`1`)}})
	meta = meta.Merge(ProgramMetadata{Extra: map[string]json.RawMessage{"b": json.RawMessage(`2`)}})

	if string(meta.Extra["a"]) != "1" || string(meta.Extra["b"]) != "2" {
		t.Fatalf("expected both keys after sequential merges, got %v", meta.Extra)
	}
}

func TestMergeXPNeverDecreases(t *testing.T) {
	meta := ProgramMetadata{XP: 50}
	merged := meta.Merge(ProgramMetadata{XP: 30})
	if merged.XP != 50 {
		t.Fatalf("xp decreased to %d", merged.XP)
	}
	merged = meta.Merge(ProgramMetadata{XP: 60})
	if merged.XP != 60 {
		t.Fatalf("xp not raised, got %d", merged.XP)
	}
}

func TestMergeTakesProgressionFields(t *testing.T) {
	id := "t2"
	meta := ProgramMetadata{CurrentTaskIndex: 1}
	merged := meta.Merge(ProgramMetadata{CurrentTaskID: &id, CurrentTaskIndex: 2})
	if merged.CurrentTaskID == nil || *merged.CurrentTaskID != "t2" || merged.CurrentTaskIndex != 2 {
		t.Fatalf("progression fields not taken from patch: %+v", merged)
	}

	// Completion clears the pointer.
	merged = merged.Merge(ProgramMetadata{CurrentTaskIndex: 3})
	if merged.CurrentTaskID != nil {
		t.Fatalf("expected cleared current task id, got %v", *merged.CurrentTaskID)
	}
}

func TestValidateRejectsMixedModeSections(t *testing.T) {
	meta := ProgramMetadata{Assessment: &AssessmentMeta{}, PBL: &PBLMeta{}}
	if err := meta.Validate(""); err == nil {
		t.Fatal("expected error for two mode sections")
	}

	meta = ProgramMetadata{PBL: &PBLMeta{}}
	if err := meta.Validate(ModeAssessment); err == nil {
		t.Fatal("expected error for pbl section on assessment program")
	}
	if err := meta.Validate(ModePBL); err != nil {
		t.Fatalf("matching section rejected: %v", err)
	}
}

func TestNewProgramMetadataInitializesSection(t *testing.T) {
	if meta := NewProgramMetadata(ModeAssessment); meta.Assessment == nil {
		t.Fatal("assessment section missing")
	}
	if meta := NewProgramMetadata(ModePBL); meta.PBL == nil {
		t.Fatal("pbl section missing")
	}
	if meta := NewProgramMetadata(ModeDiscovery); meta.Discovery == nil {
		t.Fatal("discovery section missing")
	}
}
