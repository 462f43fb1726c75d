package app_test

import (
	"fmt"
	"testing"

	"learning-progress-engine/internal/app"
	"learning-progress-engine/internal/domain"
)

func TestAggregateOverallScore(t *testing.T) {
	scoring := app.NewScoringService()

	cases := []struct {
		correct, total int
		want           int
	}{
		{7, 10, 70},
		{0, 10, 0},
		{10, 10, 100},
	}
	for _, c := range cases {
		agg := scoring.Aggregate(gradedSet(c.correct, c.total, ""))
		if agg.OverallScore != c.want {
			t.Errorf("%d/%d: got overall %d, want %d", c.correct, c.total, agg.OverallScore, c.want)
		}
	}
}

func TestAggregateDomainScores(t *testing.T) {
	scoring := app.NewScoringService()

	responses := append(gradedSet(4, 5, "A"), gradedSet(3, 5, "B")...)
	agg := scoring.Aggregate(responses)

	if agg.OverallScore != 70 {
		t.Fatalf("overall: got %d, want 70", agg.OverallScore)
	}
	if agg.DomainScores["A"] != 80 {
		t.Fatalf("domain A: got %d, want 80", agg.DomainScores["A"])
	}
	if agg.DomainScores["B"] != 60 {
		t.Fatalf("domain B: got %d, want 60", agg.DomainScores["B"])
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := app.NewScoringService().Aggregate(nil)
	if agg.OverallScore != 0 {
		t.Fatalf("empty input: got %d, want 0", agg.OverallScore)
	}
	if agg.PerformanceBucket != "needs-improvement" {
		t.Fatalf("empty input bucket: got %q", agg.PerformanceBucket)
	}
}

func TestMasteryLevels(t *testing.T) {
	cases := []struct {
		correct, total, want int
	}{
		{0, 3, 0},
		{3, 3, 2},
		{1, 3, 1},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := app.MasteryLevel(c.correct, c.total); got != c.want {
			t.Errorf("mastery(%d/%d): got %d, want %d", c.correct, c.total, got, c.want)
		}
	}
}

func TestAggregateCompetencyMastery(t *testing.T) {
	scoring := app.NewScoringService()

	// K1 sees 1/3 correct, S1 sees 2/2, A1 sees 0/1.
	responses := []domain.GradedResponse{
		{ItemID: "i1", UserAnswer: "x", CorrectAnswer: "x", KSA: domain.KSAMapping{Knowledge: []string{"K1"}, Skills: []string{"S1"}}},
		{ItemID: "i2", UserAnswer: "x", CorrectAnswer: "y", KSA: domain.KSAMapping{Knowledge: []string{"K1"}, Attitudes: []string{"A1"}}},
		{ItemID: "i3", UserAnswer: "x", CorrectAnswer: "y", KSA: domain.KSAMapping{Knowledge: []string{"K1"}}},
		{ItemID: "i4", UserAnswer: "x", CorrectAnswer: "x", KSA: domain.KSAMapping{Skills: []string{"S1"}}},
	}
	agg := scoring.Aggregate(responses)

	k1 := agg.KSA.Competencies["K1"]
	if k1.Correct != 1 || k1.Total != 3 || k1.Mastery != 1 {
		t.Fatalf("K1: got %+v, want 1/3 mastery 1", k1)
	}
	s1 := agg.KSA.Competencies["S1"]
	if s1.Correct != 2 || s1.Total != 2 || s1.Mastery != 2 {
		t.Fatalf("S1: got %+v, want 2/2 mastery 2", s1)
	}
	a1 := agg.KSA.Competencies["A1"]
	if a1.Correct != 0 || a1.Total != 1 || a1.Mastery != 0 {
		t.Fatalf("A1: got %+v, want 0/1 mastery 0", a1)
	}

	if agg.KSA.CategoryScores["knowledge"] != 33 {
		t.Fatalf("knowledge category: got %d, want 33", agg.KSA.CategoryScores["knowledge"])
	}
	if agg.KSA.CategoryScores["skills"] != 100 {
		t.Fatalf("skills category: got %d, want 100", agg.KSA.CategoryScores["skills"])
	}
	if agg.KSA.CategoryScores["attitudes"] != 0 {
		t.Fatalf("attitudes category: got %d, want 0", agg.KSA.CategoryScores["attitudes"])
	}

	if len(k1.ItemIDs) != 3 {
		t.Fatalf("K1 contributing items: got %v", k1.ItemIDs)
	}
}

func TestAggregateZeroTotalDomain(t *testing.T) {
	// Items without a domain tag must not produce entries, and an empty
	// dimension scores 0 rather than dividing by zero.
	agg := app.NewScoringService().Aggregate(gradedSet(2, 2, ""))
	if len(agg.DomainScores) != 0 {
		t.Fatalf("untagged items produced domain scores: %v", agg.DomainScores)
	}
	if agg.KSA.CategoryScores["knowledge"] != 0 {
		t.Fatalf("empty category: got %d, want 0", agg.KSA.CategoryScores["knowledge"])
	}
}

func TestPerformanceBuckets(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{100, "excellent"},
		{80, "excellent"},
		{79, "good"},
		{60, "good"},
		{59, "satisfactory"},
		{40, "satisfactory"},
		{39, "needs-improvement"},
		{0, "needs-improvement"},
	}
	for _, c := range cases {
		if got := app.PerformanceBucket(c.score); got != c.want {
			t.Errorf("bucket(%d): got %q, want %q", c.score, got, c.want)
		}
	}
}

// gradedSet builds total responses of which the first correct are right, all
// tagged with the given domain.
func gradedSet(correct, total int, domainTag string) []domain.GradedResponse {
	out := make([]domain.GradedResponse, 0, total)
	for i := 0; i < total; i++ {
		answer := "right"
		if i >= correct {
			answer = "wrong"
		}
		out = append(out, domain.GradedResponse{
			ItemID:        fmt.Sprintf("%s-i%d", domainTag, i),
			UserAnswer:    answer,
			CorrectAnswer: "right",
			Domain:        domainTag,
		})
	}
	return out
}
