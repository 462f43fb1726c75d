package app

import (
	"math"
	"sort"
	"time"

	"learning-progress-engine/internal/domain"
)

// Performance bucket thresholds on the 0-100 overall score.
const (
	bucketExcellent    = 80
	bucketGood         = 60
	bucketSatisfactory = 40
)

// Aggregate is the multi-dimensional outcome of one scoring pass.
type Aggregate struct {
	OverallScore      int
	TotalItems        int
	CorrectItems      int
	DomainScores      map[string]int
	KSA               domain.KSAReport
	PerformanceBucket string
}

// ScoringService converts graded responses into overall, per-domain and
// per-competency scores.
type ScoringService struct{}

func NewScoringService() *ScoringService {
	return &ScoringService{}
}

type tally struct {
	correct int
	total   int
	itemIDs []string
}

// Aggregate folds a set of graded responses into one Aggregate. Empty or
// zero-total dimensions score 0, never a division error.
func (s *ScoringService) Aggregate(responses []domain.GradedResponse) Aggregate {
	domains := make(map[string]*tally)
	codes := make(map[string]*tally)
	codeCategory := make(map[string]string)

	correctItems := 0
	for _, r := range responses {
		correct := r.IsCorrect()
		if correct {
			correctItems++
		}

		if r.Domain != "" {
			bumpTally(domains, r.Domain, correct, "")
		}

		for category, list := range map[string][]string{
			"knowledge": r.KSA.Knowledge,
			"skills":    r.KSA.Skills,
			"attitudes": r.KSA.Attitudes,
		} {
			for _, code := range list {
				bumpTally(codes, code, correct, r.ItemID)
				codeCategory[code] = category
			}
		}
	}

	out := Aggregate{
		TotalItems:   len(responses),
		CorrectItems: correctItems,
		OverallScore: percentage(correctItems, len(responses)),
		DomainScores: make(map[string]int, len(domains)),
	}
	for name, t := range domains {
		out.DomainScores[name] = percentage(t.correct, t.total)
	}

	out.KSA = buildKSAReport(codes, codeCategory)
	out.PerformanceBucket = PerformanceBucket(out.OverallScore)
	return out
}

// BuildEvaluation freezes an aggregate into the immutable evaluation row for
// the given target.
func (s *ScoringService) BuildEvaluation(id string, targetType domain.TargetType, targetID string, agg Aggregate, at time.Time) domain.Evaluation {
	return domain.Evaluation{
		ID:                id,
		TargetType:        targetType,
		TargetID:          targetID,
		Score:             agg.OverallScore,
		DomainScores:      agg.DomainScores,
		KSAScores:         agg.KSA,
		PerformanceBucket: agg.PerformanceBucket,
		CreatedAt:         at,
	}
}

// PerformanceBucket maps an overall score onto the reporting buckets.
func PerformanceBucket(score int) string {
	switch {
	case score >= bucketExcellent:
		return "excellent"
	case score >= bucketGood:
		return "good"
	case score >= bucketSatisfactory:
		return "satisfactory"
	default:
		return "needs-improvement"
	}
}

// MasteryLevel derives the 0/1/2 mastery of a competency code from its
// evidence. No correct answers (or no evidence at all) means no mastery.
func MasteryLevel(correct, total int) int {
	switch {
	case total == 0 || correct == 0:
		return 0
	case correct == total:
		return 2
	default:
		return 1
	}
}

func buildKSAReport(codes map[string]*tally, codeCategory map[string]string) domain.KSAReport {
	report := domain.KSAReport{
		CategoryScores: map[string]int{"knowledge": 0, "skills": 0, "attitudes": 0},
		Competencies:   make(map[string]domain.CompetencyStat, len(codes)),
	}

	categoryTotals := make(map[string]*tally)
	for code, t := range codes {
		category := codeCategory[code]
		bump := categoryTotals[category]
		if bump == nil {
			bump = &tally{}
			categoryTotals[category] = bump
		}
		bump.correct += t.correct
		bump.total += t.total

		sort.Strings(t.itemIDs)
		report.Competencies[code] = domain.CompetencyStat{
			Category: category,
			Correct:  t.correct,
			Total:    t.total,
			Mastery:  MasteryLevel(t.correct, t.total),
			ItemIDs:  t.itemIDs,
		}
	}
	for category, t := range categoryTotals {
		report.CategoryScores[category] = percentage(t.correct, t.total)
	}
	return report
}

func bumpTally(m map[string]*tally, key string, correct bool, itemID string) {
	t := m[key]
	if t == nil {
		t = &tally{}
		m[key] = t
	}
	t.total++
	if correct {
		t.correct++
	}
	if itemID != "" {
		t.itemIDs = append(t.itemIDs, itemID)
	}
}

func percentage(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}
