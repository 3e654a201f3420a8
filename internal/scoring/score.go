// Package scoring computes weighted totals, judge progress and the
// leaderboard, and validates rubrics and ratings before they are applied.
package scoring

import (
	"github.com/noah-isme/judging-portal/internal/models"
)

// WeightedTotal returns Σ(score × weight) over the rubric. Criteria the
// rating has not scored contribute nothing.
func WeightedTotal(rubric []models.Criterion, rating models.Rating) float64 {
	total := 0.0
	for _, criterion := range rubric {
		score, ok := rating.Scores[criterion.ID]
		if !ok {
			continue
		}
		total += float64(score) * criterion.Weight
	}
	return total
}

// WeightSum adds up the rubric weights.
func WeightSum(rubric []models.Criterion) float64 {
	sum := 0.0
	for _, criterion := range rubric {
		sum += criterion.Weight
	}
	return sum
}

// Complete reports whether the rating scores every criterion of the rubric.
func Complete(rubric []models.Criterion, rating models.Rating) bool {
	for _, criterion := range rubric {
		if _, ok := rating.Scores[criterion.ID]; !ok {
			return false
		}
	}
	return true
}
