package scoring

import (
	"sort"

	"github.com/noah-isme/judging-portal/internal/models"
)

// Standing is one row of the leaderboard.
type Standing struct {
	Entry        models.Entry `json:"entry"`
	Rank         int          `json:"rank"`
	Average      float64      `json:"average"`
	RatingCount  int          `json:"ratingCount"`
	Disqualified bool         `json:"disqualified"`
}

// Leaderboard ranks entries by their average weighted total over ratings
// that did not flag the entry. An entry flagged by a majority of its raters
// is disqualified, ranked last and given rank 0. Equal averages with equal
// rating counts share a rank.
func Leaderboard(rubric []models.Criterion, snapshot models.Snapshot) []Standing {
	type tally struct {
		sum     float64
		counted int
		flagged int
		raters  int
	}

	tallies := make(map[string]*tally, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		tallies[entry.ID] = &tally{}
	}
	for _, rating := range snapshot.Ratings {
		t, ok := tallies[rating.TeamID]
		if !ok {
			continue
		}
		t.raters++
		if rating.IsDisqualified {
			t.flagged++
			continue
		}
		t.sum += WeightedTotal(rubric, rating)
		t.counted++
	}

	standings := make([]Standing, 0, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		t := tallies[entry.ID]
		standing := Standing{
			Entry:        entry,
			RatingCount:  t.counted,
			Disqualified: t.raters > 0 && t.flagged*2 > t.raters,
		}
		if t.counted > 0 {
			standing.Average = t.sum / float64(t.counted)
		}
		standings = append(standings, standing)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Disqualified != b.Disqualified {
			return !a.Disqualified
		}
		if a.Average != b.Average {
			return a.Average > b.Average
		}
		if a.RatingCount != b.RatingCount {
			return a.RatingCount > b.RatingCount
		}
		return a.Entry.Name < b.Entry.Name
	})

	for i := range standings {
		if standings[i].Disqualified {
			continue
		}
		if i > 0 && !standings[i-1].Disqualified &&
			standings[i-1].Average == standings[i].Average &&
			standings[i-1].RatingCount == standings[i].RatingCount {
			standings[i].Rank = standings[i-1].Rank
			continue
		}
		standings[i].Rank = i + 1
	}
	return standings
}

// JudgeProgress is the derived status of one judge.
type JudgeProgress struct {
	Judge   string             `json:"judge"`
	Rated   int                `json:"rated"`
	Total   int                `json:"total"`
	Percent int                `json:"percent"`
	Status  models.JudgeStatus `json:"status"`
}

// Progress derives the status of every known judge. Ratings for entries no
// longer on the roster are not counted.
func Progress(snapshot models.Snapshot) []JudgeProgress {
	counts := snapshot.RatingsByJudge()
	total := len(snapshot.Entries)
	out := make([]JudgeProgress, 0, len(snapshot.Judges))
	for _, judge := range snapshot.Judges {
		rated := counts[judge]
		percent := 0
		if total > 0 {
			percent = rated * 100 / total
			if percent > 100 {
				percent = 100
			}
		}
		out = append(out, JudgeProgress{
			Judge:   judge,
			Rated:   rated,
			Total:   total,
			Percent: percent,
			Status:  models.DeriveJudgeStatus(rated, total),
		})
	}
	return out
}
