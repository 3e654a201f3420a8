package models

// MaxFeedbackLength bounds the free-text feedback of a rating.
const MaxFeedbackLength = 1000

// Score bounds for a single criterion.
const (
	MinScore = 1
	MaxScore = 10
)

// Rating is one judge's scoring of one entry.
type Rating struct {
	TeamID         string         `json:"teamId" validate:"required"`
	JudgeID        string         `json:"judgeId" validate:"required"`
	Scores         map[string]int `json:"scores" validate:"dive,min=1,max=10"`
	Feedback       string         `json:"feedback" validate:"max=1000"`
	IsDisqualified bool           `json:"isDisqualified"`
	LastUpdated    int64          `json:"lastUpdated"`
}

// RatingKey is the composite identity of a rating.
type RatingKey struct {
	JudgeID string
	TeamID  string
}

// Key returns the composite identity of the rating.
func (r Rating) Key() RatingKey {
	return RatingKey{JudgeID: r.JudgeID, TeamID: r.TeamID}
}

// Clone returns a deep copy of the rating.
func (r Rating) Clone() Rating {
	out := r
	if r.Scores != nil {
		out.Scores = make(map[string]int, len(r.Scores))
		for k, v := range r.Scores {
			out.Scores[k] = v
		}
	}
	return out
}

// NewerThan reports whether r strictly supersedes other.
func (r Rating) NewerThan(other Rating) bool {
	return r.LastUpdated > other.LastUpdated
}
