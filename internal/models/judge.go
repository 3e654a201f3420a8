package models

// JudgeStatus is derived from a judge's rating count and never persisted.
type JudgeStatus string

const (
	JudgeStatusPending    JudgeStatus = "pending"
	JudgeStatusInProgress JudgeStatus = "in-progress"
	JudgeStatusCompleted  JudgeStatus = "completed"
)

// Judge is a member of the judging panel.
type Judge struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID string `json:"userId,omitempty"`
}

// BoundTo reports whether the judge is bound to the given user id.
func (j Judge) BoundTo(userID string) bool {
	if userID == "" {
		return false
	}
	return j.UserID == userID || j.ID == userID
}

// DeriveJudgeStatus computes a judge's progress from the number of ratings
// submitted and the number of entries in the event.
func DeriveJudgeStatus(ratingCount, totalEntries int) JudgeStatus {
	switch {
	case ratingCount <= 0:
		return JudgeStatusPending
	case totalEntries > 0 && ratingCount >= totalEntries:
		return JudgeStatusCompleted
	default:
		return JudgeStatusInProgress
	}
}

// JudgesFromRoster expands the document roster (ids only) into judges.
func JudgesFromRoster(ids []string) []Judge {
	judges := make([]Judge, 0, len(ids))
	for _, id := range ids {
		judges = append(judges, Judge{ID: id, Name: id})
	}
	return judges
}
