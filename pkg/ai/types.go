package ai

import (
	"context"

	"github.com/noah-isme/judging-portal/internal/models"
)

// DraftInput describes the event a rubric is drafted for.
type DraftInput struct {
	Title       string
	Description string
	Criteria    int
	Language    string
}

// RubricDrafter proposes a weighted rubric. Drafts are suggestions: callers
// validate them before use.
type RubricDrafter interface {
	DraftRubric(ctx context.Context, input DraftInput) ([]models.Criterion, error)
}
