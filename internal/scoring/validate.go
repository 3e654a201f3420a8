package scoring

import (
	"errors"
	"fmt"
	"html"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/judging-portal/internal/models"
)

// Weight sum tolerances around 1.0.
const (
	StrictTolerance  = 0.02
	LenientTolerance = 0.05
)

var (
	// ErrWeightSum indicates the rubric weights do not add up to 1.0.
	ErrWeightSum = errors.New("rubric weights must sum to 1.0")
	// ErrEmptyRubric indicates a rubric without criteria.
	ErrEmptyRubric = errors.New("rubric needs at least one criterion")
	// ErrDuplicateCriterion indicates two criteria share an id.
	ErrDuplicateCriterion = errors.New("duplicate criterion id")
	// ErrBandOverlap indicates guideline bands of a criterion overlap.
	ErrBandOverlap = errors.New("guideline bands overlap")
	// ErrBandCoverage indicates guideline bands leave part of 1..10 uncovered.
	ErrBandCoverage = errors.New("guideline bands must cover scores 1 to 10")
	// ErrAccessKeyRequired indicates a private event has no view password.
	ErrAccessKeyRequired = errors.New("private events require an access key")
	// ErrUnknownCriterion indicates a rating scores a criterion not in the rubric.
	ErrUnknownCriterion = errors.New("unknown criterion")
	// ErrScoreOutOfRange indicates a score outside 1..10.
	ErrScoreOutOfRange = errors.New("score out of range")
	// ErrFeedbackTooLong indicates feedback above the length limit.
	ErrFeedbackTooLong = errors.New("feedback too long")
)

// Validator checks configuration and ratings before any mutation happens.
type Validator struct {
	validate *validator.Validate
	policy   *bluemonday.Policy
}

// NewValidator builds a validator. A nil validate creates a default one.
func NewValidator(validate *validator.Validate) *Validator {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Validator{validate: validate, policy: bluemonday.StrictPolicy()}
}

// ValidateRubric checks field constraints, the weight sum within tolerance
// and that each criterion's bands are disjoint and cover 1..10.
func (v *Validator) ValidateRubric(rubric []models.Criterion, tolerance float64) error {
	if len(rubric) == 0 {
		return ErrEmptyRubric
	}

	seen := make(map[string]struct{}, len(rubric))
	for _, criterion := range rubric {
		if _, ok := seen[criterion.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCriterion, criterion.ID)
		}
		seen[criterion.ID] = struct{}{}

		if err := v.validate.Struct(criterion); err != nil {
			return err
		}
		if err := validateBands(criterion); err != nil {
			return err
		}
	}

	if sum := WeightSum(rubric); math.Abs(sum-1.0) > tolerance {
		return fmt.Errorf("%w: got %.2f", ErrWeightSum, sum)
	}
	return nil
}

func validateBands(criterion models.Criterion) error {
	bands := append([]models.GuidelineBand(nil), criterion.Guidelines...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].Min < bands[j].Min })

	next := models.MinScore
	for _, band := range bands {
		if band.Min < next {
			return fmt.Errorf("%w: %s %d-%d", ErrBandOverlap, criterion.ID, band.Min, band.Max)
		}
		if band.Min > next {
			return fmt.Errorf("%w: %s misses %d", ErrBandCoverage, criterion.ID, next)
		}
		next = band.Max + 1
	}
	if next != models.MaxScore+1 {
		return fmt.Errorf("%w: %s ends at %d", ErrBandCoverage, criterion.ID, next-1)
	}
	return nil
}

// ValidateConfig checks a whole competition configuration.
func (v *Validator) ValidateConfig(cfg models.CompetitionConfig, tolerance float64) error {
	if err := v.validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.IsPrivate() && strings.TrimSpace(cfg.ViewPassword) == "" {
		return ErrAccessKeyRequired
	}
	return v.ValidateRubric(cfg.Rubric, tolerance)
}

// ValidateRating checks a rating against the rubric. Without a rubric only
// score bounds and feedback length are checked.
func (v *Validator) ValidateRating(rubric []models.Criterion, rating models.Rating) error {
	if err := v.validate.Struct(rating); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, fieldErr := range validationErrors {
				field := fieldErr.StructField()
				switch {
				case strings.HasPrefix(field, "Scores"):
					return fmt.Errorf("%w: %v", ErrScoreOutOfRange, fieldErr.Value())
				case field == "Feedback":
					return ErrFeedbackTooLong
				}
			}
		}
		return err
	}

	known := make(map[string]struct{}, len(rubric))
	for _, criterion := range rubric {
		known[criterion.ID] = struct{}{}
	}
	for id, score := range rating.Scores {
		if _, ok := known[id]; !ok && len(rubric) > 0 {
			return fmt.Errorf("%w: %s", ErrUnknownCriterion, id)
		}
		if score < models.MinScore || score > models.MaxScore {
			return fmt.Errorf("%w: %s=%d", ErrScoreOutOfRange, id, score)
		}
	}
	if utf8.RuneCountInString(rating.Feedback) > models.MaxFeedbackLength {
		return ErrFeedbackTooLong
	}
	return nil
}

// SanitizeFeedback strips markup from free text and trims it.
func (v *Validator) SanitizeFeedback(text string) string {
	return v.plainText(text)
}

// SanitizeEntry strips markup from the entry's free-text fields.
func (v *Validator) SanitizeEntry(entry models.Entry) models.Entry {
	entry.Name = v.plainText(entry.Name)
	entry.Title = v.plainText(entry.Title)
	entry.Description = v.plainText(entry.Description)
	return entry
}

// plainText drops markup but keeps the text itself unescaped: the document
// stores plain text, not HTML.
func (v *Validator) plainText(text string) string {
	return strings.TrimSpace(html.UnescapeString(v.policy.Sanitize(text)))
}

// ValidateEntry checks entry field constraints.
func (v *Validator) ValidateEntry(entry models.Entry) error {
	return v.validate.Struct(entry)
}
