package models

// Visibility controls who may read an event's data.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Registration controls contestant self-registration.
type Registration string

const (
	RegistrationOpen   Registration = "open"
	RegistrationClosed Registration = "closed"
)

// GuidelineBand describes what a score range means for a criterion.
type GuidelineBand struct {
	Min         int    `json:"min" yaml:"min" validate:"min=1,max=10"`
	Max         int    `json:"max" yaml:"max" validate:"min=1,max=10,gtefield=Min"`
	Label       string `json:"label" yaml:"label" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Criterion is one weighted dimension of the rubric.
type Criterion struct {
	ID          string          `json:"id" yaml:"id" validate:"required"`
	Name        string          `json:"name" yaml:"name" validate:"required"`
	Weight      float64         `json:"weight" yaml:"weight" validate:"gt=0,lte=1"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Guidelines  []GuidelineBand `json:"guidelines" yaml:"guidelines" validate:"required,min=1,dive"`
}

// TieBreaker is a question used to separate entries with equal scores.
type TieBreaker struct {
	Title    string `json:"title" yaml:"title" validate:"required"`
	Question string `json:"question" yaml:"question" validate:"required"`
}

// CompetitionConfig is the organizer-owned configuration of an event.
type CompetitionConfig struct {
	Title             string       `json:"title" yaml:"title" validate:"required,max=200"`
	OrganizerID       string       `json:"organizerId,omitempty" yaml:"organizer_id,omitempty"`
	Rubric            []Criterion  `json:"rubric" yaml:"rubric" validate:"required,min=1,dive"`
	TieBreakers       []TieBreaker `json:"tieBreakers,omitempty" yaml:"tie_breakers,omitempty" validate:"dive"`
	Visibility        Visibility   `json:"visibility" yaml:"visibility" validate:"omitempty,oneof=public private"`
	Registration      Registration `json:"registration" yaml:"registration" validate:"omitempty,oneof=open closed"`
	OrganizerPassword string       `json:"-" yaml:"organizer_password,omitempty"`
	JudgePassword     string       `json:"-" yaml:"judge_password,omitempty"`
	ViewPassword      string       `json:"-" yaml:"view_password,omitempty"`
}

// IsPrivate reports whether viewers need the view password.
func (c CompetitionConfig) IsPrivate() bool {
	return c.Visibility == VisibilityPrivate
}

// RegistrationOpen reports whether contestants may self-register.
func (c CompetitionConfig) RegistrationOpen() bool {
	return c.Registration == RegistrationOpen
}

// CriterionByID returns the criterion with the given id.
func (c CompetitionConfig) CriterionByID(id string) (Criterion, bool) {
	for _, criterion := range c.Rubric {
		if criterion.ID == id {
			return criterion, true
		}
	}
	return Criterion{}, false
}
