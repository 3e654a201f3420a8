package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/judging-portal/internal/models"
)

var (
	draftDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "judging",
		Subsystem: "ai",
		Name:      "rubric_draft_duration_seconds",
		Help:      "Duration of AI rubric draft requests",
	}, []string{"model"})

	draftFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judging",
		Subsystem: "ai",
		Name:      "rubric_draft_failures_total",
		Help:      "Number of AI rubric draft failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI drafter.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIDrafter implements RubricDrafter against the chat completion API.
type OpenAIDrafter struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

var _ RubricDrafter = (*OpenAIDrafter)(nil)

// NewOpenAIDrafter builds a drafter using the provided configuration.
func NewOpenAIDrafter(cfg OpenAIConfig) (*OpenAIDrafter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIDrafter{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/judging-portal/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "rubric_drafter").Logger(),
	}, nil
}

// DraftRubric asks the model for criteria and normalises the answer.
func (d *OpenAIDrafter) DraftRubric(parent context.Context, input DraftInput) ([]models.Criterion, error) {
	ctx, span := d.tracer.Start(parent, "openai.draft_rubric", trace.WithAttributes(
		attribute.String("model", d.cfg.Model),
		attribute.Int("criteria", input.Criteria),
	))
	defer span.End()

	fail := func(err error) ([]models.Criterion, error) {
		draftFailures.WithLabelValues(d.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.cfg.Model,
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: drafterSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildDraftPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	draftDuration.WithLabelValues(d.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(fmt.Errorf("openai draft rubric: %w", err))
	}

	if len(resp.Choices) == 0 {
		return fail(fmt.Errorf("no choices returned from openai"))
	}

	criteria, err := parseDraftResponse(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return fail(err)
	}

	d.logger.Debug().Int("criteria", len(criteria)).Int("tokens", resp.Usage.TotalTokens).Msg("rubric drafted")
	return criteria, nil
}

func drafterSystemPrompt() string {
	return "You design judging rubrics for competitions. Respond with a JSON object {\"criteria\": [...]}. " +
		"Each criterion has id, name, weight (fraction, all weights summing to 1), description and guidelines: " +
		"score bands with min, max, label and description that together cover 1 to 10 without overlap."
}

func buildDraftPrompt(input DraftInput) string {
	count := input.Criteria
	if count <= 0 {
		count = 4
	}

	var builder strings.Builder
	builder.WriteString("# Event\n")
	builder.WriteString(input.Title)
	if input.Description != "" {
		builder.WriteString("\n\n## About\n")
		builder.WriteString(input.Description)
	}
	builder.WriteString(fmt.Sprintf("\n\n## Criteria wanted\n%d", count))
	if input.Language != "" {
		builder.WriteString("\n\n## Language\n")
		builder.WriteString(input.Language)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseDraftResponse(content string) ([]models.Criterion, error) {
	var payload struct {
		Criteria []models.Criterion `json:"criteria"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("parse rubric json: %w", err)
	}
	if len(payload.Criteria) == 0 {
		return nil, fmt.Errorf("rubric draft has no criteria")
	}
	return normaliseDraft(payload.Criteria), nil
}

// normaliseDraft fixes what models commonly get wrong: ids, weight sums and
// missing bands.
func normaliseDraft(criteria []models.Criterion) []models.Criterion {
	out := make([]models.Criterion, 0, len(criteria))
	seen := make(map[string]int)
	var total float64
	for _, c := range criteria {
		if c.Weight <= 0 {
			c.Weight = 1
		}
		id := slug.Make(c.ID)
		if id == "" {
			id = slug.Make(c.Name)
		}
		if id == "" {
			id = "criterion"
		}
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n+1)
		} else {
			seen[id] = 1
		}
		c.ID = id
		if strings.TrimSpace(c.Name) == "" {
			c.Name = id
		}
		if len(c.Guidelines) == 0 {
			c.Guidelines = defaultBands()
		}
		total += c.Weight
		out = append(out, c)
	}

	var assigned float64
	for i := range out {
		if i == len(out)-1 {
			out[i].Weight = math.Round((1-assigned)*100) / 100
			break
		}
		out[i].Weight = math.Round(out[i].Weight/total*100) / 100
		assigned += out[i].Weight
	}
	return out
}

func defaultBands() []models.GuidelineBand {
	return []models.GuidelineBand{
		{Min: 1, Max: 3, Label: "Weak"},
		{Min: 4, Max: 6, Label: "Adequate"},
		{Min: 7, Max: 8, Label: "Strong"},
		{Min: 9, Max: 10, Label: "Exceptional"},
	}
}
