package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/eventfile"
	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/scoring"
	"github.com/noah-isme/judging-portal/pkg/ai"
)

var errNoEventFile = errors.New("no event file: pass --event-file or set JUDGE_EVENT_FILE")

func newRubricCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rubric",
		GroupID: "event",
		Short:   "Check or draft the scoring rubric of the event file",
	}
	cmd.AddCommand(
		newRubricValidateCommand(a),
		newRubricDraftCommand(a),
	)
	return cmd
}

func newRubricValidateCommand(a *app) *cobra.Command {
	var lenient bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the event file and show its rubric",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.cfg.EventFile == "" {
				return errNoEventFile
			}
			event, err := eventfile.Load(a.cfg.EventFile)
			if err != nil {
				return err
			}

			tolerance := scoring.StrictTolerance
			if lenient {
				tolerance = scoring.LenientTolerance
			}
			if err := scoring.NewValidator(nil).ValidateConfig(event, tolerance); err != nil {
				return fmt.Errorf("%s: %w", a.cfg.EventFile, err)
			}

			if a.asJSON {
				return a.printJSON(event)
			}
			a.printRubric(event.Rubric)
			a.printf("%s is valid\n", a.cfg.EventFile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&lenient, "lenient", false, "accept weight sums within 0.05 of 1.0")
	return cmd
}

func newRubricDraftCommand(a *app) *cobra.Command {
	var (
		input ai.DraftInput
		write bool
	)

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Draft a rubric with OpenAI",
		Long: `Ask OpenAI for a rubric that fits the event. The draft is validated
before it is shown; with --write it replaces the rubric in the event file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if write && a.cfg.EventFile == "" {
				return errNoEventFile
			}

			event, err := draftBase(a.cfg.EventFile)
			if err != nil {
				return err
			}
			if input.Title == "" {
				input.Title = event.Title
			}
			if input.Title == "" {
				return errors.New("pass --title or set a title in the event file")
			}

			drafter, err := ai.NewOpenAIDrafter(ai.OpenAIConfig{
				APIKey:  a.cfg.OpenAIAPIKey,
				Model:   a.cfg.OpenAIModel,
				BaseURL: a.cfg.OpenAIBaseURL,
				Logger:  a.logger,
			})
			if err != nil {
				return err
			}
			criteria, err := drafter.DraftRubric(cmd.Context(), input)
			if err != nil {
				return err
			}
			if err := scoring.NewValidator(nil).ValidateRubric(criteria, scoring.StrictTolerance); err != nil {
				return fmt.Errorf("drafted rubric rejected: %w", err)
			}

			if a.asJSON {
				if err := a.printJSON(criteria); err != nil {
					return err
				}
			} else {
				a.printRubric(criteria)
			}

			if !write {
				return nil
			}
			if event.Title == "" {
				event.Title = input.Title
			}
			event.Rubric = criteria
			if err := eventfile.Write(a.cfg.EventFile, event); err != nil {
				return err
			}
			a.logger.Info().Str("file", a.cfg.EventFile).Int("criteria", len(criteria)).Msg("rubric written")
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Title, "title", "", "event title (defaults to the event file)")
	cmd.Flags().StringVar(&input.Description, "description", "", "what entries are about")
	cmd.Flags().IntVar(&input.Criteria, "criteria", 4, "number of criteria")
	cmd.Flags().StringVar(&input.Language, "language", "", "language of the rubric text")
	cmd.Flags().BoolVar(&write, "write", false, "write the draft into the event file")
	return cmd
}

// draftBase loads the event file to draft into. A missing file starts an
// empty config.
func draftBase(path string) (models.CompetitionConfig, error) {
	if path == "" {
		return models.CompetitionConfig{}, nil
	}
	event, err := eventfile.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.CompetitionConfig{
			Visibility:   models.VisibilityPublic,
			Registration: models.RegistrationClosed,
		}, nil
	}
	return event, err
}

func (a *app) printRubric(criteria []models.Criterion) {
	rows := make([][]string, 0, len(criteria))
	for _, c := range criteria {
		bands := make([]string, 0, len(c.Guidelines))
		for _, band := range c.Guidelines {
			bands = append(bands, fmt.Sprintf("%d-%d %s", band.Min, band.Max, band.Label))
		}
		rows = append(rows, []string{c.ID, c.Name, strconv.FormatFloat(c.Weight, 'f', 2, 64), strings.Join(bands, ", ")})
	}
	a.printTable([]string{"ID", "CRITERION", "WEIGHT", "BANDS"}, rows)
	a.printf("weights sum to %.2f\n", scoring.WeightSum(criteria))
}
