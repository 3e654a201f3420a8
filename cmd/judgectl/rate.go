package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/scoring"
)

func newRateCommand(a *app) *cobra.Command {
	var (
		scores     map[string]int
		feedback   string
		disqualify bool
	)

	cmd := &cobra.Command{
		Use:     "rate <entry-id>",
		GroupID: "judging",
		Short:   "Score an entry against the rubric",
		Long: `Score an entry as the acting judge. Scores given earlier for the same
entry are kept unless overridden, so criteria can be scored one at a time.`,
		Example: `  judgectl rate team_1a2b3c4d --score innovation=8 --score design=7 --feedback "solid demo"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				event, _ := w.current()
				rating := previousRating(w.orch.Snapshot(), w.judgeName, args[0])
				rating.TeamID = args[0]
				rating.JudgeID = w.judgeName
				for criterion, score := range scores {
					rating.Scores[criterion] = score
				}
				if cmd.Flags().Changed("feedback") {
					rating.Feedback = feedback
				}
				if cmd.Flags().Changed("disqualify") {
					rating.IsDisqualified = disqualify
				}

				if err := w.orch.SubmitRating(ctx, rating); err != nil {
					return err
				}

				total := scoring.WeightedTotal(event.Rubric, rating)
				if a.asJSON {
					return a.printJSON(struct {
						models.Rating
						Total    float64 `json:"total"`
						Complete bool    `json:"complete"`
					}{rating, total, scoring.Complete(event.Rubric, rating)})
				}
				a.printf("rated %s: %.2f", rating.TeamID, total)
				if !scoring.Complete(event.Rubric, rating) {
					a.printf(" (incomplete)")
				}
				a.printf("\n")
				return nil
			})
		},
	}
	cmd.Flags().StringToIntVarP(&scores, "score", "s", nil, "criterion=score, 1 to 10 (repeatable)")
	cmd.Flags().StringVar(&feedback, "feedback", "", "written feedback")
	cmd.Flags().BoolVar(&disqualify, "disqualify", false, "flag the entry as disqualified")
	return cmd
}

func previousRating(snapshot models.Snapshot, judgeID, teamID string) models.Rating {
	for _, rating := range snapshot.Ratings {
		if rating.JudgeID == judgeID && rating.TeamID == teamID {
			out := rating.Clone()
			if out.Scores == nil {
				out.Scores = map[string]int{}
			}
			return out
		}
	}
	return models.Rating{Scores: map[string]int{}}
}
