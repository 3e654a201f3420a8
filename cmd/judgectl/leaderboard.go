package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/scoring"
)

func newLeaderboardCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "leaderboard",
		Aliases: []string{"lb", "results"},
		GroupID: "judging",
		Short:   "Rank entries by their average weighted score",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(_ context.Context, w *workspace) error {
				if err := w.requireView(); err != nil {
					return err
				}
				event, _ := w.current()
				standings := scoring.Leaderboard(event.Rubric, w.orch.Snapshot())
				if a.asJSON {
					return a.printJSON(standings)
				}
				if len(standings) == 0 {
					a.printf("no entries yet\n")
					return nil
				}

				rows := make([][]string, 0, len(standings))
				for _, s := range standings {
					rank := strconv.Itoa(s.Rank)
					if s.Disqualified {
						rank = "DQ"
					}
					rows = append(rows, []string{
						rank,
						s.Entry.Name,
						s.Entry.Title,
						strconv.FormatFloat(s.Average, 'f', 2, 64),
						strconv.Itoa(s.RatingCount),
					})
				}
				a.printTable([]string{"RANK", "ENTRY", "TITLE", "SCORE", "RATINGS"}, rows)
				return nil
			})
		},
	}
}
