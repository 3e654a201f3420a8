package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/scoring"
)

func newJudgeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "judge",
		Aliases: []string{"judges"},
		GroupID: "judging",
		Short:   "Show and manage the judging panel",
	}
	cmd.AddCommand(
		newJudgeListCommand(a),
		newJudgeJoinCommand(a),
		newJudgeRemoveCommand(a),
	)
	return cmd
}

func newJudgeListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List judges with their progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(_ context.Context, w *workspace) error {
				if err := w.requireView(); err != nil {
					return err
				}
				progress := scoring.Progress(w.orch.Snapshot())
				if a.asJSON {
					return a.printJSON(progress)
				}
				if len(progress) == 0 {
					a.printf("no judges yet\n")
					return nil
				}

				rows := make([][]string, 0, len(progress))
				for _, p := range progress {
					rows = append(rows, []string{
						p.Judge,
						strconv.Itoa(p.Rated) + "/" + strconv.Itoa(p.Total),
						strconv.Itoa(p.Percent) + "%",
						string(p.Status),
					})
				}
				a.printTable([]string{"JUDGE", "RATED", "PROGRESS", "STATUS"}, rows)
				return nil
			})
		},
	}
}

func newJudgeJoinCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join [judge]",
		Short: "Join the panel, or add a judge as organizer",
		Long: `Join the judging panel under --judge-name. A first-time judge proves
access with --judge-password. Organizers may name any judge, which also
lifts an earlier removal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				judge := w.judgeName
				if len(args) == 1 {
					judge = args[0]
				}
				if err := w.orch.JoinJudge(ctx, judge); err != nil {
					return err
				}
				a.printf("%s is on the panel\n", judge)
				return nil
			})
		},
	}
}

func newJudgeRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <judge>",
		Aliases: []string{"rm"},
		Short:   "Remove a judge and every rating they submitted",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				if err := w.orch.RemoveJudge(ctx, args[0]); err != nil {
					return err
				}
				a.printf("removed %s\n", args[0])
				return nil
			})
		},
	}
}
