package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/models"
)

func newRoleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "role",
		GroupID: "sync",
		Short:   "Show the acting role and the roles this session may take",
		Long: `Show the acting role of this session.

The role follows --role when the session holds it, then the role remembered
from an earlier --role, then the most privileged role held.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(_ context.Context, w *workspace) error {
				event, result := w.current()
				if a.asJSON {
					return a.printJSON(struct {
						Key   string `json:"key"`
						Event string `json:"event"`
						Judge string `json:"judge,omitempty"`
						User  string `json:"userId,omitempty"`
						Role  any    `json:"session"`
					}{w.orch.Key(), event.Title, w.judgeName, w.identity.UserID, result})
				}

				roles := make([]string, 0, len(models.RoleHierarchy))
				for _, role := range result.Capabilities.Roles() {
					roles = append(roles, string(role))
				}
				a.printf("event:     %s (%s)\n", event.Title, w.orch.Key())
				a.printf("role:      %s\n", result.Role)
				a.printf("available: %s\n", strings.Join(roles, ", "))
				if w.judgeName != "" {
					a.printf("judge:     %s\n", w.judgeName)
				}
				return nil
			})
		},
	}
}
