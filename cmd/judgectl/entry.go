package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/orchestrator"
)

type entryFlags struct {
	id          string
	name        string
	title       string
	description string
	thumbnail   string
	owner       string
}

func (f *entryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "team or contestant name")
	cmd.Flags().StringVar(&f.title, "title", "", "project title")
	cmd.Flags().StringVar(&f.description, "description", "", "project description")
	cmd.Flags().StringVar(&f.thumbnail, "thumbnail", "", "thumbnail URL")
	cmd.Flags().StringVar(&f.owner, "owner", "", "user id owning the entry (organizers only)")
}

// apply copies the flags the user set onto entry.
func (f *entryFlags) apply(cmd *cobra.Command, entry models.Entry) models.Entry {
	changed := cmd.Flags().Changed
	if changed("name") {
		entry.Name = f.name
	}
	if changed("title") {
		entry.Title = f.title
	}
	if changed("description") {
		entry.Description = f.description
	}
	if changed("thumbnail") {
		entry.Thumbnail = f.thumbnail
	}
	if changed("owner") {
		entry.UserID = f.owner
	}
	return entry
}

func newEntryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entry",
		Aliases: []string{"entries", "team"},
		GroupID: "event",
		Short:   "List and manage entries",
	}
	cmd.AddCommand(
		newEntryListCommand(a),
		newEntryAddCommand(a),
		newEntryUpdateCommand(a),
		newEntryDeleteCommand(a),
	)
	return cmd
}

func newEntryListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the entries of the event",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(_ context.Context, w *workspace) error {
				if err := w.requireView(); err != nil {
					return err
				}
				entries := w.orch.Snapshot().Entries
				if a.asJSON {
					return a.printJSON(entries)
				}
				if len(entries) == 0 {
					a.printf("no entries yet\n")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{entry.ID, entry.Name, entry.Title, orDash(entry.UserID), thumbnailLabel(entry.Thumbnail)})
				}
				a.printTable([]string{"ID", "NAME", "TITLE", "OWNER", "THUMBNAIL"}, rows)
				return nil
			})
		},
	}
}

func newEntryAddCommand(a *app) *cobra.Command {
	var flags entryFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry, or register your own while registration is open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				entry := flags.apply(cmd, models.Entry{ID: flags.id})
				added, err := w.orch.AddEntry(ctx, entry)
				if err != nil {
					return err
				}
				w.resolve(ctx)
				if a.asJSON {
					return a.printJSON(added)
				}
				a.printf("added %s (%s)\n", added.ID, added.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flags.id, "id", "", "entry id (generated when empty)")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newEntryUpdateCommand(a *app) *cobra.Command {
	var flags entryFlags

	cmd := &cobra.Command{
		Use:   "update <entry-id>",
		Short: "Change an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				current, err := findEntry(w, args[0])
				if err != nil {
					return err
				}
				updated := flags.apply(cmd, current)
				if err := w.orch.UpdateEntry(ctx, updated); err != nil {
					return err
				}
				a.printf("updated %s\n", updated.ID)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newEntryDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <entry-id>",
		Aliases: []string{"rm"},
		Short:   "Delete an entry and every rating of it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				if err := w.orch.DeleteEntry(ctx, args[0]); err != nil {
					return err
				}
				a.printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func findEntry(w *workspace, id string) (models.Entry, error) {
	entries := w.orch.Snapshot().Entries
	if i := models.EntryIndex(entries, id); i >= 0 {
		return entries[i], nil
	}
	return models.Entry{}, orchestrator.ErrEntryNotFound
}

func thumbnailLabel(value string) string {
	switch {
	case value == "":
		return "-"
	case strings.HasPrefix(value, "data:"):
		return "inline"
	default:
		return value
	}
}
