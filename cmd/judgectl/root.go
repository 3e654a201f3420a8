package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/noah-isme/judging-portal/internal/config"
)

// app carries what every command shares: configuration, logger and output.
type app struct {
	v      *viper.Viper
	cfg    config.Client
	logger zerolog.Logger
	out    io.Writer
	asJSON bool

	logFile io.Closer
}

// flagBindings maps viper keys to persistent flag names.
var flagBindings = map[string]string{
	"store.url":          "store-url",
	"store.token":        "store-token",
	"cache.path":         "cache-path",
	"poll.interval":      "poll-interval",
	"event.file":         "event-file",
	"log.file":           "log-file",
	"log.level":          "log-level",
	"phrase":             "phrase",
	"role":               "role",
	"judge.name":         "judge-name",
	"judge.password":     "judge-password",
	"user.id":            "user-id",
	"organizer.password": "organizer-password",
	"view.password":      "view-password",
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.NewClientViper()}

	root := &cobra.Command{
		Use:   "judgectl",
		Short: "Judge competitions against a shared remote store",
		Long: `judgectl keeps a local copy of an event in sync with the remote store.
Organizers manage entries and the judging panel, judges score entries against
the rubric, and everyone can follow the leaderboard.`,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.String("store-url", "", "remote store base URL")
	flags.String("store-token", "", "bearer token sent to the store")
	flags.String("cache-path", "", "local cache database")
	flags.String("poll-interval", "", "polling interval in watch mode")
	flags.String("event-file", "", "competition config (YAML)")
	flags.String("log-file", "", "write logs to a rotating file instead of stderr")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.StringP("phrase", "p", "", "event access phrase")
	flags.String("role", "", "preferred role: organizer, judge, contestant or viewer")
	flags.String("judge-name", "", "name used on the judging panel")
	flags.String("judge-password", "", "judge password of the event")
	flags.String("user-id", "", "identity provider user id")
	flags.String("organizer-password", "", "organizer password for guest organizers")
	flags.String("view-password", "", "view password of a private event")
	flags.BoolVar(&a.asJSON, "json", false, "print JSON instead of tables")

	for key, name := range flagBindings {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "event", Title: "Event:"},
		&cobra.Group{ID: "judging", Title: "Judging:"},
	)
	root.AddCommand(
		newSyncCommand(a),
		newKeyCommand(a),
		newHashCommand(a),
		newRoleCommand(a),
		newEntryCommand(a),
		newJudgeCommand(a),
		newRubricCommand(a),
		newUploadCommand(a),
		newInspectCommand(a),
		newRateCommand(a),
		newLeaderboardCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadClient(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var sink io.Writer = zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		sink = rotating
		a.logFile = rotating
	}

	a.logger = zerolog.New(sink).Level(level).With().Timestamp().Str("service", "judgectl").Logger()
	return nil
}

func (a *app) teardown() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

// printJSON writes value as indented JSON.
func (a *app) printJSON(value interface{}) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// printTable renders rows under headers.
func (a *app) printTable(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(a.out, t.Render())
}
