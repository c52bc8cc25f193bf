package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/catalog"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/config"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/outbox"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/persistence"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/report"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/stats"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/timerange"
)

type app struct {
	v *viper.Viper
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v}
	root := &cobra.Command{
		Use:           "trackerctl",
		Short:         "Operate the activity tracker ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("ledger", "", "ledger driver: memory, sqlite or postgres")
	flags.String("sqlite-path", "", "sqlite database file")
	flags.String("postgres-url", "", "postgres connection string")
	flags.String("activity-types-file", "", "YAML activity type table")
	flags.Bool("json", false, "output JSON")
	_ = v.BindPFlag("ledger_driver", flags.Lookup("ledger"))
	_ = v.BindPFlag("sqlite_path", flags.Lookup("sqlite-path"))
	_ = v.BindPFlag("postgres_url", flags.Lookup("postgres-url"))
	_ = v.BindPFlag("activity_types_file", flags.Lookup("activity-types-file"))
	_ = v.BindPFlag("json", flags.Lookup("json"))

	root.AddCommand(a.typesCmd())
	root.AddCommand(a.reportCmd())
	root.AddCommand(a.cleanupCmd())
	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.dlqCmd())
	return root
}

// config layers flags the user set over TRACKER_* variables and defaults.
func (a *app) config() (config.Config, error) {
	return config.LoadFrom(a.v)
}

func (a *app) withStore(ctx context.Context, migrate bool, fn func(config.Config, *persistence.Store) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	// The sqlite schema is idempotent, so a fresh file is usable straight away.
	store, err := persistence.Open(ctx, cfg, migrate || cfg.LedgerDriver == config.DriverSQLite)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List activity types in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			types, err := catalog.LoadFile(cfg.ActivityTypesFile)
			if err != nil {
				return err
			}
			if a.v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), types.All())
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Code", "Name", "Budget"})
			for _, t := range types.All() {
				tw.AppendRow(table.Row{t.Code, t.Label(), report.FormatDuration(t.MaxDurationSeconds)})
			}
			tw.Render()
			return nil
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	var (
		chatID int64
		preset string
		tz     string
		at     string
		hourly bool
		daily  bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print statistics for a chat over a named period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, false, func(cfg config.Config, store *persistence.Store) error {
				types, err := catalog.LoadFile(cfg.ActivityTypesFile)
				if err != nil {
					return err
				}
				if tz == "" {
					tz = cfg.ReportTimezone
				}
				loc, err := timerange.LoadLocation(tz)
				if err != nil {
					return err
				}
				ref := time.Now()
				if at != "" {
					if ref, err = time.Parse(time.RFC3339, at); err != nil {
						return fmt.Errorf("invalid --at: %w", err)
					}
				}
				window, err := timerange.Resolve(preset, ref, loc)
				if err != nil {
					return err
				}

				records, err := store.Ledger.QueryCompleted(ctx, chatID, window)
				if err != nil {
					return err
				}

				opts := []stats.Option{stats.WithLocation(loc)}
				if hourly {
					opts = append(opts, stats.WithHourly())
				}
				if daily {
					opts = append(opts, stats.WithDaily())
				}
				result := stats.NewAggregator(types, opts...).Aggregate(records)

				if a.v.GetBool("json") {
					return printJSON(cmd.OutOrStdout(), result)
				}
				title := fmt.Sprintf("Chat %d, %s", chatID, strings.ReplaceAll(preset, "_", " "))
				return report.Render(cmd.OutOrStdout(), title, window, result)
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id")
	cmd.Flags().StringVar(&preset, "preset", string(timerange.Today), "period: today, yesterday, this_week, last_week, this_month, last_month")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone (defaults to report_timezone)")
	cmd.Flags().StringVar(&at, "at", "", "reference instant in RFC 3339 (defaults to now)")
	cmd.Flags().BoolVar(&hourly, "hourly", false, "include the hour-of-day breakdown")
	cmd.Flags().BoolVar(&daily, "daily", false, "include the per-date breakdown")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func (a *app) cleanupCmd() *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove ongoing activities older than max-age without billing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, false, func(cfg config.Config, store *persistence.Store) error {
				types, err := catalog.LoadFile(cfg.ActivityTypesFile)
				if err != nil {
					return err
				}
				age := maxAge
				if age <= 0 {
					age = cfg.StaleAfter
				}
				removed, err := domain.NewLifecycle(store.Ledger, types).CleanupStale(ctx, time.Now(), age)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale activities (older than %s)\n", removed, age)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "staleness threshold (defaults to stale_after)")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), true, func(cfg config.Config, _ *persistence.Store) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s ledger schema is up to date\n", cfg.LedgerDriver)
				return nil
			})
		},
	}
}

func (a *app) dlqCmd() *cobra.Command {
	dlq := &cobra.Command{Use: "dlq", Short: "Inspect and replay undeliverable events"}

	var batch int
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Requeue due dead-letter entries into the outbox once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), false, func(cfg config.Config, store *persistence.Store) error {
				if store.Pool == nil {
					return fmt.Errorf("dlq replay requires the postgres ledger, got %s", cfg.LedgerDriver)
				}
				requeued, err := outbox.NewDLQManager(store.Pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay).RunOnce(cmd.Context(), batch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d events\n", requeued)
				return nil
			})
		},
	}
	replay.Flags().IntVar(&batch, "batch", 50, "maximum entries to process")
	dlq.AddCommand(replay)
	return dlq
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
