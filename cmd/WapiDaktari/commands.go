package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/WapiDaktari/internal/api"
	"github.com/BTreeMap/WapiDaktari/internal/config"
	"github.com/BTreeMap/WapiDaktari/internal/lockfile"
	"github.com/BTreeMap/WapiDaktari/internal/scheduler"
	"github.com/BTreeMap/WapiDaktari/internal/store"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the USSD and prediction HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("Bootstrapping WapiDaktari", "backend", cfg.DatasetBackend, "api_addr", cfg.APIAddr)
	release, err := lockStateDir(cfg)
	if err != nil {
		return err
	}
	defer release()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	eng, err := buildEngine(ctx, cfg, st, alreadyLocked)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(scheduler.WithLocation(eng.loc))
	defer sched.Stop()
	if err := sched.SchedulePurge(cfg.PurgeSchedule, st, cfg.TurnRetention); err != nil {
		return err
	}

	server := api.NewServer(eng.machine, eng.selector, eng.source, eng.artifacts, st,
		buildAPIOptions(cfg, eng.loc, buildSMSSender(cfg))...)
	if err := server.Run(ctx); err != nil {
		return err
	}
	slog.Info("WapiDaktari exited successfully")
	return nil
}

// lockStateDir takes the state directory lock when the store is an SQLite file.
func lockStateDir(cfg *config.Config) (func(), error) {
	dsn := cfg.DSN()
	if store.DetectDSNType(dsn) == "postgres" {
		return func() {}, nil
	}
	lock, err := lockfile.AcquireLock(filepath.Dir(dsn))
	if err != nil {
		return nil, err
	}
	return func() { lock.Release() }, nil
}

// withEngine builds the prediction path for a one-shot command. The SQL
// backend needs the store open for the duration of fn; a first-use import
// takes the state lock.
func withEngine(ctx context.Context, cfg *config.Config, fn func(*engine) error) error {
	var fs store.FeatureStore
	if cfg.DatasetBackend == config.BackendSQL {
		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()
		fs = st
	}
	eng, err := buildEngine(ctx, cfg, fs, func() (func(), error) { return lockStateDir(cfg) })
	if err != nil {
		return err
	}
	return fn(eng)
}

func newUSSDCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ussd [trail]",
		Short: "Render the USSD screen for a '*'-separated input trail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trail := ""
			if len(args) == 1 {
				trail = args[0]
			}
			return withEngine(cmd.Context(), cfg, func(eng *engine) error {
				screen := eng.machine.Respond(cmd.Context(), trail)
				fmt.Fprintln(cmd.OutOrStdout(), screen.String())
				return nil
			})
		},
	}
}

func newBestTimeCmd(cfg *config.Config) *cobra.Command {
	var hospital, department, date string
	cmd := &cobra.Command{
		Use:   "besttime",
		Short: "Print the best time block for a hospital department",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hospital == "" || department == "" {
				return fmt.Errorf("--hospital and --department are required")
			}
			return withEngine(cmd.Context(), cfg, func(eng *engine) error {
				day, err := parseDate(date, eng.loc)
				if err != nil {
					return err
				}
				result, err := eng.selector.Select(cmd.Context(), hospital, department, day)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			})
		},
	}
	cmd.Flags().StringVar(&hospital, "hospital", "", "hospital name")
	cmd.Flags().StringVar(&department, "department", "", "department name")
	cmd.Flags().StringVar(&date, "date", "today", "date: today, tomorrow or YYYY-MM-DD")
	return cmd
}

func newImportCmd(cfg *config.Config) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the feature dataset CSV into the SQL store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			release, err := lockStateDir(cfg)
			if err != nil {
				return err
			}
			defer release()

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			existing, err := st.CountFeatureRows(ctx)
			if err != nil {
				return err
			}
			if existing > 0 && !force {
				fmt.Fprintf(cmd.OutOrStdout(), "feature table already holds %d rows, skipping (use --force to replace)\n", existing)
				return nil
			}
			n, err := importDataset(ctx, cfg.DatasetPath, st, existing > 0)
			if err != nil {
				return err
			}
			if existing > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "replaced %d rows with %d rows from %s\n", existing, n, cfg.DatasetPath)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows from %s\n", n, cfg.DatasetPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace the feature table if rows already exist")
	return cmd
}
