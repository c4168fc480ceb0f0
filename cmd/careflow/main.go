package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/careflow-api/internal/app"
	"github.com/jwalitptl/careflow-api/internal/config"
	"github.com/jwalitptl/careflow-api/internal/repository/postgres"
	"github.com/jwalitptl/careflow-api/pkg/logger"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "careflow",
		Short:        "Patient, doctor and pharmacy clerk workflow API",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(configPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	l := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})
	log.Logger = l.Zerolog()
	return cfg, l, nil
}

func serveCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and its outbox workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := setup(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, l, app.Options{Migrate: migrate})
			if err != nil {
				l.Error(err, "Failed to start")
				return err
			}
			defer a.Close()

			return a.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *postgres.Migrator) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *postgres.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
				for _, s := range statuses {
					at := "pending"
					if s.AppliedAt != nil {
						at = s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, s.Name, at)
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func withMigrator(ctx context.Context, configPath string, fn func(context.Context, *postgres.Migrator) error) error {
	cfg, _, err := setup(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations need the postgres driver, configured driver is %q", cfg.Database.Driver)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, postgres.NewMigrator(db))
}
