package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-checkin/internal/database/mariadb"
	"github.com/kozaktomas/face-checkin/internal/database/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Create or upgrade the identity schema in the configured database.
PostgreSQL is used when DATABASE_URL is set, MariaDB when MARIADB_DSN is set.
The server and the other commands migrate automatically on startup; this
command only makes the step explicit, e.g. for deployment pipelines.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "Only list applied migrations (PostgreSQL)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, _, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	switch {
	case cfg.Database.URL != "":
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pool.Close()

		if mustGetBool(cmd, "status") {
			applied, err := pool.MigrationsApplied(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Applied migrations: %d\n", len(applied))
			for _, name := range applied {
				fmt.Printf("  %s\n", name)
			}
			return nil
		}

		applied, err := pool.Migrate(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("PostgreSQL schema is up to date.")
			return nil
		}
		for _, name := range applied {
			fmt.Printf("Applied %s\n", name)
		}
		return nil

	case cfg.MariaDB.DSN != "":
		pool, err := mariadb.NewPool(cfg.MariaDB.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to MariaDB: %w", err)
		}
		defer pool.Close()

		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("MariaDB schema is up to date.")
		return nil

	default:
		return errNoBackend
	}
}
