package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "face-checkin",
	Short: "Face recognition check-in with attendance and loyalty points",
	Long: `Face Checkin recognizes enrolled people from camera frames, records one
attendance per person per day and awards loyalty points for each attended day.

Face detection and embedding extraction are delegated to an HTTP vision service
(VISION_URL). Identities are stored in PostgreSQL (DATABASE_URL) or MariaDB
(MARIADB_DSN).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
