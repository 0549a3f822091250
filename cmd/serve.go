package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-checkin/internal/constants"
	"github.com/kozaktomas/face-checkin/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the check-in web server.
The server exposes the recognition and identity API under /api/v1 and serves
a camera page that recognizes faces every two seconds.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().StringSlice("allowed-origins", nil, "Extra CORS origins (adds to WEB_ALLOWED_ORIGINS)")
	serveCmd.Flags().Bool("memory", false, "Use the in-memory store when no database is configured")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, os.Stdout, mustGetBool(cmd, "memory"), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}
	a.cfg.Web.AllowedOrigins = append(a.cfg.Web.AllowedOrigins, mustGetStringSlice(cmd, "allowed-origins")...)

	if count, err := a.store.Count(ctx); err == nil {
		a.log.Info().Int("identities", count).Msg("identity store ready")
	}

	server := web.NewServer(a.cfg, a.service, a.log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	fmt.Printf("Starting Face Checkin on http://%s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
