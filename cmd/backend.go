package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-checkin/internal/config"
	"github.com/kozaktomas/face-checkin/internal/database"
	"github.com/kozaktomas/face-checkin/internal/database/mariadb"
	"github.com/kozaktomas/face-checkin/internal/database/memory"
	"github.com/kozaktomas/face-checkin/internal/database/postgres"
	"github.com/kozaktomas/face-checkin/internal/logger"
	"github.com/kozaktomas/face-checkin/internal/recognition"
	"github.com/kozaktomas/face-checkin/internal/vision"
)

var errNoBackend = errors.New("DATABASE_URL or MARIADB_DSN environment variable is required")

// loadConfig loads and validates the configuration and builds the logger.
// CLI commands log to stderr so stdout stays parseable.
func loadConfig(w io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

// openStore picks the identity store: PostgreSQL when DATABASE_URL is set, MariaDB
// when MARIADB_DSN is set, otherwise the in-memory store if allowMemory is true.
func openStore(ctx context.Context, cfg *config.Config, allowMemory bool, log zerolog.Logger) (database.Store, error) {
	switch {
	case cfg.Database.URL != "":
		log.Info().Msg("connecting to PostgreSQL")
		repo, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return repo, nil
	case cfg.MariaDB.DSN != "":
		log.Info().Msg("connecting to MariaDB")
		repo, err := mariadb.Open(ctx, cfg.MariaDB.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return repo, nil
	case allowMemory:
		log.Warn().Msg("using in-memory identity store, nothing survives a restart")
		return memory.New(), nil
	default:
		return nil, errNoBackend
	}
}

// app bundles what every service-backed command needs.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   database.Store
	service *recognition.Service
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing identity store")
	}
}

// newApp loads configuration, opens the store and wires the recognition service.
func newApp(ctx context.Context, logOut io.Writer, allowMemory bool, tune func(*recognition.Options)) (*app, error) {
	cfg, log, err := loadConfig(logOut)
	if err != nil {
		return nil, err
	}

	opts, err := recognition.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tune != nil {
		tune(&opts)
	}

	store, err := openStore(ctx, cfg, allowMemory, log)
	if err != nil {
		return nil, err
	}

	client := vision.NewClient(cfg.Vision.URL, cfg.Vision.Timeout)
	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		service: recognition.NewService(store, client, client, opts, log),
	}, nil
}

// readImageFile reads an image from disk, or stdin for "-".
func readImageFile(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}
