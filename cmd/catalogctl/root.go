package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Clark-Hu/movieweb/internal/catalog"
	"github.com/Clark-Hu/movieweb/internal/config"
	"github.com/Clark-Hu/movieweb/internal/logging"
	"github.com/Clark-Hu/movieweb/internal/metadata"
	"github.com/Clark-Hu/movieweb/internal/repository"
	"github.com/Clark-Hu/movieweb/internal/store"
)

var (
	envFile string
	verbose bool
	timeout time.Duration

	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "catalogctl",
	Short:         "Maintenance tasks for the movie catalog",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		} else {
			_ = godotenv.Load()
		}

		var err error
		if cfg, err = config.Read(); err != nil {
			return err
		}
		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger = logging.New(logging.Options{Level: level, Format: "console", Service: "catalogctl"})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline for the command")
}

func openStore(ctx context.Context) (*store.Store, error) {
	return store.New(ctx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	})
}

// openCatalog builds a catalog service. Metadata is wired only when
// withMetadata is set, so jobs that never fetch do not need an API key.
func openCatalog(ctx context.Context, withMetadata bool) (*catalog.Service, func(), error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	var md catalog.MetadataProvider
	mdTimeout := time.Duration(cfg.MetadataTimeoutSecs) * time.Second
	if withMetadata {
		if err := cfg.ValidateMetadata(); err != nil {
			st.Close()
			return nil, nil, err
		}
		client, err := metadata.NewHTTPClient(cfg.MetadataURL, cfg.MetadataAPIKey, mdTimeout, logger)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		md = client
	}

	svc := catalog.NewService(repository.New(st), md, catalog.Options{LookupTimeout: mdTimeout, Logger: logger})
	return svc, st.Close, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
