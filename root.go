package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cantart/kruxsync/config"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	envFile   string
	logLevel  string
	logFormat string
}

var validLogFormats = []string{"console", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "kruxsync",
		Short:         "Sync Krux drilling exports into Postgres",
		Long:          "kruxsync pulls daily shift reports, activities, equipment, labour and holes from the Krux export API and upserts the new or changed rows into Postgres.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validLogFormats {
				if f == opts.logFormat {
					return nil
				}
			}
			return fmt.Errorf("invalid log format %q: must be one of %v", opts.logFormat, validLogFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides KRUX_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "log format (console|json)")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newInitDBCommand(opts))
	cmd.AddCommand(newTablesCommand())

	return cmd
}

// load reads configuration and builds the logger for a command.
func (o *rootOptions) load(stderr io.Writer) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger, err := newLogger(level, o.logFormat, stderr)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newLogger(level, format string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if out == nil {
		out = os.Stderr
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func openDB(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info().Str("host", cfg.DBHost).Str("database", cfg.DBName).Msg("connected to PostgreSQL database")
	return db, nil
}
