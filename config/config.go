// Package config loads kruxsync settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix namespaces every variable, e.g. KRUX_API_TOKEN.
const Prefix = "KRUX"

type Config struct {
	APIToken    string        `envconfig:"API_TOKEN"`
	CompanyID   string        `envconfig:"COMPANY_ID" default:"1513"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://metrixapi.kruxanalytics.com/api/v2/Export/GetData/"`
	UserAgent   string        `envconfig:"USER_AGENT" default:"TabiriETL/1.0"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`
	StartDate   string        `envconfig:"START_DATE" default:"2025-07-01"`

	DBName     string `envconfig:"DB_NAME" default:"krux_data"`
	DBUser     string `envconfig:"DB_USER" default:"myuser"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"mysecretpassword"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads envFiles (missing files are skipped) and then the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings needed to reach the database and API. A
// missing token is not an error here; the fetcher reports it per query.
func (c Config) Validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("KRUX_BASE_URL: %w", err)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("KRUX_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("KRUX_DB_PORT out of range: %d", c.DBPort)
	}
	return nil
}

// DSN renders a postgres:// connection URL for lib/pq.
func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}
