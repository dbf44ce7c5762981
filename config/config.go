// Package config handles interpreting the ddlbench.yaml config file and
// its environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/weiihann/ddlbench/bench"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "ddlbench.yaml"

// Config holds the ddlbench configuration.
type Config struct {
	ResultsDB string          `yaml:"results_db"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	DuckDB    DuckDBConfig    `yaml:"duckdb"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Snowflake SnowflakeConfig `yaml:"snowflake"`
	OpenDict  OpenDictConfig  `yaml:"opendict"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SQLiteConfig configures the SQLite system under test.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DuckDBConfig configures the DuckDB system under test.
type DuckDBConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig configures the PostgreSQL system under test.
type PostgresConfig struct {
	// Driver selects the client: "pgx" (native) or "pq" (database/sql).
	Driver   string    `yaml:"driver"`
	Host     string    `yaml:"host"`
	Port     int       `yaml:"port"`
	User     string    `yaml:"user"`
	Password SecretRef `yaml:"password"`
	Database string    `yaml:"database"`
	SSLMode  string    `yaml:"sslmode"`
}

// DSN returns a postgres:// connection URL understood by both drivers.
func (p PostgresConfig) DSN(password string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.Database,
	}

	if password != "" {
		u.User = url.UserPassword(p.User, password)
	} else if p.User != "" {
		u.User = url.User(p.User)
	}

	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}

	return u.String()
}

// SnowflakeConfig configures the Snowflake system under test.
type SnowflakeConfig struct {
	Account   string    `yaml:"account"`
	User      string    `yaml:"user"`
	Password  SecretRef `yaml:"password"`
	Database  string    `yaml:"database"`
	Schema    string    `yaml:"schema"`
	Warehouse string    `yaml:"warehouse"`
	Role      string    `yaml:"role"`
}

// OpenDictConfig configures the open dictionary catalog deployments.
type OpenDictConfig struct {
	ClientID     SecretRef      `yaml:"client_id"`
	ClientSecret SecretRef      `yaml:"client_secret"`
	Scope        string         `yaml:"scope"`
	TokenPath    string         `yaml:"token_path"`
	QueryPath    string         `yaml:"query_path"`
	Timeout      time.Duration  `yaml:"timeout"`
	Targets      map[string]URL `yaml:"targets"`
}

// URL is a catalog endpoint.
type URL struct {
	APIURL string `yaml:"api_url"`
}

// TelemetryConfig configures the optional OTLP metrics exporter.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Env holds DDLBENCH_* environment overrides.
type Env struct {
	Config       string `envconfig:"CONFIG" default:"ddlbench.yaml"`
	ResultsDB    string `envconfig:"RESULTS_DB"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	OTLPInsecure bool   `envconfig:"OTLP_INSECURE"`
}

// LoadEnv reads DDLBENCH_* environment variables.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("ddlbench", &env); err != nil {
		return Env{}, fmt.Errorf("read environment: %w", err)
	}

	return env, nil
}

// Default returns the configuration used when no file exists. Local
// systems work out of the box; remote ones need credentials.
func Default() *Config {
	return &Config{
		ResultsDB: "experiment_logs.db",
		SQLite:    SQLiteConfig{Path: "sqlite.db"},
		DuckDB:    DuckDBConfig{Path: "duckdb.db"},
		Postgres: PostgresConfig{
			Driver:   "pgx",
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "postgres",
			SSLMode:  "disable",
		},
		OpenDict: OpenDictConfig{
			ClientID:     SecretRef{File: "../polaris-boot/secrets/engineer-client-id"},
			ClientSecret: SecretRef{File: "../polaris-boot/secrets/engineer-client-secret"},
			Targets: map[string]URL{
				string(bench.OpenDictPolarisFile):        {APIURL: "http://localhost:8181/api"},
				string(bench.OpenDictPolarisFileBatch):   {APIURL: "http://localhost:8181/api"},
				string(bench.OpenDictPolarisFileCached):  {APIURL: "http://localhost:8181/api"},
				string(bench.OpenDictPolarisCachedBatch): {APIURL: "http://localhost:8181/api"},
			},
		},
	}
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// ApplyEnv overrides file values with non-empty environment values.
func (c *Config) ApplyEnv(env Env) {
	if env.ResultsDB != "" {
		c.ResultsDB = env.ResultsDB
	}
	if env.OTLPEndpoint != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = env.OTLPEndpoint
		c.Telemetry.Insecure = env.OTLPInsecure
	}
}

// OpenDictTarget returns the catalog endpoint configured for sys.
func (c *Config) OpenDictTarget(sys bench.System) (URL, error) {
	target, ok := c.OpenDict.Targets[string(sys)]
	if !ok || target.APIURL == "" {
		return URL{}, fmt.Errorf("no opendict target configured for %s", sys)
	}

	return target, nil
}

// Validate checks settings that can be verified without connecting.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.ResultsDB == "" {
		errs = append(errs, errors.New("results_db must be set"))
	}

	switch c.Postgres.Driver {
	case "pgx", "pq":
	default:
		errs = append(errs, fmt.Errorf("postgres.driver: unknown driver %q (use pgx or pq)", c.Postgres.Driver))
	}

	secrets := map[string]SecretRef{
		"postgres.password":      c.Postgres.Password,
		"snowflake.password":     c.Snowflake.Password,
		"opendict.client_id":     c.OpenDict.ClientID,
		"opendict.client_secret": c.OpenDict.ClientSecret,
	}
	for path, ref := range secrets {
		if ref.IsZero() {
			continue
		}
		if err := ref.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}

	for name := range c.OpenDict.Targets {
		sys, err := bench.ParseSystem(name)
		if err != nil || !sys.IsOpenDict() {
			errs = append(errs, fmt.Errorf("opendict.targets: %q is not an opendict system", name))
		}
	}

	return errors.Join(errs...)
}
