package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage backends selectable with -t / DATABASE_TYPE
const (
	DatabasePostgres      = "postgres"
	DatabaseSQLite        = "sqlite"
	DatabaseElasticsearch = "elasticsearch"
)

const (
	defaultPort        = 8080
	defaultSQLitePath  = "form-analytics.db"
	defaultIndexPrefix = "form_analytics_"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string
	ElasticURLs  []string
	IndexPrefix  string
	JWTSecret    string
	LogLevel     slog.Level
}

// Load reads an optional .env file, then flags, falling back to the
// environment for anything not given on the command line.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return ParseFlags(args)
}

// ParseFlags validates flags and env without touching .env
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var esURLs, logLevel string

	fs := flag.NewFlagSet("form-analytics", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL or SQLite path")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (postgres, sqlite or elasticsearch)")
	fs.StringVar(&esURLs, "es", "", "Comma separated Elasticsearch URLs")
	fs.StringVar(&cfg.IndexPrefix, "index-prefix", "", "Elasticsearch index prefix")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "JWT signing secret (prefer env)")
	fs.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = defaultPort
		}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("port %d out of range", cfg.Port)
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
	}
	cfg.DatabaseType = strings.ToLower(cfg.DatabaseType)
	if cfg.DatabaseType == "" {
		cfg.DatabaseType = DatabaseSQLite
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if esURLs == "" {
		esURLs = os.Getenv("ELASTICSEARCH_URLS")
	}
	cfg.ElasticURLs = splitList(esURLs)
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = os.Getenv("ELASTICSEARCH_INDEX_PREFIX")
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = defaultIndexPrefix
	}

	switch cfg.DatabaseType {
	case DatabaseSQLite:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = defaultSQLitePath
		}
	case DatabasePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
		}
	case DatabaseElasticsearch:
	default:
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
	}
	if logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
			return Config{}, fmt.Errorf("invalid log level %q", logLevel)
		}
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
