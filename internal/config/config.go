package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string
	AutoMigrate bool
	ScanWorkers int
	LogLevel    string

	// ScanConcurrency bounds parallel organization scans in a batch.
	ScanConcurrency int
	UserAgent       string
	FetchTimeout    time.Duration
	PolitenessMin   time.Duration
	PolitenessMax   time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	RespectRobots   bool

	RulesFile    string
	ExtractorURL string
}

// ErrNoDatabase is returned by Load when DATABASE_URL is unset. The rest of
// the config is still usable.
var ErrNoDatabase = errors.New("DATABASE_URL not set")

// MinPoliteness is the smallest accepted gap between requests to one site.
const MinPoliteness = 800 * time.Millisecond

// LoadEnvFiles loads .env.local then .env into the process environment.
// Variables already set are not overridden; missing files are ignored.
func LoadEnvFiles() error {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func Load() (Config, error) {
	var errs []error
	cfg := Config{
		Env:             getenv("APP_ENV", "development"),
		ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AutoMigrate:     getenvBool("AUTO_MIGRATE", false, &errs),
		ScanWorkers:     getenvInt("SCAN_WORKERS", 0, &errs),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		ScanConcurrency: getenvInt("SCAN_CONCURRENCY", 4, &errs),
		UserAgent:       os.Getenv("USER_AGENT"),
		FetchTimeout:    getenvDuration("FETCH_TIMEOUT", 30*time.Second, &errs),
		PolitenessMin:   getenvDuration("POLITENESS_MIN", time.Second, &errs),
		PolitenessMax:   getenvDuration("POLITENESS_MAX", 8*time.Second, &errs),
		BackoffBase:     getenvDuration("BACKOFF_BASE", 2*time.Second, &errs),
		BackoffMax:      getenvDuration("BACKOFF_MAX", time.Minute, &errs),
		RespectRobots:   getenvBool("RESPECT_ROBOTS", true, &errs),
		RulesFile:       os.Getenv("RULES_FILE"),
		ExtractorURL:    os.Getenv("EXTRACTOR_URL"),
	}
	if cfg.PolitenessMin < MinPoliteness {
		errs = append(errs, fmt.Errorf("POLITENESS_MIN (%s) is below %s", cfg.PolitenessMin, MinPoliteness))
	}
	if cfg.PolitenessMax < cfg.PolitenessMin {
		errs = append(errs, fmt.Errorf("POLITENESS_MAX (%s) is below POLITENESS_MIN (%s)", cfg.PolitenessMax, cfg.PolitenessMin))
	}
	if cfg.ScanConcurrency < 1 {
		errs = append(errs, fmt.Errorf("SCAN_CONCURRENCY must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for early local runs; callers decide.
		return cfg, ErrNoDatabase
	}
	return cfg, nil
}

func getenvInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return out
}

func getenvBool(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return out
}

func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return out
}
