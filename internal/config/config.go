package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Source and published storage. Exactly one of DatabaseURL/FixtureDir is
	// required; FixtureDir switches to the GeoJSON file source for local runs.
	DatabaseURL  string
	GlacierTable string
	FixtureDir   string

	// Region families as ordered join specs; never a hardcoded pair.
	JoinSpecs []domain.JoinSpec

	HTTPAddr string
	// AdminToken, when set, is required as a bearer token on the refresh
	// endpoint. Reading the published snapshot never requires it.
	AdminToken string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka refresh-completion notifications.
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool
}

const defaultRegionFamilies = "range:mountain_ranges:name,basin:drainage_basins:name"

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := time.ParseDuration(envOrDefault("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	specs, err := ParseRegionFamilies(envOrDefault("REGION_FAMILIES", defaultRegionFamilies))
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		GlacierTable:    envOrDefault("GLACIER_TABLE", "glaciers"),
		FixtureDir:      os.Getenv("FIXTURE_DIR"),
		JoinSpecs:       specs,
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		KafkaBrokers:    brokers,
		KafkaSinkTopic:  envOrDefault("KAFKA_SINK_TOPIC", "glacier-attr-refreshes"),
		KafkaEnabled:    kafkaEnabled,
	}

	if cfg.DatabaseURL == "" && cfg.FixtureDir == "" {
		return nil, errors.New("one of DATABASE_URL or FIXTURE_DIR is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// ParseRegionFamilies parses REGION_FAMILIES entries of the form
// "family:table[:label_column]", comma-separated. The label column defaults
// to "label".
func ParseRegionFamilies(raw string) ([]domain.JoinSpec, error) {
	var specs []domain.JoinSpec
	seen := make(map[string]struct{})

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid REGION_FAMILIES entry %q: want family:table[:label_column]", entry)
		}
		spec := domain.JoinSpec{Family: parts[0], Table: parts[1], LabelColumn: "label"}
		if len(parts) == 3 && parts[2] != "" {
			spec.LabelColumn = parts[2]
		}
		if _, dup := seen[spec.Family]; dup {
			return nil, fmt.Errorf("duplicate region family %q in REGION_FAMILIES", spec.Family)
		}
		seen[spec.Family] = struct{}{}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, errors.New("REGION_FAMILIES must configure at least one family")
	}
	return specs, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
