// Package config loads and validates the dictionary search configuration from
// YAML files with environment-variable overrides. It provides typed structs
// for every subsystem (logging, metrics, stores, brokers) and for the L1/L2
// language profiles that drive indexing and matching.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Cache      CacheConfig      `yaml:"cache"`
	Search     SearchConfig     `yaml:"search"`
	Source     SourceConfig     `yaml:"source"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables rebuild notifications.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	DictionaryUpdated string `yaml:"dictionaryUpdated"`
	IndexBuilt        string `yaml:"indexBuilt"`
}

// RedisConfig holds Redis connection parameters for the query cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// CacheConfig selects the query cache backend: "redis", "memory" or "none".
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

// SearchConfig controls paging defaults and matcher fan-out.
type SearchConfig struct {
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxResults   int           `yaml:"maxResults"`
	Workers      int           `yaml:"workers"`
	BuildTimeout time.Duration `yaml:"buildTimeout"`
}

// SourceConfig describes where entry records come from: a JSON file or a
// PostgreSQL table.
type SourceConfig struct {
	Type  string `yaml:"type"`
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

// DictionaryConfig holds the two language profiles.
type DictionaryConfig struct {
	L1Name string     `yaml:"l1Name"`
	L2Name string     `yaml:"l2Name"`
	L1     SideConfig `yaml:"l1"`
	L2     SideConfig `yaml:"l2"`
}

// Side returns the profile for side.
func (d DictionaryConfig) Side(side Side) SideConfig {
	if side == SideL2 {
		return d.L2
	}
	return d.L1
}

// SideConfig is the language profile for one side of the dictionary.
type SideConfig struct {
	KeysToIndex         []string                  `yaml:"keysToIndex"`
	Tokenizer           string                    `yaml:"tokenizer"`
	Stemmer             string                    `yaml:"stemmer"`
	Normalization       NormalizationConfig       `yaml:"normalization"`
	SearchStrategy      string                    `yaml:"searchStrategy"`
	MaxDistance         float64                   `yaml:"maxDistance"`
	WeightedLevenshtein WeightedLevenshteinConfig `yaml:"weightedLevenshtein"`
	BM25                BM25Config                `yaml:"bm25"`
}

// NormalizationConfig drives the text normalizer. ReplaceRules are applied
// last, in declared order.
type NormalizationConfig struct {
	Lower                     bool         `yaml:"lower"`
	UnicodeNormalization      string       `yaml:"unicodeNormalization"`
	RemovePunctuation         string       `yaml:"removePunctuation"`
	RemoveCombiningCharacters bool         `yaml:"removeCombiningCharacters"`
	ReplaceRules              ReplaceRules `yaml:"replaceRules"`
}

type ReplaceRule struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

// ReplaceRules accepts either a sequence of {find, replace} objects or a
// mapping. Mapping order follows the document.
type ReplaceRules []ReplaceRule

func (r *ReplaceRules) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var rules []ReplaceRule
		if err := value.Decode(&rules); err != nil {
			return err
		}
		*r = rules
	case yaml.MappingNode:
		rules := make([]ReplaceRule, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			rules = append(rules, ReplaceRule{
				Find:    value.Content[i].Value,
				Replace: value.Content[i+1].Value,
			})
		}
		*r = rules
	default:
		return fmt.Errorf("line %d: replaceRules must be a sequence or a mapping", value.Line)
	}
	return nil
}

// WeightedLevenshteinConfig holds the per-operation edit costs for the
// weighted_levenstein strategy.
type WeightedLevenshteinConfig struct {
	InsertionCost            float64                       `yaml:"insertionCost"`
	DeletionCost             float64                       `yaml:"deletionCost"`
	InsertionAtBeginningCost float64                       `yaml:"insertionAtBeginningCost"`
	DeletionAtEndCost        float64                       `yaml:"deletionAtEndCost"`
	SubstitutionCosts        map[string]map[string]float64 `yaml:"substitutionCosts"`
	SubstitutionCostsPath    string                        `yaml:"substitutionCostsPath"`
	DefaultSubstitutionCost  float64                       `yaml:"defaultSubstitutionCost"`
}

// IsUniform reports whether every edit costs exactly 1 and no custom
// substitution costs are set.
func (w WeightedLevenshteinConfig) IsUniform() bool {
	return w.InsertionCost == 1 &&
		w.DeletionCost == 1 &&
		w.InsertionAtBeginningCost == 1 &&
		w.DeletionAtEndCost == 1 &&
		w.DefaultSubstitutionCost == 1 &&
		len(w.SubstitutionCosts) == 0 &&
		w.SubstitutionCostsPath == ""
}

// BM25Config holds the Okapi BM25 parameters.
type BM25Config struct {
	K1      float64 `yaml:"k1"`
	B       float64 `yaml:"b"`
	Epsilon float64 `yaml:"epsilon"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, loads substitution cost files and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	baseDir := ""
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		baseDir = filepath.Dir(path)
	}
	applyEnvOverrides(cfg)
	for _, side := range Sides {
		if err := cfg.resolveSubstitutionCosts(side, baseDir); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with local-development defaults. The fields to
// index on each side are deliberately left unset.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "mothertongues",
			User:            "mothertongues",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "mtd-indexd",
			Topics: KafkaTopics{
				DictionaryUpdated: "dictionary.updated",
				IndexBuilt:        "index.built",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     60 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxResults:   100,
			BuildTimeout: 5 * time.Minute,
		},
		Source: SourceConfig{
			Type:  SourceFile,
			Path:  "dictionary.json",
			Table: "entries",
		},
		Dictionary: DictionaryConfig{
			L1Name: "YourLanguage",
			L2Name: "English",
			L1:     defaultSide(StemmerNone),
			L2:     defaultSide(StemmerSnowballEnglish),
		},
	}
}

func defaultSide(stemmer string) SideConfig {
	return SideConfig{
		Tokenizer: TokenizerWhitespace,
		Stemmer:   stemmer,
		Normalization: NormalizationConfig{
			Lower:                     true,
			UnicodeNormalization:      "NFC",
			RemovePunctuation:         DefaultPunctuation,
			RemoveCombiningCharacters: true,
		},
		SearchStrategy: StrategyWeightedLevenshtein,
		MaxDistance:    2,
		WeightedLevenshtein: WeightedLevenshteinConfig{
			InsertionCost:            1,
			DeletionCost:             1,
			InsertionAtBeginningCost: 1,
			DeletionAtEndCost:        1,
			DefaultSubstitutionCost:  1,
		},
		BM25: BM25Config{
			K1:      1.5,
			B:       0.75,
			Epsilon: 0.25,
		},
	}
}

// applyEnvOverrides reads MTD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MTD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MTD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MTD_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("MTD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MTD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MTD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MTD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MTD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MTD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MTD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MTD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MTD_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("MTD_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("MTD_SEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Workers = n
		}
	}
}
