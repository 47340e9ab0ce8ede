package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. STRIDE_REMOTE_MAXRETRIES=3.
const EnvPrefix = "STRIDE_"

// Remote configures the resilient client and the remote endpoints.
type Remote struct {
	AnalysisURL     string        `yaml:"analysisURL" json:"analysisURL" mapstructure:"analysisURL" validate:"omitempty,url"`
	GenerationURL   string        `yaml:"generationURL" json:"generationURL" mapstructure:"generationURL" validate:"omitempty,url"`
	APIKey          string        `yaml:"apiKey" json:"apiKey" mapstructure:"apiKey"`
	MaxRetries      int           `yaml:"maxRetries" json:"maxRetries" mapstructure:"maxRetries" validate:"min=1,max=10"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"gt=0"`
	ExtendedTimeout time.Duration `yaml:"extendedTimeout" json:"extendedTimeout" mapstructure:"extendedTimeout" validate:"gtefield=Timeout"`
	BackoffBase     time.Duration `yaml:"backoffBase" json:"backoffBase" mapstructure:"backoffBase" validate:"gte=0"`
	RateLimit       float64       `yaml:"rateLimit" json:"rateLimit" mapstructure:"rateLimit" validate:"gte=0"`
	Burst           int           `yaml:"burst" json:"burst" mapstructure:"burst" validate:"gte=0"`
}

// Budget is the longest a single remote call can take with every retry
// spent at the extended timeout, including the backoff between attempts.
func (r Remote) Budget() time.Duration {
	per := max(r.Timeout, r.ExtendedTimeout)
	total := time.Duration(r.MaxRetries) * per
	for attempt := 1; attempt < r.MaxRetries; attempt++ {
		total += time.Duration(attempt) * r.BackoffBase
	}
	return total
}

// Generation configures the coordinator.
type Generation struct {
	Cooldown     time.Duration `yaml:"cooldown" json:"cooldown" mapstructure:"cooldown" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout" mapstructure:"writeTimeout" validate:"gt=0"`
}

// Store selects and configures persistence.
type Store struct {
	Driver        string        `yaml:"driver" json:"driver" mapstructure:"driver" validate:"oneof=memory redis file"`
	RedisAddr     string        `yaml:"redisAddr" json:"redisAddr" mapstructure:"redisAddr" validate:"required_if=Driver redis"`
	RedisPassword string        `yaml:"redisPassword" json:"redisPassword" mapstructure:"redisPassword"`
	RedisDB       int           `yaml:"redisDB" json:"redisDB" mapstructure:"redisDB" validate:"gte=0"`
	Prefix        string        `yaml:"prefix" json:"prefix" mapstructure:"prefix"`
	Dir           string        `yaml:"dir" json:"dir" mapstructure:"dir"`
	TTL           time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl" validate:"gte=0"`

	// EncryptionKey is a base64 AES-256 key. When set, drafts are encrypted at rest.
	EncryptionKey string   `yaml:"encryptionKey" json:"encryptionKey" mapstructure:"encryptionKey" validate:"omitempty,base64"`
	FallbackKeys  []string `yaml:"fallbackKeys" json:"fallbackKeys" mapstructure:"fallbackKeys" validate:"dive,base64"`
	// RedactNotes masks pain details and free-text notes in archived records.
	RedactNotes bool `yaml:"redactNotes" json:"redactNotes" mapstructure:"redactNotes"`
}

// Session configures session housekeeping.
type Session struct {
	DraftTTL   time.Duration `yaml:"draftTTL" json:"draftTTL" mapstructure:"draftTTL" validate:"gt=0"`
	StaleAfter time.Duration `yaml:"staleAfter" json:"staleAfter" mapstructure:"staleAfter" validate:"gt=0"`
}

// Server configures the HTTP mode.
type Server struct {
	Port    int  `yaml:"port" json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	Metrics bool `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"oneof=text json"`
}

// Config is the root configuration document.
type Config struct {
	Remote     Remote     `yaml:"remote" json:"remote" mapstructure:"remote"`
	Generation Generation `yaml:"generation" json:"generation" mapstructure:"generation"`
	Store      Store      `yaml:"store" json:"store" mapstructure:"store"`
	Session    Session    `yaml:"session" json:"session" mapstructure:"session"`
	Server     Server     `yaml:"server" json:"server" mapstructure:"server"`
	Log        Log        `yaml:"log" json:"log" mapstructure:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Remote: Remote{
			MaxRetries:      2,
			Timeout:         90 * time.Second,
			ExtendedTimeout: 120 * time.Second,
			BackoffBase:     2 * time.Second,
		},
		Generation: Generation{
			Cooldown:     5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Store: Store{
			Driver: "memory",
			Prefix: "stride:",
			Dir:    ".stride",
		},
		Session: Session{
			DraftTTL:   48 * time.Hour,
			StaleAfter: 24 * time.Hour,
		},
		Server: Server{Port: 8080, Metrics: true},
		Log:    Log{Level: "info", Format: "text"},
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads a configuration file on top of the defaults, then applies
// environment overrides. A missing file yields the defaults.
// JSON files are accepted too, since JSON is a subset of YAML.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file: defaults only.
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if err := ApplyEnv(&cfg, os.Environ()); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv decodes STRIDE_<SECTION>_<FIELD> variables onto cfg.
// Field names match case-insensitively with underscores removed.
func ApplyEnv(cfg *Config, environ []string) error {
	overrides := map[string]any{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		section, field, ok := strings.Cut(strings.TrimPrefix(key, EnvPrefix), "_")
		if !ok {
			continue
		}
		section = strings.ToLower(section)
		field = strings.ToLower(strings.ReplaceAll(field, "_", ""))
		m, _ := overrides[section].(map[string]any)
		if m == nil {
			m = map[string]any{}
			overrides[section] = m
		}
		m[field] = value
	}
	if len(overrides) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(mapKey, fieldName string) bool {
			return strings.EqualFold(mapKey, fieldName)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to build env decoder: %w", err)
	}
	if err := dec.Decode(overrides); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}
