// Package config loads the collector configuration from a YAML file and the
// environment, validates it and converts it into a collection request.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"twits-archive-tool/internal/chunkfile"
	"twits-archive-tool/internal/collector"
	"twits-archive-tool/internal/stocktwits"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIURL       = "STOCKTWITS_API_URL"
	EnvAccessToken  = "STOCKTWITS_ACCESS_TOKEN"
	EnvAzureAccount = "AZURE_STORAGE_ACCOUNT"
	EnvAzureKey     = "AZURE_STORAGE_KEY"
)

// DefaultMaxRetries applies when the file does not set api.max_retries.
const DefaultMaxRetries = 3

var validate *validator.Validate

func init() {
	validate = validator.New()
	err := validate.RegisterValidation("entity", func(fl validator.FieldLevel) bool {
		return stocktwits.ValidateEntity(fl.Field().String()) == nil
	})
	if err != nil {
		panic(err)
	}
}

// API configures the Stocktwits client.
type API struct {
	URL             string        `yaml:"url" validate:"omitempty,url"`
	AccessToken     string        `yaml:"access_token"`
	Timeout         time.Duration `yaml:"timeout" validate:"gte=0"`
	RequestsPerHour int           `yaml:"requests_per_hour" validate:"gte=0"`
	MaxRetries      *int          `yaml:"max_retries" validate:"omitempty,gte=0,lte=20"` // nil means DefaultMaxRetries; 0 disables retries
	RetryDelay      time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

// Collect mirrors the fields of a collection request.
type Collect struct {
	Symbols     []string `yaml:"symbols" validate:"dive,entity"`
	Users       []string `yaml:"users" validate:"dive,entity"`
	OnlyCombo   bool     `yaml:"only_combo"`
	SinceID     int64    `yaml:"since_id" validate:"gte=0"`
	MaxID       int64    `yaml:"max_id" validate:"gte=0"`
	Limit       int      `yaml:"limit" validate:"gte=1,lte=1000"`
	Anchor      string   `yaml:"anchor"`
	Chunk       string   `yaml:"chunk" validate:"oneof=day week month"`
	Prefix      string   `yaml:"filename_prefix"`
	Suffix      string   `yaml:"filename_suffix"`
	Verbose     bool     `yaml:"verbose"`
	Concurrency int      `yaml:"concurrency" validate:"gte=1,lte=32"`
}

// Output controls where results go.
type Output struct {
	Dir         string `yaml:"dir"`
	Merge       bool   `yaml:"merge"`
	Ledger      string `yaml:"ledger"`
	MetricsFile string `yaml:"metrics_file"`
	Compression string `yaml:"compression" validate:"omitempty,oneof=none gzip zstd lz4"`
}

// Azure holds the blob upload settings.
type Azure struct {
	Account    string `yaml:"account"`
	AccessKey  string `yaml:"access_key"`
	Container  string `yaml:"container"`
	ServiceURL string `yaml:"service_url" validate:"omitempty,url"`
	Prefix     string `yaml:"prefix"`
}

// Config is the whole configuration file.
type Config struct {
	LogLevel string  `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	API      API     `yaml:"api"`
	Collect  Collect `yaml:"collect"`
	Output   Output  `yaml:"output"`
	Azure    Azure   `yaml:"azure"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.API.URL == "" {
		c.API.URL = stocktwits.DefaultBaseURL
	}
	if c.API.MaxRetries == nil {
		n := DefaultMaxRetries
		c.API.MaxRetries = &n
	}
	c.Collect.Symbols = trimAll(c.Collect.Symbols)
	c.Collect.Users = trimAll(c.Collect.Users)
	if c.Collect.Limit == 0 {
		c.Collect.Limit = collector.DefaultLimit
	}
	if c.Collect.Chunk == "" {
		c.Collect.Chunk = string(collector.Day)
	}
	if c.Collect.Prefix == "" {
		c.Collect.Prefix = collector.DefaultFilenamePrefix
	}
	if c.Collect.Suffix == "" {
		c.Collect.Suffix = collector.DefaultFilenameSuffix
	}
	if c.Collect.Concurrency == 0 {
		c.Collect.Concurrency = 1
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Output.Compression == "" {
		c.Output.Compression = "zstd"
	}
}

func trimAll(ids []string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ApplyEnv overrides API and Azure settings from the environment. getenv is
// usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.API.URL = envString(getenv, EnvAPIURL, c.API.URL)
	c.API.AccessToken = envString(getenv, EnvAccessToken, c.API.AccessToken)
	c.Azure.Account = envString(getenv, EnvAzureAccount, c.Azure.Account)
	c.Azure.AccessKey = envString(getenv, EnvAzureKey, c.Azure.AccessKey)
}

func envString(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

// Validate checks the struct tags and returns the first failures in a
// readable form.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// ParseAnchor accepts a wire timestamp or a plain date. An empty string
// yields the zero time.
func ParseAnchor(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := stocktwits.ParseTime(s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: anchor %q: want %s or %s", s, stocktwits.TimeLayout, time.DateOnly)
	}
	return t, nil
}

// Request builds the collection request described by the Collect section.
func (c Config) Request() (collector.CollectionRequest, error) {
	anchor, err := ParseAnchor(c.Collect.Anchor)
	if err != nil {
		return collector.CollectionRequest{}, err
	}
	g, err := collector.ParseGranularity(c.Collect.Chunk)
	if err != nil {
		return collector.CollectionRequest{}, err
	}
	syms, err := stocktwits.SanitizeEntities(c.Collect.Symbols)
	if err != nil {
		return collector.CollectionRequest{}, err
	}
	users, err := stocktwits.SanitizeEntities(c.Collect.Users)
	if err != nil {
		return collector.CollectionRequest{}, err
	}
	return collector.CollectionRequest{
		Symbols:        syms,
		Users:          users,
		OnlyCombo:      c.Collect.OnlyCombo,
		SinceID:        c.Collect.SinceID,
		MaxID:          c.Collect.MaxID,
		Limit:          c.Collect.Limit,
		Anchor:         anchor,
		Granularity:    g,
		FilenamePrefix: c.Collect.Prefix,
		FilenameSuffix: c.Collect.Suffix,
		Verbose:        c.Collect.Verbose,
	}, nil
}

// Client returns the stream client settings.
func (c Config) Client() stocktwits.Config {
	retries := DefaultMaxRetries
	if c.API.MaxRetries != nil {
		retries = *c.API.MaxRetries
	}
	return stocktwits.Config{
		BaseURL:         c.API.URL,
		AccessToken:     c.API.AccessToken,
		Timeout:         c.API.Timeout,
		RequestsPerHour: c.API.RequestsPerHour,
		MaxRetries:      retries,
		RetryDelay:      c.API.RetryDelay,
	}
}

// Naming returns the chunk file naming of the Collect section.
func (c Config) Naming() chunkfile.Naming {
	return chunkfile.Naming{Prefix: c.Collect.Prefix, Suffix: c.Collect.Suffix}
}
