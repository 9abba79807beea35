package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/core"
)

// Defaults applied when neither a flag, the environment nor the config file set a value.
const (
	DefaultThreshold   = "7d"
	DefaultConcurrency = 10
	DefaultRetries     = 3
	DefaultTimeout     = 30 * time.Second
)

// Config is the resolved configuration of a clean run.
type Config struct {
	Server        string        `yaml:"server" validate:"required"`
	Token         string        `yaml:"token" validate:"required"`
	Paths         []string      `yaml:"paths"`
	DryRun        bool          `yaml:"dry_run"`
	Threshold     string        `yaml:"threshold"`
	ThresholdSize string        `yaml:"threshold_size"`
	Concurrency   int           `yaml:"concurrency" validate:"gte=1,lte=100"`
	Retries       int           `yaml:"retries" validate:"gte=0,lte=10"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Default returns a Config holding only default values.
func Default() Config {
	return Config{
		Threshold:   DefaultThreshold,
		Concurrency: DefaultConcurrency,
		Retries:     DefaultRetries,
		Timeout:     DefaultTimeout,
	}
}

// ─── Sources ─────────────────────────────────────────────────────────────────

// Field names a Config value that can come from several sources.
type Field string

const (
	FieldToken         Field = "token"
	FieldServer        Field = "server"
	FieldPaths         Field = "paths"
	FieldDryRun        Field = "dry-run"
	FieldThreshold     Field = "threshold"
	FieldThresholdSize Field = "threshold-size"
)

// EnvKeys lists, by priority, the environment variables read for each field.
var EnvKeys = map[Field][]string{
	FieldToken:     {"GITLAB_TOKEN", "GL_TOKEN"},
	FieldServer:    {"CI_SERVER_HOST", "CI_API_V4_URL", "CI_SERVER_URL"},
	FieldPaths:     {"CLEANER_PATHS", "CI_PROJECT_NAME"},
	FieldDryRun:    {"CLEANER_DRY_RUN"},
	FieldThreshold: {"CLEANER_THRESHOLD"},
}

// Lookup is the signature of os.LookupEnv, replaceable in tests.
type Lookup func(key string) (string, bool)

// FromEnv returns the first non empty value of the field's environment variables.
func FromEnv(lookup Lookup, field Field) (string, bool) {
	for _, key := range EnvKeys[field] {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// ApplyEnv overrides c with the values found in the environment,
// skipping the fields listed in explicit (already set with flags).
func (c Config) ApplyEnv(lookup Lookup, explicit ...Field) (Config, error) {
	set := func(field Field, apply func(string) error) error {
		if slices.Contains(explicit, field) {
			return nil
		}
		if v, ok := FromEnv(lookup, field); ok {
			return apply(v)
		}
		return nil
	}

	errs := []error{
		set(FieldToken, func(v string) error { c.Token = v; return nil }),
		set(FieldServer, func(v string) error { c.Server = v; return nil }),
		set(FieldPaths, func(v string) error { c.Paths = SplitList(v); return nil }),
		set(FieldThreshold, func(v string) error { c.Threshold = v; return nil }),
		set(FieldDryRun, func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid dry run value '%s': %w", v, err)
			}
			c.DryRun = b
			return nil
		}),
	}
	return c, errors.Join(errs...)
}

// SplitList splits a comma separated list, dropping empty items.
// Items can't hold a comma, regexps such as "a{1,3}" need the repeatable flag.
func SplitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}

// ─── File ────────────────────────────────────────────────────────────────────

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "gitlab-cleaner", "config.yaml")
	}
	return ""
}

// Load reads the YAML file at path on top of defaults.
// A missing file is only an error when required is true.
func Load(path string, required bool) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return c, nil
		}
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(bytes, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// ─── Validation ──────────────────────────────────────────────────────────────

var validate = validator.New(validator.WithRequiredStructEnabled())

// MissingError lists required fields left empty after every source was read.
type MissingError struct {
	Fields []string
}

func (e *MissingError) Error() string {
	quoted := lo.Map(e.Fields, func(f string, _ int) string { return strconv.Quote(f) })
	return fmt.Sprintf("required flag(s) %s not set", strings.Join(quoted, ", "))
}

// Validate checks the resolved configuration.
// Missing credentials are reported first, on their own, as a *MissingError.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Server) == "" {
		missing = append(missing, string(FieldServer))
	}
	if strings.TrimSpace(c.Token) == "" {
		missing = append(missing, string(FieldToken))
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return &MissingError{Fields: missing}
	}

	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, verr := range verrs {
				errs = append(errs, fmt.Errorf("invalid %s: must satisfy '%s=%s'", strings.ToLower(verr.Field()), verr.Tag(), verr.Param()))
			}
		} else {
			errs = append(errs, err)
		}
	}
	if _, err := c.ThresholdDuration(); err != nil {
		errs = append(errs, fmt.Errorf("invalid threshold: %w", err))
	}
	if _, err := core.ParseSize(c.ThresholdSize); err != nil {
		errs = append(errs, fmt.Errorf("invalid threshold size: %w", err))
	}
	return errors.Join(errs...)
}

// ThresholdDuration parses Threshold.
func (c Config) ThresholdDuration() (time.Duration, error) {
	d, err := core.ParseAge(c.Threshold)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("threshold must be positive, got %s", c.Threshold)
	}
	return d, nil
}

// ThresholdBytes parses ThresholdSize.
func (c Config) ThresholdBytes() int64 {
	size, _ := core.ParseSize(c.ThresholdSize)
	return size
}

// String never includes the token.
func (c Config) String() string {
	return fmt.Sprintf("server=%s paths=%v dry_run=%t threshold=%s threshold_size=%s concurrency=%d retries=%d timeout=%s",
		c.Server, c.Paths, c.DryRun, c.Threshold, c.ThresholdSize, c.Concurrency, c.Retries, c.Timeout)
}
