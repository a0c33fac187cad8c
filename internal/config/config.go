// Package config loads and validates benchmark suite configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/promptum/promptum/internal/retry"
)

// Config describes one benchmark suite: where to send generate calls, which
// cases to run, how hard to push, and what to do with the results.
type Config struct {
	Suite      string         `mapstructure:"suite"`
	Provider   ProviderConfig `mapstructure:"provider"`
	Retry      retry.Config   `mapstructure:"retry"`
	Run        RunConfig      `mapstructure:"run"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Tests      []CaseConfig   `mapstructure:"tests"`
	Dataset    DatasetConfig  `mapstructure:"dataset"`
	Thresholds []string       `mapstructure:"thresholds"`
	Output     OutputConfig   `mapstructure:"output"`
	Storage    StorageConfig  `mapstructure:"storage"`
	Tracing    TracingConfig  `mapstructure:"tracing"`
	JSONOutput bool           `mapstructure:"json_output"`
	Dashboard  bool           `mapstructure:"dashboard"`
	Verbose    bool           `mapstructure:"verbose"`

	// CLI-only invocation modes, never read from the suite file.
	History    bool   `mapstructure:"-"`
	ConfigFile string `mapstructure:"-"`
}

// ProviderConfig points the suite at a chat completions API and carries the
// suite-wide generation defaults.
type ProviderConfig struct {
	BaseURL      string            `mapstructure:"base_url"`
	Model        string            `mapstructure:"model"`
	SystemPrompt string            `mapstructure:"system_prompt"`
	APIKeyEnv    string            `mapstructure:"api_key_env"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Headers      map[string]string `mapstructure:"headers"`
}

// RunConfig controls how the batch is executed.
type RunConfig struct {
	MaxConcurrent int  `mapstructure:"max_concurrent"`
	Rate          int  `mapstructure:"rate"` // generate calls per second, 0 = unlimited
	LogFailures   bool `mapstructure:"log_failures"`
}

// Validator type names accepted in a case's validator block.
const (
	ValidatorExact      = "exact"
	ValidatorContains   = "contains"
	ValidatorRegex      = "regex"
	ValidatorJSONSchema = "json_schema"
	ValidatorJSONField  = "json_field"
)

// ValidatorConfig selects how a case's response is judged. Value holds the
// expected text, substring, pattern, or schema document depending on Type;
// Path is the field selector for json_field.
type ValidatorConfig struct {
	Type       string `mapstructure:"type"`
	Value      string `mapstructure:"value"`
	Path       string `mapstructure:"path"`
	IgnoreCase bool   `mapstructure:"ignore_case"`
}

// CaseConfig is one test case as written in the suite file. Model and
// SystemPrompt fall back to the provider defaults when empty; Retry overrides
// the suite retry policy for this case only.
type CaseConfig struct {
	Name         string          `mapstructure:"name"`
	Prompt       string          `mapstructure:"prompt"`
	Model        string          `mapstructure:"model"`
	SystemPrompt string          `mapstructure:"system_prompt"`
	Temperature  *float64        `mapstructure:"temperature"`
	MaxTokens    int             `mapstructure:"max_tokens"`
	Extra        map[string]any  `mapstructure:"extra"`
	Retry        *retry.Config   `mapstructure:"retry"`
	Validator    ValidatorConfig `mapstructure:"validator"`
}

// DatasetConfig loads additional cases from a CSV or JSON file. When
// PromptTemplate is set, records without a prompt column have their prompt
// built by substituting {{field}} placeholders from the record.
type DatasetConfig struct {
	Path           string `mapstructure:"path"`
	Type           string `mapstructure:"type"` // "csv" or "json"
	PromptTemplate string `mapstructure:"prompt_template"`
	Match          string `mapstructure:"match"` // "contains" (default) or "exact"
}

// OutputConfig names the report artifacts to write after a run. Empty paths
// are skipped.
type OutputConfig struct {
	JSON string `mapstructure:"json"`
	YAML string `mapstructure:"yaml"`
	HTML string `mapstructure:"html"`
}

// StorageConfig selects where finished runs are persisted. Both stores may
// be active at once.
type StorageConfig struct {
	Dir    string `mapstructure:"dir"`
	SQLite string `mapstructure:"sqlite"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether tracing should be initialized. Tracing turns on
// when an OTLP endpoint is set in the suite file or through
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) != ""
}

// ShouldPropagate reports whether W3C trace context headers are injected
// into provider requests. Follows the enabled state unless propagate is set
// explicitly.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type AuthType string

const (
	AuthTypeNone   AuthType = ""
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeOAuth2 AuthType = "oauth2"
)

// AuthConfig selects how generate calls authenticate. The zero value means
// bearer auth with the key from the provider's api_key_env variable when one
// is present, and anonymous calls otherwise.
type AuthConfig struct {
	Type                AuthType      `mapstructure:"type"`
	APIKey              string        `mapstructure:"api_key"`
	TokenURL            string        `mapstructure:"token_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	Scopes              []string      `mapstructure:"scopes"`
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the whole suite and collects every problem into a single
// ValidationError so a broken file is reported in one pass.
func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if !c.History && len(c.Tests) == 0 && strings.TrimSpace(c.Dataset.Path) == "" {
		issues = append(issues, "tests: at least one test case or a dataset is required (use --help for usage information)")
	}
	if c.History && strings.TrimSpace(c.Storage.Dir) == "" && strings.TrimSpace(c.Storage.SQLite) == "" {
		issues = append(issues, "history: no store configured (set --store-dir or --store-sqlite)")
	}

	if raw := strings.TrimSpace(c.Provider.BaseURL); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			issues = append(issues, fmt.Sprintf("provider: base_url %q is not a valid http(s) URL", raw))
		}
	}
	if c.Provider.Timeout < 0 {
		issues = append(issues, "provider: timeout must be >= 0")
	}

	if c.Run.MaxConcurrent < 0 {
		issues = append(issues, "run: max_concurrent must be >= 0")
	}
	if c.Run.Rate < 0 {
		issues = append(issues, "run: rate must be >= 0")
	}

	// Most LLM endpoints rate-limit well below these levels.
	if c.Run.Rate > 50 {
		warnings = append(warnings, fmt.Sprintf("WARNING: rate of %d generate calls per second will likely hit provider rate limits.", c.Run.Rate))
	}
	if c.Run.MaxConcurrent > 100 {
		warnings = append(warnings, fmt.Sprintf("WARNING: max_concurrent of %d is high for an LLM API; expect 429 responses.", c.Run.MaxConcurrent))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if err := c.Retry.Validate(); err != nil {
		issues = append(issues, fmt.Sprintf("retry: %v", err))
	}

	issues = append(issues, validateCases(c.Tests, c.Provider.Model)...)
	issues = append(issues, validateAuthConfig(c.Auth)...)
	issues = append(issues, validateDatasetConfig(c.Dataset)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateCases(cases []CaseConfig, defaultModel string) []string {
	var issues []string
	seenNames := map[string]int{}
	for idx, tc := range cases {
		if strings.TrimSpace(tc.Prompt) == "" {
			issues = append(issues, fmt.Sprintf("tests[%d]: prompt is required", idx))
		}
		if strings.TrimSpace(tc.Model) == "" && strings.TrimSpace(defaultModel) == "" {
			issues = append(issues, fmt.Sprintf("tests[%d]: model is required (set provider.model or a per-case model)", idx))
		}
		if tc.MaxTokens < 0 {
			issues = append(issues, fmt.Sprintf("tests[%d]: max_tokens must be >= 0", idx))
		}
		if name := strings.TrimSpace(tc.Name); name != "" {
			key := strings.ToLower(name)
			if prev, ok := seenNames[key]; ok {
				issues = append(issues, fmt.Sprintf("tests[%d]: duplicate name also defined at index %d", idx, prev))
			} else {
				seenNames[key] = idx
			}
		}
		if tc.Retry != nil {
			if err := tc.Retry.Validate(); err != nil {
				issues = append(issues, fmt.Sprintf("tests[%d]: %v", idx, err))
			}
		}
		issues = append(issues, validateValidatorConfig(idx, tc.Validator)...)
	}
	return issues
}

func validateValidatorConfig(idx int, v ValidatorConfig) []string {
	var issues []string
	switch v.Type {
	case "", ValidatorExact, ValidatorContains, ValidatorRegex, ValidatorJSONSchema, ValidatorJSONField:
	default:
		return []string{fmt.Sprintf("tests[%d]: validator type %q is not supported", idx, v.Type)}
	}
	switch v.Type {
	case ValidatorExact, ValidatorContains, ValidatorRegex, ValidatorJSONSchema:
		if v.Value == "" {
			issues = append(issues, fmt.Sprintf("tests[%d]: validator value is required for %s", idx, v.Type))
		}
	case ValidatorJSONField:
		if strings.TrimSpace(v.Path) == "" {
			issues = append(issues, fmt.Sprintf("tests[%d]: validator path is required for json_field", idx))
		}
	}
	return issues
}

func validateAuthConfig(auth AuthConfig) []string {
	var issues []string
	switch auth.Type {
	case AuthTypeNone, AuthTypeAPIKey:
		// Key material may arrive through the environment; its absence is
		// checked when the provider is built.
	case AuthTypeOAuth2:
		if strings.TrimSpace(auth.TokenURL) == "" {
			issues = append(issues, "auth: token_url is required for oauth2")
		}
		if strings.TrimSpace(auth.ClientID) == "" {
			issues = append(issues, "auth: client_id is required for oauth2")
		}
		if strings.TrimSpace(auth.ClientSecret) == "" {
			issues = append(issues, "auth: client_secret is required for oauth2 (or set PROMPTUM_AUTH_CLIENT_SECRET)")
		}
	default:
		issues = append(issues, fmt.Sprintf("auth: unsupported type %q", auth.Type))
	}
	return issues
}

func validateDatasetConfig(ds DatasetConfig) []string {
	if strings.TrimSpace(ds.Path) == "" {
		return nil
	}
	var issues []string
	switch strings.ToLower(strings.TrimSpace(ds.Type)) {
	case "csv", "json":
	case "":
		issues = append(issues, "dataset: type is required when path is specified")
	default:
		issues = append(issues, fmt.Sprintf("dataset: type must be 'csv' or 'json', got %q", ds.Type))
	}
	switch strings.ToLower(strings.TrimSpace(ds.Match)) {
	case "", "contains", "exact":
	default:
		issues = append(issues, fmt.Sprintf("dataset: match must be 'contains' or 'exact', got %q", ds.Match))
	}
	return issues
}

func validateTracingConfig(tc TracingConfig) []string {
	var issues []string
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", tc.SampleRate))
	}
	switch strings.ToLower(strings.TrimSpace(tc.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tc.Protocol))
	}
	return issues
}
