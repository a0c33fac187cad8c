package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/promptum/promptum/internal/retry"
)

// Loader turns command-line arguments and an optional suite file into a Config.
type Loader struct{}

// ErrHelpRequested is returned when the user asks for help via --help.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses flags and the suite file named by --config. Flag values win
// over file values; per-case retry overrides are completed from the suite
// retry defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// A bare invocation has nothing to run; show usage instead.
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	settings := cfgViper.AllSettings()

	cfg := &Config{
		Suite: "promptum",
		Provider: ProviderConfig{
			APIKeyEnv: "OPENROUTER_API_KEY",
			Timeout:   60 * time.Second,
			Headers:   map[string]string{},
		},
		Retry: retry.DefaultConfig(),
		Run:   RunConfig{MaxConcurrent: 5},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "promptum",
			SampleRate:  1.0,
		},
		ConfigFile: configPath,
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Suite = strings.TrimSpace(cfg.Suite)
	cfg.Provider.BaseURL = strings.TrimSpace(cfg.Provider.BaseURL)
	if cfg.Provider.Headers == nil {
		cfg.Provider.Headers = map[string]string{}
	}
	applyCaseDefaults(cfg)

	return cfg, nil
}

// applyCaseDefaults fills each case's blank fields from the suite-level
// provider defaults and assigns positional names to anonymous cases.
func applyCaseDefaults(cfg *Config) {
	for i := range cfg.Tests {
		tc := &cfg.Tests[i]
		if strings.TrimSpace(tc.Name) == "" {
			tc.Name = fmt.Sprintf("case-%d", i+1)
		}
		if strings.TrimSpace(tc.Model) == "" {
			tc.Model = cfg.Provider.Model
		}
		if tc.SystemPrompt == "" {
			tc.SystemPrompt = cfg.Provider.SystemPrompt
		}
	}
}

// applyConfigSettings applies settings from a suite file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "suite", "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("suite: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			cfg.Suite = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "provider"); ok {
		if err := parseProvider(&cfg.Provider, raw); err != nil {
			return fmt.Errorf("provider: %w", err)
		}
	}

	// Retry defaults must land before tests so per-case overrides inherit them.
	if raw, ok := lookupSetting(settings, "retry"); ok {
		parsed, err := parseRetry(cfg.Retry, raw)
		if err != nil {
			return fmt.Errorf("retry: %w", err)
		}
		cfg.Retry = parsed
	}

	if raw, ok := lookupSetting(settings, "run"); ok {
		if err := parseRun(&cfg.Run, raw); err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "auth"); ok {
		auth, err := parseAuth(raw)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		cfg.Auth = auth
	}

	if raw, ok := lookupSetting(settings, "tests", "cases"); ok {
		cases, err := parseCases(raw, cfg.Retry)
		if err != nil {
			return fmt.Errorf("tests: %w", err)
		}
		cfg.Tests = cases
	}

	if raw, ok := lookupSetting(settings, "dataset"); ok {
		ds, err := parseDataset(raw)
		if err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
		cfg.Dataset = ds
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		out, err := parseOutput(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = out
	}

	if raw, ok := lookupSetting(settings, "storage"); ok {
		st, err := parseStorage(raw)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		cfg.Storage = st
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tr, err := parseTracing(cfg.Tracing, raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tr
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "verbose"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("verbose: %w", err)
		}
		cfg.Verbose = val
	}

	return nil
}

func parseProvider(p *ProviderConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "baseurl", "base_url", "base-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		p.BaseURL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("model: %w", err)
		}
		p.Model = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "systemprompt", "system_prompt", "system-prompt"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("system_prompt: %w", err)
		}
		p.SystemPrompt = val
	}
	if raw, ok := lookupSetting(settings, "apikeyenv", "api_key_env", "api-key-env"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("api_key_env: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			p.APIKeyEnv = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		p.Timeout = dur
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if p.Headers == nil {
			p.Headers = map[string]string{}
		}
		for key, val := range hdrs {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				return fmt.Errorf("headers: key cannot be empty")
			}
			p.Headers[http.CanonicalHeaderKey(trimmed)] = val
		}
	}
	return nil
}

// parseRetry completes a retry block on top of base, so a partial override
// like {max_attempts: 5} keeps the remaining policy fields.
func parseRetry(base retry.Config, value interface{}) (retry.Config, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return retry.Config{}, err
	}
	out := base
	if raw, ok := lookupSetting(settings, "maxattempts", "max_attempts", "max-attempts"); ok {
		val, err := asInt(raw)
		if err != nil {
			return retry.Config{}, fmt.Errorf("max_attempts: %w", err)
		}
		out.MaxAttempts = val
	}
	if raw, ok := lookupSetting(settings, "strategy"); ok {
		val, err := asString(raw)
		if err != nil {
			return retry.Config{}, fmt.Errorf("strategy: %w", err)
		}
		strategy, err := parseStrategy(val)
		if err != nil {
			return retry.Config{}, err
		}
		if strategy != "" {
			out.Strategy = strategy
		}
	}
	if raw, ok := lookupSetting(settings, "initialdelay", "initial_delay", "initial-delay"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return retry.Config{}, fmt.Errorf("initial_delay: %w", err)
		}
		out.InitialDelay = dur
	}
	if raw, ok := lookupSetting(settings, "maxdelay", "max_delay", "max-delay"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return retry.Config{}, fmt.Errorf("max_delay: %w", err)
		}
		out.MaxDelay = dur
	}
	if raw, ok := lookupSetting(settings, "base", "exponential_base"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return retry.Config{}, fmt.Errorf("base: %w", err)
		}
		out.ExponentialBase = val
	}
	return out, nil
}

// parseStrategy also accepts the spelled-out forms used by other tooling.
func parseStrategy(val string) (retry.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "":
		return "", nil
	case "fixed", "fixed_delay":
		return retry.StrategyFixed, nil
	case "exponential", "exponential_backoff":
		return retry.StrategyExponential, nil
	default:
		return "", fmt.Errorf("strategy: unsupported value %q", val)
	}
}

func parseRun(r *RunConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "maxconcurrent", "max_concurrent", "max-concurrent"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_concurrent: %w", err)
		}
		r.MaxConcurrent = val
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		r.Rate = val
	}
	if raw, ok := lookupSetting(settings, "logfailures", "log_failures", "log-failures"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_failures: %w", err)
		}
		r.LogFailures = val
	}
	return nil
}

func parseAuth(value interface{}) (AuthConfig, error) {
	if value == nil {
		return AuthConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return AuthConfig{}, err
	}
	var auth AuthConfig
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("type: %w", err)
		}
		auth.Type = AuthType(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "apikey", "api_key", "api-key"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("api_key: %w", err)
		}
		auth.APIKey = strings.TrimSpace(val)
	}
	// Fallback to environment variable if api_key is empty
	if auth.APIKey == "" {
		if envKey := os.Getenv("PROMPTUM_AUTH_API_KEY"); envKey != "" {
			auth.APIKey = envKey
		}
	}
	if raw, ok := lookupSetting(settings, "tokenurl", "token_url", "token-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("token_url: %w", err)
		}
		auth.TokenURL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "clientid", "client_id", "client-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("client_id: %w", err)
		}
		auth.ClientID = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "clientsecret", "client_secret", "client-secret"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("client_secret: %w", err)
		}
		auth.ClientSecret = strings.TrimSpace(val)
	}
	// Fallback to environment variable if client_secret is empty
	if auth.ClientSecret == "" {
		if envSecret := os.Getenv("PROMPTUM_AUTH_CLIENT_SECRET"); envSecret != "" {
			auth.ClientSecret = envSecret
		}
	}
	if raw, ok := lookupSetting(settings, "scopes"); ok {
		scopes, err := asStringSlice(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("scopes: %w", err)
		}
		auth.Scopes = scopes
	}
	if raw, ok := lookupSetting(settings, "refreshbeforeexpiry", "refresh_before_expiry", "refresh-before-expiry"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("refresh_before_expiry: %w", err)
		}
		auth.RefreshBeforeExpiry = dur
	}
	return auth, nil
}

func parseCases(value interface{}, baseRetry retry.Config) ([]CaseConfig, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	cases := make([]CaseConfig, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		tc, err := buildCase(entry, baseRetry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

func buildCase(settings map[string]interface{}, baseRetry retry.Config) (CaseConfig, error) {
	var tc CaseConfig
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("name: %w", err)
		}
		tc.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "prompt"); ok {
		val, err := asString(raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("prompt: %w", err)
		}
		tc.Prompt = val
	}
	if raw, ok := lookupSetting(settings, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("model: %w", err)
		}
		tc.Model = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "systemprompt", "system_prompt", "system-prompt"); ok {
		val, err := asString(raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("system_prompt: %w", err)
		}
		tc.SystemPrompt = val
	}
	if raw, ok := lookupSetting(settings, "temperature"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("temperature: %w", err)
		}
		tc.Temperature = &val
	}
	if raw, ok := lookupSetting(settings, "maxtokens", "max_tokens", "max-tokens"); ok {
		val, err := asInt(raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("max_tokens: %w", err)
		}
		tc.MaxTokens = val
	}
	if raw, ok := lookupSetting(settings, "extra", "extra_parameters", "extra-parameters"); ok {
		m, err := asAnyMap(raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("extra: %w", err)
		}
		tc.Extra = m
	}
	if raw, ok := lookupSetting(settings, "retry"); ok {
		parsed, err := parseRetry(baseRetry, raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("retry: %w", err)
		}
		tc.Retry = &parsed
	}
	if raw, ok := lookupSetting(settings, "validator", "validate", "expect"); ok {
		v, err := parseValidator(raw)
		if err != nil {
			return CaseConfig{}, fmt.Errorf("validator: %w", err)
		}
		tc.Validator = v
	}
	return tc, nil
}

func parseValidator(value interface{}) (ValidatorConfig, error) {
	if value == nil {
		return ValidatorConfig{}, nil
	}
	// A bare string is shorthand for a contains check.
	if s, ok := value.(string); ok {
		return ValidatorConfig{Type: ValidatorContains, Value: s}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return ValidatorConfig{}, err
	}
	var v ValidatorConfig
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return ValidatorConfig{}, fmt.Errorf("type: %w", err)
		}
		v.Type = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "value", "expected"); ok {
		val, err := asString(raw)
		if err != nil {
			return ValidatorConfig{}, fmt.Errorf("value: %w", err)
		}
		v.Value = val
	}
	if raw, ok := lookupSetting(settings, "path", "field"); ok {
		val, err := asString(raw)
		if err != nil {
			return ValidatorConfig{}, fmt.Errorf("path: %w", err)
		}
		v.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "ignorecase", "ignore_case", "ignore-case"); ok {
		val, err := asBool(raw)
		if err != nil {
			return ValidatorConfig{}, fmt.Errorf("ignore_case: %w", err)
		}
		v.IgnoreCase = val
	}
	return v, nil
}

func parseDataset(value interface{}) (DatasetConfig, error) {
	if value == nil {
		return DatasetConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return DatasetConfig{}, err
	}
	var ds DatasetConfig
	if raw, ok := lookupSetting(settings, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return DatasetConfig{}, fmt.Errorf("path: %w", err)
		}
		ds.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return DatasetConfig{}, fmt.Errorf("type: %w", err)
		}
		ds.Type = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "prompt_template"); ok {
		val, err := asString(raw)
		if err != nil {
			return DatasetConfig{}, fmt.Errorf("prompt_template: %w", err)
		}
		ds.PromptTemplate = val
	}
	if raw, ok := lookupSetting(settings, "match"); ok {
		val, err := asString(raw)
		if err != nil {
			return DatasetConfig{}, fmt.Errorf("match: %w", err)
		}
		ds.Match = strings.ToLower(strings.TrimSpace(val))
	}
	return ds, nil
}

func parseOutput(value interface{}) (OutputConfig, error) {
	if value == nil {
		return OutputConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return OutputConfig{}, err
	}
	var out OutputConfig
	if raw, ok := lookupSetting(settings, "json"); ok {
		val, err := asString(raw)
		if err != nil {
			return OutputConfig{}, fmt.Errorf("json: %w", err)
		}
		out.JSON = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "yaml"); ok {
		val, err := asString(raw)
		if err != nil {
			return OutputConfig{}, fmt.Errorf("yaml: %w", err)
		}
		out.YAML = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "html"); ok {
		val, err := asString(raw)
		if err != nil {
			return OutputConfig{}, fmt.Errorf("html: %w", err)
		}
		out.HTML = strings.TrimSpace(val)
	}
	return out, nil
}

func parseStorage(value interface{}) (StorageConfig, error) {
	if value == nil {
		return StorageConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return StorageConfig{}, err
	}
	var st StorageConfig
	if raw, ok := lookupSetting(settings, "dir", "directory"); ok {
		val, err := asString(raw)
		if err != nil {
			return StorageConfig{}, fmt.Errorf("dir: %w", err)
		}
		st.Dir = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sqlite"); ok {
		val, err := asString(raw)
		if err != nil {
			return StorageConfig{}, fmt.Errorf("sqlite: %w", err)
		}
		st.SQLite = strings.TrimSpace(val)
	}
	return st, nil
}

func parseTracing(base TracingConfig, value interface{}) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	out := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		out.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			out.Protocol = strings.ToLower(strings.TrimSpace(val))
		}
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			out.ServiceName = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		out.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		out.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		out.Propagate = &val
	}
	return out, nil
}
