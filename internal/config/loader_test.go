package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/promptum/promptum/internal/retry"
)

func TestScalarCoercions(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		for input, want := range map[interface{}]string{
			"hello": "hello", 123: "123", true: "true", nil: "",
		} {
			if got, err := asString(input); err != nil || got != want {
				t.Errorf("asString(%v) = %q, %v; want %q", input, got, err, want)
			}
		}
	})

	t.Run("int", func(t *testing.T) {
		for input, want := range map[interface{}]int{
			123: 123, "456": 456, int64(789): 789, float64(12): 12,
			" 7 ": 7, "": 0, nil: 0,
		} {
			if got, err := asInt(input); err != nil || got != want {
				t.Errorf("asInt(%v) = %d, %v; want %d", input, got, err, want)
			}
		}
		if _, err := asInt([]string{"no"}); err == nil {
			t.Errorf("asInt(slice): want error")
		}
	})

	t.Run("float", func(t *testing.T) {
		for input, want := range map[interface{}]float64{
			1.5: 1.5, float32(0.5): 0.5, 3: 3.0, int64(4): 4.0,
			"2.5": 2.5, " 0.25 ": 0.25, "": 0, nil: 0,
		} {
			if got, err := asFloat64(input); err != nil || got != want {
				t.Errorf("asFloat64(%v) = %g, %v; want %g", input, got, err, want)
			}
		}
	})

	t.Run("bool", func(t *testing.T) {
		for input, want := range map[interface{}]bool{
			true: true, false: false, "true": true, "1": true,
			" false ": false, "": false, nil: false,
		} {
			if got, err := asBool(input); err != nil || got != want {
				t.Errorf("asBool(%v) = %t, %v; want %t", input, got, err, want)
			}
		}
		if _, err := asBool("maybe"); err == nil {
			t.Errorf("asBool(maybe): want error")
		}
	})
}

func TestAsDuration(t *testing.T) {
	// Bare numbers are seconds; strings follow Go duration syntax.
	for input, want := range map[interface{}]time.Duration{
		"5s":            5 * time.Second,
		"150ms":         150 * time.Millisecond,
		45:              45 * time.Second,
		int64(2):        2 * time.Second,
		2.5:             2500 * time.Millisecond,
		3 * time.Second: 3 * time.Second,
		"":              0,
		nil:             0,
	} {
		if got, err := asDuration(input); err != nil || got != want {
			t.Errorf("asDuration(%v) = %s, %v; want %s", input, got, err, want)
		}
	}

	if _, err := asDuration("soon"); err == nil {
		t.Errorf("asDuration(soon): want error")
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  retry.Strategy
	}{
		{"fixed", retry.StrategyFixed},
		{"fixed_delay", retry.StrategyFixed},
		{"FIXED_DELAY", retry.StrategyFixed},
		{"exponential", retry.StrategyExponential},
		{"exponential_backoff", retry.StrategyExponential},
		{"", ""},
	}

	for _, tt := range tests {
		got, err := parseStrategy(tt.input)
		if err != nil {
			t.Errorf("parseStrategy(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("parseStrategy(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if _, err := parseStrategy("jitter"); err == nil {
		t.Errorf("parseStrategy(jitter) error = nil, want error")
	}
}

func TestParseRetryPartialOverride(t *testing.T) {
	base := retry.Config{
		MaxAttempts:     3,
		Strategy:        retry.StrategyExponential,
		InitialDelay:    time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
	}

	got, err := parseRetry(base, map[string]interface{}{"max_attempts": 5})
	if err != nil {
		t.Fatalf("parseRetry() error = %v", err)
	}

	if got.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", got.MaxAttempts)
	}
	if got.Strategy != retry.StrategyExponential {
		t.Errorf("Strategy = %q, want inherited exponential", got.Strategy)
	}
	if got.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %s, want inherited 1s", got.InitialDelay)
	}
	if got.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %s, want inherited 60s", got.MaxDelay)
	}
	if got.ExponentialBase != 2 {
		t.Errorf("ExponentialBase = %g, want inherited 2", got.ExponentialBase)
	}
}

func TestParseValidator(t *testing.T) {
	v, err := parseValidator("expected text")
	if err != nil {
		t.Fatalf("parseValidator(string) error = %v", err)
	}
	if v.Type != ValidatorContains || v.Value != "expected text" {
		t.Errorf("parseValidator(string) = %+v, want contains shorthand", v)
	}

	v, err = parseValidator(map[string]interface{}{
		"type":        "EXACT",
		"expected":    "42",
		"ignore_case": true,
	})
	if err != nil {
		t.Fatalf("parseValidator(map) error = %v", err)
	}
	if v.Type != ValidatorExact {
		t.Errorf("Type = %q, want exact", v.Type)
	}
	if v.Value != "42" {
		t.Errorf("Value = %q, want 42", v.Value)
	}
	if !v.IgnoreCase {
		t.Errorf("IgnoreCase = false, want true")
	}

	v, err = parseValidator(map[string]interface{}{
		"type":  "json_field",
		"field": "result.answer",
		"value": "yes",
	})
	if err != nil {
		t.Fatalf("parseValidator(json_field) error = %v", err)
	}
	if v.Path != "result.answer" {
		t.Errorf("Path = %q, want result.answer", v.Path)
	}
}

func TestParseCasesInheritRetry(t *testing.T) {
	base := retry.DefaultConfig()
	items := []interface{}{
		map[string]interface{}{
			"name":   "first",
			"prompt": "hello",
			"retry":  map[string]interface{}{"initial_delay": "500ms"},
		},
		map[string]interface{}{
			"prompt":      "world",
			"temperature": 0.2,
			"max_tokens":  128,
			"extra":       map[string]interface{}{"top_p": 0.9},
		},
	}

	cases, err := parseCases(items, base)
	if err != nil {
		t.Fatalf("parseCases() error = %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("len(cases) = %d, want 2", len(cases))
	}

	if cases[0].Retry == nil {
		t.Fatalf("cases[0].Retry = nil, want override")
	}
	if cases[0].Retry.InitialDelay != 500*time.Millisecond {
		t.Errorf("InitialDelay = %s, want 500ms", cases[0].Retry.InitialDelay)
	}
	if cases[0].Retry.MaxAttempts != base.MaxAttempts {
		t.Errorf("MaxAttempts = %d, want inherited %d", cases[0].Retry.MaxAttempts, base.MaxAttempts)
	}

	if cases[1].Temperature == nil || *cases[1].Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", cases[1].Temperature)
	}
	if cases[1].MaxTokens != 128 {
		t.Errorf("MaxTokens = %d, want 128", cases[1].MaxTokens)
	}
	if got, ok := cases[1].Extra["top_p"]; !ok || got != 0.9 {
		t.Errorf("Extra[top_p] = %v, want 0.9", got)
	}
	if cases[1].Retry != nil {
		t.Errorf("cases[1].Retry = %+v, want nil", cases[1].Retry)
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := &Config{Retry: retry.DefaultConfig()}
	settings := map[string]interface{}{
		"suite": "nightly",
		"provider": map[string]interface{}{
			"base_url": "https://api.example.com/v1",
			"model":    "openai/gpt-4o-mini",
			"timeout":  "15s",
			"headers": map[string]interface{}{
				"x-title": "promptum",
			},
		},
		"run": map[string]interface{}{
			"max_concurrent": 12,
		},
		"auth": map[string]interface{}{
			"type":          "oauth2",
			"token_url":     "https://auth.example.com/token",
			"client_id":     "bench",
			"client_secret": "secret",
		},
		"json_output": true,
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Suite != "nightly" {
		t.Errorf("Suite = %q, want nightly", cfg.Suite)
	}
	if cfg.Provider.BaseURL != "https://api.example.com/v1" {
		t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.Model != "openai/gpt-4o-mini" {
		t.Errorf("Provider.Model = %q", cfg.Provider.Model)
	}
	if cfg.Provider.Timeout != 15*time.Second {
		t.Errorf("Provider.Timeout = %v, want 15s", cfg.Provider.Timeout)
	}
	if cfg.Provider.Headers["X-Title"] != "promptum" {
		t.Errorf("Headers[X-Title] = %q, want promptum", cfg.Provider.Headers["X-Title"])
	}
	if cfg.Run.MaxConcurrent != 12 {
		t.Errorf("Run.MaxConcurrent = %d, want 12", cfg.Run.MaxConcurrent)
	}
	if cfg.Auth.Type != AuthTypeOAuth2 {
		t.Errorf("Auth.Type = %q, want oauth2", cfg.Auth.Type)
	}
	if cfg.Auth.TokenURL != "https://auth.example.com/token" {
		t.Errorf("Auth.TokenURL = %q", cfg.Auth.TokenURL)
	}
	if !cfg.JSONOutput {
		t.Errorf("JSONOutput = false, want true")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := &Config{
		Suite: "from-file",
		Provider: ProviderConfig{
			Model:   "anthropic/claude-sonnet-4",
			Headers: map[string]string{},
		},
		Retry: retry.DefaultConfig(),
		Run:   RunConfig{MaxConcurrent: 5},
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--model=openai/gpt-4o",
		"--max-concurrent=9",
		"--max-attempts=6",
		"--header=X-Test=123",
		"--store-sqlite=runs.db",
		"--history",
		"--verbose",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Suite != "from-file" {
		t.Errorf("Suite = %q, want untouched from-file", cfg.Suite)
	}
	if cfg.Provider.Model != "openai/gpt-4o" {
		t.Errorf("Provider.Model = %q, want openai/gpt-4o", cfg.Provider.Model)
	}
	if cfg.Run.MaxConcurrent != 9 {
		t.Errorf("Run.MaxConcurrent = %d, want 9", cfg.Run.MaxConcurrent)
	}
	if cfg.Retry.MaxAttempts != 6 {
		t.Errorf("Retry.MaxAttempts = %d, want 6", cfg.Retry.MaxAttempts)
	}
	if cfg.Provider.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Provider.Headers["X-Test"])
	}
	if cfg.Storage.SQLite != "runs.db" {
		t.Errorf("Storage.SQLite = %q, want runs.db", cfg.Storage.SQLite)
	}
	if !cfg.History {
		t.Errorf("History = false, want true")
	}
	if !cfg.Verbose {
		t.Errorf("Verbose = false, want true")
	}
}

func TestApplyFlagOverridesBadHeader(t *testing.T) {
	cfg := &Config{}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--header=no-equals-sign"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err == nil {
		t.Errorf("applyFlagOverrides() error = nil, want header format error")
	}
}

func TestParseTracingMerge(t *testing.T) {
	base := TracingConfig{
		Protocol:    "grpc",
		ServiceName: "promptum",
		SampleRate:  1.0,
	}

	got, err := parseTracing(base, map[string]interface{}{
		"endpoint":    "collector:4318",
		"protocol":    "HTTP",
		"sample_rate": 0.25,
		"insecure":    true,
		"propagate":   false,
	})
	if err != nil {
		t.Fatalf("parseTracing() error = %v", err)
	}

	if got.Endpoint != "collector:4318" {
		t.Errorf("Endpoint = %q", got.Endpoint)
	}
	if got.Protocol != "http" {
		t.Errorf("Protocol = %q, want http", got.Protocol)
	}
	if got.ServiceName != "promptum" {
		t.Errorf("ServiceName = %q, want inherited promptum", got.ServiceName)
	}
	if got.SampleRate != 0.25 {
		t.Errorf("SampleRate = %g, want 0.25", got.SampleRate)
	}
	if !got.Insecure {
		t.Errorf("Insecure = false, want true")
	}
	if got.Propagate == nil || *got.Propagate {
		t.Errorf("Propagate = %v, want explicit false", got.Propagate)
	}
}
