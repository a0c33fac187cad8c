package retry_test

import (
	"strings"
	"testing"
	"time"

	"github.com/promptum/promptum/internal/retry"
)

func TestDelayExponentialGrowth(t *testing.T) {
	cfg := retry.Config{
		MaxAttempts:     5,
		Strategy:        retry.StrategyExponential,
		InitialDelay:    time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		if got := retry.Delay(attempt, cfg); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestDelayCappedAtMax(t *testing.T) {
	cfg := retry.Config{
		MaxAttempts:     20,
		Strategy:        retry.StrategyExponential,
		InitialDelay:    time.Second,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2,
	}

	// 2^3 = 8s would exceed the cap.
	if got := retry.Delay(3, cfg); got != 5*time.Second {
		t.Errorf("attempt 3: expected cap of 5s, got %v", got)
	}
	// Far past the cap the result must stay pinned, not overflow.
	if got := retry.Delay(10, cfg); got != 5*time.Second {
		t.Errorf("attempt 10: expected cap of 5s, got %v", got)
	}
	if got := retry.Delay(500, cfg); got != 5*time.Second {
		t.Errorf("attempt 500: expected cap of 5s, got %v", got)
	}
}

func TestDelayFixedIgnoresAttempt(t *testing.T) {
	cfg := retry.Config{
		MaxAttempts:  3,
		Strategy:     retry.StrategyFixed,
		InitialDelay: 2500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}

	for _, attempt := range []int{0, 1, 5} {
		if got := retry.Delay(attempt, cfg); got != 2500*time.Millisecond {
			t.Errorf("attempt %d: expected 2.5s, got %v", attempt, got)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := retry.DefaultConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*retry.Config)
		wantErr string
	}{
		{
			name:    "zero attempts",
			mutate:  func(c *retry.Config) { c.MaxAttempts = 0 },
			wantErr: "max_attempts must be >= 1",
		},
		{
			name:    "negative initial delay",
			mutate:  func(c *retry.Config) { c.InitialDelay = -time.Second },
			wantErr: "initial_delay must be > 0",
		},
		{
			name:    "max below initial",
			mutate:  func(c *retry.Config) { c.MaxDelay = 500 * time.Millisecond },
			wantErr: "max_delay must be >= initial_delay",
		},
		{
			name:    "base not above one",
			mutate:  func(c *retry.Config) { c.ExponentialBase = 1 },
			wantErr: "base must be > 1",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *retry.Config) { c.Strategy = "jittered" },
			wantErr: "strategy must be",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := retry.DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestValidateFixedIgnoresBase(t *testing.T) {
	cfg := retry.Config{
		MaxAttempts:  2,
		Strategy:     retry.StrategyFixed,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixed strategy should not require a base, got %v", err)
	}
}

func TestValidateReportsAllIssues(t *testing.T) {
	cfg := retry.Config{MaxAttempts: 0, Strategy: "bogus", InitialDelay: 0, MaxDelay: -time.Second}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, fragment := range []string{"max_attempts", "strategy", "initial_delay"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("expected combined error to mention %s, got %q", fragment, err.Error())
		}
	}
}
