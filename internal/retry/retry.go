package retry

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyExponential Strategy = "exponential"
)

// Config controls reattempts for a single generate call. The zero value is
// not usable; start from DefaultConfig or fill every field.
type Config struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	Strategy        Strategy      `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	InitialDelay    time.Duration `mapstructure:"initial_delay" yaml:"initial_delay" json:"initial_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay" yaml:"max_delay" json:"max_delay"`
	ExponentialBase float64       `mapstructure:"base" yaml:"base" json:"base"`
}

// DefaultConfig returns the retry behavior used when a call does not
// provide its own: three attempts with exponential backoff from 1s to 60s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		Strategy:        StrategyExponential,
		InitialDelay:    time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
	}
}

// Validate reports every invalid field at once rather than stopping at the
// first problem.
func (c Config) Validate() error {
	var issues []string
	if c.MaxAttempts < 1 {
		issues = append(issues, "max_attempts must be >= 1")
	}
	switch c.Strategy {
	case StrategyFixed, StrategyExponential:
	default:
		issues = append(issues, fmt.Sprintf("strategy must be %q or %q, got %q", StrategyFixed, StrategyExponential, c.Strategy))
	}
	if c.InitialDelay <= 0 {
		issues = append(issues, "initial_delay must be > 0")
	}
	if c.MaxDelay < c.InitialDelay {
		issues = append(issues, "max_delay must be >= initial_delay")
	}
	if c.Strategy == StrategyExponential && c.ExponentialBase <= 1 {
		issues = append(issues, "base must be > 1 for exponential strategy")
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid retry config: %s", strings.Join(issues, "; "))
	}
	return nil
}

// Delay returns the pause taken after a failed attempt. attempt is
// zero-based: attempt 0 is the wait before the second try, so an
// exponential policy yields InitialDelay first and grows from there.
// The result never exceeds MaxDelay.
func Delay(attempt int, cfg Config) time.Duration {
	if cfg.Strategy == StrategyFixed {
		return cfg.InitialDelay
	}
	scaled := float64(cfg.InitialDelay) * math.Pow(cfg.ExponentialBase, float64(attempt))
	// Compare in float space so huge exponents cap instead of overflowing.
	if scaled >= float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(scaled)
}
