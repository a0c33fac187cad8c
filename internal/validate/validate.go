package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// ExactMatch passes when the response equals the expected text exactly.
type ExactMatch struct {
	Expected   string
	IgnoreCase bool
	TrimSpace  bool
}

func (v ExactMatch) Validate(response string) (bool, map[string]any) {
	expected, actual := v.Expected, response
	if v.TrimSpace {
		actual = strings.TrimSpace(actual)
	}
	if v.IgnoreCase {
		expected = strings.ToLower(expected)
		actual = strings.ToLower(actual)
	}
	matched := expected == actual
	return matched, map[string]any{
		"expected": v.Expected,
		"actual":   response,
		"matched":  matched,
	}
}

func (v ExactMatch) Describe() string {
	if v.IgnoreCase {
		return fmt.Sprintf("exactly matches %q ignoring case", v.Expected)
	}
	return fmt.Sprintf("exactly matches %q", v.Expected)
}

// Contains passes when the response contains the expected substring.
type Contains struct {
	Substring  string
	IgnoreCase bool
}

func (v Contains) Validate(response string) (bool, map[string]any) {
	sub, hay := v.Substring, response
	if v.IgnoreCase {
		sub = strings.ToLower(sub)
		hay = strings.ToLower(hay)
	}
	matched := strings.Contains(hay, sub)
	return matched, map[string]any{
		"substring": v.Substring,
		"matched":   matched,
	}
}

func (v Contains) Describe() string {
	if v.IgnoreCase {
		return fmt.Sprintf("contains %q ignoring case", v.Substring)
	}
	return fmt.Sprintf("contains %q", v.Substring)
}

// Regex passes when the response matches a compiled pattern.
type Regex struct {
	pattern *regexp.Regexp
}

// NewRegex compiles the pattern up front so an invalid expression fails at
// suite construction instead of mid-run.
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid validator pattern: %w", err)
	}
	return &Regex{pattern: re}, nil
}

func (v *Regex) Validate(response string) (bool, map[string]any) {
	matched := v.pattern.MatchString(response)
	return matched, map[string]any{
		"pattern": v.pattern.String(),
		"matched": matched,
	}
}

func (v *Regex) Describe() string {
	return fmt.Sprintf("matches /%s/", v.pattern.String())
}

// Custom wraps an arbitrary validation function.
type Custom struct {
	Fn          func(response string) (bool, map[string]any)
	Description string
}

func (v Custom) Validate(response string) (bool, map[string]any) {
	return v.Fn(response)
}

func (v Custom) Describe() string {
	if v.Description != "" {
		return v.Description
	}
	return "custom validator"
}
