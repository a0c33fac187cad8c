package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/promptum/promptum/internal/runner"
	"github.com/promptum/promptum/internal/validate"
)

// Reserved record fields. Any other field is only visible to {{field}}
// placeholders in the prompt.
const (
	fieldName         = "name"
	fieldPrompt       = "prompt"
	fieldModel        = "model"
	fieldSystemPrompt = "system_prompt"
	fieldExpected     = "expected"
)

// Defaults supply what dataset records may omit.
type Defaults struct {
	// Model is used for records without a model field.
	Model string
	// PromptTemplate builds the prompt for records without a prompt field;
	// {{field}} placeholders are filled from the record.
	PromptTemplate string
	// Match selects the validator built from an expected field: "contains"
	// (the default) or "exact". Exact matches ignore surrounding whitespace
	// in the response.
	Match string
}

// BuildCases drains the source and turns every record into a test case,
// preserving file order. Unnamed records are called data-1, data-2, ... by
// position.
func BuildCases(ctx context.Context, src Source, defaults Defaults) ([]runner.TestCase, error) {
	cases := make([]runner.TestCase, 0, src.Len())
	for i := 0; ; i++ {
		record, err := src.Next(ctx)
		if errors.Is(err, ErrExhausted) {
			break
		}
		if err != nil {
			return nil, err
		}
		tc, err := buildCase(record, i, defaults)
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

func buildCase(record Record, index int, defaults Defaults) (runner.TestCase, error) {
	prompt := record[fieldPrompt]
	if prompt == "" {
		prompt = defaults.PromptTemplate
	}
	prompt = strings.TrimSpace(SubstitutePlaceholders(prompt, record))
	if prompt == "" {
		return runner.TestCase{}, fmt.Errorf("dataset record %d: prompt is required (add a prompt column or set dataset.prompt_template)", index+1)
	}

	model := record[fieldModel]
	if model == "" {
		model = defaults.Model
	}
	if model == "" {
		return runner.TestCase{}, fmt.Errorf("dataset record %d: model is required (add a model column or set provider.model)", index+1)
	}

	name := record[fieldName]
	if name == "" {
		name = fmt.Sprintf("data-%d", index+1)
	}

	tc := runner.TestCase{
		Name:         name,
		Prompt:       prompt,
		Model:        model,
		SystemPrompt: record[fieldSystemPrompt],
	}

	if expected := record[fieldExpected]; expected != "" {
		v, err := expectedValidator(expected, defaults.Match)
		if err != nil {
			return runner.TestCase{}, fmt.Errorf("dataset record %d: %w", index+1, err)
		}
		tc.Validator = v
	}

	return tc, nil
}

func expectedValidator(expected, match string) (runner.Validator, error) {
	switch strings.ToLower(strings.TrimSpace(match)) {
	case "", "contains":
		return validate.Contains{Substring: expected}, nil
	case "exact":
		return validate.ExactMatch{Expected: expected, TrimSpace: true}, nil
	default:
		return nil, fmt.Errorf("unsupported match mode %q: use \"contains\" or \"exact\"", match)
	}
}
