// Package runner executes batches of independent LLM test cases.
//
// The runner takes a slice of [TestCase] values, runs each one against a
// provider with bounded concurrency, and returns one [TestResult] per case
// in the same order. Individual failures never abort the batch: a provider
// error is converted into a failed result carrying the error message.
//
// # Basic Usage
//
// Create a runner with options and a provider implementation:
//
//	opts := runner.Options{
//		Provider:      client,
//		MaxConcurrent: 5,
//		Progress: func(completed, total int, result runner.TestResult) {
//			fmt.Printf("%d/%d %s\n", completed, total, result.Case.Name)
//		},
//	}
//	r := runner.New(opts)
//	results := r.Run(ctx, cases)
//
// # Validation
//
// Each case may carry a [Validator] that judges the model's response:
//
//	type Validator interface {
//		Validate(response string) (bool, map[string]any)
//		Describe() string
//	}
//
// A case without a validator passes whenever its generate call succeeds.
//
// # Concurrency & Pacing
//
// At most MaxConcurrent cases are in flight at once (default 5). An
// optional RatePerSecond setting paces call starts with a token bucket;
// results still arrive index-aligned regardless of completion order.
//
// # Hooks
//
// A [Hook] observes execution around every case. [LoggingHook] emits a
// structured log line per case; custom hooks can export results elsewhere.
package runner
