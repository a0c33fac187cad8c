package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "promptum",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Suite flags
	flags.String("config", "", "Path to suite configuration file (JSON or YAML)")
	flags.String("suite", "", "Suite name used in reports and stored runs")

	// Provider flags
	flags.String("base-url", "", "Chat completions API base URL")
	flags.StringP("model", "m", "", "Default model for cases that do not set one")
	flags.String("api-key-env", "", "Environment variable holding the API key")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.Duration("timeout", 60*time.Second, "Per-attempt HTTP timeout")

	// Execution flags
	flags.IntP("max-concurrent", "c", 5, "Maximum cases in flight at once")
	flags.IntP("rate", "r", 0, "Generate calls per second limit (0 means unlimited)")
	flags.Int("max-attempts", 3, "Attempts per generate call before giving up")
	flags.Bool("log-failures", false, "Log each failed or errored case to stderr")

	// Case source flags
	flags.String("dataset", "", "Path to CSV or JSON file of test cases")
	flags.String("dataset-type", "", "Dataset file format: 'csv' or 'json'")

	// Output flags
	flags.Bool("json-output", false, "Emit the report as JSON instead of text")
	flags.Bool("dashboard", false, "Show live terminal dashboard during the run")
	flags.String("html-output", "", "Write an HTML report to the specified file path")
	flags.String("json-file", "", "Write the JSON report to the specified file path")
	flags.String("yaml-file", "", "Write the YAML report to the specified file path")
	flags.Bool("verbose", false, "Enable debug logging to stderr")

	// Storage flags
	flags.String("store-dir", "", "Directory to persist finished runs as JSON files")
	flags.String("store-sqlite", "", "SQLite database path recording finished runs")
	flags.Bool("history", false, "List stored runs and exit without running the suite")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'case_duration:p95 < 5000')")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the suite file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("suite") {
		val, err := fs.GetString("suite")
		if err != nil {
			return err
		}
		cfg.Suite = strings.TrimSpace(val)
	}
	if fs.Changed("base-url") {
		val, err := fs.GetString("base-url")
		if err != nil {
			return err
		}
		cfg.Provider.BaseURL = strings.TrimSpace(val)
	}
	if fs.Changed("model") {
		val, err := fs.GetString("model")
		if err != nil {
			return err
		}
		cfg.Provider.Model = strings.TrimSpace(val)
	}
	if fs.Changed("api-key-env") {
		val, err := fs.GetString("api-key-env")
		if err != nil {
			return err
		}
		cfg.Provider.APIKeyEnv = strings.TrimSpace(val)
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Provider.Timeout = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Provider.Headers == nil {
			cfg.Provider.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Provider.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("max-concurrent") {
		val, err := fs.GetInt("max-concurrent")
		if err != nil {
			return err
		}
		cfg.Run.MaxConcurrent = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Run.Rate = val
	}
	if fs.Changed("max-attempts") {
		val, err := fs.GetInt("max-attempts")
		if err != nil {
			return err
		}
		cfg.Retry.MaxAttempts = val
	}
	if fs.Changed("log-failures") {
		val, err := fs.GetBool("log-failures")
		if err != nil {
			return err
		}
		cfg.Run.LogFailures = val
	}

	if fs.Changed("dataset") {
		val, err := fs.GetString("dataset")
		if err != nil {
			return err
		}
		cfg.Dataset.Path = strings.TrimSpace(val)
	}
	if fs.Changed("dataset-type") {
		val, err := fs.GetString("dataset-type")
		if err != nil {
			return err
		}
		cfg.Dataset.Type = strings.ToLower(strings.TrimSpace(val))
	}

	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.Output.HTML = strings.TrimSpace(val)
	}
	if fs.Changed("json-file") {
		val, err := fs.GetString("json-file")
		if err != nil {
			return err
		}
		cfg.Output.JSON = strings.TrimSpace(val)
	}
	if fs.Changed("yaml-file") {
		val, err := fs.GetString("yaml-file")
		if err != nil {
			return err
		}
		cfg.Output.YAML = strings.TrimSpace(val)
	}
	if fs.Changed("verbose") {
		val, err := fs.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = val
	}

	if fs.Changed("store-dir") {
		val, err := fs.GetString("store-dir")
		if err != nil {
			return err
		}
		cfg.Storage.Dir = strings.TrimSpace(val)
	}
	if fs.Changed("store-sqlite") {
		val, err := fs.GetString("store-sqlite")
		if err != nil {
			return err
		}
		cfg.Storage.SQLite = strings.TrimSpace(val)
	}
	if fs.Changed("history") {
		val, err := fs.GetBool("history")
		if err != nil {
			return err
		}
		cfg.History = val
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	return nil
}
