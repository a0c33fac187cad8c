package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"github.com/promptum/promptum/internal/auth"
	"github.com/promptum/promptum/internal/bench"
	"github.com/promptum/promptum/internal/config"
	"github.com/promptum/promptum/internal/dashboard"
	"github.com/promptum/promptum/internal/dataset"
	"github.com/promptum/promptum/internal/openrouter"
	"github.com/promptum/promptum/internal/provider"
	"github.com/promptum/promptum/internal/report"
	"github.com/promptum/promptum/internal/runner"
	"github.com/promptum/promptum/internal/storage"
	"github.com/promptum/promptum/internal/threshold"
	"github.com/promptum/promptum/internal/tracing"
	"github.com/promptum/promptum/internal/validate"
)

const progressInterval = time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Local runs keep API keys in a .env file; absence is fine.
	_ = godotenv.Load()

	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Parse thresholds up front so a typo fails before any API traffic.
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	if cfg.History {
		return printHistory(cfg, os.Stdout, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	authProvider, err := buildAuthProvider(cfg)
	if err != nil {
		return err
	}
	if authProvider != nil {
		defer authProvider.Close()
	}

	traceProvider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := traceProvider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	clientOpts := openrouter.Options{
		BaseURL: cfg.Provider.BaseURL,
		Auth:    authProvider,
		Headers: cfg.Provider.Headers,
		Timeout: cfg.Provider.Timeout,
		Retry:   cfg.Retry,
		Logger:  logger,
	}
	if traceProvider.ShouldPropagate() {
		clientOpts.InjectHeaders = tracing.InjectHTTPHeaders
	}
	client, err := openrouter.New(clientOpts)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	var prov provider.Provider = client
	if cfg.Tracing.Enabled() {
		prov = tracing.WrapProvider(prov, traceProvider.Tracer())
	}

	cases, err := buildCases(ctx, cfg)
	if err != nil {
		return err
	}

	var dash *dashboard.Dashboard

	opts := bench.Options{
		SuiteName:     cfg.Suite,
		Provider:      prov,
		MaxConcurrent: cfg.Run.MaxConcurrent,
		RatePerSecond: cfg.Run.Rate,
	}
	if cfg.Tracing.Enabled() {
		opts.Tracer = traceProvider.Tracer()
	}
	if cfg.Run.LogFailures || cfg.Verbose {
		opts.Logger = logger
	}
	if cfg.Dashboard {
		// The dashboard observes the session's collector, so it can only be
		// built after the session; bind the callback late.
		opts.Progress = func(completed, total int, res runner.TestResult) {
			if dash != nil {
				dash.Progress(completed, total, res)
			}
		}
	}

	session := bench.NewSession(opts)
	session.AddCases(cases)

	var progress *report.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = report.NewProgressReporter(session.Collector(), session.Len(), progressInterval, os.Stdout)
		progress.Start()
		defer progress.Stop()
	}

	if cfg.Dashboard {
		dash, err = dashboard.New(session.Collector(), dashboardRunConfig(cfg, session.Len()), cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	rep := session.Run(ctx)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}

	var thresholdResults []threshold.Result
	if len(thresholds) > 0 {
		thresholdResults = threshold.NewEvaluator(thresholds).Evaluate(rep.Summary)
	}

	if cfg.JSONOutput {
		if err := report.WriteJSON(os.Stdout, rep); err != nil {
			return err
		}
	} else {
		report.PrintCaseTable(os.Stdout, rep.Results)
		report.PrintReport(os.Stdout, rep)
		report.PrintThresholds(os.Stdout, thresholdResults)
	}

	if err := writeArtifacts(cfg, rep, thresholdResults); err != nil {
		return err
	}
	if err := persistRun(cfg, rep, logger); err != nil {
		return err
	}

	if n := rep.Summary.Errored; n > 0 {
		return fmt.Errorf("%d cases errored", n)
	}
	for _, res := range thresholdResults {
		if !res.Pass {
			return fmt.Errorf("threshold not met: %s", res.Threshold.Raw)
		}
	}
	return nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// buildAuthProvider picks the credential source for the run. With no auth
// block the provider's API key env var is used; an empty env var name means
// the endpoint is called anonymously.
func buildAuthProvider(cfg *config.Config) (auth.Provider, error) {
	switch cfg.Auth.Type {
	case config.AuthTypeOAuth2:
		return auth.NewOAuth2ClientCredentialsProvider(
			cfg.Auth.TokenURL,
			cfg.Auth.ClientID,
			cfg.Auth.ClientSecret,
			cfg.Auth.Scopes,
			cfg.Auth.RefreshBeforeExpiry,
		)
	case config.AuthTypeAPIKey:
		if cfg.Auth.APIKey != "" {
			return auth.NewStaticTokenProvider(cfg.Auth.APIKey), nil
		}
		return auth.NewEnvTokenProvider(cfg.Provider.APIKeyEnv)
	default:
		if cfg.Provider.APIKeyEnv != "" {
			return auth.NewEnvTokenProvider(cfg.Provider.APIKeyEnv)
		}
		return nil, nil
	}
}

// buildCases assembles the run's cases: the suite file's tests first, then
// any dataset rows, in file order.
func buildCases(ctx context.Context, cfg *config.Config) ([]runner.TestCase, error) {
	cases := make([]runner.TestCase, 0, len(cfg.Tests))
	for i, tc := range cfg.Tests {
		validator, err := buildValidator(tc.Validator)
		if err != nil {
			return nil, fmt.Errorf("tests[%d]: %w", i, err)
		}
		cases = append(cases, runner.TestCase{
			Name:         tc.Name,
			Prompt:       tc.Prompt,
			Model:        tc.Model,
			SystemPrompt: tc.SystemPrompt,
			Temperature:  tc.Temperature,
			MaxTokens:    tc.MaxTokens,
			Extra:        tc.Extra,
			Validator:    validator,
			Retry:        tc.Retry,
		})
	}

	if cfg.Dataset.Path != "" {
		src, err := dataset.Open(cfg.Dataset.Path, cfg.Dataset.Type)
		if err != nil {
			return nil, err
		}
		defer src.Close()

		loaded, err := dataset.BuildCases(ctx, src, dataset.Defaults{
			Model:          cfg.Provider.Model,
			PromptTemplate: cfg.Dataset.PromptTemplate,
			Match:          cfg.Dataset.Match,
		})
		if err != nil {
			return nil, err
		}
		for i := range loaded {
			if loaded[i].SystemPrompt == "" {
				loaded[i].SystemPrompt = cfg.Provider.SystemPrompt
			}
		}
		cases = append(cases, loaded...)
	}
	return cases, nil
}

func buildValidator(vc config.ValidatorConfig) (runner.Validator, error) {
	switch vc.Type {
	case "":
		return nil, nil
	case config.ValidatorExact:
		return validate.ExactMatch{Expected: vc.Value, IgnoreCase: vc.IgnoreCase}, nil
	case config.ValidatorContains:
		return validate.Contains{Substring: vc.Value, IgnoreCase: vc.IgnoreCase}, nil
	case config.ValidatorRegex:
		v, err := validate.NewRegex(vc.Value)
		if err != nil {
			return nil, err
		}
		return v, nil
	case config.ValidatorJSONSchema:
		v, err := validate.NewJSONSchema(vc.Value)
		if err != nil {
			return nil, err
		}
		return v, nil
	case config.ValidatorJSONField:
		return validate.JSONField{Path: vc.Path, Expect: vc.Value}, nil
	default:
		return nil, fmt.Errorf("unknown validator type %q", vc.Type)
	}
}

func dashboardRunConfig(cfg *config.Config, totalCases int) dashboard.RunConfig {
	baseURL := cfg.Provider.BaseURL
	if baseURL == "" {
		baseURL = openrouter.DefaultBaseURL
	}
	return dashboard.RunConfig{
		SuiteName:     cfg.Suite,
		BaseURL:       baseURL,
		Model:         cfg.Provider.Model,
		MaxConcurrent: cfg.Run.MaxConcurrent,
		Rate:          cfg.Run.Rate,
		Timeout:       cfg.Provider.Timeout,
		MaxAttempts:   cfg.Retry.MaxAttempts,
		ConfigFile:    cfg.ConfigFile,
		TotalCases:    totalCases,
	}
}

func writeArtifacts(cfg *config.Config, rep report.Report, thresholdResults []threshold.Result) error {
	if path := cfg.Output.JSON; path != "" {
		err := writeReportFile(path, func(w io.Writer) error {
			return report.WriteJSON(w, rep)
		})
		if err != nil {
			return fmt.Errorf("write JSON report: %w", err)
		}
	}
	if path := cfg.Output.YAML; path != "" {
		err := writeReportFile(path, func(w io.Writer) error {
			return report.WriteYAML(w, rep)
		})
		if err != nil {
			return fmt.Errorf("write YAML report: %w", err)
		}
	}
	if path := cfg.Output.HTML; path != "" {
		meta := report.ReportMetadata{
			BaseURL: cfg.Provider.BaseURL,
			Dataset: cfg.Dataset.Path,
		}
		err := writeReportFile(path, func(w io.Writer) error {
			return report.GenerateHTMLReport(w, rep, thresholdResults, meta)
		})
		if err != nil {
			return fmt.Errorf("write HTML report: %w", err)
		}
	}
	return nil
}

func writeReportFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func persistRun(cfg *config.Config, rep report.Report, logger *logrus.Logger) error {
	if cfg.Storage.Dir != "" {
		store, err := storage.NewFileStore(cfg.Storage.Dir, logger)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		if err := saveRun(store, rep, logger); err != nil {
			return err
		}
	}
	if cfg.Storage.SQLite != "" {
		store, err := storage.NewSQLiteStore(cfg.Storage.SQLite)
		if err != nil {
			return fmt.Errorf("open run database: %w", err)
		}
		if err := saveRun(store, rep, logger); err != nil {
			return err
		}
	}
	return nil
}

func saveRun(store storage.Store, rep report.Report, logger *logrus.Logger) error {
	defer store.Close()
	ref, err := store.Save(rep)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	logger.WithFields(logrus.Fields{"run_id": rep.RunID, "ref": ref}).Info("run saved")
	return nil
}

// printHistory lists stored runs from every configured store, newest first.
func printHistory(cfg *config.Config, w io.Writer, logger *logrus.Logger) error {
	runs := []storage.RunInfo{}
	if cfg.Storage.Dir != "" {
		store, err := storage.NewFileStore(cfg.Storage.Dir, logger)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		listed, err := listRuns(store)
		if err != nil {
			return err
		}
		runs = append(runs, listed...)
	}
	if cfg.Storage.SQLite != "" {
		store, err := storage.NewSQLiteStore(cfg.Storage.SQLite)
		if err != nil {
			return fmt.Errorf("open run database: %w", err)
		}
		listed, err := listRuns(store)
		if err != nil {
			return err
		}
		runs = append(runs, listed...)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if cfg.JSONOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No stored runs.")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Started", "Suite", "Run ID", "Cases", "Passed", "Location"})
	for _, info := range runs {
		table.Append([]string{
			info.StartedAt.Format("2006-01-02 15:04:05"),
			info.SuiteName,
			info.RunID,
			strconv.FormatInt(info.Total, 10),
			strconv.FormatInt(info.Passed, 10),
			info.Location,
		})
	}
	table.Render()
	return nil
}

func listRuns(store storage.Store) ([]storage.RunInfo, error) {
	defer store.Close()
	runs, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
