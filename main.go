package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"contract-fuzzer/internal/config"
	"contract-fuzzer/internal/derive"
	"contract-fuzzer/internal/document"
	"contract-fuzzer/internal/executor"
	"contract-fuzzer/internal/fixture"
	"contract-fuzzer/internal/llm"
	"contract-fuzzer/internal/logger"
	"contract-fuzzer/internal/reporter"
	"contract-fuzzer/internal/resolver"
	"contract-fuzzer/internal/schema"
	"contract-fuzzer/internal/sut"
	"contract-fuzzer/internal/synth"
)

const usage = `Usage: contract-fuzzer [command] [flags]

Commands:
  run       derive test cases from the API description and run them (default)
  derive    derive test cases and print them as JSON without running them
  snapshot  capture the SQL store's tables as a fixture

Run "contract-fuzzer <command> -h" for the flags of a command.
`

func main() {
	command := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		ok  = true
		err error
	)
	switch command {
	case "run":
		ok, err = runCommand(ctx, args)
	case "derive":
		err = deriveCommand(ctx, args)
	case "snapshot":
		err = snapshotCommand(ctx, args)
	case "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	if err != nil {
		stop()
		log.Fatalf("%s failed: %v", command, err)
	}
	if !ok {
		stop()
		os.Exit(1)
	}
}

// runCommand derives every case and executes it. It reports false when any
// case did not pass.
func runCommand(ctx context.Context, args []string) (bool, error) {
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := runCmd.String("config", "", "Path to config file (default "+config.DefaultPath+")")
	description := runCmd.String("description", "", "API description file or URL, overrides api.description")
	baseURL := runCmd.String("base-url", "", "Base URL of a running SUT, overrides environment.base_url")
	if err := runCmd.Parse(args); err != nil {
		return false, err
	}

	cfg, err := loadConfig(*configPath, *description)
	if err != nil {
		return false, err
	}
	if *baseURL != "" {
		cfg.Environment.BaseURL = *baseURL
	}
	if err := cfg.RequireSUT(); err != nil {
		return false, err
	}
	if err := cfg.RequireStore(); err != nil {
		return false, err
	}

	lg, err := logger.NewLogger(cfg.Reporting.LogDir)
	if err != nil {
		return false, err
	}
	defer lg.Close()

	testReporter := newReporter(cfg)

	// Resolution and derivation errors abort before any case runs
	suite, err := deriveSuite(ctx, cfg, lg)
	if err != nil {
		return false, err
	}
	if err := writeArtifacts(testReporter, suite); err != nil {
		return false, err
	}
	fmt.Printf("Derived %d test cases from %d operations\n", len(suite.Cases), len(suite.Operations))

	store, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return false, err
	}
	defer closeStore()

	launcher, closeLauncher := newLauncher(cfg, lg)
	defer closeLauncher()

	matcher := schema.NewMatcher(schema.Options{Strict: *cfg.Matcher.Strict, Verbose: cfg.Matcher.Verbose})
	testExecutor := executor.NewTestExecutor(executor.TestConfig{
		Timeout: time.Duration(cfg.Test.Timeout) * time.Second,
		Retry: executor.RetryConfig{
			Attempts: cfg.Test.Retry.Attempts,
			Delay:    time.Duration(cfg.Test.Retry.Delay) * time.Second,
		},
	}, launcher, store, fixture.NewLoader(cfg.Fixtures.Dir), matcher, lg)

	// Run tests
	results := testExecutor.RunTests(ctx, suite.Cases)
	rootCause := executor.Diagnose(results)

	// Generate report
	report, err := testReporter.GenerateReport(testExecutor.RunID(), convertTestResults(results), rootCause)
	if err != nil {
		return false, err
	}

	if rootCause != nil {
		fmt.Printf("SUT problem: %v\n", rootCause)
	}
	fmt.Printf("%d passed, %d failed, %d errored\n", report.PassedTests, report.FailedTests, report.ErroredTests)
	return report.FailedTests == 0 && report.ErroredTests == 0, nil
}

// deriveCommand prints the derived cases without running them
func deriveCommand(ctx context.Context, args []string) error {
	deriveCmd := flag.NewFlagSet("derive", flag.ExitOnError)
	configPath := deriveCmd.String("config", "", "Path to config file (default "+config.DefaultPath+")")
	description := deriveCmd.String("description", "", "API description file or URL, overrides api.description")
	output := deriveCmd.String("output", "", "Write the cases to this file instead of stdout")
	if err := deriveCmd.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, *description)
	if err != nil {
		return err
	}

	suite, err := deriveSuite(ctx, cfg, logger.New(os.Stderr))
	if err != nil {
		return err
	}
	if err := writeArtifacts(newReporter(cfg), suite); err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(suite.Cases)
}

// snapshotCommand saves the SQL store's current rows as a fixture
func snapshotCommand(ctx context.Context, args []string) error {
	snapshotCmd := flag.NewFlagSet("snapshot", flag.ExitOnError)
	configPath := snapshotCmd.String("config", "", "Path to config file (default "+config.DefaultPath+")")
	name := snapshotCmd.String("fixture", "", "Name of the fixture to write")
	if err := snapshotCmd.Parse(args); err != nil {
		return err
	}

	// Validate required flags
	if *name == "" {
		fmt.Println("Error: -fixture is required")
		snapshotCmd.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Fixtures.Store.Type != "sql" {
		return fmt.Errorf("snapshot needs fixtures.store.type sql, got %s", cfg.Fixtures.Store.Type)
	}

	store, err := fixture.OpenSQLStore(ctx, dbConfig(cfg), cfg.Fixtures.Store.Tables)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := store.Snapshot(ctx, *name)
	if err != nil {
		return err
	}
	if err := fixture.NewLoader(cfg.Fixtures.Dir).Save(f); err != nil {
		return err
	}

	fmt.Printf("Fixture %s written to %s with %d collections\n", *name, cfg.Fixtures.Dir, len(f.Collections))
	return nil
}

func loadConfig(path, description string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if description != "" {
		cfg.API.Description = description
	}
	return cfg, nil
}

// deriveSuite loads, resolves and derives test cases from the description
func deriveSuite(ctx context.Context, cfg *config.Config, lg *logger.Logger) (*derive.Suite, error) {
	doc, err := document.NewLoader(&http.Client{Timeout: 30 * time.Second}).Load(cfg.API.Description)
	if err != nil {
		return nil, err
	}

	resolved, err := resolver.Resolve(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve API description: %w", err)
	}

	synthesizer, err := newSynthesizer(cfg, lg)
	if err != nil {
		return nil, err
	}

	return derive.NewDeriver(synthesizer, cfg.BaselineFixture(), lg).Derive(ctx, resolved)
}

// newSynthesizer builds the configured generator. Its output is always
// verified against the schema.
func newSynthesizer(cfg *config.Config, lg *logger.Logger) (synth.Synthesizer, error) {
	matcher := schema.NewMatcher(schema.Options{Strict: *cfg.Matcher.Strict})

	switch cfg.Synthesizer.Provider {
	case "openai":
		llmConfig, err := llm.LoadConfig(cfg.Synthesizer.LLMConfig)
		if err != nil {
			return nil, err
		}
		client, err := llm.NewClient(llmConfig)
		if err != nil {
			return nil, err
		}
		return synth.NewChecked(synth.NewLLM(client, lg, llmConfig.MaxExamples), matcher), nil
	default:
		return synth.NewChecked(synth.NewGenerator(), matcher), nil
	}
}

func openStore(ctx context.Context, cfg *config.Config, lg *logger.Logger) (fixture.Store, func(), error) {
	if cfg.Fixtures.Store.Type == config.NoStore {
		log.Printf("warning: fixtures.store.type is %s, fixtures are not seeded and cases see the SUT's existing data", config.NoStore)
		lg.Printf("Fixtures are not seeded (store type %s)\n", config.NoStore)
		return fixture.NopStore{}, func() {}, nil
	}

	store, err := fixture.OpenSQLStore(ctx, dbConfig(cfg), cfg.Fixtures.Store.Tables)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func dbConfig(cfg *config.Config) fixture.DBConfig {
	return fixture.DBConfig{
		Type:     cfg.Fixtures.Store.Driver,
		Host:     cfg.Fixtures.Store.Host,
		Port:     cfg.Fixtures.Store.Port,
		Database: cfg.Fixtures.Store.Database,
		User:     cfg.Fixtures.Store.User,
		Password: cfg.Fixtures.Store.Password,
	}
}

// newLauncher picks an external SUT when a base URL is known and a child
// process otherwise
func newLauncher(cfg *config.Config, lg *logger.Logger) (sut.Launcher, func()) {
	if cfg.Environment.BaseURL != "" {
		return sut.NewExternal(cfg.Environment.BaseURL), func() {}
	}

	process := sut.NewProcess(sut.ProcessConfig{
		Command:      cfg.Environment.SUT.Command,
		Dir:          cfg.Environment.SUT.Dir,
		Env:          cfg.Environment.SUT.Env,
		ReadyPath:    cfg.Environment.SUT.ReadyPath,
		ReadyTimeout: time.Duration(cfg.Environment.SUT.ReadyTimeout) * time.Second,
		Stdout:       lg.Writer(),
		Stderr:       lg.Writer(),
	})
	if cfg.Environment.SUT.Mode != "once" {
		return process, func() {}
	}

	shared := sut.NewShared(process)
	return shared, func() {
		if err := shared.Close(context.Background()); err != nil {
			lg.Printf("Failed to stop SUT: %v\n", err)
		}
	}
}

func newReporter(cfg *config.Config) *reporter.Reporter {
	return reporter.NewReporter(reporter.ReportingConfig{
		Format:       cfg.Reporting.Format,
		OutputDir:    cfg.Reporting.OutputDir,
		Detailed:     cfg.Reporting.Detailed,
		ArtifactsDir: cfg.Reporting.ArtifactsDir,
	}, os.Stdout)
}

func writeArtifacts(r *reporter.Reporter, suite *derive.Suite) error {
	if err := r.WriteSpecs(suite.Cases); err != nil {
		return err
	}
	for _, op := range suite.Operations {
		if err := r.WritePayloads(op.Method, op.Path, op.Examples); err != nil {
			return err
		}
	}
	return nil
}

func convertTestResults(execResults []executor.TestResult) []reporter.TestResult {
	repResults := make([]reporter.TestResult, len(execResults))
	for i, r := range execResults {
		// Try to parse response as JSON if it's not empty
		var response interface{}
		if r.Response != "" {
			if err := json.Unmarshal([]byte(r.Response), &response); err != nil {
				// If not JSON, use as string
				response = r.Response
			}
		}

		var errText string
		if r.Error != nil {
			errText = r.Error.Error()
		}

		repResults[i] = reporter.TestResult{
			Title:      r.Title,
			Method:     r.Method,
			URL:        r.URL,
			Status:     r.Status,
			Duration:   r.Duration,
			Error:      errText,
			Failures:   r.Failures,
			StatusCode: r.StatusCode,
			Response:   response,
		}
	}
	return repResults
}
