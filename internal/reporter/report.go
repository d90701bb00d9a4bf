package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contract-fuzzer/internal/types"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report represents the test execution report
type Report struct {
	RunID        string
	Timestamp    time.Time
	TotalTests   int
	PassedTests  int
	FailedTests  int
	ErroredTests int
	Duration     time.Duration
	RootCause    string `json:",omitempty"`
	Results      []TestResult
}

// TestResult represents a single test result
type TestResult struct {
	Title      string
	Method     string
	URL        string
	Status     string
	Duration   time.Duration
	Error      string      `json:",omitempty"`
	Failures   []string    `json:",omitempty"`
	StatusCode int         `json:",omitempty"`
	Response   interface{} `json:",omitempty"`
}

// Reporter handles the generation of test reports
type Reporter struct {
	config ReportingConfig
	out    io.Writer
}

// ReportingConfig holds the configuration for reporting
type ReportingConfig struct {
	Format       []string
	OutputDir    string
	Detailed     bool
	ArtifactsDir string
}

// NewReporter creates a new instance of Reporter. Text summaries go to out.
func NewReporter(config ReportingConfig, out io.Writer) *Reporter {
	return &Reporter{
		config: config,
		out:    out,
	}
}

// GenerateReport generates the test execution report. rootCause, when set,
// explains why every case errored.
func (r *Reporter) GenerateReport(runID string, results []TestResult, rootCause error) (*Report, error) {
	report := Report{
		RunID:      runID,
		Timestamp:  time.Now(),
		TotalTests: len(results),
		Results:    append([]TestResult(nil), results...),
	}
	if rootCause != nil {
		report.RootCause = rootCause.Error()
	}

	// Tally outcomes
	for i, result := range results {
		switch result.Status {
		case "PASS":
			report.PassedTests++
		case "FAIL":
			report.FailedTests++
		default:
			report.ErroredTests++
		}
		report.Duration += result.Duration

		if !r.config.Detailed {
			report.Results[i].Response = nil
		}
	}

	// Generate reports in specified formats
	for _, format := range r.config.Format {
		switch format {
		case "json":
			if err := r.generateJSONReport(report); err != nil {
				return nil, fmt.Errorf("failed to generate JSON report: %v", err)
			}
		case "text":
			if err := WriteSummary(r.out, report, r.config.Detailed); err != nil {
				return nil, fmt.Errorf("failed to write summary: %v", err)
			}
		default:
			return nil, fmt.Errorf("unsupported report format: %s", format)
		}
	}

	return &report, nil
}

// generateJSONReport generates a JSON format report
func (r *Reporter) generateJSONReport(report Report) error {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return err
	}

	// Generate report file path
	reportPath := filepath.Join(r.config.OutputDir, fmt.Sprintf("report_%s.json", report.Timestamp.Format("20060102_150405")))

	// Marshal report to JSON
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	// Write report to file
	return os.WriteFile(reportPath, data, 0644)
}

// WriteSummary prints one line per case followed by the totals. Failure
// diagnostics are included when detailed is set.
func WriteSummary(w io.Writer, report Report, detailed bool) error {
	p := message.NewPrinter(language.English)
	title := cases.Title(language.English)

	for _, result := range report.Results {
		if _, err := p.Fprintf(w, "%-5s %s\n", title.String(strings.ToLower(result.Status)), result.Title); err != nil {
			return err
		}
		if !detailed {
			continue
		}
		details := result.Failures
		if result.Error != "" {
			details = []string{result.Error}
		}
		for _, d := range details {
			p.Fprintf(w, "      %s\n", strings.ReplaceAll(d, "\n", "\n      "))
		}
	}

	if report.RootCause != "" {
		p.Fprintf(w, "\nRoot cause: %s\n", report.RootCause)
	}
	_, err := p.Fprintf(w, "\n%d test cases: %d passed, %d failed, %d errored (run %s, %v)\n",
		report.TotalTests, report.PassedTests, report.FailedTests, report.ErroredTests,
		report.RunID, report.Duration.Round(time.Millisecond))
	return err
}

// WriteSpecs persists the derived test cases for inspection
func (r *Reporter) WriteSpecs(specs []types.TestCase) error {
	return r.writeArtifact("fuzzed-specs.json", specs)
}

// WritePayloads persists what was synthesized for one operation
func (r *Reporter) WritePayloads(method, path string, examples types.Examples) error {
	return r.writeArtifact(fmt.Sprintf("%s-%s-fuzzed-data.json", artifactName(path), strings.ToLower(method)), examples)
}

func (r *Reporter) writeArtifact(name string, v interface{}) error {
	if r.config.ArtifactsDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.config.ArtifactsDir, 0755); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(r.config.ArtifactsDir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// artifactName flattens a path template into a file name
func artifactName(path string) string {
	name := strings.Trim(path, "/")
	if name == "" {
		return "root"
	}
	return strings.NewReplacer("/", "-", "{", "", "}", "").Replace(name)
}
