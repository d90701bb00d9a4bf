package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"contract-fuzzer/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []TestResult {
	return []TestResult{
		{Title: "Adds a new blog post - valid #1", Status: "PASS", Duration: 10 * time.Millisecond, StatusCode: 201, Response: map[string]interface{}{"_id": "x"}},
		{Title: "Adds a new blog post - invalid #1", Status: "FAIL", Duration: 5 * time.Millisecond, Failures: []string{"Error: Not equal:\nexpected: 400\nactual  : 201"}},
		{Title: "Adds a new blog post - invalid #2", Status: "ERROR", Error: "SUT unreachable"},
	}
}

func TestGenerateReportJSON(t *testing.T) {
	dir := t.TempDir()
	results := sampleResults()
	r := NewReporter(ReportingConfig{Format: []string{"json"}, OutputDir: dir}, &bytes.Buffer{})

	report, err := r.GenerateReport("run-1", results, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalTests)
	assert.Equal(t, 1, report.PassedTests)
	assert.Equal(t, 1, report.FailedTests)
	assert.Equal(t, 1, report.ErroredTests)
	assert.Equal(t, 15*time.Millisecond, report.Duration)
	assert.Nil(t, report.Results[0].Response, "responses are only kept in detailed reports")
	assert.NotNil(t, results[0].Response, "caller's results are untouched")

	files, err := filepath.Glob(filepath.Join(dir, "report_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.Results, 3)
}

func TestGenerateReportText(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(ReportingConfig{Format: []string{"text"}, Detailed: true}, &out)

	_, err := r.GenerateReport("run-2", sampleResults(), errors.New("SUT did not start"))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Pass  Adds a new blog post - valid #1")
	assert.Contains(t, text, "Fail  Adds a new blog post - invalid #1")
	assert.Contains(t, text, "      expected: 400")
	assert.Contains(t, text, "Error Adds a new blog post - invalid #2")
	assert.Contains(t, text, "      SUT unreachable")
	assert.Contains(t, text, "Root cause: SUT did not start")
	assert.Contains(t, text, "3 test cases: 1 passed, 1 failed, 1 errored (run run-2")
}

func TestWriteSummaryGroupsLargeCounts(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteSummary(&out, Report{RunID: "r", TotalTests: 1234, PassedTests: 1234}, false))
	assert.Contains(t, out.String(), "1,234 test cases: 1,234 passed")
}

func TestGenerateReportUnsupportedFormat(t *testing.T) {
	r := NewReporter(ReportingConfig{Format: []string{"html"}}, &bytes.Buffer{})
	_, err := r.GenerateReport("run", nil, nil)
	assert.EqualError(t, err, "unsupported report format: html")
}

func TestArtifacts(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(ReportingConfig{ArtifactsDir: dir}, &bytes.Buffer{})

	specs := []types.TestCase{{Title: "a", Method: "POST", URL: "/posts", Expected: types.Expectation{Status: 201}}}
	require.NoError(t, r.WriteSpecs(specs))
	require.NoError(t, r.WritePayloads("post", "/posts/{id}/comments", types.Examples{Valid: []interface{}{1}}))
	require.NoError(t, r.WritePayloads("PUT", "/", types.Examples{}))

	data, err := os.ReadFile(filepath.Join(dir, "fuzzed-specs.json"))
	require.NoError(t, err)
	var decoded []types.TestCase
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "a", decoded[0].Title)

	assert.FileExists(t, filepath.Join(dir, "posts-id-comments-post-fuzzed-data.json"))
	assert.FileExists(t, filepath.Join(dir, "root-put-fuzzed-data.json"))
}

func TestArtifactsDisabled(t *testing.T) {
	r := NewReporter(ReportingConfig{}, &bytes.Buffer{})
	assert.NoError(t, r.WriteSpecs(nil))
}
