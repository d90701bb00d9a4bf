package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"contract-fuzzer/internal/fixture"
	"contract-fuzzer/internal/logger"
	"contract-fuzzer/internal/schema"
	"contract-fuzzer/internal/sut"
	"contract-fuzzer/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// Result statuses
const (
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusError = "ERROR"
)

// ErrSUTUnreachable marks transport failures: the request never got an HTTP
// response.
var ErrSUTUnreachable = errors.New("SUT unreachable")

// TestResult represents the result of a single test case
type TestResult struct {
	Title      string
	Method     string
	URL        string
	Status     string
	Duration   time.Duration
	Error      error
	Failures   []string
	StatusCode int
	Response   string
}

// TestConfig holds configuration for test execution
type TestConfig struct {
	Timeout time.Duration
	Retry   RetryConfig
}

// RetryConfig holds configuration for retry behavior. Only transport
// failures are retried.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// TestExecutor runs derived test cases against the SUT one at a time
type TestExecutor struct {
	config   TestConfig
	client   *http.Client
	launcher sut.Launcher
	store    fixture.Store
	fixtures *fixture.Loader
	matcher  *schema.Matcher
	logger   *logger.Logger
	runID    string

	// mu makes setup, invoke and assert of one case a critical section
	// against the shared data store
	mu     sync.Mutex
	loaded map[string]*fixture.Fixture
}

// NewTestExecutor creates a new test executor
func NewTestExecutor(config TestConfig, launcher sut.Launcher, store fixture.Store, fixtures *fixture.Loader, matcher *schema.Matcher, logger *logger.Logger) *TestExecutor {
	if config.Retry.Attempts < 1 {
		config.Retry.Attempts = 1
	}
	return &TestExecutor{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		launcher: launcher,
		store:    store,
		fixtures: fixtures,
		matcher:  matcher,
		logger:   logger,
		runID:    uuid.New().String(),
		loaded:   make(map[string]*fixture.Fixture),
	}
}

// RunID identifies this executor's run in logs and reports
func (e *TestExecutor) RunID() string {
	return e.runID
}

// RunTests executes every case in order. A failing case never stops the
// run.
func (e *TestExecutor) RunTests(ctx context.Context, cases []types.TestCase) []TestResult {
	results := make([]TestResult, 0, len(cases))
	for _, tc := range cases {
		results = append(results, e.RunCase(ctx, tc))
	}
	return results
}

// RunCase executes a single case: start the SUT, load or clear data, send
// the request and check the response.
func (e *TestExecutor) RunCase(ctx context.Context, tc types.TestCase) (result TestResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	result = TestResult{
		Title:  tc.Title,
		Method: tc.Method,
		URL:    tc.URL,
	}
	defer func() {
		result.Duration = time.Since(start)
		e.log(result)
	}()

	rc, err := e.launcher.Start(ctx)
	if err != nil {
		result.Status = StatusError
		result.Error = fmt.Errorf("failed to start SUT: %w", err)
		return result
	}
	defer func() {
		if err := e.launcher.Stop(ctx, rc); err != nil {
			e.logger.Printf("Failed to stop SUT: %v\n", err)
		}
	}()

	if err := e.setup(ctx, tc.Fixture); err != nil {
		result.Status = StatusError
		result.Error = err
		return result
	}

	resp, err := e.invoke(ctx, rc, tc)
	if err != nil {
		result.Status = StatusError
		result.Error = err
		return result
	}
	result.StatusCode = resp.status
	result.Response = string(resp.body)

	failures, err := e.check(tc.Expected, resp)
	if err != nil {
		result.Status = StatusError
		result.Error = err
		return result
	}
	if len(failures) > 0 {
		result.Status = StatusFail
		result.Failures = failures
		return result
	}

	result.Status = StatusPass
	return result
}

// setup replaces the store's contents with the named fixture, or empties it
func (e *TestExecutor) setup(ctx context.Context, name string) error {
	if name == "" {
		if err := e.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear data: %w", err)
		}
		return nil
	}

	f, ok := e.loaded[name]
	if !ok {
		var err error
		f, err = e.fixtures.Load(name)
		if err != nil {
			return err
		}
		e.loaded[name] = f
	}

	if err := e.store.Load(ctx, f); err != nil {
		return fmt.Errorf("failed to load fixture %s: %w", name, err)
	}
	return nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// invoke sends the request, retrying transport failures. Every status code
// is a valid response.
func (e *TestExecutor) invoke(ctx context.Context, rc *sut.RunContext, tc types.TestCase) (*response, error) {
	var lastErr error
	for attempt := 0; attempt < e.config.Retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrSUTUnreachable, ctx.Err())
			case <-time.After(e.config.Retry.Delay):
			}
		}

		// The body reader is consumed by each attempt
		req, err := buildRequest(ctx, rc.BaseURL, tc)
		if err != nil {
			return nil, err
		}

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}
		return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
	}
	return nil, fmt.Errorf("%w: %s %s: %v", ErrSUTUnreachable, tc.Method, tc.URL, lastErr)
}

// buildRequest creates an HTTP request for the given case
func buildRequest(ctx context.Context, baseURL string, tc types.TestCase) (*http.Request, error) {
	var body io.Reader
	if tc.Body != nil {
		bodyBytes, err := json.Marshal(tc.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, tc.Method, baseURL+tc.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range tc.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// check asserts status, headers and body in that order and stops at the
// first failed assertion. The error return is reserved for broken schemas.
func (e *TestExecutor) check(expected types.Expectation, resp *response) ([]string, error) {
	rec := &recorder{}

	if expected.Status != 0 {
		if !assert.Equal(rec, expected.Status, resp.status, "status code") {
			return rec.failures, nil
		}
	}

	names := make([]string, 0, len(expected.Headers))
	for name := range expected.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := resp.header.Values(name)
		if len(values) == 0 {
			assert.Fail(rec, fmt.Sprintf("missing header %s", name))
			return rec.failures, nil
		}
		if !assert.Equal(rec, expected.Headers[name], strings.Join(values, ", "), "header %s", name) {
			return rec.failures, nil
		}
	}

	if expected.Body != nil {
		var value interface{}
		if err := json.Unmarshal(resp.body, &value); err != nil {
			assert.Fail(rec, fmt.Sprintf("response body is not JSON: %v", err))
			return rec.failures, nil
		}
		if err := e.matcher.Matches(value, expected.Body); err != nil {
			if errors.Is(err, schema.ErrInvalidSchema) {
				return nil, fmt.Errorf("failed to check response body: %w", err)
			}
			// Matcher diagnostics are reported as is
			return []string{err.Error()}, nil
		}
	}

	return nil, nil
}

func (e *TestExecutor) log(result TestResult) {
	details := result.Failures
	if result.Error != nil {
		details = []string{result.Error.Error()}
	}
	e.logger.LogCase(e.runID, result.Title, result.Status, result.Duration, details)
}

// recorder collects testify assertion failures for one case
type recorder struct {
	failures []string
}

// Errorf implements assert.TestingT
func (r *recorder) Errorf(format string, args ...interface{}) {
	lines := strings.Split(fmt.Sprintf(format, args...), "\n")
	// Skip the "Error Trace" block; executor call sites mean nothing to the reader
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "Error:") {
			lines = lines[i:]
			break
		}
	}
	r.failures = append(r.failures, strings.TrimSpace(strings.Join(lines, "\n")))
}

// Diagnose returns the root cause when every case errored because the SUT
// could not be started or reached, and nil otherwise.
func Diagnose(results []TestResult) error {
	if len(results) == 0 {
		return nil
	}
	for _, r := range results {
		if r.Status != StatusError {
			return nil
		}
		if !errors.Is(r.Error, sut.ErrNotStarted) && !errors.Is(r.Error, ErrSUTUnreachable) {
			return nil
		}
	}
	return fmt.Errorf("all %d test cases errored before any response was checked: %w", len(results), results[0].Error)
}
