package sut

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It is re-executed as the SUT by the
// process launcher tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("HELPER_MODE") == "exit" {
		os.Exit(3)
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "pid=%d", os.Getpid())
	})
	http.ListenAndServe("127.0.0.1:"+os.Getenv("PORT"), nil)
	os.Exit(0)
}

func helperConfig(mode string) ProcessConfig {
	return ProcessConfig{
		Command:      []string{os.Args[0], "-test.run=TestHelperProcess"},
		Env:          []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
		ReadyTimeout: 10 * time.Second,
		StopTimeout:  2 * time.Second,
	}
}

func get(t *testing.T, url string) (string, error) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return string(body), err
}

func TestExternal(t *testing.T) {
	launcher := NewExternal("http://localhost:3000/")

	rc, err := launcher.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", rc.BaseURL)
	assert.NoError(t, launcher.Stop(context.Background(), rc))
}

func TestFreePort(t *testing.T) {
	port, err := FreePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}

func TestProcessStartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a child process")
	}
	ctx := context.Background()
	launcher := NewProcess(helperConfig("serve"))

	rc, err := launcher.Start(ctx)
	require.NoError(t, err)

	body, err := get(t, rc.BaseURL)
	require.NoError(t, err)
	assert.Contains(t, body, "pid=")

	require.NoError(t, launcher.Stop(ctx, rc))
	_, err = get(t, rc.BaseURL)
	assert.Error(t, err, "SUT must be down after Stop")

	// Stopping twice is harmless
	assert.NoError(t, launcher.Stop(ctx, rc))
}

func TestProcessFreshInstancePerStart(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a child process")
	}
	ctx := context.Background()
	launcher := NewProcess(helperConfig("serve"))

	first, err := launcher.Start(ctx)
	require.NoError(t, err)
	defer launcher.Stop(ctx, first)

	second, err := launcher.Start(ctx)
	require.NoError(t, err)
	defer launcher.Stop(ctx, second)

	assert.NotEqual(t, first.BaseURL, second.BaseURL)
}

func TestProcessExitsEarly(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a child process")
	}
	_, err := NewProcess(helperConfig("exit")).Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotStarted))
	assert.Contains(t, err.Error(), "exited before accepting connections")
}

func TestProcessBadCommand(t *testing.T) {
	_, err := NewProcess(ProcessConfig{Command: []string{"/nonexistent/sut-binary"}}).Start(context.Background())
	assert.True(t, errors.Is(err, ErrNotStarted))

	_, err = NewProcess(ProcessConfig{}).Start(context.Background())
	assert.True(t, errors.Is(err, ErrNotStarted))
}

type countingLauncher struct {
	starts, stops int
	err           error
}

func (c *countingLauncher) Start(context.Context) (*RunContext, error) {
	c.starts++
	if c.err != nil {
		return nil, c.err
	}
	return &RunContext{BaseURL: "http://sut"}, nil
}

func (c *countingLauncher) Stop(context.Context, *RunContext) error {
	c.stops++
	return nil
}

func TestSharedStartsOnce(t *testing.T) {
	ctx := context.Background()
	inner := &countingLauncher{}
	shared := NewShared(inner)

	for i := 0; i < 3; i++ {
		rc, err := shared.Start(ctx)
		require.NoError(t, err)
		assert.Equal(t, "http://sut", rc.BaseURL)
		require.NoError(t, shared.Stop(ctx, rc))
	}
	assert.Equal(t, 1, inner.starts)
	assert.Equal(t, 0, inner.stops)

	require.NoError(t, shared.Close(ctx))
	assert.Equal(t, 1, inner.stops)
}

func TestSharedRemembersFailure(t *testing.T) {
	inner := &countingLauncher{err: ErrNotStarted}
	shared := NewShared(inner)

	for i := 0; i < 2; i++ {
		_, err := shared.Start(context.Background())
		assert.ErrorIs(t, err, ErrNotStarted)
	}
	assert.Equal(t, 1, inner.starts)
	assert.NoError(t, shared.Close(context.Background()))
	assert.Equal(t, 0, inner.stops)
}
