// Package sut starts, locates and stops the system under test.
package sut

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNotStarted is returned when the SUT could not be brought up
var ErrNotStarted = errors.New("SUT did not start")

// RunContext is the explicit state of one SUT instance, threaded through
// setup, invoke and teardown of a test case.
type RunContext struct {
	BaseURL string

	process *process
}

// Launcher provides a running SUT
type Launcher interface {
	Start(ctx context.Context) (*RunContext, error)
	Stop(ctx context.Context, rc *RunContext) error
}

// External points at a SUT started outside the fuzzer
type External struct {
	baseURL string
}

// NewExternal creates a launcher for an already running SUT
func NewExternal(baseURL string) *External {
	return &External{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Start implements the Launcher interface
func (e *External) Start(context.Context) (*RunContext, error) {
	return &RunContext{BaseURL: e.baseURL}, nil
}

// Stop implements the Launcher interface; an external SUT is left running
func (e *External) Stop(context.Context, *RunContext) error {
	return nil
}

// Shared starts the wrapped launcher on first use and hands the same
// instance to every case. Close stops it.
type Shared struct {
	launcher Launcher

	once sync.Once
	rc   *RunContext
	err  error
}

// NewShared wraps launcher so it is started at most once
func NewShared(launcher Launcher) *Shared {
	return &Shared{launcher: launcher}
}

// Start implements the Launcher interface. A failed start is remembered and
// returned to every later caller.
func (s *Shared) Start(ctx context.Context) (*RunContext, error) {
	s.once.Do(func() {
		s.rc, s.err = s.launcher.Start(ctx)
	})
	return s.rc, s.err
}

// Stop implements the Launcher interface; the shared instance stays up
func (s *Shared) Stop(context.Context, *RunContext) error {
	return nil
}

// Close stops the shared instance if it was started
func (s *Shared) Close(ctx context.Context) error {
	if s.rc == nil {
		return nil
	}
	return s.launcher.Stop(ctx, s.rc)
}
