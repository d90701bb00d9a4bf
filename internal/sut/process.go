package sut

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"
)

// ProcessConfig holds configuration for a SUT started as a child process
type ProcessConfig struct {
	Command      []string
	Dir          string
	Env          []string
	ReadyPath    string
	ReadyTimeout time.Duration
	StopTimeout  time.Duration
	Stdout       io.Writer
	Stderr       io.Writer
}

// Process starts a fresh SUT process on a free port for every Start. The
// port is passed in the PORT environment variable.
type Process struct {
	config ProcessConfig
	client *http.Client
}

type process struct {
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
}

// NewProcess creates a new process launcher
func NewProcess(config ProcessConfig) *Process {
	if config.ReadyPath == "" {
		config.ReadyPath = "/"
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = 30 * time.Second
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 5 * time.Second
	}
	return &Process{
		config: config,
		client: &http.Client{Timeout: time.Second},
	}
}

// Start implements the Launcher interface
func (p *Process) Start(ctx context.Context) (*RunContext, error) {
	if len(p.config.Command) == 0 {
		return nil, fmt.Errorf("%w: no command configured", ErrNotStarted)
	}

	port, err := FreePort()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotStarted, err)
	}

	cmd := exec.Command(p.config.Command[0], p.config.Command[1:]...)
	cmd.Dir = p.config.Dir
	cmd.Env = append(append(os.Environ(), p.config.Env...), fmt.Sprintf("PORT=%d", port))
	cmd.Stdout = p.config.Stdout
	cmd.Stderr = p.config.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotStarted, err)
	}

	proc := &process{cmd: cmd, exited: make(chan struct{})}
	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.exited)
	}()

	rc := &RunContext{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		process: proc,
	}

	if err := p.waitReady(ctx, rc); err != nil {
		p.Stop(context.Background(), rc)
		return nil, fmt.Errorf("%w: %v", ErrNotStarted, err)
	}
	return rc, nil
}

// waitReady polls the SUT until it answers any HTTP request
func (p *Process) waitReady(ctx context.Context, rc *RunContext) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.BaseURL+p.config.ReadyPath, nil)
		if err != nil {
			return err
		}
		if resp, err := p.client.Do(req); err == nil {
			resp.Body.Close()
			return nil
		}

		select {
		case <-rc.process.exited:
			if rc.process.waitErr == nil {
				return errors.New("process exited before accepting connections")
			}
			return fmt.Errorf("process exited before accepting connections: %v", rc.process.waitErr)
		case <-ctx.Done():
			return fmt.Errorf("not ready after %s: %w", p.config.ReadyTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop implements the Launcher interface. The process is interrupted and
// killed if it has not exited within the stop timeout.
func (p *Process) Stop(ctx context.Context, rc *RunContext) error {
	if rc == nil || rc.process == nil {
		return nil
	}
	proc := rc.process

	select {
	case <-proc.exited:
		return nil
	default:
	}

	if err := proc.cmd.Process.Signal(os.Interrupt); err != nil {
		proc.cmd.Process.Kill()
	}

	timer := time.NewTimer(p.config.StopTimeout)
	defer timer.Stop()

	select {
	case <-proc.exited:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := proc.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill SUT process: %w", err)
	}
	<-proc.exited
	return nil
}

// FreePort asks the kernel for an unused TCP port
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
