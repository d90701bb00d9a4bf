package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger provides logging functionality
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger creates a new logger writing to a timestamped file in logDir
func NewLogger(logDir string) (*Logger, error) {
	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Create log file with timestamp
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, fmt.Sprintf("run_%s.log", timestamp))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	return &Logger{
		Logger: log.New(file, "", log.LstdFlags),
		file:   file,
	}, nil
}

// New creates a logger writing to w
func New(w io.Writer) *Logger {
	return &Logger{Logger: log.New(w, "", log.LstdFlags)}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return New(io.Discard)
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// LogCase logs the outcome of one executed test case
func (l *Logger) LogCase(runID, title, status string, duration time.Duration, failures []string) {
	l.Printf("[%s] %s: %s (%s)\n", runID, status, title, duration.Round(time.Millisecond))
	for _, f := range failures {
		l.Printf("    %s\n", f)
	}
}

// LogSynthesis logs how many examples were synthesized for an operation
func (l *Logger) LogSynthesis(method, path string, valid, invalid int) {
	l.Printf("Synthesized %d valid and %d invalid bodies for %s %s\n", valid, invalid, method, path)
}

// LogLLMInteraction logs an LLM interaction
func (l *Logger) LogLLMInteraction(operation string, input interface{}, output interface{}, err error) {
	l.Printf("LLM Operation: %s\n", operation)
	l.Printf("Input: %+v\n", input)
	if err != nil {
		l.Printf("Error: %v\n", err)
	} else {
		l.Printf("Output: %+v\n", output)
	}
	l.Println("---")
}
