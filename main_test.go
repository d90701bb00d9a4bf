package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"contract-fuzzer/internal/config"
	"contract-fuzzer/internal/executor"
	"contract-fuzzer/internal/fixture"
	"contract-fuzzer/internal/logger"

	"github.com/stretchr/testify/assert"
)

func TestConvertTestResults(t *testing.T) {
	got := convertTestResults([]executor.TestResult{
		{Title: "a", Method: "POST", URL: "/posts", Status: executor.StatusPass, Duration: time.Millisecond, StatusCode: 201, Response: `{"_id":"x"}`},
		{Title: "b", Status: executor.StatusFail, Failures: []string{"status code"}, Response: "<html>"},
		{Title: "c", Status: executor.StatusError, Error: errors.New("SUT unreachable")},
	})

	assert.Len(t, got, 3)
	assert.Equal(t, map[string]interface{}{"_id": "x"}, got[0].Response)
	assert.Equal(t, 201, got[0].StatusCode)
	assert.Empty(t, got[0].Error)
	assert.Equal(t, "<html>", got[1].Response)
	assert.Equal(t, []string{"status code"}, got[1].Failures)
	assert.Equal(t, "SUT unreachable", got[2].Error)
	assert.Nil(t, got[2].Response)
}

func TestOpenStoreNone(t *testing.T) {
	cfg := &config.Config{}
	cfg.Fixtures.Store.Type = config.NoStore

	store, closeStore, err := openStore(context.Background(), cfg, logger.Discard())
	assert.NoError(t, err)
	defer closeStore()
	assert.Equal(t, fixture.NopStore{}, store)
}
