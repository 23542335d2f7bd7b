package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reserving-engine/logger"
)

func TestWithComponent(t *testing.T) {
	log := logger.Discard()

	entry := log.WithComponent("runner")
	assert.Equal(t, "runner", entry.Data["component"])

	// Chained calls keep earlier fields and the innermost component wins
	nested := entry.WithFields(logger.Fields{"run": "r-1"}).WithComponent("store")
	assert.Equal(t, "store", nested.Data["component"])
	assert.Equal(t, "r-1", nested.Data["run"])

	failed := log.WithError(errors.New("boom")).WithComponent("api")
	assert.Equal(t, "api", failed.Data["component"])
	assert.EqualError(t, failed.Data[logrus.ErrorKey].(error), "boom")
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{" WARN ", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"invalid", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := logger.New(logger.Options{Level: tt.level})
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	// GIVEN: A JSON logger writing to a buffer
	// WHEN: Logging through a component entry
	// THEN: The line uses timestamp and message keys and carries the fields

	var buf bytes.Buffer
	log := logger.New(logger.Options{Level: "info", Format: "json"})
	log.SetOutput(&buf)

	log.WithComponent("api").WithFields(logger.Fields{"runs": 2}).Info("Scenario loaded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Scenario loaded", line["message"])
	assert.Equal(t, "api", line["component"])
	assert.Equal(t, "info", line["level"])
	assert.EqualValues(t, 2, line["runs"])
	assert.Contains(t, line, "timestamp")
	assert.NotContains(t, line, "msg")
	assert.NotContains(t, line, "time")
}

func TestNew_TextIsDefault(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Format: "yaml"})
	log.SetOutput(&buf)

	log.WithComponent("lic").Info("Run recorded")

	assert.Contains(t, buf.String(), `msg="Run recorded"`)
	assert.Contains(t, buf.String(), "component=lic")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lic.log")
	log := logger.New(logger.Options{Format: "json", File: path, MaxBackups: 1})

	log.WithComponent("store").Warn("Reset")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Reset"`)
	assert.Contains(t, string(data), `"component":"store"`)
}

func TestDiscard(t *testing.T) {
	log := logger.Discard()
	assert.Equal(t, io.Discard, log.Out)

	// Writing is a no-op and must not panic
	log.WithComponent("test").Error("ignored")
}

func TestSetLogger(t *testing.T) {
	prev := logger.GetLogger()
	t.Cleanup(func() { logger.SetLogger(prev) })

	next := logger.Discard()
	logger.SetLogger(next)
	assert.Same(t, next, logger.GetLogger())
}
