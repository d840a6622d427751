package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	ctx := context.Background()
	logger.WithComponent("watcher").With("app", "demo").Info(ctx, "synthesized", "bundles", 3)
	logger.Warn(ctx, errors.New("boom"), "gate skipped", "stage", "typescript")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "synthesized", lines[0]["msg"])
	assert.Equal(t, "watcher", lines[0]["component"])
	assert.Equal(t, "demo", lines[0]["app"])
	assert.Equal(t, float64(3), lines[0]["bundles"])

	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
	assert.Equal(t, "typescript", lines[1]["stage"])
	assert.NotContains(t, lines[1], "component")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Format: "json", Output: &buf})

	ctx := context.Background()
	logger.Debug(ctx, "hidden")
	logger.Info(ctx, "hidden")
	logger.Warn(ctx, nil, "shown")
	logger.Error(ctx, errors.New("x"), "shown")
	logger.Fatal(ctx, errors.New("y"), "shown")

	assert.Len(t, decodeLines(t, &buf), 3)
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "json", Output: &buf})
	_ = parent.With("child", true)

	parent.Info(context.Background(), "parent")
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "child")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestNewFileLogger(t *testing.T) {
	tmpDir := t.TempDir()

	fileLogger, err := NewFileLogger(&LoggerConfig{Level: LevelInfo, Format: "text"}, tmpDir)
	require.NoError(t, err)
	fileLogger.Info(context.Background(), "written to file")
	require.NoError(t, fileLogger.Close())

	data, err := os.ReadFile(fileLogger.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.True(t, strings.HasPrefix(filepath.Base(fileLogger.Path()), "extplan-"))
}

func TestMultiLogger(t *testing.T) {
	first := &mockLogger{}
	second := &mockLogger{}
	multi := NewMultiLogger(first, second)

	multi.WithComponent("hub").With("k", "v").Error(context.Background(), errors.New("x"), "failed")
	assert.Equal(t, 1, first.errorCallCount)
	assert.Equal(t, 1, second.errorCallCount)
}

func TestPerfLogger(t *testing.T) {
	var captured []interface{}
	mock := &mockLogger{
		errorFunc: func(ctx context.Context, err error, msg string, fields ...interface{}) {
			captured = fields
		},
	}

	op := StartOperation(mock, "synthesize")
	op.EndWithError(context.Background(), errors.New("failed"))

	fields := fieldsToMap(captured)
	assert.Contains(t, fields, "duration_ms")
}

func TestNopLogger(t *testing.T) {
	logger := Nop()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "discarded")
		logger.With("a", 1).Info(context.TODO(), "discarded")
	})
}

// Mock logger for testing
type mockLogger struct {
	errorCallCount int
	errorFunc      func(ctx context.Context, err error, msg string, fields ...interface{})
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...interface{})           {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...interface{})            {}
func (m *mockLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	m.errorCallCount++
	if m.errorFunc != nil {
		m.errorFunc(ctx, err, msg, fields...)
	}
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...interface{}) {}

func (m *mockLogger) With(
	fields ...interface{},
) Logger {
	return m
}

func (m *mockLogger) WithComponent(
	component string,
) Logger {
	return m
}

// Helper function to convert fields slice to map
func fieldsToMap(fields []interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			if key, ok := fields[i].(string); ok {
				result[key] = fields[i+1]
			}
		}
	}
	return result
}
