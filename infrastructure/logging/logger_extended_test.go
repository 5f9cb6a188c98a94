package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/dominium-sim/simkernel/pkg/tick"
)

func TestNewFromEnv(t *testing.T) {
	// Save and restore environment
	savedLevel := os.Getenv("LOG_LEVEL")
	savedFormat := os.Getenv("LOG_FORMAT")
	defer func() {
		if savedLevel != "" {
			os.Setenv("LOG_LEVEL", savedLevel)
		} else {
			os.Unsetenv("LOG_LEVEL")
		}
		if savedFormat != "" {
			os.Setenv("LOG_FORMAT", savedFormat)
		} else {
			os.Unsetenv("LOG_FORMAT")
		}
	}()

	t.Run("defaults when env not set", func(t *testing.T) {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("LOG_FORMAT")

		logger := NewFromEnv("test-service")
		if logger == nil {
			t.Fatal("NewFromEnv() returned nil")
		}
	})

	t.Run("custom level and format", func(t *testing.T) {
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("LOG_FORMAT", "text")

		logger := NewFromEnv("test-service")
		if logger == nil {
			t.Fatal("NewFromEnv() returned nil")
		}
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		os.Setenv("LOG_LEVEL", "  warn  ")
		os.Setenv("LOG_FORMAT", "  json  ")

		logger := NewFromEnv("test-service")
		if logger == nil {
			t.Fatal("NewFromEnv() returned nil")
		}
	})
}

func TestWithComponentAndGetComponent(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get component", func(t *testing.T) {
		ctx = WithComponent(ctx, "mobilization")
		component := GetComponent(ctx)
		if component != "mobilization" {
			t.Errorf("GetComponent() = %s, want mobilization", component)
		}
	})

	t.Run("empty context returns empty string", func(t *testing.T) {
		emptyCtx := context.Background()
		component := GetComponent(emptyCtx)
		if component != "" {
			t.Errorf("GetComponent() = %s, want empty", component)
		}
	})
}

func TestLogSchedulerBudgetExtended(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test-service", "debug", "json")
	logger.SetOutput(&buf)

	ctx := context.Background()

	t.Run("actions produced", func(t *testing.T) {
		buf.Reset()
		logger.LogSchedulerBudget(ctx, 42, tick.Tick(1), 1, 3, false)
		output := buf.String()
		if !strings.Contains(output, "42") {
			t.Error("output should contain faction id")
		}
	})

	t.Run("budget hit", func(t *testing.T) {
		buf.Reset()
		logger.LogSchedulerBudget(ctx, 42, tick.Tick(1), 2, 8, true)
		output := buf.String()
		if !strings.Contains(output, "true") {
			t.Error("output should contain budget_hit=true")
		}
	})
}

func TestLogCommandApplyExtended(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test-service", "debug", "json")
	logger.SetOutput(&buf)

	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		buf.Reset()
		logger.LogCommandApply(ctx, 9, tick.Tick(10), nil)
		output := buf.String()
		if !strings.Contains(output, "9") {
			t.Error("output should contain schema id")
		}
	})

	t.Run("failure", func(t *testing.T) {
		buf.Reset()
		logger.LogCommandApply(ctx, 9, tick.Tick(10), errors.New("refused"))
		output := buf.String()
		if !strings.Contains(output, "refused") {
			t.Error("output should contain error message")
		}
	})
}

func TestLogPerformance(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test-service", "info", "json")
	logger.SetOutput(&buf)

	ctx := context.Background()

	logger.LogPerformance(ctx, "engagement_resolve", map[string]interface{}{
		"duration_ms": 50,
		"casualties":  12,
	})

	output := buf.String()
	if !strings.Contains(output, "engagement_resolve") {
		t.Error("output should contain operation name")
	}
	if !strings.Contains(output, "performance") {
		t.Error("output should contain performance type")
	}
}

func TestLogErrorWithStack(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test-service", "error", "json")
	logger.SetOutput(&buf)

	ctx := context.Background()
	err := errors.New("test error")

	logger.LogErrorWithStack(ctx, err, "operation failed", map[string]interface{}{
		"key": "value",
	})

	output := buf.String()
	if !strings.Contains(output, "test error") {
		t.Error("output should contain error message")
	}
	if !strings.Contains(output, "operation failed") {
		t.Error("output should contain message")
	}
}

func TestLogErrorWithStackNilFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test-service", "error", "json")
	logger.SetOutput(&buf)

	ctx := context.Background()
	err := errors.New("test error")

	// Should not panic with nil fields
	logger.LogErrorWithStack(ctx, err, "operation failed", nil)

	output := buf.String()
	if !strings.Contains(output, "test error") {
		t.Error("output should contain error message")
	}
}

func TestWarnDefault(t *testing.T) {
	// WarnDefault uses the default logger
	// Just verify it doesn't panic
	ctx := context.Background()
	WarnDefault(ctx, "test warning message")
}

func TestDebugDefault(t *testing.T) {
	// DebugDefault uses the default logger
	// Just verify it doesn't panic
	ctx := context.Background()
	DebugDefault(ctx, "test debug message")
}

func TestLoggerWithContextComponentAndTick(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test-service", "info", "json")
	logger.SetOutput(&buf)

	ctx := context.Background()
	ctx = WithComponent(ctx, "engagement")
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithTick(ctx, tick.Tick(456))

	logger.WithContext(ctx).Info("test message")

	output := buf.String()
	if !strings.Contains(output, "engagement") {
		t.Error("output should contain component")
	}
	if !strings.Contains(output, "trace-123") {
		t.Error("output should contain trace ID")
	}
	if !strings.Contains(output, "456") {
		t.Error("output should contain tick")
	}
}

func TestWithFieldsNil(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test-service", "info", "json")
	logger.SetOutput(&buf)

	// Should not panic with nil fields
	entry := logger.WithFields(nil)
	entry.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "test-service") {
		t.Error("output should contain service name")
	}
}
