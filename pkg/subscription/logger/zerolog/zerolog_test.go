package zerolog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ridgelist/ridgelist/pkg/subscription"
)

func TestLogger_WritesAllLevels(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Debug("debug message", subscription.Field{Key: "key", Value: "value"})
	logger.Info("info message", subscription.Field{Key: "key", Value: "value"})
	logger.Warn("warn message", subscription.Field{Key: "key", Value: "value"})
	logger.Error("error message", subscription.Field{Key: "key", Value: "value"})

	lines := strings.Count(output.String(), "\n")
	if lines != 4 {
		t.Errorf("Expected 4 log lines, got %d", lines)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	logger.Debug("debug message")
	logger.Info("info message")
	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	logger.Warn("warn message")
	logger.Error("error message")
	if output.Len() == 0 {
		t.Error("Expected warn and error to be logged")
	}
}

func TestLogger_Fields(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Info("profile reconciled",
		subscription.Field{Key: "kind", Value: "invoice_paid"},
		subscription.Field{Key: "customer", Value: "...US_1"},
	)

	got := output.String()
	if !strings.Contains(got, `"kind":"invoice_paid"`) {
		t.Errorf("Expected kind field in output, got %s", got)
	}
	if !strings.Contains(got, `"customer":"...US_1"`) {
		t.Errorf("Expected customer field in output, got %s", got)
	}
}
