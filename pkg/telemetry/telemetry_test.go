package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/telos-ai/telos/pkg/core"
)

func TestInitWithConfigRejectsUnknownExporter(t *testing.T) {
	_, err := InitWithConfig("telos-test", "0.0.0", Config{Exporter: "carrier-pigeon"})
	if err == nil {
		t.Fatal("unknown exporter must be rejected")
	}
}

func TestInitWithConfigRequiresOTLPEndpoint(t *testing.T) {
	_, err := InitWithConfig("telos-test", "0.0.0", Config{Exporter: "otlp"})
	if err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("want endpoint error, got %v", err)
	}
}

func TestConfigureSlogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "json")

	logger.Info("should be dropped")
	logger.Warn("should appear", "key", "value")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Fatal("info leaked through warn level")
	}
	if !strings.Contains(out, "should appear") || !strings.Contains(out, `"key":"value"`) {
		t.Fatalf("warn output missing: %s", out)
	}
}

func TestConfigureSlogInjectsMissionIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := core.WithMissionID(context.Background(), "m-42")
	ctx = core.WithRunID(ctx, "run-abc")
	logger.InfoContext(ctx, "task.started")

	out := buf.String()
	if !strings.Contains(out, `"mission_id":"m-42"`) || !strings.Contains(out, `"run_id":"run-abc"`) {
		t.Fatalf("mission ids missing from log record: %s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" info  ": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLogLevel(input); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestMissionMetricsNilSafe(t *testing.T) {
	var m *MissionMetrics
	ctx := context.Background()
	m.RecordTask(ctx, "m1", "succeeded")
	m.RecordTierOneRetry(ctx, "m1", "timeout")
	m.RecordResearch(ctx, "m1", "resolved")
	m.RecordEscalation(ctx, "m1", "circuit-breaker")
	m.RecordToTNodes(ctx, "m1", 6)
	m.RecordKnowledgeConflict(ctx, "m1")
}

func TestNewMissionMetrics(t *testing.T) {
	m, err := NewMissionMetrics()
	if err != nil {
		t.Fatalf("NewMissionMetrics: %v", err)
	}
	// counters on the default no-op meter still accept records
	m.RecordTask(context.Background(), "m1", "succeeded")
	m.RecordToTNodes(context.Background(), "m1", 3)
}
