package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{name: "debug", level: "debug", want: zerolog.DebugLevel},
		{name: "info", level: "info", want: zerolog.InfoLevel},
		{name: "warn", level: "warn", want: zerolog.WarnLevel},
		{name: "warning alias", level: "warning", want: zerolog.WarnLevel},
		{name: "error", level: "error", want: zerolog.ErrorLevel},
		{name: "mixed case", level: "DEBUG", want: zerolog.DebugLevel},
		{name: "unknown defaults to info", level: "verbose", want: zerolog.InfoLevel},
		{name: "empty defaults to info", level: "", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.level); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: "info", Output: &buf})

	logger.Info().Str("url", "https://example.com").Msg("test event")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if event["url"] != "https://example.com" {
		t.Errorf("url field = %v, want https://example.com", event["url"])
	}
	if event["message"] != "test event" {
		t.Errorf("message field = %v, want 'test event'", event["message"])
	}
	if _, ok := event["time"]; !ok {
		t.Error("expected timestamp field in output")
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: "warn", Output: &buf})

	logger.Info().Msg("filtered")
	if buf.Len() != 0 {
		t.Errorf("info event emitted at warn level: %s", buf.String())
	}

	logger.Warn().Msg("emitted")
	if buf.Len() == 0 {
		t.Error("warn event not emitted at warn level")
	}
}
