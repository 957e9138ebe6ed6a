package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sentinelcam-go/internal/config"
)

func TestSetupFallsBackToInfo(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	var buf bytes.Buffer
	Setup(&config.Config{Environment: "production", LogLevel: "chatty"}, &buf)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
	if buf.Len() == 0 {
		t.Fatal("extra writer should receive the invalid level warning")
	}
}

func TestServiceLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	defer func() { log.Logger = prev }()
	log.Logger = zerolog.New(&buf)

	l := WithRun(NewServiceLogger(&config.Config{DeviceID: "dev-9"}, "pipeline"), "run-42")
	l.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["device_id"] != "dev-9" || line["service"] != "pipeline" || line["run_id"] != "run-42" {
		t.Fatalf("missing fields in %v", line)
	}
}

func TestSampledCapsBursts(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	l := Sampled(base, 3, time.Hour)

	for i := 0; i < 50; i++ {
		l.Info().Int("i", i).Msg("skip")
	}

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	if lines < 3 || lines > 4 {
		t.Fatalf("expected about 3 sampled lines, got %d", lines)
	}
}
