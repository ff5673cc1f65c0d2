package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newJSONLogger captures JSON log output for assertions.
func newJSONLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json", Level: level})
	return log, &buf
}

func TestNewDefaultsToStdout(t *testing.T) {
	log := New(Config{Level: slog.LevelInfo, Format: "json"})
	require.NotNil(t, log)
	require.NotNil(t, log.Logger)
}

func TestJSONOutput(t *testing.T) {
	log, buf := newJSONLogger(slog.LevelInfo)

	log.Info("search dispatched", "isbn", "9780306406157", "systems", 12)

	out := buf.String()
	assert.Contains(t, out, `"msg":"search dispatched"`)
	assert.Contains(t, out, `"level":"INFO"`)
	assert.Contains(t, out, `"isbn":"9780306406157"`)
	assert.Contains(t, out, `"systems":12`)
}

func TestFormatSelection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		format      string
		wantJSON    bool
	}{
		{name: "production defaults to json", environment: "production", wantJSON: true},
		{name: "development defaults to pretty", environment: "development", wantJSON: false},
		{name: "staging defaults to pretty", environment: "staging", wantJSON: false},
		{name: "explicit format beats environment", environment: "development", format: "json", wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{
				Writer:      &buf,
				Level:       slog.LevelInfo,
				Environment: tt.environment,
				Format:      tt.format,
			})
			log.Info("probe")

			out := buf.String()
			if tt.wantJSON {
				assert.Contains(t, out, `"msg":"probe"`)
			} else {
				assert.NotContains(t, out, `"msg"`)
				assert.Contains(t, out, "probe")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ErRoR", slog.LevelError},
		{"verbose", slog.LevelInfo}, // unknown defaults to info
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newJSONLogger(slog.LevelWarn)

	log.Debug("cache probe")
	log.Info("adapter registered")
	log.Warn("breaker state change")
	log.Error("system search failed")

	out := buf.String()
	assert.NotContains(t, out, "cache probe")
	assert.NotContains(t, out, "adapter registered")
	assert.Contains(t, out, "breaker state change")
	assert.Contains(t, out, "system search failed")
}

func TestWithComponent(t *testing.T) {
	log, buf := newJSONLogger(slog.LevelInfo)

	log.WithComponent("registry").Info("adapter registered", "protocol", "sru")

	out := buf.String()
	assert.Contains(t, out, `"component":"registry"`)
	assert.Contains(t, out, `"protocol":"sru"`)
}

func TestWithSystem(t *testing.T) {
	log, buf := newJSONLogger(slog.LevelInfo)

	log.WithSystem("lakeshore").Warn("health check failed")

	out := buf.String()
	assert.Contains(t, out, `"system":"lakeshore"`)
	assert.Contains(t, out, "health check failed")
}

func TestWithError(t *testing.T) {
	log, buf := newJSONLogger(slog.LevelInfo)

	log.WithError(errors.New("connection refused")).Warn("upstream unreachable")

	out := buf.String()
	assert.Contains(t, out, `"error":"connection refused"`)
	assert.Contains(t, out, "upstream unreachable")
}

func TestWithFieldAndFields(t *testing.T) {
	log, buf := newJSONLogger(slog.LevelInfo)

	log.WithField("searchId", "4bb42122").
		WithFields(map[string]any{
			"isbn":    "9780306406157",
			"systems": 3,
		}).
		Info("search completed")

	out := buf.String()
	assert.Contains(t, out, `"searchId":"4bb42122"`)
	assert.Contains(t, out, `"isbn":"9780306406157"`)
	assert.Contains(t, out, `"systems":3`)
	assert.Contains(t, out, "search completed")
}

func TestChainedHelpers(t *testing.T) {
	log, buf := newJSONLogger(slog.LevelInfo)

	// Component and system tags compose with the error helper, the way
	// the coordinator tags its fan-out logs.
	log.WithComponent("search").
		WithSystem("prairie").
		WithError(errors.New("token request rejected")).
		Error("system search failed")

	out := buf.String()
	assert.Contains(t, out, `"component":"search"`)
	assert.Contains(t, out, `"system":"prairie"`)
	assert.Contains(t, out, `"error":"token request rejected"`)
}

func TestPrettyHandlerEnabled(t *testing.T) {
	tests := []struct {
		name         string
		handlerLevel slog.Level
		checkLevel   slog.Level
		want         bool
	}{
		{"debug handler admits debug", slog.LevelDebug, slog.LevelDebug, true},
		{"info handler blocks debug", slog.LevelInfo, slog.LevelDebug, false},
		{"info handler admits info", slog.LevelInfo, slog.LevelInfo, true},
		{"info handler admits error", slog.LevelInfo, slog.LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: tt.handlerLevel})
			assert.Equal(t, tt.want, h.Enabled(context.Background(), tt.checkLevel))
		})
	}
}

func TestPrettyHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(h)

	log.Info("adapter search", "system", "lakeshore", "elapsedMs", 142)

	out := buf.String()
	assert.Contains(t, out, "adapter search")
	assert.Contains(t, out, "system=lakeshore")
	assert.Contains(t, out, "elapsedMs=142")
	assert.Contains(t, out, "INF")

	// Output opens with an HH:MM:SS timestamp.
	fields := strings.Fields(out)
	require.NotEmpty(t, fields)
	assert.GreaterOrEqual(t, len(fields[0]), 8)
}

func TestPrettyHandlerLevelTags(t *testing.T) {
	levels := []struct {
		level slog.Level
		tag   string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
	}

	for _, tt := range levels {
		t.Run(tt.tag, func(t *testing.T) {
			var buf bytes.Buffer
			h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
			slog.New(h).Log(context.Background(), tt.level, "probe")
			assert.Contains(t, buf.String(), tt.tag)

			str, color := formatLevel(tt.level)
			assert.Equal(t, tt.tag, str)
			assert.NotEmpty(t, color)
		})
	}
}

func TestPrettyHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	tagged := h.WithAttrs([]slog.Attr{
		slog.String("component", "coordinator"),
		slog.Int("workers", 4),
	})
	slog.New(tagged).Info("fan-out started")

	out := buf.String()
	assert.Contains(t, out, "component=coordinator")
	assert.Contains(t, out, "workers=4")
	assert.Contains(t, out, "fan-out started")
}

func TestPrettyHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	assert.Equal(t, h, h.WithGroup(""), "empty group is a no-op")

	grouped := h.WithGroup("request")
	assert.NotEqual(t, h, grouped)
	slog.New(grouped).Info("handled")
	assert.Contains(t, buf.String(), "handled")
}

func TestPrettyHandlerSourceLocation(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo, AddSource: true})

	slog.New(h).Info("probe")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestPrettyHandlerNilOptions(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	require.NotNil(t, h)
	require.NotNil(t, h.opts)

	slog.New(h).Info("probe")
	assert.Contains(t, buf.String(), "probe")
}

func TestPrettyHandlerNoAttributes(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	slog.New(h).Info("cache warmed")

	out := buf.String()
	assert.Contains(t, out, "cache warmed")
	after := strings.SplitN(out, "cache warmed", 2)
	require.Len(t, after, 2)
	assert.NotContains(t, after[1], "=", "no attributes means no key=value tail")
}

func TestFormatValue(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		value slog.Value
		want  string
	}{
		{"string", slog.StringValue("sru"), "sru"},
		{"time", slog.TimeValue(now), now.Format(time.RFC3339)},
		{"duration", slog.DurationValue(1500 * time.Millisecond), "1.5s"},
		{"int", slog.IntValue(14), "14"},
		{"bool", slog.BoolValue(true), "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.value))
		})
	}
}
