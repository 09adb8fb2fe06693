package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "job"))

	log.Info("window completed", Int("ticks", 3), Float64("depth", 1e8), Err(errors.New("boom")))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "window completed", line["message"])
	assert.Equal(t, "job", line["comp"])
	assert.EqualValues(t, 3, line["ticks"])
	assert.Equal(t, "boom", line["err"])
	assert.Contains(t, line["caller"], "logging_test.go")
}

func TestWriterLoggerFieldNamesWithoutService(t *testing.T) {
	zerolog.ErrorFieldName = "error"
	globalsOnce = sync.Once{}

	var buf bytes.Buffer
	NewWriter(&buf, "info").Error("failed", Err(errors.New("boom")))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "boom", line["err"])
	ts, ok := line["time"].(string)
	require.True(t, ok)
	_, err := time.Parse(consoleTimeFormat, ts)
	assert.NoError(t, err)
}

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")

	log.Info("dropped")
	log.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
	assert.False(t, log.Enabled(LevelDebug))
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	assert.NotPanics(t, func() { log.Info("nothing") })
	assert.False(t, Nop().IsZero())
}

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel(" warning ")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, lvl)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchsim.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("first")
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Info("second")
	log.Error("third")

	require.NoError(t, svc.Close())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.True(t, strings.Contains(out, "first"))
	assert.False(t, strings.Contains(out, "second"))
	assert.True(t, strings.Contains(out, "third"))
}
