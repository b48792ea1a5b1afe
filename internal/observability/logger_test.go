// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/formpilot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// lockedBuffer lets the console core write into memory safely.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestInitialize(t *testing.T) {
	t.Run("console format colors the level and suffixes the name", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "formpilot",
			Colors:      config.ColorConfig{Info: "green"},
		}, out)

		GetLogger().Named("filler").Info("Field filled.")
		Sync()

		line := out.String()
		assert.Contains(t, line, ansiColors["green"]+"INFO"+colorReset)
		assert.Contains(t, line, "formpilot.filler.")
		assert.Contains(t, line, "Field filled.")
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "svc"}, out)
		GetLogger().Warn("Submission rejected.", zap.Int("attempt", 2))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "svc", entry["logger"])
		assert.Equal(t, "Submission rejected.", entry["msg"])
		assert.EqualValues(t, 2, entry["attempt"])
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "loud", Format: "json"}, out)
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")

		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("file core receives json entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		logFile := filepath.Join(t.TempDir(), "run.log")

		Initialize(config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1}, &lockedBuffer{})
		GetLogger().Info("To the file.", zap.String("stage", "extract"))
		Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"stage":"extract"`)
		assert.Contains(t, string(data), `"msg":"To the file."`)
	})

	t.Run("second initialize is a no-op", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		first, second := &lockedBuffer{}, &lockedBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)
		GetLogger().Info("once")

		assert.Contains(t, first.String(), "once")
		assert.Empty(t, second.String())
	})
}

func TestSetLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	out := &lockedBuffer{}

	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, out)
	GetLogger().Debug("before")
	SetLevel(zapcore.DebugLevel)
	GetLogger().Debug("after")

	assert.NotContains(t, out.String(), "before")
	assert.Contains(t, out.String(), "after")
}

func TestForRun(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	out := &lockedBuffer{}

	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, out)
	ForRun("0123456789abcdef", "https://jobs.example.com/1").Info("Run started.")

	assert.Contains(t, out.String(), `"run_id":"01234567"`)
	assert.Contains(t, out.String(), `"job_url":"https://jobs.example.com/1"`)
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	assert.NotNil(t, GetLogger())
}
