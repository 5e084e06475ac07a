package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&LogCfg{
		LogLevel: "debug",
		LogDir:   tmpDir,
		LogFile:  "test.log",
	})

	assert.NoError(t, err)
	assert.NotNil(t, logger)

	err = logger.Close()
	assert.NoError(t, err)
}

func TestLogger_WritesJSONFile(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&LogCfg{
		LogLevel: "info",
		LogDir:   tmpDir,
		LogFile:  "info.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("upload finished for doc_id=%s", "D1")
	logger.log(slog.LevelInfo, "normalize finished", map[string]interface{}{"doc_id": "D1", "width": 1920})

	data, err := os.ReadFile(filepath.Join(tmpDir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "upload finished for doc_id=D1")
	assert.Contains(t, string(data), "normalize finished")
	assert.Contains(t, string(data), "doc_id")
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&LogCfg{
		LogLevel: "info",
		LogDir:   tmpDir,
		LogFile:  "close.log",
	})
	require.NoError(t, err)

	// Shutdown paths and deferred test cleanups both close the logger;
	// the second call must be a no-op, not a panic.
	assert.NoError(t, logger.Close())
	assert.NotPanics(t, func() { _ = logger.Close() })
}

func TestLogger_DebugSuppressedAtInfoLevel(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&LogCfg{
		LogLevel: "info",
		LogDir:   tmpDir,
		LogFile:  "suppress.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug("should not appear")

	data, err := os.ReadFile(filepath.Join(tmpDir, "suppress.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should not appear")
}

func TestLogger_TaggedHelpers(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(&LogCfg{
		LogLevel: "info",
		LogDir:   tmpDir,
		LogFile:  "tags.log",
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.InfoTTS("playback started id=%d", 3)
	logger.InfoSTT("transcription done")
	logger.InfoTag("RECOVER", "session rebuilt")

	data, err := os.ReadFile(filepath.Join(tmpDir, "tags.log"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "[TTS] playback started id=3")
	assert.Contains(t, text, "[STT] transcription done")
	assert.Contains(t, text, "[RECOVER] session rebuilt")
}

func TestFormatLog(t *testing.T) {
	assert.Equal(t, "[UPLOAD] done", FormatLog("UPLOAD", "done"))
	assert.Equal(t, "[CHAT] kept", FormatLog("UPLOAD", "[CHAT] kept"))
	assert.Equal(t, "bare", FormatLog("", "bare"))
	assert.True(t, strings.HasPrefix(FormatLog("STT", "x"), "[STT]"))
}
