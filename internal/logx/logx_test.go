package logx

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Setenv("ENV", "test")
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		SetLevel("info")
	})
	return &buf
}

func TestInfo_PlainFormat(t *testing.T) {
	buf := captureLog(t)

	Info("Upload", "sent %d parts", 3)

	require.Equal(t, "[INFO] [Upload] sent 3 parts\n", buf.String())
}

func TestSetLevel_FiltersLowerLevels(t *testing.T) {
	buf := captureLog(t)

	SetLevel("warn")
	Debug("Upload", "debug")
	Info("Upload", "info")
	Warn("Upload", "warn")
	Error("Upload", "error")

	require.NotContains(t, buf.String(), "debug")
	require.NotContains(t, buf.String(), "[INFO]")
	require.Contains(t, buf.String(), "[WARN] [Upload] warn")
	require.Contains(t, buf.String(), "[ERROR] [Upload] error")
}

func TestSetLevel_UnknownIgnored(t *testing.T) {
	buf := captureLog(t)

	SetLevel("verbose")
	Debug("Upload", "hidden")

	require.Empty(t, buf.String())
}

func TestTimer_End(t *testing.T) {
	buf := captureLog(t)

	d := Start("batch-1", "Batch", "upload").End()

	require.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
	require.Contains(t, buf.String(), "[TIMING] upload")
}
