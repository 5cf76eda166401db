package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRecord struct {
	level slog.Level
	msg   string
	attrs map[string]slog.Value
}

type captureHandler struct {
	records []capturedRecord
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	rec := capturedRecord{level: r.Level, msg: r.Message, attrs: make(map[string]slog.Value)}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value
		return true
	})
	h.records = append(h.records, rec)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func withCapture(t *testing.T) *captureHandler {
	t.Helper()
	capture := &captureHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(capture))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return capture
}

func TestLogQuery(t *testing.T) {
	capture := withCapture(t)

	LogQuery("UPDATE teams SET balance = balance - 5", 3*time.Millisecond, 1, nil)
	LogQuery("SELECT 1", time.Millisecond, 0, errors.New("connection reset"))

	require.Len(t, capture.records, 2)

	ok := capture.records[0]
	assert.Equal(t, slog.LevelDebug, ok.level)
	assert.Equal(t, "Query executed", ok.msg)
	assert.Equal(t, "db", ok.attrs["type"].String())
	assert.Equal(t, int64(1), ok.attrs["affected_rows"].Int64())

	failed := capture.records[1]
	assert.Equal(t, slog.LevelError, failed.level)
	assert.Equal(t, "Query failed", failed.msg)
	assert.Equal(t, "db", failed.attrs["type"].String())
}

func TestLogSystemAndLogError(t *testing.T) {
	capture := withCapture(t)

	LogSystem("Service ready", slog.String("version", "dev"))
	LogError("Sweep failed", errors.New("boom"))

	require.Len(t, capture.records, 2)

	sys := capture.records[0]
	assert.Equal(t, slog.LevelInfo, sys.level)
	assert.Equal(t, "sys", sys.attrs["type"].String())
	assert.Equal(t, "dev", sys.attrs["version"].String())

	fail := capture.records[1]
	assert.Equal(t, slog.LevelError, fail.level)
	assert.Equal(t, "error", fail.attrs["type"].String())
}
