package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingHandler struct {
	enabled bool
	handled int
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return h.enabled }
func (h *recordingHandler) Handle(context.Context, slog.Record) error {
	h.handled++
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestMultiHandler_HandlesOnlyEnabledSubHandlers(t *testing.T) {
	a := &recordingHandler{enabled: true}
	b := &recordingHandler{enabled: false}
	h := NewMultiHandler(a, b)

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	require := h.Handle(context.Background(), slog.Record{})
	assert.NoError(t, require)
	assert.Equal(t, 1, a.handled)
	assert.Equal(t, 0, b.handled)
}

func TestMultiHandler_EnabledFalseWhenAllSubHandlersDisabled(t *testing.T) {
	h := NewMultiHandler(&recordingHandler{enabled: false}, &recordingHandler{enabled: false})
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
}
