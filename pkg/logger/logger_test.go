package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewBackends(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		level   string
		wantErr bool
	}{
		{name: "default_is_zap", backend: "", level: ""},
		{name: "zap_debug", backend: "zap", level: "debug"},
		{name: "logrus_warn", backend: "logrus", level: "warn"},
		{name: "none", backend: "none", level: "info"},
		{name: "unknown_backend", backend: "syslog", wantErr: true},
		{name: "bad_level", backend: "zap", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.backend, tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestZapAdapterFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZap(zap.New(core))

	l.Debug("leaf split", "offset", int64(120), "mid", 2)
	l.Warn("meta invalid")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "leaf split", entries[0].Message)
	assert.Equal(t, int64(120), entries[0].ContextMap()["offset"])
	assert.Equal(t, int64(2), entries[0].ContextMap()["mid"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestLogrusAdapterFields(t *testing.T) {
	var buf bytes.Buffer
	lr := logrus.New()
	lr.SetOutput(&buf)
	lr.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	lr.SetLevel(logrus.DebugLevel)

	l := NewLogrus(lr)
	l.Info("root grew", "height", 2, "dangling")

	out := buf.String()
	assert.Contains(t, out, "root grew")
	assert.Contains(t, out, "height=2")
	assert.NotContains(t, out, "dangling")
}
