package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, LogLevelDebug, ParseLogLevel(" debug "))
	assert.Equal(t, LogLevelTrace, ParseLogLevel("TRACE"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("verbose"))
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, LogLevelWarn)

	l.Info("hidden %d", 1)
	l.Debug("hidden %d", 2)
	assert.Empty(t, buf.String())

	l.Warn("shown %d", 3)
	assert.Contains(t, buf.String(), "shown 3")
	assert.Equal(t, LogLevelWarn, l.GetLevel())
}

func TestLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, LogLevelDebug).Trace("hidden %d", 1)
	assert.Empty(t, buf.String())

	NewLoggerTo(&buf, LogLevelTrace).Trace("iteration %d failed", 7)
	assert.Contains(t, buf.String(), "iteration 7 failed")
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, LogLevelInfo).WithFields(map[string]interface{}{"analysis_id": "abc"})

	l.Info("started")
	assert.Contains(t, buf.String(), "analysis_id=abc")
	assert.Contains(t, buf.String(), "started")
}
