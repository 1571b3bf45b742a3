package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLogger(t *testing.T) {
	var out, errOut bytes.Buffer
	l := &ConsoleLogger{Out: &out, Err: &errOut}

	l.Info("streaming %s", "builds")
	l.Debug("hidden")
	l.Error("failed: %d", 3)

	assert.Equal(t, "[INFO] streaming builds\n", out.String())
	assert.Equal(t, "[ERROR] failed: 3\n", errOut.String())

	l.Verbose = true
	l.Debug("shown")
	assert.Contains(t, out.String(), "[DEBUG] shown")
}

func TestSlogLoggerLiftsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLoggerFormat(&buf, "json", false)

	l.Info("[Pipeline] admitted build %s", "abc")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "admitted build abc", record["msg"])
	assert.Equal(t, "Pipeline", record["component"])
	assert.Equal(t, "INFO", record["level"])
}

func TestSlogLoggerDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	NewSlogLoggerFormat(&buf, "text", false).Debug("quiet")
	assert.Empty(t, buf.String())

	NewSlogLoggerFormat(&buf, "text", true).Debug("loud")
	assert.Contains(t, buf.String(), "msg=loud")
}

func TestSplitComponent(t *testing.T) {
	tests := []struct {
		in        string
		component string
		msg       string
	}{
		{"[Stream] connected", "Stream", "connected"},
		{"no prefix", "", "no prefix"},
		{"[unterminated", "", "[unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			component, msg := splitComponent(tt.in)
			assert.Equal(t, tt.component, component)
			assert.Equal(t, tt.msg, msg)
		})
	}
}
