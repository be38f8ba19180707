package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleFormatterLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLoggerWithOutput("debug", &buf)

	logger.WithFields(map[string]interface{}{"turn": -3, "speed": 12}).Infof("control sent")

	line := buf.String()
	assert.Contains(t, line, "[INF] control sent speed=12 turn=-3\n")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLoggerWithOutput("chatty", &buf)

	logger.Debugf("hidden")
	logger.Warnf("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WAR] shown")
}
