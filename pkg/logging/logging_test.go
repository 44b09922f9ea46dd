package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFilteringSuppressesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", &buf, true)

	l.Infof("should not appear")
	l.Warnf("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
	assert.Contains(t, out, "[WARN]")
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
}

func TestPlainModeOmitsEscapeCodes(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", &buf, true)
	l.Errorf("boom")
	assert.False(t, strings.Contains(buf.String(), "\x1b["))
}

func TestNoOpDiscardsEverything(t *testing.T) {
	var l NoOp
	l.Debugf("x")
	l.Infof("x")
	l.Warnf("x")
	l.Errorf("x")
}
