package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitTogglesDebugEnabled(t *testing.T) {
	Init(true)
	assert.True(t, DebugEnabled())
	Init(false)
	assert.False(t, DebugEnabled())
}

func TestForRunStampsRunID(t *testing.T) {
	Init(true)

	var buf bytes.Buffer
	logger := ForRun("20260829-120000-abc123").Output(&buf)
	logger.Info().Msg("state transition")

	assert.Contains(t, buf.String(), "20260829-120000-abc123")
	assert.Contains(t, buf.String(), "state transition")
}
