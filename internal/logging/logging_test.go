package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	log, flush, err := New(zapcore.InfoLevel, false)
	require.NoError(t, err)
	defer flush()
	assert.True(t, log.Enabled())
	assert.False(t, log.V(VERBOSE).Enabled())

	dbg, flush2, err := New(zapcore.DebugLevel, true)
	require.NoError(t, err)
	defer flush2()
	assert.True(t, dbg.V(VERBOSE).Enabled())
	assert.True(t, dbg.V(DEBUG).Enabled())

	quiet, flush3, err := New(zapcore.ErrorLevel, false)
	require.NoError(t, err)
	defer flush3()
	assert.False(t, quiet.Enabled())
}
