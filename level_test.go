package logward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_Ordering(t *testing.T) {
	assert.Less(t, int(ErrorLevel), int(WarnLevel))
	assert.Less(t, int(WarnLevel), int(AuditLevel))
	assert.Less(t, int(AuditLevel), int(InfoLevel))
	assert.Less(t, int(InfoLevel), int(HTTPLevel))
	assert.Less(t, int(HTTPLevel), int(VerboseLevel))
	assert.Less(t, int(VerboseLevel), int(DebugLevel))
	assert.Less(t, int(DebugLevel), int(SillyLevel))
}

func TestLevel_Enabled(t *testing.T) {
	assert.True(t, ErrorLevel.Enabled(InfoLevel))
	assert.True(t, InfoLevel.Enabled(InfoLevel))
	assert.False(t, DebugLevel.Enabled(InfoLevel))
	assert.True(t, SillyLevel.Enabled(SillyLevel))
}

func TestParseLevel_RoundTrip(t *testing.T) {
	for _, lvl := range []Level{ErrorLevel, WarnLevel, AuditLevel, InfoLevel, HTTPLevel, VerboseLevel, DebugLevel, SillyLevel} {
		parsed, err := ParseLevel(lvl.String())
		require.NoError(t, err)
		assert.Equal(t, lvl, parsed)
	}
}

func TestParseLevel_CaseInsensitive(t *testing.T) {
	parsed, err := ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, parsed)
}

func TestParseLevel_Unknown(t *testing.T) {
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevel_UnknownString(t *testing.T) {
	assert.Equal(t, "unknown", Level(99).String())
}
