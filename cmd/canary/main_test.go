package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/config"
	"github.com/ericcug/streamcanary/internal/monitor"
)

func TestApplyFileSettingsDoesNotOverrideExplicitFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Set("log-level", "debug"))

	fs := &config.FileSettings{LogLevel: "error", FrequencySec: 3}
	f := &flags{logLevel: "debug", frequencySec: 0}
	applyFileSettings(cmd, f, fs)

	assert.Equal(t, "debug", f.logLevel, "explicit flag must win over file setting")
	assert.Equal(t, 3.0, f.frequencySec, "unset flag falls back to file setting")
}

func TestParseSegmentRequestMode(t *testing.T) {
	mode, err := parseSegmentRequestMode("")
	require.NoError(t, err)
	assert.Equal(t, monitor.SegmentRequestsOff, mode)

	mode, err = parseSegmentRequestMode("head")
	require.NoError(t, err)
	assert.Equal(t, monitor.SegmentRequestsHead, mode)

	mode, err = parseSegmentRequestMode("get")
	require.NoError(t, err)
	assert.Equal(t, monitor.SegmentRequestsGet, mode)

	_, err = parseSegmentRequestMode("bogus")
	assert.Error(t, err)
}
