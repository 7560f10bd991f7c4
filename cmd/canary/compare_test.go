package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericcug/streamcanary/internal/canon"
)

func TestParseForcedOrSniffedType(t *testing.T) {
	typ, err := parseForcedOrSniffedType("", "/tmp/live.m3u8")
	assert.NoError(t, err)
	assert.Equal(t, canon.TypeHLS, typ)

	typ, err = parseForcedOrSniffedType("", "/tmp/manifest.mpd")
	assert.NoError(t, err)
	assert.Equal(t, canon.TypeDASH, typ)

	typ, err = parseForcedOrSniffedType("dash", "/tmp/live.m3u8")
	assert.NoError(t, err)
	assert.Equal(t, canon.TypeDASH, typ)

	_, err = parseForcedOrSniffedType("bogus", "/tmp/live.m3u8")
	assert.Error(t, err)
}

func TestParserForUnknownTypeErrors(t *testing.T) {
	_, err := parserFor("")
	assert.Error(t, err)
}
