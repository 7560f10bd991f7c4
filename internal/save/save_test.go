package save_test

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/save"
)

func testRendition() canon.Rendition {
	return canon.Rendition{
		Endpoint: canon.Endpoint{Name: "ep1", Type: canon.TypeHLS},
		Role:     canon.RoleVideo,
		Ordinal:  1,
	}
}

func TestFilesystemSaverWritesPlainManifest(t *testing.T) {
	dir := t.TempDir()
	s := save.New(dir, false, false)

	at := time.Date(2026, 7, 30, 10, 0, 0, 123000, time.UTC)
	require.NoError(t, s.SaveManifest(testRendition(), at, []byte("#EXTM3U\n")))

	entries, err := os.ReadDir(filepath.Join(dir, "manifests", "ep1-video-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2026_07_30_10_00_00_000123.m3u8", entries[0].Name())

	body, err := os.ReadFile(filepath.Join(dir, "manifests", "ep1-video-1", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(body))
}

func TestFilesystemSaverDayPartitionedAndGzip(t *testing.T) {
	dir := t.TempDir()
	s := save.New(dir, true, true)

	at := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSegment(testRendition(), at, "https://example.com/seg.ts", []byte("binary-segment-data")))

	dayDir := filepath.Join(dir, "segments", "ep1-video-1", "2026-07-30")
	entries, err := os.ReadDir(dayDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), ".ts.gz")

	f, err := os.Open(filepath.Join(dayDir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "binary-segment-data", string(body))
}

func TestNopSaverDiscards(t *testing.T) {
	var s save.Saver = save.NopSaver{}
	assert.NoError(t, s.SaveManifest(testRendition(), time.Now(), nil))
	assert.NoError(t, s.SaveSegment(testRendition(), time.Now(), "", nil))
	assert.NoError(t, s.SaveTracking(testRendition(), time.Now(), nil))
}
