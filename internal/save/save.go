// Package save implements the narrow "save blob" external collaborator
// (A5): a filesystem implementation of the on-disk layout described in
// spec.md §6, plus day-partitioned paths retained from
// original_source/canarymonitor.py's behavior.
package save

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ericcug/streamcanary/internal/canon"
)

// Saver is the narrow persistence interface the Monitor and premonitor
// depend on; spec.md treats the concrete implementation as an external
// collaborator.
type Saver interface {
	SaveManifest(r canon.Rendition, at time.Time, body []byte) error
	SaveSegment(r canon.Rendition, at time.Time, url string, body []byte) error
	SaveTracking(r canon.Rendition, at time.Time, body []byte) error
}

// FilesystemSaver writes blobs under root/{manifests,segments,tracking}/
// per spec.md's on-disk layout.
type FilesystemSaver struct {
	Root           string
	DayPartitioned bool
	Gzip           bool
}

// New creates a FilesystemSaver rooted at root.
func New(root string, dayPartitioned, gzipOnSave bool) *FilesystemSaver {
	return &FilesystemSaver{Root: root, DayPartitioned: dayPartitioned, Gzip: gzipOnSave}
}

func (s *FilesystemSaver) SaveManifest(r canon.Rendition, at time.Time, body []byte) error {
	ext := manifestExt(r.Endpoint.Type)
	return s.write("manifests", r.Name(), at, ext, body)
}

func (s *FilesystemSaver) SaveSegment(r canon.Rendition, at time.Time, url string, body []byte) error {
	return s.write("segments", r.Name(), at, filepath.Ext(url), body)
}

func (s *FilesystemSaver) SaveTracking(r canon.Rendition, at time.Time, body []byte) error {
	return s.write("tracking", r.Name(), at, ".json", body)
}

func manifestExt(t canon.EndpointType) string {
	switch t {
	case canon.TypeHLS:
		return ".m3u8"
	case canon.TypeDASH:
		return ".mpd"
	case canon.TypeSmooth:
		return ".Manifest"
	default:
		return ".bin"
	}
}

// write implements the layout
// <root>/<category>/<name>/[YYYY-MM-DD/]<UTC-timestamp><suffix>[.gz]
// with timestamp format %Y_%m_%d_%H_%M_%S_%f (UTC, microseconds); suffix
// is the file extension including its dot (e.g. ".m3u8", ".ts", ".json").
func (s *FilesystemSaver) write(category, name string, at time.Time, suffix string, body []byte) error {
	dir := filepath.Join(s.Root, category, name)
	if s.DayPartitioned {
		dir = filepath.Join(dir, at.UTC().Format("2006-01-02"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save: mkdir %s: %w", dir, err)
	}

	filename := utcTimestamp(at) + suffix
	if s.Gzip {
		filename += ".gz"
	}
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: create %s: %w", path, err)
	}
	defer f.Close()

	if !s.Gzip {
		_, err = f.Write(body)
		return err
	}

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(body); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

func utcTimestamp(at time.Time) string {
	u := at.UTC()
	return fmt.Sprintf("%04d_%02d_%02d_%02d_%02d_%02d_%06d",
		u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond()/1000)
}

// NopSaver discards every blob; used when persistence is disabled.
type NopSaver struct{}

func (NopSaver) SaveManifest(canon.Rendition, time.Time, []byte) error        { return nil }
func (NopSaver) SaveSegment(canon.Rendition, time.Time, string, []byte) error { return nil }
func (NopSaver) SaveTracking(canon.Rendition, time.Time, []byte) error        { return nil }
