// Package config reads the endpoints file and the optional YAML config
// file, and assembles the final process-wide Settings that cmd/canary's
// cobra flags layer on top of. Grounded in the teacher's own
// config.LoadConfig (read-file, unmarshal, validate-and-decode-keys
// pattern), generalized from the teacher's single JSON channel file to a
// plain-text endpoints file plus a YAML settings file, per the rest of
// the corpus's config loaders.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ericcug/streamcanary/internal/canon"
)

// Endpoint is one parsed line of the endpoints file, or one endpoint
// assembled from the single-URL CLI flags.
type Endpoint struct {
	Name        string
	ManifestURL string
	TrackingURL string
	Type        canon.EndpointType // empty means auto-detect
}

// ReadEndpointsFile parses the plain-text, comma-delimited endpoints
// file described in spec.md §6: "name,manifest_url[,tracking_url]".
// Lines starting with '#' or blank are skipped. forceType overrides the
// auto-detect suffix convention for every endpoint in the file when
// non-empty.
func ReadEndpointsFile(path string, forceType canon.EndpointType) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open endpoints file %s: %w", path, err)
	}
	defer f.Close()

	var out []Endpoint
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("config: %s:%d: expected name,manifest_url[,tracking_url], got %q", path, lineNum, line)
		}
		ep := Endpoint{Name: fields[0], ManifestURL: fields[1], Type: forceType}
		if len(fields) >= 3 && fields[2] != "" {
			ep.TrackingURL = fields[2]
		}
		if ep.Name == "" || ep.ManifestURL == "" {
			return nil, fmt.Errorf("config: %s:%d: name and manifest_url are required", path, lineNum)
		}
		out = append(out, ep)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read endpoints file %s: %w", path, err)
	}
	return out, nil
}

// FileSettings is the YAML config file shape: the same fields as the CLI
// flags, so a loaded file can be overridden field-by-field by flags the
// user actually passed. Fields are plain values, so a zero value (empty
// string, 0, false) is treated as "absent from file" and does not override
// the flag default.
type FileSettings struct {
	EndpointsFile         string        `yaml:"endpoints_file"`
	URL                   string        `yaml:"url"`
	TrackingURL           string        `yaml:"tracking_url"`
	Mode                  string        `yaml:"mode"`
	Selector              string        `yaml:"selector"`
	FrequencySec          float64       `yaml:"frequency_seconds"`
	StaleSec              float64       `yaml:"stale_seconds"`
	HTTPTimeoutSec        float64       `yaml:"http_timeout_seconds"`
	SaveManifests         bool          `yaml:"save_manifests"`
	SaveSegments          bool          `yaml:"save_segments"`
	SaveTracking          bool          `yaml:"save_tracking"`
	SaveRoot              string        `yaml:"save_root"`
	GzipOnSave            bool          `yaml:"gzip_on_save"`
	DayPartitioned        bool          `yaml:"day_partitioned"`
	MetricsOn             bool          `yaml:"metrics_on"`
	MetricsRegion         string        `yaml:"metrics_region"`
	MetricsNamespace      string        `yaml:"metrics_namespace"`
	DashboardsOn          bool          `yaml:"dashboards_on"`
	LogLevel              string        `yaml:"log_level"`
	StdoutMirror          bool          `yaml:"stdout_mirror"`
	Properties            []string      `yaml:"properties"`
	Labels                []string      `yaml:"labels"`
	LoadTest              bool          `yaml:"load_test"`
	EMT                   bool          `yaml:"emt"`
	AdSegmentSubstring    string        `yaml:"ad_segment_substring"`
	PlayheadAwareTracking bool          `yaml:"playhead_aware_tracking"`
	CheckTrackingEvents   bool          `yaml:"check_tracking_events"`
	ForceType             string        `yaml:"force_type"`
	SegmentRequests       string        `yaml:"segment_requests"`
	StatusAddr            string        `yaml:"status_addr"`
}

// LoadFileSettings reads and parses the optional YAML config file. A
// missing path is not an error: callers pass "" or a nonexistent
// optional path and get a zero-valued FileSettings back, since the file
// is optional and flags carry their own defaults.
func LoadFileSettings(path string) (*FileSettings, error) {
	if path == "" {
		return &FileSettings{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileSettings{}, nil
		}
		return nil, fmt.Errorf("config: read config file %s: %w", path, err)
	}
	var fs FileSettings
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("config: parse config file %s: %w", path, err)
	}
	return &fs, nil
}

// ParseSelector turns a mode ("single", "all" or "player") and, for single
// mode, a selector token like "v3", "a1" or "s1" into a canon.Selector.
// Single-rendition tokens are role-letter + 1-based ordinal; "all" selects
// every rendition; "player" selects the first candidate of each role.
func ParseSelector(mode, token string) (canon.Selector, error) {
	switch strings.ToLower(mode) {
	case "", "single":
		return parseSingleSelector(token)
	case "all":
		return canon.Selector{Mode: canon.SelectAll}, nil
	case "player":
		return canon.Selector{Mode: canon.SelectPlayer}, nil
	default:
		return canon.Selector{}, fmt.Errorf("config: unknown rendition mode %q", mode)
	}
}

func parseSingleSelector(token string) (canon.Selector, error) {
	if token == "" {
		return canon.Selector{Mode: canon.SelectSingle, Role: canon.RoleVideo, Ordinal: 1}, nil
	}
	if len(token) < 2 {
		return canon.Selector{}, fmt.Errorf("config: invalid selector %q, expected e.g. v3, a1, s1", token)
	}
	var role canon.Role
	switch token[0] {
	case 'v', 'V':
		role = canon.RoleVideo
	case 'a', 'A':
		role = canon.RoleAudio
	case 's', 'S':
		role = canon.RoleSubtitle
	default:
		return canon.Selector{}, fmt.Errorf("config: invalid selector %q, expected leading v/a/s", token)
	}
	var ordinal int
	if _, err := fmt.Sscanf(token[1:], "%d", &ordinal); err != nil || ordinal < 1 {
		return canon.Selector{}, fmt.Errorf("config: invalid selector ordinal in %q", token)
	}
	return canon.Selector{Mode: canon.SelectSingle, Role: role, Ordinal: ordinal}, nil
}

// ParseEndpointType maps a --force-type flag value (or endpoints-file
// override) to a canon.EndpointType, returning "" for "" or "auto".
func ParseEndpointType(s string) (canon.EndpointType, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return "", nil
	case "hls":
		return canon.TypeHLS, nil
	case "dash":
		return canon.TypeDASH, nil
	case "smooth":
		return canon.TypeSmooth, nil
	default:
		return "", fmt.Errorf("config: unknown endpoint type %q", s)
	}
}
