// Package discover implements the Rendition Discoverer (C3): given a
// top-level manifest, it enumerates the child renditions an endpoint
// exposes and narrows them to the ones a Selector asks for.
package discover

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ericcug/streamcanary/internal/canon"
	dashfmt "github.com/ericcug/streamcanary/internal/manifest/dash"
)

// Candidate is one enumerated rendition before selection narrows the set.
type Candidate struct {
	Role    canon.Role
	Ordinal int
	Anchor  canon.AnchorKey
}

// FromHLS enumerates renditions from a multivariant (primary) HLS
// playlist's raw bytes, deduplicating by URL and numbering ordinals per
// role in document order. #EXT-X-STREAM-INF lines yield RoleVideo;
// #EXT-X-MEDIA lines yield the role named by their TYPE attribute.
func FromHLS(data []byte, baseURL string) ([]Candidate, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("discover: invalid base URL: %w", err)
	}

	var out []Candidate
	seen := map[string]bool{}
	counts := map[canon.Role]int{}

	lines := strings.Split(string(data), "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			uri := nextURI(lines, i)
			if uri == "" || seen[uri] {
				continue
			}
			seen[uri] = true
			ref, perr := url.Parse(uri)
			if perr != nil {
				continue
			}
			counts[canon.RoleVideo]++
			out = append(out, Candidate{
				Role:    canon.RoleVideo,
				Ordinal: counts[canon.RoleVideo],
				Anchor:  canon.AnchorKey{URL: base.ResolveReference(ref).String()},
			})

		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			attrs := parseAttrs(strings.TrimPrefix(line, "#EXT-X-MEDIA:"))
			uri := attrs["URI"]
			if uri == "" || seen[uri] {
				continue
			}
			seen[uri] = true
			role := roleFromMediaType(attrs["TYPE"])
			ref, perr := url.Parse(uri)
			if perr != nil {
				continue
			}
			counts[role]++
			out = append(out, Candidate{
				Role:    role,
				Ordinal: counts[role],
				Anchor:  canon.AnchorKey{URL: base.ResolveReference(ref).String()},
			})
		}
	}
	return out, nil
}

func nextURI(lines []string, tagIdx int) string {
	for i := tagIdx + 1; i < len(lines); i++ {
		l := strings.TrimSpace(lines[i])
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, "#") {
			continue
		}
		return l
	}
	return ""
}

func roleFromMediaType(t string) canon.Role {
	switch strings.ToUpper(t) {
	case "AUDIO":
		return canon.RoleAudio
	case "SUBTITLES", "CLOSED-CAPTIONS":
		return canon.RoleSubtitle
	default:
		return canon.RoleVideo
	}
}

func parseAttrs(s string) map[string]string {
	out := map[string]string{}
	var key, val strings.Builder
	inQuotes, inKey := false, true
	flush := func() {
		k := strings.TrimSpace(key.String())
		v := strings.Trim(strings.TrimSpace(val.String()), `"`)
		if k != "" {
			out[k] = v
		}
		key.Reset()
		val.Reset()
		inKey = true
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == '=' && inKey && !inQuotes:
			inKey = false
		case r == ',' && !inQuotes:
			flush()
		default:
			if inKey {
				key.WriteRune(r)
			} else {
				val.WriteRune(r)
			}
		}
	}
	flush()
	return out
}

// FromDASH enumerates Representations across every AdaptationSet of the
// MPD's first Period, keyed by mimeType/contentType.
func FromDASH(data []byte) ([]Candidate, error) {
	var mpd dashfmt.MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	if len(mpd.Periods) == 0 {
		return nil, fmt.Errorf("discover: MPD has no periods")
	}

	var out []Candidate
	counts := map[canon.Role]int{}
	for _, set := range mpd.Periods[0].Sets {
		role := roleFromContentType(set.ContentType, set.MimeType)
		for _, rep := range set.Representations {
			counts[role]++
			out = append(out, Candidate{
				Role:    role,
				Ordinal: counts[role],
				Anchor: canon.AnchorKey{
					RepresentationID: rep.ID,
					MimeType:         set.MimeType,
				},
			})
		}
	}
	return out, nil
}

func roleFromContentType(contentType, mimeType string) canon.Role {
	switch {
	case strings.Contains(contentType, "video"), strings.Contains(mimeType, "video"):
		return canon.RoleVideo
	case strings.Contains(contentType, "audio"), strings.Contains(mimeType, "audio"):
		return canon.RoleAudio
	case strings.Contains(contentType, "text"), strings.Contains(mimeType, "text"):
		return canon.RoleSubtitle
	default:
		return canon.RoleVideo
	}
}

// FromSmooth enumerates QualityLevels within every StreamIndex of a
// Smooth Streaming Manifest.
func FromSmooth(data []byte) ([]Candidate, error) {
	type qualityLevel struct {
		Index int `xml:"Index,attr"`
	}
	type streamIndex struct {
		Type          string         `xml:"Type,attr"`
		QualityLevels []qualityLevel `xml:"QualityLevel"`
	}
	type media struct {
		XMLName     xml.Name      `xml:"SmoothStreamingMedia"`
		StreamIndex []streamIndex `xml:"StreamIndex"`
	}

	var m media
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	var out []Candidate
	counts := map[canon.Role]int{}
	for _, si := range m.StreamIndex {
		role := roleFromSmoothType(si.Type)
		for _, ql := range si.QualityLevels {
			counts[role]++
			out = append(out, Candidate{
				Role:    role,
				Ordinal: counts[role],
				Anchor: canon.AnchorKey{
					StreamType:   si.Type,
					QualityLevel: ql.Index,
				},
			})
		}
	}
	return out, nil
}

func roleFromSmoothType(t string) canon.Role {
	switch strings.ToLower(t) {
	case "audio":
		return canon.RoleAudio
	case "text":
		return canon.RoleSubtitle
	default:
		return canon.RoleVideo
	}
}

// Select narrows a candidate list down per a canon.Selector.
func Select(candidates []Candidate, sel canon.Selector) ([]Candidate, error) {
	switch sel.Mode {
	case canon.SelectAll:
		return candidates, nil

	case canon.SelectPlayer:
		byRole := map[canon.Role]Candidate{}
		for _, c := range candidates {
			if _, ok := byRole[c.Role]; !ok {
				byRole[c.Role] = c
			}
		}
		var out []Candidate
		for _, role := range []canon.Role{canon.RoleVideo, canon.RoleAudio, canon.RoleSubtitle} {
			if c, ok := byRole[role]; ok {
				out = append(out, c)
			}
		}
		return out, nil

	case canon.SelectSingle:
		for _, c := range candidates {
			if c.Role == sel.Role && c.Ordinal == sel.Ordinal {
				return []Candidate{c}, nil
			}
		}
		return nil, fmt.Errorf("discover: no rendition matching %s%s", roleLetter(sel.Role), strconv.Itoa(sel.Ordinal))

	default:
		return nil, fmt.Errorf("discover: unknown selection mode %q", sel.Mode)
	}
}

func roleLetter(r canon.Role) string {
	switch r {
	case canon.RoleVideo:
		return "v"
	case canon.RoleAudio:
		return "a"
	case canon.RoleSubtitle:
		return "s"
	default:
		return "?"
	}
}
