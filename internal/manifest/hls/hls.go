// Package hls implements the line-oriented HLS playlist parser (C2).
// Grounded in the teacher's internal/hls.GenerateMediaPlaylist, which builds
// the same tag vocabulary in the opposite direction; here we tokenize an
// existing playlist instead of writing one.
package hls

import (
	"bufio"
	"bytes"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/manifest"
)

// Parser implements manifest.Parser for HLS media and multivariant
// playlists.
type Parser struct{}

var _ manifest.Parser = Parser{}

// Parse tokenizes an HLS playlist into a canonical ManifestView. baseURL is
// used to resolve relative segment and child-playlist URIs.
func (Parser) Parse(data []byte, baseURL string) (*canon.ManifestView, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &manifest.ParseError{Format: "hls", Reason: "invalid base URL: " + err.Error()}
	}

	view := &canon.ManifestView{RawSize: len(data)}

	var (
		mediaSequence     int64
		discSeq           int64
		pendingDisc       bool
		pendingPDT        time.Time
		pendingPDTSet     bool
		pendingAd         *canon.AdSignal
		segmentsEmitted   int64
		sawStreamInfOrMed bool
		cumPDT            time.Time
		cumPDTValid       bool
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			v, _ := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-VERSION:"))
			view.Header.Version = v

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			d, _ := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)
			view.Header.TargetDurationSec = d

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			v, _ := strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64)
			mediaSequence = v

		case strings.HasPrefix(line, "#EXT-X-DISCONTINUITY-SEQUENCE:"):
			v, _ := strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-DISCONTINUITY-SEQUENCE:"), 10, 64)
			discSeq = v

		case line == "#EXT-X-DISCONTINUITY":
			discSeq++
			pendingDisc = true

		case strings.HasPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:"):
			raw := strings.TrimPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:")
			t, perr := parsePDT(raw)
			if perr == nil {
				pendingPDT = t
				pendingPDTSet = true
			}

		case strings.HasPrefix(line, "#EXT-X-CUE-OUT"):
			ad := ensureAd(&pendingAd)
			ad.CueOut = true
			if idx := strings.Index(line, ":"); idx >= 0 {
				d, _ := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64)
				ad.CueOutDurationSec = d
			}

		case line == "#EXT-X-CUE-IN":
			ad := ensureAd(&pendingAd)
			ad.CueIn = true

		case strings.HasPrefix(line, "#EXT-X-DATERANGE:"):
			attrs := parseAttributeList(strings.TrimPrefix(line, "#EXT-X-DATERANGE:"))
			ad := ensureAd(&pendingAd)
			if id, ok := attrs["ID"]; ok {
				ad.DateRangeID = id
			}
			if _, ok := attrs["SCTE35-OUT"]; ok {
				ad.DateRangeSCTEOut = true
			}
			if _, ok := attrs["SCTE35-IN"]; ok {
				ad.DateRangeSCTEIn = true
			}
			if d, ok := attrs["DURATION"]; ok {
				ad.DateRangeDurationSec, _ = strconv.ParseFloat(d, 64)
			} else if d, ok := attrs["PLANNED-DURATION"]; ok {
				ad.DateRangeDurationSec, _ = strconv.ParseFloat(d, 64)
			}

		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"), strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			sawStreamInfOrMed = true

		case strings.HasPrefix(line, "#EXTINF:"):
			rest := strings.TrimPrefix(line, "#EXTINF:")
			rest = strings.SplitN(rest, ",", 2)[0]
			d, _ := strconv.ParseFloat(strings.TrimSpace(rest), 64)

			seq := mediaSequence + segmentsEmitted
			ref, uerr := url.Parse(nextNonTagLine(sc, &line))
			if uerr != nil {
				continue
			}
			segURL := base.ResolveReference(ref).String()

			rec := canon.SegmentRecord{
				Seq:               canon.Sequence{MediaSequence: seq},
				DurationSec:       d,
				DiscontinuityFlag: pendingDisc,
				DiscontinuitySeq:  discSeq,
				URL:               segURL,
				Ad:                pendingAd,
			}

			if pendingPDTSet {
				rec.PDT = pendingPDT
				rec.PDTExplicit = true
				cumPDT = pendingPDT
				cumPDTValid = true
			} else if cumPDTValid {
				cumPDT = cumPDT.Add(time.Duration(d * float64(time.Second)))
				rec.PDT = cumPDT
				rec.PDTExplicit = false
			}

			view.Segments = append(view.Segments, rec)
			segmentsEmitted++
			pendingDisc = false
			pendingPDTSet = false
			pendingAd = nil
		}
	}

	view.IsPrimary = sawStreamInfOrMed
	return view, sc.Err()
}

// nextNonTagLine consumes scanner lines until it finds one that is not a
// comment/tag (doesn't start with '#') and returns it; *cur tracks the
// last raw line seen for callers that peek ahead.
func nextNonTagLine(sc *bufio.Scanner, cur *string) string {
	for sc.Scan() {
		l := strings.TrimSpace(sc.Text())
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, "#") {
			// Tags between EXTINF and the URL (rare) are ignored here; the
			// dominant case is EXTINF immediately followed by the URL line.
			continue
		}
		*cur = l
		return l
	}
	return ""
}

func ensureAd(p **canon.AdSignal) *canon.AdSignal {
	if *p == nil {
		*p = &canon.AdSignal{}
	}
	return *p
}

// parsePDT accepts RFC3339 timestamps with or without fractional seconds.
func parsePDT(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// parseAttributeList parses a comma-separated ATTR=VALUE list where VALUE
// may be a quoted string containing commas, as used by EXT-X-DATERANGE.
func parseAttributeList(s string) map[string]string {
	out := map[string]string{}
	var key strings.Builder
	var val strings.Builder
	inQuotes := false
	inKey := true

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
			if inKey {
				key.WriteRune(r)
			} else {
				val.WriteRune(r)
			}
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
