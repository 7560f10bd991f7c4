package dash

import (
	"encoding/xml"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/manifest"
)

// Parser implements manifest.Parser for MPEG-DASH MPDs. It flattens a
// single Representation's timeline into canon.SegmentRecords; callers pick
// the Representation via the AnchorKey before calling Parse, since an MPD
// without an explicit representation filter would otherwise need to emit
// one ManifestView per rendition.
type Parser struct {
	// RepresentationID selects, in each Period, the first Representation
	// with this id across all AdaptationSets; when empty the first
	// Representation of the first AdaptationSet is used.
	RepresentationID string
}

var _ manifest.Parser = Parser{}

const scteUTCScheme = "urn:mpeg:dash:utc:direct:2014"

// Parse decodes MPD XML into a canonical ManifestView covering the
// selected Representation across every Period.
func (p Parser) Parse(data []byte, baseURL string) (*canon.ManifestView, error) {
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, &manifest.ParseError{Format: "dash", Reason: err.Error()}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &manifest.ParseError{Format: "dash", Reason: "invalid base URL: " + err.Error()}
	}

	view := &canon.ManifestView{RawSize: len(data)}
	if ast, perr := time.Parse(time.RFC3339, mpd.AvailabilityStartTime); perr == nil {
		view.Header.AvailabilityStart = ast
	}

	for _, period := range mpd.Periods {
		view.PeriodList = append(view.PeriodList, period.ID)

		periodBase := base
		if period.BaseURL != "" {
			if ref, perr := url.Parse(period.BaseURL); perr == nil {
				periodBase = base.ResolveReference(ref)
			}
		}

		rep, set, found := selectRepresentation(period, p.RepresentationID)
		if !found {
			continue
		}

		if utc := supplementalUTC(set); utc != "" {
			view.Header.SupplementalPropUTC = utc
		}

		tmpl := EffectiveSegmentTemplate(set, rep)
		if tmpl != nil {
			appendSegments(view, period, rep, tmpl, periodBase)
		}

		for _, es := range period.EventStream {
			appendEvents(view, period.ID, es)
		}
	}

	return view, nil
}

func selectRepresentation(period Period, wantID string) (*Representation, *AdaptationSet, bool) {
	for i := range period.Sets {
		set := &period.Sets[i]
		for j := range set.Representations {
			rep := &set.Representations[j]
			if wantID == "" || rep.ID == wantID {
				return rep, set, true
			}
		}
	}
	return nil, nil, false
}

func supplementalUTC(set *AdaptationSet) string {
	for _, sp := range set.SupplementalProperty {
		if sp.SchemeIDURI == scteUTCScheme {
			return sp.Value
		}
	}
	return ""
}

func appendSegments(view *canon.ManifestView, period Period, rep *Representation, tmpl *SegmentTemplate, base *url.URL) {
	timescale := tmpl.Timescale
	if timescale == 0 {
		timescale = 1
	}

	number := tmpl.StartNumber
	if number == 0 {
		number = 1
	}

	for _, ts := range tmpl.Timeline.Expand() {
		mediaPath := resolveTemplate(tmpl.Media, rep.ID, number, ts.Time, rep.Bandwidth)
		ref, err := url.Parse(mediaPath)
		segURL := mediaPath
		if err == nil {
			segURL = base.ResolveReference(ref).String()
		}

		rec := canon.SegmentRecord{
			Seq: canon.Sequence{
				PeriodID: period.ID,
				Number:   number,
			},
			DurationSec: float64(ts.Duration) / float64(timescale),
			URL:         segURL,
			FormatSpecific: canon.FormatSpecific{
				PeriodID:               period.ID,
				TimelineTime:           ts.Time,
				PresentationTimeOffset: tmpl.PresentationTimeOffset,
				Timescale:              timescale,
				RepresentationID:       rep.ID,
			},
		}

		if view.Header.AvailabilityStart.IsZero() {
			rec.PDTExplicit = false
		} else {
			offset := ts.Time - tmpl.PresentationTimeOffset
			rec.PDT = view.Header.AvailabilityStart.Add(time.Duration(float64(offset) / float64(timescale) * float64(time.Second)))
			rec.PDTExplicit = true
		}

		view.Segments = append(view.Segments, rec)
		number++
	}
}

// resolveTemplate expands the $Number$/$Time$/$RepresentationID$/$Bandwidth$
// identifiers in a SegmentTemplate's media attribute, including the
// $Number%0Nd$ and $Time%0Nd$ zero-padded forms.
func resolveTemplate(tmpl, repID string, number int64, t uint64, bandwidth int) string {
	out := tmpl
	out = expandIdentifier(out, "RepresentationID", repID)
	out = expandNumericIdentifier(out, "Number", number)
	out = expandNumericIdentifier(out, "Time", int64(t))
	out = expandNumericIdentifier(out, "Bandwidth", int64(bandwidth))
	return out
}

func expandIdentifier(s, name, value string) string {
	return strings.ReplaceAll(s, "$"+name+"$", value)
}

func expandNumericIdentifier(s, name string, value int64) string {
	plain := "$" + name + "$"
	for strings.Contains(s, plain) {
		s = strings.Replace(s, plain, strconv.FormatInt(value, 10), 1)
	}
	prefix := "$" + name + "%0"
	for {
		idx := strings.Index(s, prefix)
		if idx < 0 {
			break
		}
		rest := s[idx+len(prefix):]
		end := strings.Index(rest, "$")
		if end < 0 || !strings.HasSuffix(rest[:end], "d") {
			break
		}
		width, werr := strconv.Atoi(rest[:end-1])
		if werr != nil {
			break
		}
		formatted := strconv.FormatInt(value, 10)
		for len(formatted) < width {
			formatted = "0" + formatted
		}
		s = s[:idx] + formatted + rest[end+1:]
	}
	return s
}

func appendEvents(view *canon.ManifestView, periodID string, es EventStream) {
	for _, ev := range es.Events {
		if ev.SpliceInsert != nil {
			si := ev.SpliceInsert
			sev := canon.SCTESegmentationEvent{
				PeriodID:        periodID,
				OutOfNetwork:    si.OutOfNetworkIndicator,
				SpliceEventID:   si.SpliceEventID,
				AvailNum:        si.AvailNum,
				UniqueProgramID: si.UniqueProgramID,
				AutoReturn:      si.AutoReturn,
			}
			if si.BreakDuration != nil {
				sev.SegmentationDuration = si.BreakDuration.Duration
				sev.SegmentationTimescale = si.BreakDuration.Timescale
			}
			view.EventStream = append(view.EventStream, sev)
		}
		if ev.Segmentation != nil {
			sd := ev.Segmentation
			var typeID int64
			if strings.HasPrefix(sd.SegmentationTypeID, "0x") {
				typeID, _ = strconv.ParseInt(strings.TrimPrefix(sd.SegmentationTypeID, "0x"), 16, 32)
			} else {
				typeID, _ = strconv.ParseInt(sd.SegmentationTypeID, 10, 32)
			}
			eventID, _ := strconv.ParseUint(sd.SegmentationEventID, 0, 64)
			view.EventStream = append(view.EventStream, canon.SCTESegmentationEvent{
				PeriodID:              periodID,
				SegmentationEventID:   eventID,
				SegmentationDuration:  sd.SegmentationDuration,
				SegmentationTypeID:    int(typeID),
			})
		}
	}
}
