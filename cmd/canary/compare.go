package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/manifest"
	"github.com/ericcug/streamcanary/internal/manifest/dash"
	"github.com/ericcug/streamcanary/internal/manifest/hls"
	"github.com/ericcug/streamcanary/internal/manifest/smooth"
)

// newCompareCmd implements the one-shot "--compare-manifests" mode from
// the original canarymonitor.py: parse two manifest files already fetched
// back to back and report the diff, without running the full monitor
// loop. Useful for debugging a single endpoint from the command line.
func newCompareCmd() *cobra.Command {
	var typeFlag string
	var baseURL string

	cmd := &cobra.Command{
		Use:   "compare <manifest-a> <manifest-b>",
		Short: "Diff two manifest files fetched back to back",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			epType, err := parseForcedOrSniffedType(typeFlag, args[0])
			if err != nil {
				return err
			}
			parser, err := parserFor(epType)
			if err != nil {
				return err
			}

			a, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("compare: read %s: %w", args[0], err)
			}
			b, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("compare: read %s: %w", args[1], err)
			}

			viewA, err := parser.Parse(a, baseURL)
			if err != nil {
				return fmt.Errorf("compare: parse %s: %w", args[0], err)
			}
			viewB, err := parser.Parse(b, baseURL)
			if err != nil {
				return fmt.Errorf("compare: parse %s: %w", args[1], err)
			}

			printManifestDiff(cmd, viewA, viewB)
			return nil
		},
	}
	cmd.Flags().StringVar(&typeFlag, "force-type", "", "force manifest type (hls, dash, smooth) instead of sniffing it")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "base URL used to resolve relative segment URLs")
	return cmd
}

func parserFor(t canon.EndpointType) (manifest.Parser, error) {
	switch t {
	case canon.TypeHLS:
		return hls.Parser{}, nil
	case canon.TypeDASH:
		return dash.Parser{}, nil
	case canon.TypeSmooth:
		return smooth.Parser{Role: canon.RoleVideo}, nil
	default:
		return nil, fmt.Errorf("compare: could not determine manifest type, pass --force-type")
	}
}

func parseForcedOrSniffedType(forced, path string) (canon.EndpointType, error) {
	if forced != "" {
		switch forced {
		case "hls":
			return canon.TypeHLS, nil
		case "dash":
			return canon.TypeDASH, nil
		case "smooth":
			return canon.TypeSmooth, nil
		default:
			return "", fmt.Errorf("compare: unknown --force-type %q", forced)
		}
	}
	switch {
	case hasSuffixAny(path, ".m3u8"):
		return canon.TypeHLS, nil
	case hasSuffixAny(path, ".mpd"):
		return canon.TypeDASH, nil
	case hasSuffixAny(path, ".ism", ".Manifest", "manifest"):
		return canon.TypeSmooth, nil
	default:
		return "", nil
	}
}

func hasSuffixAny(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && s[len(s)-len(suf):] == suf {
			return true
		}
	}
	return false
}

// printManifestDiff reports, in the spirit of the monitor's own
// segment-by-segment comparison (§4.5 steps 3-5), which segments appear
// in b but not a, and which tags changed on the segment both share.
func printManifestDiff(cmd *cobra.Command, a, b *canon.ManifestView) {
	out := cmd.OutOrStdout()
	seen := make(map[canon.Sequence]canon.SegmentRecord, len(a.Segments))
	for _, seg := range a.Segments {
		seen[seg.Seq] = seg
	}

	var newCount int
	for _, seg := range b.Segments {
		prev, ok := seen[seg.Seq]
		if !ok {
			newCount++
			fmt.Fprintf(out, "new segment seq=%+v url=%s duration=%.3fs\n", seg.Seq, seg.URL, seg.DurationSec)
			continue
		}
		if prev.DiscontinuityFlag != seg.DiscontinuityFlag {
			fmt.Fprintf(out, "seq=%+v discontinuity_flag changed %v -> %v\n", seg.Seq, prev.DiscontinuityFlag, seg.DiscontinuityFlag)
		}
		if prev.DurationSec != seg.DurationSec {
			fmt.Fprintf(out, "seq=%+v duration changed %.3fs -> %.3fs\n", seg.Seq, prev.DurationSec, seg.DurationSec)
		}
		if (prev.Ad == nil) != (seg.Ad == nil) {
			fmt.Fprintf(out, "seq=%+v ad signal appeared/disappeared\n", seg.Seq)
		}
	}

	fmt.Fprintf(out, "%d new segment(s), %d total in b, %d total in a\n", newCount, len(b.Segments), len(a.Segments))
	if a.Header.TargetDurationSec != b.Header.TargetDurationSec {
		fmt.Fprintf(out, "target_duration changed %.3fs -> %.3fs\n", a.Header.TargetDurationSec, b.Header.TargetDurationSec)
	}
}
