// Package fetch implements the HTTP Fetcher (C1): a timed GET/HEAD with
// gzip decode, per-category error classification, and latency measurement.
// Grounded in the teacher's internal/dash.Client, generalized from a
// single-purpose MPD fetcher into a format-agnostic category-tagged fetch.
package fetch

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ericcug/streamcanary/internal/canonerr"
)

// Category tags a fetch for metric dimensioning.
type Category string

const (
	CategoryManifest Category = "manifest"
	CategoryTracking Category = "tracking"
	CategorySegment  Category = "segment"
)

// Method is the HTTP verb used for a fetch.
type Method string

const (
	MethodGET  Method = "GET"
	MethodHEAD Method = "HEAD"
)

// Response carries the outcome of a successful (2xx) fetch.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte // decoded (post-gzip) body; nil for HEAD
}

// Result is what every fetch call produces: exactly one of Response or a
// classified error, plus the latency measurement that is recorded either way.
type Result struct {
	Response  *Response
	Err       error // non-nil wraps a canonerr.Classified
	LatencyMS float64
}

// Fetcher performs timed fetches against a shared connection pool.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// UserAgent is the single string identifying this canary to origin servers.
const UserAgent = "streamcanary/1.0 (+https://github.com/ericcug/streamcanary)"

// New creates a Fetcher with a single HTTP timeout covering connect+read,
// retries disabled (the poll loop itself is the retry), and a connection
// pool sized for concurrent endpoint polling.
func New(timeout time.Duration) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
		userAgent: UserAgent,
	}
}

// Fetch performs one timed request. Status >= 400 is not an error: it comes
// back as a classified HTTP4xx/HTTP5xx Result with Response nil, per the
// design document ("status >= 400 is not an exception").
func (f *Fetcher) Fetch(ctx context.Context, url string, method Method, category Category, acceptGzip bool) Result {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, string(method), url, nil)
	if err != nil {
		return Result{Err: canonerr.Classify(canonerr.KindConfig, err), LatencyMS: since(start)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if acceptGzip {
		req.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := f.client.Do(req)
	latency := since(start)
	if err != nil {
		return Result{Err: classifyTransport(err), LatencyMS: latency}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return Result{Err: canonerr.Classify(canonerr.KindHTTP5xx, httpStatusError(resp.StatusCode)), LatencyMS: latency}
	}
	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return Result{Err: canonerr.Classify(canonerr.KindHTTP4xx, httpStatusError(resp.StatusCode)), LatencyMS: latency}
	}

	if method == MethodHEAD {
		return Result{Response: &Response{Status: resp.StatusCode, Headers: resp.Header}, LatencyMS: latency}
	}

	var reader io.Reader = resp.Body
	if acceptGzip && resp.Header.Get("Content-Encoding") == "gzip" {
		gz, gzErr := gzip.NewReader(resp.Body)
		if gzErr != nil {
			return Result{Err: canonerr.Classify(canonerr.KindTransport, gzErr), LatencyMS: latency}
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return Result{Err: canonerr.Classify(canonerr.KindTransport, err), LatencyMS: latency}
	}

	return Result{
		Response: &Response{Status: resp.StatusCode, Headers: resp.Header, Body: body},
		LatencyMS: latency,
	}
}

func since(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return "unexpected HTTP status " + http.StatusText(int(e))
}

func classifyTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return canonerr.Classify(canonerr.KindTransport, canonerr.ErrReadTimeout)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return canonerr.Classify(canonerr.KindTransport, canonerr.ErrDNS)
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return canonerr.Classify(canonerr.KindTransport, canonerr.ErrTLS)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return canonerr.Classify(canonerr.KindTransport, canonerr.ErrConnect)
		}
		return canonerr.Classify(canonerr.KindTransport, canonerr.ErrOS)
	}
	return canonerr.Classify(canonerr.KindTransport, canonerr.ErrOther)
}
