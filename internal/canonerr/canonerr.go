// Package canonerr defines the error taxonomy from the design document's
// error handling section: a small set of sentinel-comparable ErrorKinds so
// callers can classify a failure with errors.Is instead of string matching.
package canonerr

import "errors"

// ErrorKind is one of the categories the polling loop reacts to differently.
type ErrorKind string

const (
	KindConfig          ErrorKind = "config"
	KindTransport       ErrorKind = "transport"
	KindHTTP4xx         ErrorKind = "http_4xx"
	KindHTTP5xx         ErrorKind = "http_5xx"
	KindParse           ErrorKind = "parse"
	KindInconsistency   ErrorKind = "inconsistency"
	KindMetricsPublish  ErrorKind = "metrics_publish"
	KindStale           ErrorKind = "stale"
)

// Sentinel errors usable with errors.Is after wrapping with %w.
var (
	ErrConnect       = errors.New("connect error")
	ErrConnectTimeout = errors.New("connect timeout")
	ErrReadTimeout   = errors.New("read timeout")
	ErrTLS           = errors.New("tls error")
	ErrDNS           = errors.New("dns error")
	ErrOS            = errors.New("os error")
	ErrOther         = errors.New("transport error")
)

// Classified wraps an underlying error with its ErrorKind for structured
// logging and metric counting without discarding the original error chain.
type Classified struct {
	Kind ErrorKind
	Err  error
}

func (c *Classified) Error() string { return string(c.Kind) + ": " + c.Err.Error() }
func (c *Classified) Unwrap() error { return c.Err }

// Classify wraps err with kind.
func Classify(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is a
// *Classified, otherwise returns "".
func KindOf(err error) ErrorKind {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return ""
}
