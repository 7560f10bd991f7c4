// Package logger wraps zerolog behind the small interface the rest of the
// codebase depends on, matching the teacher's Debugf/Infof/Warnf/Errorf
// shape but emitting single-line key=value records as the design document's
// error-handling section requires.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the logging interface every component takes instead of a global.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	With(kv ...string) Logger
}

// ZeroLogger adapts zerolog.Logger to Logger.
type ZeroLogger struct {
	z zerolog.Logger
}

// New creates a Logger writing key=value lines at level, mirrored to stdout
// (or an arbitrary writer when mirror is non-nil, e.g. in tests).
func New(level string, mirror io.Writer) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var w io.Writer = os.Stdout
	if mirror != nil {
		w = io.MultiWriter(os.Stdout, mirror)
	}
	z := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).Level(lvl).With().Timestamp().Logger()
	return &ZeroLogger{z: z}
}

func (l *ZeroLogger) Debugf(format string, v ...interface{}) { l.z.Debug().Msgf(format, v...) }
func (l *ZeroLogger) Infof(format string, v ...interface{})  { l.z.Info().Msgf(format, v...) }
func (l *ZeroLogger) Warnf(format string, v ...interface{})  { l.z.Warn().Msgf(format, v...) }
func (l *ZeroLogger) Errorf(format string, v ...interface{}) { l.z.Error().Msgf(format, v...) }

// With returns a child logger carrying additional key=value context fields,
// e.g. .With("endpoint", name, "type", string(epType)).
func (l *ZeroLogger) With(kv ...string) Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(kv); i += 2 {
		ctx = ctx.Str(kv[i], kv[i+1])
	}
	return &ZeroLogger{z: ctx.Logger()}
}
