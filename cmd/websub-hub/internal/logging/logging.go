// Package logging adapts zerolog to websub.Logger and logs HTTP requests.
package logging

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/coregx/websub"
)

var _ websub.Logger = Zerolog{}

// New builds the process logger. Format "json" writes one JSON object per
// line; anything else uses the human-readable console writer.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
		}
		lvl = parsed
	}

	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Zerolog implements websub.Logger.
type Zerolog struct {
	Log zerolog.Logger
}

// Debugf implements websub.Logger.
func (z Zerolog) Debugf(format string, args ...interface{}) {
	z.Log.Debug().Msgf(format, args...)
}

// Infof implements websub.Logger.
func (z Zerolog) Infof(format string, args ...interface{}) {
	z.Log.Info().Msgf(format, args...)
}

// Warnf implements websub.Logger.
func (z Zerolog) Warnf(format string, args ...interface{}) {
	z.Log.Warn().Msgf(format, args...)
}

// Errorf implements websub.Logger.
func (z Zerolog) Errorf(format string, args ...interface{}) {
	z.Log.Error().Msgf(format, args...)
}

// Info implements websub.Logger.
func (z Zerolog) Info(message string) {
	z.Log.Info().Msg(message)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Middleware logs every request with its status and duration. 5xx responses
// are logged at error level, 4xx at warn.
func Middleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
