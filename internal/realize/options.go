package realize

import (
	"log/slog"
	"time"

	"github.com/roach88/ddnet/internal/tcpchan"
)

// DefaultWorkers is the engine worker count of every realization.
const DefaultWorkers = 2

// Defaults for outbound connection establishment.
const (
	DefaultConnectTimeout  = tcpchan.DefaultTimeout
	DefaultConnectInterval = tcpchan.DefaultInterval
)

// Option allows configuration of a Realizer.
type Option func(*Realizer)

// WithWorkers overrides the engine worker count.
func WithWorkers(n int) Option {
	return func(r *Realizer) {
		r.workers = n
	}
}

// WithConnectTimeout bounds how long each peer is retried.
func WithConnectTimeout(d time.Duration) Option {
	return func(r *Realizer) {
		r.connectTimeout = d
	}
}

// WithConnectInterval sets the pause between connection attempts.
func WithConnectInterval(d time.Duration) Option {
	return func(r *Realizer) {
		r.connectInterval = d
	}
}

// WithLogger sets the logger used by the realizer.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Realizer) {
		r.logger = logger
	}
}

// WithStrictRedirects rejects node configurations in which one source
// relation feeds several local relations, instead of logging a warning and
// keeping the highest relation.
func WithStrictRedirects() Option {
	return func(r *Realizer) {
		r.strictRedirects = true
	}
}
