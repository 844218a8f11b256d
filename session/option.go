package session

import (
	"time"

	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
)

type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Session) {
		s.metrics = r
	}
}

// WithTimeout bounds each provider call made by the session.
func WithTimeout(t time.Duration) Option {
	return func(s *Session) {
		s.timeout = t
	}
}

// WithResetHandler registers fn to run after a chainChanged reset.
func WithResetHandler(fn ResetHandler) Option {
	return func(s *Session) {
		s.onReset = fn
	}
}
