package network

import (
	"time"

	"github.com/vitwit/filmarket/chains"
	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
)

type Option func(*Guard)

func WithConfirmer(c Confirmer) Option {
	return func(g *Guard) {
		if c != nil {
			g.confirm = c
		}
	}
}

// WithTarget sets the chain the guard switches to. Ids missing from the
// registry are ignored.
func WithTarget(chainID string) Option {
	return func(g *Guard) {
		if c, ok := chains.Lookup(chainID); ok {
			g.target = c
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(g *Guard) {
		g.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Guard) {
		g.metrics = r
	}
}

// WithTimeout bounds the whole switch, including the user prompt in the wallet.
func WithTimeout(t time.Duration) Option {
	return func(g *Guard) {
		g.timeout = t
	}
}
