package checkout

import (
	"time"

	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
)

type Option func(*Orchestrator)

// WithMerchant overrides the receiving address.
func WithMerchant(address string) Option {
	return func(o *Orchestrator) {
		if address != "" {
			o.merchant = address
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

// WithTimeout bounds the wait for the wallet to sign and submit.
func WithTimeout(t time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = t
	}
}
