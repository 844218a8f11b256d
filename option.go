package filmarket

import (
	"time"

	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
	"github.com/vitwit/filmarket/network"
	"github.com/vitwit/filmarket/types"
)

type Option func(*Market)

func WithLogger(l logger.Logger) Option {
	return func(m *Market) {
		m.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Market) {
		m.metrics = r
	}
}

// WithTimeout bounds every non-interactive provider call.
func WithTimeout(t time.Duration) Option {
	return func(m *Market) {
		m.timeout = t
	}
}

// WithConfirmer answers the switch-network question. The default declines.
func WithConfirmer(c network.Confirmer) Option {
	return func(m *Market) {
		m.confirm = c
	}
}

// WithPreserveCartOnChainChange keeps the cart across a chainChanged reset.
// By default the cart is dropped along with the rest of the state.
func WithPreserveCartOnChainChange(v bool) Option {
	return func(m *Market) {
		m.preserveCart = v
	}
}

// WithProducts replaces the catalog.
func WithProducts(products []types.Product) Option {
	return func(m *Market) {
		m.products = append([]types.Product(nil), products...)
	}
}
