// Package checkout turns the cart total into a single native-token transfer
// to the merchant.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
	"github.com/vitwit/filmarket/types"
	"github.com/vitwit/filmarket/utils"
)

const defaultTimeout = 5 * time.Minute

// Session exposes the wallet state a checkout reads.
type Session interface {
	Snapshot() types.SessionState
	Epoch() uint64
}

// Cart exposes the cart operations a checkout needs.
type Cart interface {
	TotalNative() decimal.Decimal
	Clear()
}

// Sender submits a transaction for signing.
type Sender interface {
	SendTransaction(ctx context.Context, tx types.TransactionRequest) (string, error)
}

// Orchestrator runs at most one checkout at a time and owns no state of its own.
type Orchestrator struct {
	session  Session
	cart     Cart
	sender   Sender
	merchant string
	inflight *semaphore.Weighted
	logger   logger.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
}

func New(session Session, cart Cart, sender Sender, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:  session,
		cart:     cart,
		sender:   sender,
		merchant: types.DefaultMerchantAddress,
		inflight: semaphore.NewWeighted(1),
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Merchant returns the receiving address.
func (o *Orchestrator) Merchant() string {
	return o.merchant
}

// Checkout submits the cart total to the merchant and clears the cart once
// the wallet returns a hash. Inclusion is not awaited. A second call while
// one is outstanding fails with CheckoutInProgress. Nothing is retried.
func (o *Orchestrator) Checkout(ctx context.Context) (*types.Receipt, error) {
	if !o.inflight.TryAcquire(1) {
		o.metrics.IncCounter(metrics.CheckoutSubmit, map[string]string{"outcome": types.ErrCodeCheckoutInProgress})
		return nil, types.NewError(types.ErrCodeCheckoutInProgress, "a checkout is already in progress", nil)
	}
	defer o.inflight.Release(1)

	epoch := o.session.Epoch()
	st := o.session.Snapshot()
	if !st.Connected() {
		o.metrics.IncCounter(metrics.CheckoutSubmit, map[string]string{"outcome": types.ErrCodeWalletNotConnected})
		return nil, types.NewError(types.ErrCodeWalletNotConnected, "please connect your wallet first", nil)
	}

	total := o.cart.TotalNative()
	if !total.IsPositive() {
		o.metrics.IncCounter(metrics.CheckoutSubmit, map[string]string{"outcome": types.ErrCodeEmptyCart})
		return nil, types.NewError(types.ErrCodeEmptyCart, "cart is empty", nil)
	}

	tx := types.TransactionRequest{
		To:       o.merchant,
		From:     st.Address,
		ValueWei: utils.ToMinorUnits(total, types.NativeDecimals),
	}

	o.logger.Info("submitting checkout transaction", logger.Fields{
		"from":  utils.ShortAddress(tx.From),
		"to":    utils.ShortAddress(tx.To),
		"total": total.String(),
		"value": tx.ValueWei.String(),
	})

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	hash, err := o.sender.SendTransaction(callCtx, tx)
	o.metrics.ObserveLatency(metrics.CheckoutSubmit, time.Since(start), map[string]string{"method": "eth_sendTransaction"})

	if o.session.Epoch() != epoch {
		o.metrics.IncCounter(metrics.CheckoutSubmit, map[string]string{"outcome": types.ErrCodeStateReset})
		o.logger.Warn("discarding checkout result after state reset", logger.Fields{"txHash": hash, "error": err})
		return nil, types.NewError(types.ErrCodeStateReset, "wallet state was reset while the checkout was pending", err)
	}

	if err != nil {
		var out *types.MarketError
		if errors.Is(err, types.ErrUserRejected) {
			out = types.NewError(types.ErrCodeCheckoutCancelled, "transaction was rejected", err)
		} else {
			out = types.NewError(types.ErrCodeCheckoutFailed, "transaction failed", err)
		}
		o.metrics.IncCounter(metrics.CheckoutSubmit, map[string]string{"outcome": out.Code})
		o.logger.Warn("checkout failed", logger.Fields{"error": err})
		return nil, out
	}

	o.cart.Clear()
	o.metrics.IncCounter(metrics.CheckoutSubmit, map[string]string{"outcome": "success"})
	o.logger.Info("checkout transaction submitted", logger.Fields{"txHash": hash})

	return &types.Receipt{
		TxHash:   hash,
		Status:   types.ReceiptStatusSubmitted,
		From:     tx.From,
		To:       tx.To,
		Total:    total,
		ValueWei: tx.ValueWei,
	}, nil
}
