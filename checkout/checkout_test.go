package checkout

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/filmarket/cart"
	"github.com/vitwit/filmarket/clients"
	"github.com/vitwit/filmarket/metrics"
	"github.com/vitwit/filmarket/session"
	"github.com/vitwit/filmarket/types"
)

const alice = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

var (
	storage = types.Product{
		ID:         1,
		Name:       "Decentralized Storage Plan - 100GB",
		Category:   "storage",
		UnitPrice:  decimal.RequireFromString("5.99"),
		ChainPrice: decimal.RequireFromString("0.15"),
	}
	nftAccess = types.Product{
		ID:         2,
		Name:       "NFT Marketplace Access",
		Category:   "digital",
		UnitPrice:  decimal.RequireFromString("29.99"),
		ChainPrice: decimal.RequireFromString("0.75"),
	}
)

type fixture struct {
	wallet  *clients.MemoryProvider
	session *session.Session
	cart    *cart.Cart
}

func setup(t *testing.T, connect bool) fixture {
	t.Helper()
	w := clients.NewMemoryProvider(types.ChainIDFilecoinMainnet, alice)
	s := session.New(w)
	require.NoError(t, s.Mount(context.Background()))
	t.Cleanup(s.Unmount)
	if connect {
		require.NoError(t, s.Connect(context.Background()))
		s.Wait()
	}

	c := cart.New()
	c.Add(storage)
	c.Add(storage)
	c.Add(nftAccess)
	return fixture{wallet: w, session: s, cart: c}
}

func TestCheckout(t *testing.T) {
	f := setup(t, true)
	o := New(f.session, f.cart, f.wallet)

	receipt, err := o.Checkout(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.ReceiptStatusSubmitted, receipt.Status)
	assert.NotEmpty(t, receipt.TxHash)
	assert.Equal(t, alice, receipt.From)
	assert.Equal(t, types.DefaultMerchantAddress, receipt.To)
	assert.True(t, receipt.Total.Equal(decimal.RequireFromString("1.05")))
	assert.Equal(t, "1050000000000000000", receipt.ValueWei.String())

	sent := f.wallet.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, common.HexToAddress(types.DefaultMerchantAddress).Hex(), sent[0].To)
	assert.Equal(t, "1050000000000000000", sent[0].ValueWei.String())
	assert.Empty(t, sent[0].Data)

	assert.Equal(t, 0, f.cart.Len())
	assert.Equal(t, types.StatusConnected, f.session.Snapshot().Status)
	assert.Equal(t, alice, f.session.Snapshot().Address)
}

func TestCheckoutRequiresConnection(t *testing.T) {
	f := setup(t, false)
	o := New(f.session, f.cart, f.wallet)

	_, err := o.Checkout(context.Background())
	assert.ErrorIs(t, err, types.ErrWalletNotConnected)
	assert.Equal(t, 0, f.wallet.Calls("eth_sendTransaction"))
	assert.Equal(t, 2, f.cart.Len())
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := setup(t, true)
	f.cart.Clear()
	o := New(f.session, f.cart, f.wallet)

	_, err := o.Checkout(context.Background())
	assert.ErrorIs(t, err, types.ErrEmptyCart)
	assert.Equal(t, 0, f.wallet.Calls("eth_sendTransaction"))
}

func TestCheckoutPreconditionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPrometheusRecorder(reg)
	require.NoError(t, err)

	f := setup(t, false)
	o := New(f.session, f.cart, f.wallet, WithMetrics(rec))

	_, err = o.Checkout(context.Background())
	assert.ErrorIs(t, err, types.ErrWalletNotConnected)

	require.NoError(t, f.session.Connect(context.Background()))
	f.session.Wait()
	f.cart.Clear()
	_, err = o.Checkout(context.Background())
	assert.ErrorIs(t, err, types.ErrEmptyCart)

	expected := `
# HELP filmarket_events_total filmarket event counters
# TYPE filmarket_events_total counter
filmarket_events_total{outcome="EMPTY_CART",type="checkout_submit"} 1
filmarket_events_total{outcome="WALLET_NOT_CONNECTED",type="checkout_submit"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "filmarket_events_total"))
}

func TestCheckoutRejected(t *testing.T) {
	f := setup(t, true)
	f.wallet.RejectSend(true)
	o := New(f.session, f.cart, f.wallet)

	_, err := o.Checkout(context.Background())
	assert.ErrorIs(t, err, types.ErrCheckoutCancelled)
	assert.Equal(t, 2, f.cart.Len())
	assert.Equal(t, 3, f.cart.ItemCount())
}

func TestCheckoutFailed(t *testing.T) {
	f := setup(t, true)
	f.wallet.FailSend(&clients.ProviderError{Code: -32000, Message: "insufficient funds for gas * price + value"})
	o := New(f.session, f.cart, f.wallet)

	_, err := o.Checkout(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCheckoutFailed)
	assert.Contains(t, err.Error(), "insufficient funds")
	assert.Equal(t, 2, f.cart.Len())

	// no retry
	assert.Equal(t, 1, f.wallet.Calls("eth_sendTransaction"))
}

func TestCheckoutMerchantOverride(t *testing.T) {
	f := setup(t, true)
	merchant := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	o := New(f.session, f.cart, f.wallet, WithMerchant(merchant))

	receipt, err := o.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, merchant, receipt.To)
	assert.Equal(t, merchant, o.Merchant())
}

func TestCheckoutInProgress(t *testing.T) {
	f := setup(t, true)
	o := New(f.session, f.cart, f.wallet)
	release := f.wallet.Hold("eth_sendTransaction")

	type result struct {
		receipt *types.Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		r, err := o.Checkout(context.Background())
		done <- result{r, err}
	}()
	require.Eventually(t, func() bool { return f.wallet.Calls("eth_sendTransaction") == 1 }, time.Second, 5*time.Millisecond)

	_, err := o.Checkout(context.Background())
	assert.ErrorIs(t, err, types.ErrCheckoutInProgress)

	release()
	first := <-done
	require.NoError(t, first.err)
	assert.NotEmpty(t, first.receipt.TxHash)
	assert.Equal(t, 1, f.wallet.Calls("eth_sendTransaction"))

	// the guard is released afterwards
	f.cart.Add(storage)
	_, err = o.Checkout(context.Background())
	assert.NoError(t, err)
}

func TestCheckoutDiscardedAfterChainChange(t *testing.T) {
	f := setup(t, true)
	o := New(f.session, f.cart, f.wallet)
	release := f.wallet.Hold("eth_sendTransaction")

	done := make(chan error, 1)
	go func() {
		_, err := o.Checkout(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.wallet.Calls("eth_sendTransaction") == 1 }, time.Second, 5*time.Millisecond)

	// the storefront rebuilds its state after the reset
	f.wallet.EmitChainChanged(types.ChainIDFilecoinCalibration)
	f.cart.Clear()
	f.cart.Add(nftAccess)

	release()
	assert.ErrorIs(t, <-done, types.ErrStateReset)

	lines := f.cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, nftAccess.ID, lines[0].Product.ID)
}
