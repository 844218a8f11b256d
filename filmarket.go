// Package filmarket is a Filecoin-paid storefront core: a wallet session,
// a network guard, a cart and a checkout that pays the cart total in FIL.
package filmarket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitwit/filmarket/cart"
	"github.com/vitwit/filmarket/catalog"
	"github.com/vitwit/filmarket/chains"
	"github.com/vitwit/filmarket/checkout"
	"github.com/vitwit/filmarket/clients"
	"github.com/vitwit/filmarket/config"
	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
	"github.com/vitwit/filmarket/network"
	"github.com/vitwit/filmarket/session"
	"github.com/vitwit/filmarket/types"
	"github.com/vitwit/filmarket/utils"
)

// Market wires the storefront components around one wallet provider.
type Market struct {
	cfg          *config.Config
	provider     clients.Provider
	logger       logger.Logger
	metrics      metrics.Recorder
	timeout      time.Duration
	confirm      network.Confirmer
	preserveCart bool
	products     []types.Product

	session  *session.Session
	guard    *network.Guard
	cart     *cart.Cart
	checkout *checkout.Orchestrator

	mu      sync.Mutex
	lastErr error
}

// View is a render snapshot of the storefront.
type View struct {
	Session      types.SessionState
	Network      *types.NetworkInfo
	ShortAddress string
	Balance      string
	Lines        []types.CartLine
	ItemCount    int
	TotalUSD     decimal.Decimal
	TotalNative  decimal.Decimal
	CanCheckout  bool
	Error        string
}

// New builds a Market over provider. A nil cfg uses config.Default().
func New(cfg *config.Config, provider clients.Provider, opts ...Option) (*Market, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		provider = clients.NewRPCProvider(nil)
	}

	m := &Market{
		cfg:          cfg,
		provider:     provider,
		logger:       logger.NoopLogger{},
		metrics:      metrics.NoopRecorder{},
		timeout:      cfg.Timeout.Std(),
		confirm:      network.NeverConfirm,
		preserveCart: cfg.PreserveCartOnChainChange,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.products == nil {
		products, err := loadProducts(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		m.products = products
	}

	m.session = session.New(provider,
		session.WithLogger(m.logger.With(logger.Fields{"component": "session"})),
		session.WithMetrics(m.metrics),
		session.WithTimeout(m.timeout),
		session.WithResetHandler(m.onChainChanged),
	)
	m.guard = network.NewGuard(m.session, provider,
		network.WithTarget(cfg.ExpectedChainID),
		network.WithConfirmer(m.confirm),
		network.WithLogger(m.logger.With(logger.Fields{"component": "network"})),
		network.WithMetrics(m.metrics),
	)
	m.cart = cart.New()
	m.checkout = checkout.New(m.session, m.cart, provider,
		checkout.WithMerchant(cfg.MerchantAddress),
		checkout.WithLogger(m.logger.With(logger.Fields{"component": "checkout"})),
		checkout.WithMetrics(m.metrics),
	)

	return m, nil
}

func loadProducts(path string) ([]types.Product, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("failed to open catalog %s", path), err)
	}
	defer f.Close()
	return catalog.Load(f)
}

// Mount subscribes to wallet events and reattaches a previously authorised account.
func (m *Market) Mount(ctx context.Context) error {
	if err := m.session.Mount(ctx); err != nil {
		m.setError(err)
		return err
	}
	return nil
}

// Close unsubscribes, waits for background refreshes and closes the provider.
func (m *Market) Close() {
	m.session.Unmount()
	m.session.Wait()
	m.provider.Close()
}

// Connect prompts the wallet for an account, then offers to switch a wallet
// on a foreign chain to the expected chain. A failed switch is returned but
// leaves the session connected.
func (m *Market) Connect(ctx context.Context) error {
	if m.session.Snapshot().Status != types.StatusDisconnected {
		return nil
	}
	m.DismissError()

	if err := m.session.Connect(ctx); err != nil {
		m.setError(err)
		return err
	}
	if !m.session.Snapshot().Connected() {
		return nil
	}

	if err := m.guard.EnsureExpectedNetwork(ctx); err != nil {
		m.setError(err)
		return err
	}
	return nil
}

// SwitchNetwork moves the wallet to the expected chain without asking.
func (m *Market) SwitchNetwork(ctx context.Context) error {
	if err := m.guard.SwitchToMainnet(ctx); err != nil {
		m.setError(err)
		return err
	}
	return nil
}

func (m *Market) Disconnect() {
	m.session.Disconnect()
}

// Products returns the catalog entries in category.
func (m *Market) Products(category string) []types.Product {
	return catalog.Filter(m.products, category)
}

// Add puts one unit of product id in the cart.
func (m *Market) Add(id types.ProductID) error {
	p, ok := catalog.Find(m.products, id)
	if !ok {
		err := types.NewError(types.ErrCodeInvalidProduct, fmt.Sprintf("unknown product %d", id), nil)
		m.setError(err)
		return err
	}
	m.cart.Add(p)
	return nil
}

func (m *Market) Remove(id types.ProductID) {
	m.cart.Remove(id)
}

func (m *Market) SetQuantityDelta(id types.ProductID, delta int) {
	m.cart.SetQuantityDelta(id, delta)
}

// Checkout pays the cart total to the merchant.
func (m *Market) Checkout(ctx context.Context) (*types.Receipt, error) {
	receipt, err := m.checkout.Checkout(ctx)
	if err != nil {
		m.setError(err)
		return nil, err
	}
	return receipt, nil
}

// View returns what the storefront would render now.
func (m *Market) View() View {
	st := m.session.Snapshot()
	v := View{
		Session:     st,
		Balance:     "0",
		Lines:       m.cart.Lines(),
		ItemCount:   m.cart.ItemCount(),
		TotalUSD:    m.cart.TotalUSD(),
		TotalNative: m.cart.TotalNative(),
	}
	if st.Connected() {
		v.ShortAddress = utils.ShortAddress(st.Address)
		if st.Balance != nil {
			v.Balance = utils.FormatBalance(*st.Balance)
		}
		if st.ChainID != "" {
			info := chains.Classify(st.ChainID)
			v.Network = &info
		}
	}
	v.CanCheckout = st.Connected() && len(v.Lines) > 0
	if err := m.LastError(); err != nil {
		v.Error = Message(err)
	}
	return v
}

// LastError returns the error currently shown to the user, if any.
func (m *Market) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// DismissError clears the error slot.
func (m *Market) DismissError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = nil
}

// setError replaces the error slot; only the newest error is shown. Results
// dropped after a state reset belong to state that no longer exists and are
// returned to the caller only.
func (m *Market) setError(err error) {
	if errors.Is(err, types.ErrStateReset) {
		m.logger.Debug("dropping stale result", logger.Fields{"error": err})
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

// onChainChanged rebuilds process state after the wallet moved chains.
func (m *Market) onChainChanged(chainID string) {
	if !m.preserveCart {
		m.cart.Clear()
	}
	m.DismissError()

	m.logger.Info("rebuilding state after chain change", logger.Fields{
		"chainId":       chainID,
		"network":       chains.Classify(chainID).DisplayName,
		"preservedCart": m.preserveCart,
	})

	if err := m.session.Reattach(context.Background()); err != nil {
		m.logger.Warn("reattach after chain change failed", logger.Fields{"error": err})
	}
}

// Message renders err for the single error slot.
func Message(err error) string {
	var me *types.MarketError
	if !errors.As(err, &me) {
		return err.Error()
	}

	switch me.Code {
	case types.ErrCodeProviderUnavailable:
		return "No wallet detected. Please install a wallet to continue."
	case types.ErrCodeUserRejected, types.ErrCodeNoAccounts:
		return "Please connect your wallet."
	case types.ErrCodeCheckoutCancelled:
		return "Transaction was rejected"
	case types.ErrCodeCheckoutFailed:
		if me.Err != nil {
			return "Transaction failed: " + reason(me.Err)
		}
		return "Transaction failed"
	case types.ErrCodeProviderRequestFailed:
		return "An error occurred while talking to your wallet."
	default:
		if len(me.Message) == 0 {
			return me.Code
		}
		return upperFirst(me.Message)
	}
}

// reason strips market wrapping down to the wallet's own message.
func reason(err error) string {
	for {
		var me *types.MarketError
		if !errors.As(err, &me) || me.Err == nil {
			break
		}
		err = me.Err
	}
	return err.Error()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
