// Package session tracks the wallet connection: status, account, balance and
// chain, kept in step with provider push events.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/vitwit/filmarket/chains"
	"github.com/vitwit/filmarket/clients"
	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
	"github.com/vitwit/filmarket/types"
	"github.com/vitwit/filmarket/utils"
)

const defaultTimeout = 30 * time.Second

// ResetHandler is invoked after a chainChanged event has wiped the session.
type ResetHandler func(chainID string)

// Session is the single wallet session of a storefront. Every successful
// state rebuild bumps the epoch; provider results carrying an older epoch
// are discarded.
type Session struct {
	provider clients.Provider
	logger   logger.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
	onReset  ResetHandler

	mu    sync.Mutex
	state types.SessionState
	epoch uint64
	subs  []clients.Subscription

	refreshes conc.WaitGroup
}

// New returns a disconnected session over provider.
func New(provider clients.Provider, opts ...Option) *Session {
	s := &Session{
		provider: provider,
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// Epoch returns the current state generation.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Connect prompts the wallet for accounts. It is a no-op while a connect is
// already in flight or the session is connected. Balance and network are
// refreshed in the background; Connect returns once the account is known.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status != types.StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	if !s.provider.IsAvailable() {
		s.mu.Unlock()
		s.metrics.IncCounter(metrics.WalletConnect, map[string]string{"outcome": "unavailable"})
		return types.NewError(types.ErrCodeProviderUnavailable, "no wallet provider detected, install a wallet to continue", nil)
	}
	s.state = types.SessionState{Status: types.StatusConnecting}
	epoch := s.epoch
	s.mu.Unlock()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	accounts, err := s.provider.RequestAccounts(callCtx)
	cancel()
	s.metrics.ObserveLatency(metrics.WalletConnect, time.Since(start), map[string]string{"method": "eth_requestAccounts"})

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("dropping stale connect result", logger.Fields{"epoch": epoch})
		return types.ErrStateReset
	}

	if err != nil || len(accounts) == 0 {
		s.state = types.SessionState{Status: types.StatusDisconnected}
		s.mu.Unlock()
		if err == nil {
			err = types.NewError(types.ErrCodeNoAccounts, "wallet returned no accounts", nil)
		}
		s.metrics.IncCounter(metrics.WalletConnect, map[string]string{"outcome": types.CodeOf(err)})
		s.logger.Warn("wallet connect failed", logger.Fields{"error": err})
		return err
	}

	address := accounts[0]
	s.state = types.SessionState{Status: types.StatusConnected, Address: address}
	s.mu.Unlock()

	s.metrics.IncCounter(metrics.WalletConnect, map[string]string{"outcome": "success"})
	s.logger.Info("wallet connected", logger.Fields{"address": utils.ShortAddress(address)})

	s.refreshes.Go(func() {
		s.refresh(epoch, address)
	})
	return nil
}

// Disconnect clears the session. The provider is not contacted: wallets
// expose no programmatic revoke.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.epoch++
	was := s.state.Status
	s.state = types.SessionState{Status: types.StatusDisconnected}
	s.mu.Unlock()

	if was != types.StatusDisconnected {
		s.logger.Info("wallet disconnected", nil)
	}
}

// Reset wipes the session and returns the new epoch.
func (s *Session) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = types.SessionState{Status: types.StatusDisconnected}
	return s.epoch
}

// Mount subscribes to provider events and silently reattaches to accounts
// the user already authorised. A missing provider is not an error.
func (s *Session) Mount(ctx context.Context) error {
	if !s.provider.IsAvailable() {
		s.logger.Info("no wallet provider detected", nil)
		return nil
	}

	s.mu.Lock()
	mounted := len(s.subs) > 0
	s.mu.Unlock()

	if !mounted {
		var subs []clients.Subscription
		for _, ev := range []types.ProviderEvent{types.EventAccountsChanged, types.EventChainChanged} {
			sub, err := s.provider.Subscribe(ctx, ev, s.handleEvent)
			if err != nil {
				for _, prev := range subs {
					prev.Unsubscribe()
				}
				return err
			}
			subs = append(subs, sub)
		}
		s.mu.Lock()
		s.subs = subs
		s.mu.Unlock()
	}

	return s.Reattach(ctx)
}

// Unmount drops the provider event subscriptions.
func (s *Session) Unmount() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Reattach queries eth_accounts without prompting. If an account is already
// authorised the session becomes connected and balance and network are
// loaded before returning. Enrichment failures are only logged.
func (s *Session) Reattach(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status != types.StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	accounts, err := s.provider.Accounts(callCtx)
	cancel()
	if err != nil {
		s.metrics.IncCounter(metrics.WalletReattach, map[string]string{"outcome": types.CodeOf(err)})
		s.logger.Warn("checking existing wallet connection failed", logger.Fields{"error": err})
		return err
	}
	if len(accounts) == 0 {
		s.metrics.IncCounter(metrics.WalletReattach, map[string]string{"outcome": "none"})
		return nil
	}

	s.mu.Lock()
	if s.epoch != epoch || s.state.Status != types.StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = types.SessionState{Status: types.StatusConnected, Address: accounts[0]}
	s.mu.Unlock()

	s.metrics.IncCounter(metrics.WalletReattach, map[string]string{"outcome": "success"})
	s.logger.Info("wallet reattached", logger.Fields{"address": utils.ShortAddress(accounts[0])})

	if err := s.updateBalance(ctx, epoch, accounts[0]); err != nil {
		s.logger.Warn("balance refresh failed", logger.Fields{"error": err})
	}
	if _, err := s.updateNetwork(ctx, epoch); err != nil {
		s.logger.Warn("network refresh failed", logger.Fields{"error": err})
	}
	return nil
}

// RefreshBalance reloads the balance of the connected account.
func (s *Session) RefreshBalance(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status != types.StatusConnected {
		s.mu.Unlock()
		return types.ErrWalletNotConnected
	}
	epoch, address := s.epoch, s.state.Address
	s.mu.Unlock()

	return s.updateBalance(ctx, epoch, address)
}

// RefreshNetwork reads the wallet's chain, records it while connected and
// returns its classification.
func (s *Session) RefreshNetwork(ctx context.Context) (types.NetworkInfo, error) {
	return s.updateNetwork(ctx, s.Epoch())
}

// Wait blocks until background refreshes have finished.
func (s *Session) Wait() {
	s.refreshes.Wait()
}

func (s *Session) refresh(epoch uint64, address string) {
	// detached from the connect caller; each call is bounded by the session timeout
	ctx := context.Background()

	if err := s.updateBalance(ctx, epoch, address); err != nil {
		s.logger.Warn("balance refresh failed", logger.Fields{"error": err})
	}
	if _, err := s.updateNetwork(ctx, epoch); err != nil {
		s.logger.Warn("network refresh failed", logger.Fields{"error": err})
	}
}

func (s *Session) updateBalance(ctx context.Context, epoch uint64, address string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wei, err := s.provider.GetBalance(callCtx, address)
	if err != nil {
		return err
	}
	bal := utils.FromMinorUnits(wei, types.NativeDecimals)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch && s.state.Status == types.StatusConnected && s.state.Address == address {
		s.state.Balance = &bal
	}
	return nil
}

func (s *Session) updateNetwork(ctx context.Context, epoch uint64) (types.NetworkInfo, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.provider.ChainID(callCtx)
	if err != nil {
		return types.NetworkInfo{}, err
	}

	s.mu.Lock()
	if s.epoch == epoch && s.state.Status == types.StatusConnected {
		s.state.ChainID = id
	}
	s.mu.Unlock()

	return chains.Classify(id), nil
}

// handleEvent applies a provider push event.
func (s *Session) handleEvent(ev clients.Event) {
	switch ev.Kind {
	case types.EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			s.Disconnect()
			return
		}

		s.mu.Lock()
		if s.state.Status != types.StatusConnected {
			s.mu.Unlock()
			return
		}
		s.state.Address = ev.Accounts[0]
		s.state.Balance = nil
		epoch := s.epoch
		address := s.state.Address
		s.mu.Unlock()

		s.logger.Info("wallet account changed", logger.Fields{"address": utils.ShortAddress(address)})
		s.refreshes.Go(func() {
			if err := s.updateBalance(context.Background(), epoch, address); err != nil {
				s.logger.Warn("balance refresh failed", logger.Fields{"error": err})
			}
		})

	case types.EventChainChanged:
		epoch := s.Reset()
		s.metrics.IncCounter(metrics.StateReset, map[string]string{"outcome": "chain_changed"})
		s.logger.Warn("wallet chain changed, state reset", logger.Fields{"chainId": ev.ChainID, "epoch": epoch})

		if s.onReset != nil {
			s.onReset(ev.ChainID)
		}
	}
}

func copyState(st types.SessionState) types.SessionState {
	out := st
	if st.Balance != nil {
		b := *st.Balance
		out.Balance = &b
	}
	return out
}
