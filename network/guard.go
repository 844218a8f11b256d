// Package network keeps the wallet on a Filecoin network before checkout.
package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitwit/filmarket/chains"
	"github.com/vitwit/filmarket/clients"
	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
	"github.com/vitwit/filmarket/types"
)

// SwitchPrompt is the question put to the user when the wallet is on a
// foreign chain and the guard targets Filecoin mainnet.
const SwitchPrompt = "Would you like to switch to Filecoin Mainnet?"

const defaultTimeout = 5 * time.Minute

// Confirmer asks the user a yes/no question.
type Confirmer func(ctx context.Context, prompt string) (bool, error)

// AlwaysConfirm answers yes without asking.
func AlwaysConfirm(context.Context, string) (bool, error) { return true, nil }

// NeverConfirm answers no without asking.
func NeverConfirm(context.Context, string) (bool, error) { return false, nil }

// NetworkReader reads and records the wallet's current chain.
type NetworkReader interface {
	RefreshNetwork(ctx context.Context) (types.NetworkInfo, error)
}

// Switcher is the slice of the provider the guard drives.
type Switcher interface {
	SwitchChain(ctx context.Context, chainID string) error
	AddChain(ctx context.Context, params types.ChainParams) error
}

var _ Switcher = (clients.Provider)(nil)

// Guard classifies chains and steers the wallet to its target chain,
// Filecoin mainnet unless WithTarget picks another registry entry.
type Guard struct {
	network  NetworkReader
	switcher Switcher
	target   chains.Chain
	confirm  Confirmer
	logger   logger.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
}

func NewGuard(network NetworkReader, switcher Switcher, opts ...Option) *Guard {
	g := &Guard{
		network:  network,
		switcher: switcher,
		target:   chains.Mainnet(),
		confirm:  NeverConfirm,
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Target returns the chain the guard switches to.
func (g *Guard) Target() chains.Chain {
	return g.target
}

// Classify returns the registry classification of chainID.
func (g *Guard) Classify(chainID string) types.NetworkInfo {
	return chains.Classify(chainID)
}

// EnsureExpectedNetwork offers to move a wallet on a foreign chain to the
// target chain. A declined prompt is not an error. Failures leave the
// wallet where it is and surface as NetworkSwitchFailed.
func (g *Guard) EnsureExpectedNetwork(ctx context.Context) error {
	info, err := g.network.RefreshNetwork(ctx)
	if err != nil {
		return err
	}
	if chains.IsExpected(info.ChainID) {
		return nil
	}

	ok, err := g.confirm(ctx, g.prompt())
	if err != nil {
		return err
	}
	if !ok {
		g.logger.Info("network switch declined", logger.Fields{"chainId": info.ChainID})
		g.metrics.IncCounter(metrics.NetworkSwitch, map[string]string{"outcome": "declined"})
		return nil
	}
	return g.SwitchToMainnet(ctx)
}

// SwitchToMainnet selects the target chain in the wallet, registering it
// first when the wallet does not know it.
func (g *Guard) SwitchToMainnet(ctx context.Context) error {
	target := g.target

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := g.switcher.SwitchChain(ctx, target.ChainID)
	if errors.Is(err, types.ErrChainNotRegisteredWithProvider) {
		g.logger.Info("chain unknown to wallet, adding it", logger.Fields{"chainId": target.ChainID})

		params, _ := chains.AddChainParams(target.ChainID)
		if addErr := g.switcher.AddChain(ctx, params); addErr != nil {
			g.metrics.IncCounter(metrics.NetworkAddChain, map[string]string{"outcome": types.CodeOf(addErr)})
			g.logger.Warn("adding Filecoin network failed", logger.Fields{"error": addErr})
			return types.NewError(types.ErrCodeNetworkSwitchFailed, "failed to add Filecoin network", addErr)
		}
		g.metrics.IncCounter(metrics.NetworkAddChain, map[string]string{"outcome": "success"})

		err = g.switcher.SwitchChain(ctx, target.ChainID)
	}
	g.metrics.ObserveLatency(metrics.NetworkSwitch, time.Since(start), map[string]string{"method": "wallet_switchEthereumChain"})

	if err != nil {
		g.metrics.IncCounter(metrics.NetworkSwitch, map[string]string{"outcome": types.CodeOf(err)})
		g.logger.Warn("network switch failed", logger.Fields{"error": err})
		return types.NewError(types.ErrCodeNetworkSwitchFailed, "failed to switch network", err)
	}

	g.metrics.IncCounter(metrics.NetworkSwitch, map[string]string{"outcome": "success"})
	g.logger.Info("switched network", logger.Fields{"chainId": target.ChainID, "network": target.Name})

	// record the new chain; the wallet may already have reset us via chainChanged
	if _, err := g.network.RefreshNetwork(ctx); err != nil {
		g.logger.Warn("network refresh after switch failed", logger.Fields{"error": err})
	}
	return nil
}

func (g *Guard) prompt() string {
	if g.target.ChainID == types.ChainIDFilecoinMainnet {
		return SwitchPrompt
	}
	return fmt.Sprintf("Would you like to switch to %s?", g.target.Name)
}
