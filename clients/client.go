// Package clients adapts wallet providers to a typed, context-aware surface.
// Components depend on Provider, never on a raw provider transport.
package clients

import (
	"context"
	"math/big"

	"github.com/vitwit/filmarket/types"
)

// Provider is the wallet provider contract. Every method is a provider
// round-trip and honours ctx.
type Provider interface {
	EventSource

	// IsAvailable reports whether a wallet provider is present at all.
	IsAvailable() bool

	// Accounts returns already-authorised accounts without prompting (eth_accounts).
	Accounts(ctx context.Context) ([]string, error)

	// RequestAccounts prompts the user to authorise accounts (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]string, error)

	// GetBalance returns the latest balance of address in wei.
	GetBalance(ctx context.Context, address string) (*big.Int, error)

	// ChainID returns the normalised hex chain id the wallet is on.
	ChainID(ctx context.Context) (string, error)

	// SwitchChain asks the wallet to select chainID (wallet_switchEthereumChain).
	SwitchChain(ctx context.Context, chainID string) error

	// AddChain registers params with the wallet (wallet_addEthereumChain).
	AddChain(ctx context.Context, params types.ChainParams) error

	// SendTransaction submits tx for signing and returns the transaction hash.
	SendTransaction(ctx context.Context, tx types.TransactionRequest) (string, error)

	Close()
}

// Event is a push notification from the provider.
type Event struct {
	Kind     types.ProviderEvent
	Accounts []string
	ChainID  string
}

// Handler receives provider events.
type Handler func(Event)

// EventSource delivers provider push events.
type EventSource interface {
	Subscribe(ctx context.Context, event types.ProviderEvent, handler Handler) (Subscription, error)
}

// Subscription is an active event registration.
type Subscription interface {
	Unsubscribe()
}
