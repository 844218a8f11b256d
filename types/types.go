package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ProductID identifies a catalog product
type ProductID int

// Product is an immutable catalog record supplied by the catalog collaborator.
type Product struct {
	ID          ProductID       `json:"id" validate:"gt=0"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	Category    string          `json:"category" validate:"required"`
	UnitPrice   decimal.Decimal `json:"price"`
	ChainPrice  decimal.Decimal `json:"chainPrice"`
}

// CartLine is a product reference with a positive quantity.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// SessionStatus is the connection state of the wallet session
type SessionStatus int

const (
	StatusDisconnected SessionStatus = iota
	StatusConnecting
	StatusConnected
)

func (s SessionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// SessionState is a point-in-time copy of the wallet session.
// Address and Balance are only set while Status is StatusConnected.
type SessionState struct {
	Status  SessionStatus    `json:"status"`
	Address string           `json:"address,omitempty"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
	ChainID string           `json:"chainId,omitempty"`
}

// Connected reports whether the session holds an account.
func (s SessionState) Connected() bool {
	return s.Status == StatusConnected
}

// NetworkInfo is the registry classification of a chain id.
type NetworkInfo struct {
	ChainID      string `json:"chainId"`
	DisplayName  string `json:"displayName"`
	IsRecognized bool   `json:"isRecognized"`
}

// TransactionRequest is the value transfer submitted at checkout.
type TransactionRequest struct {
	To       string   `json:"to"`
	From     string   `json:"from"`
	ValueWei *big.Int `json:"value"`
	Data     []byte   `json:"data"`
}

// NativeCurrency describes a chain's base token for wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainParams is the full chain descriptor accepted by wallet_addEthereumChain.
type ChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// ProviderEvent names a push event emitted by the wallet provider
type ProviderEvent string

const (
	EventAccountsChanged ProviderEvent = "accountsChanged"
	EventChainChanged    ProviderEvent = "chainChanged"
)

func (e ProviderEvent) String() string {
	return string(e)
}

// Receipt reports a submitted checkout transaction. Inclusion is not awaited.
type Receipt struct {
	TxHash   string          `json:"txHash"`
	Status   string          `json:"status"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Total    decimal.Decimal `json:"total"`
	ValueWei *big.Int        `json:"valueWei"`
}

// ReceiptStatusSubmitted marks a transaction handed to the wallet, pending confirmation.
const ReceiptStatusSubmitted = "submitted"
