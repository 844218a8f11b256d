package types

import (
	"errors"
	"fmt"
)

// MarketError is the error type surfaced by every component operation.
// Provider errors never cross a component boundary unwrapped.
type MarketError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *MarketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *MarketError) Unwrap() error {
	return e.Err
}

// Is matches any MarketError carrying the same code, so sentinels work with errors.Is.
func (e *MarketError) Is(target error) bool {
	var t *MarketError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrCodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	ErrCodeUserRejected          = "USER_REJECTED"
	ErrCodeChainNotRegistered    = "CHAIN_NOT_REGISTERED"
	ErrCodeNetworkSwitchFailed   = "NETWORK_SWITCH_FAILED"
	ErrCodeWalletNotConnected    = "WALLET_NOT_CONNECTED"
	ErrCodeCheckoutCancelled     = "CHECKOUT_CANCELLED"
	ErrCodeCheckoutFailed        = "CHECKOUT_FAILED"
	ErrCodeSubmissionFailed      = "TRANSACTION_SUBMISSION_FAILED"
	ErrCodeNoAccounts            = "NO_ACCOUNTS"
	ErrCodeCheckoutInProgress    = "CHECKOUT_IN_PROGRESS"
	ErrCodeEmptyCart             = "EMPTY_CART"
	ErrCodeStateReset            = "STATE_RESET"
	ErrCodeConfig                = "CONFIG_ERROR"
	ErrCodeInvalidProduct        = "INVALID_PRODUCT"
	ErrCodeProviderRequestFailed = "PROVIDER_REQUEST_FAILED"
)

// Sentinels for errors.Is comparisons.
var (
	ErrProviderUnavailable            = &MarketError{Code: ErrCodeProviderUnavailable, Message: "no wallet provider detected"}
	ErrUserRejected                   = &MarketError{Code: ErrCodeUserRejected, Message: "request rejected by user"}
	ErrChainNotRegisteredWithProvider = &MarketError{Code: ErrCodeChainNotRegistered, Message: "chain not registered with provider"}
	ErrNetworkSwitchFailed            = &MarketError{Code: ErrCodeNetworkSwitchFailed, Message: "failed to switch network"}
	ErrWalletNotConnected             = &MarketError{Code: ErrCodeWalletNotConnected, Message: "please connect your wallet first"}
	ErrCheckoutCancelled              = &MarketError{Code: ErrCodeCheckoutCancelled, Message: "transaction was rejected"}
	ErrCheckoutFailed                 = &MarketError{Code: ErrCodeCheckoutFailed, Message: "transaction failed"}
	ErrTransactionSubmissionFailed    = &MarketError{Code: ErrCodeSubmissionFailed, Message: "transaction submission failed"}
	ErrNoAccounts                     = &MarketError{Code: ErrCodeNoAccounts, Message: "wallet returned no accounts"}
	ErrCheckoutInProgress             = &MarketError{Code: ErrCodeCheckoutInProgress, Message: "a checkout is already in progress"}
	ErrEmptyCart                      = &MarketError{Code: ErrCodeEmptyCart, Message: "cart is empty"}
	ErrStateReset                     = &MarketError{Code: ErrCodeStateReset, Message: "wallet state was reset"}
	ErrProviderRequestFailed          = &MarketError{Code: ErrCodeProviderRequestFailed, Message: "provider request failed"}
)

// NewError builds a MarketError with the given code wrapping err.
func NewError(code, message string, err error) *MarketError {
	return &MarketError{Code: code, Message: message, Err: err}
}

// CodeOf returns the MarketError code carried by err, or "" if none.
func CodeOf(err error) string {
	var me *MarketError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
