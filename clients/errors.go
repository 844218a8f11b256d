package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vitwit/filmarket/types"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

// ProviderError is a coded error as reported by a wallet provider. It
// satisfies rpc.Error so in-memory and JSON-RPC providers translate alike.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) ErrorCode() int {
	return e.Code
}

var _ rpc.Error = (*ProviderError)(nil)

// translateError maps a raw provider failure of method to the market taxonomy.
func translateError(method string, err error) error {
	if err == nil {
		return nil
	}

	var me *types.MarketError
	if errors.As(err, &me) {
		return err
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected:
			return types.NewError(types.ErrCodeUserRejected, fmt.Sprintf("%s rejected by user", method), err)
		case CodeUnrecognizedChain:
			return types.NewError(types.ErrCodeChainNotRegistered, "chain not registered with provider", err)
		case CodeDisconnected, CodeChainDisconnected:
			return types.NewError(types.ErrCodeProviderUnavailable, "wallet provider disconnected", err)
		}
		if method == methodSendTransaction {
			return types.NewError(types.ErrCodeSubmissionFailed, rpcErr.Error(), err)
		}
		return types.NewError(types.ErrCodeProviderRequestFailed, fmt.Sprintf("%s failed", method), err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if method == methodSendTransaction {
			return types.NewError(types.ErrCodeSubmissionFailed, "transaction submission timed out", err)
		}
		return types.NewError(types.ErrCodeProviderRequestFailed, fmt.Sprintf("%s timed out", method), err)
	}

	// anything else is a transport failure: the provider is not reachable
	return types.NewError(types.ErrCodeProviderUnavailable, "wallet provider unreachable", err)
}

func errUnavailable() error {
	return types.NewError(types.ErrCodeProviderUnavailable, "no wallet provider detected", nil)
}
