package clients

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vitwit/filmarket/chains"
	"github.com/vitwit/filmarket/logger"
	"github.com/vitwit/filmarket/metrics"
	"github.com/vitwit/filmarket/types"
)

const (
	methodAccounts        = "eth_accounts"
	methodRequestAccounts = "eth_requestAccounts"
	methodGetBalance      = "eth_getBalance"
	methodChainID         = "eth_chainId"
	methodSwitchChain     = "wallet_switchEthereumChain"
	methodAddChain        = "wallet_addEthereumChain"
	methodSendTransaction = "eth_sendTransaction"

	subscribeNamespace = "eth"
)

const (
	defaultCallTimeout   = 30 * time.Second
	defaultPromptTimeout = 5 * time.Minute
)

var _ Provider = (*RPCProvider)(nil)

// RPCProvider speaks the EIP-1193 method set to a wallet bridge over JSON-RPC.
// Push events require a transport with notifications (WebSocket, IPC, in-process).
type RPCProvider struct {
	client        *rpc.Client
	callTimeout   time.Duration
	promptTimeout time.Duration
	logger        logger.Logger
	metrics       metrics.Recorder
}

type RPCOption func(*RPCProvider)

func WithRPCLogger(l logger.Logger) RPCOption {
	return func(p *RPCProvider) {
		p.logger = l
	}
}

func WithRPCMetrics(r metrics.Recorder) RPCOption {
	return func(p *RPCProvider) {
		p.metrics = r
	}
}

// WithCallTimeout bounds non-interactive calls such as eth_chainId.
func WithCallTimeout(t time.Duration) RPCOption {
	return func(p *RPCProvider) {
		p.callTimeout = t
	}
}

// WithPromptTimeout bounds calls that wait for the user, such as eth_sendTransaction.
func WithPromptTimeout(t time.Duration) RPCOption {
	return func(p *RPCProvider) {
		p.promptTimeout = t
	}
}

// NewRPCProvider wraps an established client. A nil client yields a
// provider that reports itself unavailable.
func NewRPCProvider(client *rpc.Client, opts ...RPCOption) *RPCProvider {
	p := &RPCProvider{
		client:        client,
		callTimeout:   defaultCallTimeout,
		promptTimeout: defaultPromptTimeout,
		logger:        logger.NoopLogger{},
		metrics:       metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialRPCProvider connects to the wallet bridge at rawURL.
func DialRPCProvider(ctx context.Context, rawURL string, opts ...RPCOption) (*RPCProvider, error) {
	if rawURL == "" {
		return nil, errUnavailable()
	}

	client, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, types.NewError(types.ErrCodeProviderUnavailable, fmt.Sprintf("failed to connect to wallet bridge %s", rawURL), err)
	}
	return NewRPCProvider(client, opts...), nil
}

func (p *RPCProvider) IsAvailable() bool {
	return p.client != nil
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	var out []string
	if err := p.call(ctx, p.callTimeout, &out, methodAccounts); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var out []string
	if err := p.call(ctx, p.promptTimeout, &out, methodRequestAccounts); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *RPCProvider) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var out hexutil.Big
	if err := p.call(ctx, p.callTimeout, &out, methodGetBalance, address, "latest"); err != nil {
		return nil, err
	}
	return out.ToInt(), nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (string, error) {
	var out string
	if err := p.call(ctx, p.callTimeout, &out, methodChainID); err != nil {
		return "", err
	}
	return chains.NormalizeChainID(out), nil
}

type switchChainArgs struct {
	ChainID string `json:"chainId"`
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID string) error {
	return p.call(ctx, p.promptTimeout, nil, methodSwitchChain, switchChainArgs{ChainID: chainID})
}

func (p *RPCProvider) AddChain(ctx context.Context, params types.ChainParams) error {
	return p.call(ctx, p.promptTimeout, nil, methodAddChain, params)
}

// sendTxArgs is the eth_sendTransaction parameter object.
type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

func (p *RPCProvider) SendTransaction(ctx context.Context, tx types.TransactionRequest) (string, error) {
	args, err := newSendTxArgs(tx)
	if err != nil {
		return "", err
	}

	var hash common.Hash
	if err := p.call(ctx, p.promptTimeout, &hash, methodSendTransaction, args); err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func newSendTxArgs(tx types.TransactionRequest) (sendTxArgs, error) {
	if !common.IsHexAddress(tx.From) {
		return sendTxArgs{}, types.NewError(types.ErrCodeSubmissionFailed, fmt.Sprintf("invalid from address %q", tx.From), nil)
	}
	if !common.IsHexAddress(tx.To) {
		return sendTxArgs{}, types.NewError(types.ErrCodeSubmissionFailed, fmt.Sprintf("invalid to address %q", tx.To), nil)
	}

	value := new(big.Int)
	if tx.ValueWei != nil {
		value.Set(tx.ValueWei)
	}
	data := tx.Data
	if data == nil {
		data = []byte{}
	}

	return sendTxArgs{
		From:  common.HexToAddress(tx.From),
		To:    common.HexToAddress(tx.To),
		Value: (*hexutil.Big)(value),
		Data:  data,
	}, nil
}

func (p *RPCProvider) Subscribe(ctx context.Context, event types.ProviderEvent, handler Handler) (Subscription, error) {
	if p.client == nil {
		return nil, errUnavailable()
	}

	switch event {
	case types.EventAccountsChanged:
		ch := make(chan []string, 16)
		sub, err := p.client.Subscribe(ctx, subscribeNamespace, ch, event.String())
		if err != nil {
			return nil, translateError(subscribeNamespace+"_subscribe", err)
		}
		return startPump(sub, ch, p.logger, func(accounts []string) {
			handler(Event{Kind: event, Accounts: accounts})
		}), nil

	case types.EventChainChanged:
		ch := make(chan string, 16)
		sub, err := p.client.Subscribe(ctx, subscribeNamespace, ch, event.String())
		if err != nil {
			return nil, translateError(subscribeNamespace+"_subscribe", err)
		}
		return startPump(sub, ch, p.logger, func(chainID string) {
			handler(Event{Kind: event, ChainID: chains.NormalizeChainID(chainID)})
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider event %q", event)
	}
}

func (p *RPCProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func (p *RPCProvider) call(ctx context.Context, timeout time.Duration, result any, method string, args ...any) error {
	if p.client == nil {
		return errUnavailable()
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.client.CallContext(callCtx, result, method, args...)
	p.metrics.ObserveLatency(metrics.ProviderCall, time.Since(start), map[string]string{"method": method})

	if err != nil {
		p.logger.Debug("provider call failed", logger.Fields{"method": method, "error": err})
		return translateError(method, err)
	}
	return nil
}

// rpcSubscription forwards notifications from a client subscription to a
// handler until unsubscribed or the connection drops.
type rpcSubscription struct {
	sub  *rpc.ClientSubscription
	once sync.Once
	done chan struct{}
}

func startPump[T any](sub *rpc.ClientSubscription, ch <-chan T, log logger.Logger, deliver func(T)) *rpcSubscription {
	s := &rpcSubscription{sub: sub, done: make(chan struct{})}

	go func() {
		for {
			select {
			case v := <-ch:
				deliver(v)
			case err := <-sub.Err():
				if err != nil {
					log.Warn("provider subscription ended", logger.Fields{"error": err})
				}
				return
			case <-s.done:
				return
			}
		}
	}()

	return s
}

func (s *rpcSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Unsubscribe()
	})
}
