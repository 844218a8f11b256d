package clients

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/filmarket/types"
)

const (
	testAccount  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testMerchant = "0xeC96e791610605880Cf94EdEb0aaFbCc8Aba234E"
)

// bridgeEth serves the eth namespace of a fake wallet bridge.
type bridgeEth struct {
	mu        sync.Mutex
	accounts  []string
	chainID   string
	balance   *big.Int
	reject    bool
	sendErr   error
	lastTx    sendTxArgs
	lastTag   string
	notifiers map[string]*rpc.Notifier
	subs      map[string]*rpc.Subscription
}

func (b *bridgeEth) Accounts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts
}

func (b *bridgeEth) RequestAccounts() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reject {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	}
	return b.accounts, nil
}

func (b *bridgeEth) GetBalance(address string, tag string) (*hexutil.Big, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastTag = tag
	return (*hexutil.Big)(b.balance), nil
}

func (b *bridgeEth) ChainId() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chainID
}

func (b *bridgeEth) SendTransaction(args sendTxArgs) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return common.Hash{}, b.sendErr
	}
	b.lastTx = args
	return common.HexToHash("0xabc123"), nil
}

func (b *bridgeEth) AccountsChanged(ctx context.Context) (*rpc.Subscription, error) {
	return b.register(ctx, "accountsChanged")
}

func (b *bridgeEth) ChainChanged(ctx context.Context) (*rpc.Subscription, error) {
	return b.register(ctx, "chainChanged")
}

func (b *bridgeEth) register(ctx context.Context, name string) (*rpc.Subscription, error) {
	notifier, ok := rpc.NotifierFromContext(ctx)
	if !ok {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifiers[name] = notifier
	b.subs[name] = sub
	return sub, nil
}

func (b *bridgeEth) push(name string, data any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.notifiers[name]
	if !ok {
		return errors.New("no subscriber")
	}
	return n.Notify(b.subs[name].ID, data)
}

// bridgeWallet serves the wallet namespace.
type bridgeWallet struct {
	mu       sync.Mutex
	known    map[string]bool
	switched []string
	added    []types.ChainParams
	eth      *bridgeEth
}

func (w *bridgeWallet) SwitchEthereumChain(args switchChainArgs) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switched = append(w.switched, args.ChainID)
	if !w.known[args.ChainID] {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	}
	w.eth.mu.Lock()
	w.eth.chainID = args.ChainID
	w.eth.mu.Unlock()
	return nil
}

func (w *bridgeWallet) AddEthereumChain(params types.ChainParams) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, params)
	w.known[params.ChainID] = true
	return nil
}

func newBridge(t *testing.T) (*RPCProvider, *bridgeEth, *bridgeWallet) {
	t.Helper()

	eth := &bridgeEth{
		accounts:  []string{testAccount},
		chainID:   "0x1",
		balance:   big.NewInt(1_500_000_000_000_000_000),
		notifiers: make(map[string]*rpc.Notifier),
		subs:      make(map[string]*rpc.Subscription),
	}
	wallet := &bridgeWallet{known: map[string]bool{"0x1": true}, eth: eth}

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", eth))
	require.NoError(t, server.RegisterName("wallet", wallet))

	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})

	return NewRPCProvider(client, WithCallTimeout(5*time.Second), WithPromptTimeout(5*time.Second)), eth, wallet
}

func TestRPCProvider_Accounts(t *testing.T) {
	p, _, _ := newBridge(t)
	ctx := context.Background()

	require.True(t, p.IsAvailable())

	accounts, err := p.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testAccount}, accounts)

	accounts, err = p.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testAccount}, accounts)
}

func TestRPCProvider_RequestAccountsRejected(t *testing.T) {
	p, eth, _ := newBridge(t)
	eth.reject = true

	_, err := p.RequestAccounts(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUserRejected)
	assert.Equal(t, types.ErrCodeUserRejected, types.CodeOf(err))
}

func TestRPCProvider_BalanceAndChain(t *testing.T) {
	p, eth, _ := newBridge(t)
	ctx := context.Background()

	bal, err := p.GetBalance(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", bal.String())
	assert.Equal(t, "latest", eth.lastTag)

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x1", id)
}

func TestRPCProvider_SwitchUnknownChain(t *testing.T) {
	p, _, wallet := newBridge(t)
	ctx := context.Background()

	err := p.SwitchChain(ctx, types.ChainIDFilecoinMainnet)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrChainNotRegisteredWithProvider)

	params := types.ChainParams{
		ChainID:        types.ChainIDFilecoinMainnet,
		ChainName:      "Filecoin Mainnet",
		NativeCurrency: types.NativeCurrency{Name: "Filecoin", Symbol: "FIL", Decimals: 18},
		RPCURLs:        []string{"https://api.node.glif.io/rpc/v1"},
	}
	require.NoError(t, p.AddChain(ctx, params))
	require.NoError(t, p.SwitchChain(ctx, types.ChainIDFilecoinMainnet))

	require.Len(t, wallet.added, 1)
	assert.Equal(t, params, wallet.added[0])
	assert.Equal(t, []string{types.ChainIDFilecoinMainnet, types.ChainIDFilecoinMainnet}, wallet.switched)

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ChainIDFilecoinMainnet, id)
}

func TestRPCProvider_SendTransaction(t *testing.T) {
	p, eth, _ := newBridge(t)

	value, _ := new(big.Int).SetString("1050000000000000000", 10)
	hash, err := p.SendTransaction(context.Background(), types.TransactionRequest{
		To:       testMerchant,
		From:     testAccount,
		ValueWei: value,
	})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xabc123").Hex(), hash)

	assert.Equal(t, common.HexToAddress(testMerchant), eth.lastTx.To)
	assert.Equal(t, common.HexToAddress(testAccount), eth.lastTx.From)
	assert.Equal(t, value.String(), eth.lastTx.Value.ToInt().String())
	assert.Empty(t, eth.lastTx.Data)
}

func TestRPCProvider_SendTransactionErrors(t *testing.T) {
	p, eth, _ := newBridge(t)
	ctx := context.Background()
	tx := types.TransactionRequest{To: testMerchant, From: testAccount, ValueWei: big.NewInt(1)}

	eth.sendErr = &ProviderError{Code: CodeUserRejected, Message: "User denied transaction signature."}
	_, err := p.SendTransaction(ctx, tx)
	assert.ErrorIs(t, err, types.ErrUserRejected)

	eth.sendErr = &ProviderError{Code: -32000, Message: "insufficient funds"}
	_, err = p.SendTransaction(ctx, tx)
	assert.ErrorIs(t, err, types.ErrTransactionSubmissionFailed)
	assert.Contains(t, err.Error(), "insufficient funds")

	_, err = p.SendTransaction(ctx, types.TransactionRequest{To: testMerchant, From: "bogus"})
	assert.ErrorIs(t, err, types.ErrTransactionSubmissionFailed)
}

func TestRPCProvider_Subscriptions(t *testing.T) {
	p, eth, _ := newBridge(t)
	ctx := context.Background()

	events := make(chan Event, 4)
	handler := func(ev Event) { events <- ev }

	accSub, err := p.Subscribe(ctx, types.EventAccountsChanged, handler)
	require.NoError(t, err)
	defer accSub.Unsubscribe()

	chainSub, err := p.Subscribe(ctx, types.EventChainChanged, handler)
	require.NoError(t, err)
	defer chainSub.Unsubscribe()

	require.NoError(t, eth.push("accountsChanged", []string{testMerchant}))
	select {
	case ev := <-events:
		assert.Equal(t, types.EventAccountsChanged, ev.Kind)
		assert.Equal(t, []string{testMerchant}, ev.Accounts)
	case <-time.After(2 * time.Second):
		t.Fatal("accountsChanged not delivered")
	}

	require.NoError(t, eth.push("chainChanged", "0X13A"))
	select {
	case ev := <-events:
		assert.Equal(t, types.EventChainChanged, ev.Kind)
		assert.Equal(t, types.ChainIDFilecoinMainnet, ev.ChainID)
	case <-time.After(2 * time.Second):
		t.Fatal("chainChanged not delivered")
	}
}

func TestRPCProvider_Unavailable(t *testing.T) {
	p := NewRPCProvider(nil)
	ctx := context.Background()

	assert.False(t, p.IsAvailable())

	_, err := p.RequestAccounts(ctx)
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)

	_, err = p.Subscribe(ctx, types.EventChainChanged, func(Event) {})
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)

	_, err = DialRPCProvider(ctx, "")
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
}

func TestTranslateError(t *testing.T) {
	err := translateError(methodChainID, &ProviderError{Code: CodeDisconnected, Message: "disconnected"})
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)

	err = translateError(methodChainID, &ProviderError{Code: -32601, Message: "method not found"})
	assert.ErrorIs(t, err, types.ErrProviderRequestFailed)

	err = translateError(methodChainID, context.DeadlineExceeded)
	assert.ErrorIs(t, err, types.ErrProviderRequestFailed)

	err = translateError(methodChainID, errors.New("connection refused"))
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)

	assert.NoError(t, translateError(methodChainID, nil))
}
