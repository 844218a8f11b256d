package clients

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vitwit/filmarket/chains"
	"github.com/vitwit/filmarket/types"
)

var _ Provider = (*MemoryProvider)(nil)

// MemoryProvider is an in-process wallet used for tests and offline demos.
// It behaves like a browser wallet: switching chains emits chainChanged,
// unknown chains fail with 4902 until added.
type MemoryProvider struct {
	mu sync.Mutex

	available  bool
	wallet     []string // accounts the user will grant on request
	authorized []string // accounts already granted
	balances   map[string]*big.Int
	chainID    string
	known      map[string]types.ChainParams
	sent       []types.TransactionRequest
	calls      map[string]int
	holds      map[string]chan struct{}

	handlers map[types.ProviderEvent]map[int]Handler
	nextID   int

	// failure injection
	rejectAccounts bool
	rejectSwitch   bool
	rejectSend     bool
	switchErr      error
	addErr         error
	sendErr        error
	balanceErr     error
}

// NewMemoryProvider returns an available wallet holding accounts, on chainID.
func NewMemoryProvider(chainID string, accounts ...string) *MemoryProvider {
	m := &MemoryProvider{
		available: true,
		wallet:    append([]string(nil), accounts...),
		balances:  make(map[string]*big.Int),
		chainID:   chains.NormalizeChainID(chainID),
		known:     make(map[string]types.ChainParams),
		calls:     make(map[string]int),
		holds:     make(map[string]chan struct{}),
		handlers:  make(map[types.ProviderEvent]map[int]Handler),
	}
	m.known[m.chainID] = types.ChainParams{ChainID: m.chainID}
	return m
}

// NewUnavailableProvider models a browser without a wallet extension.
func NewUnavailableProvider() *MemoryProvider {
	m := NewMemoryProvider("")
	m.available = false
	return m
}

// SetBalance sets the wei balance of address.
func (m *MemoryProvider) SetBalance(address string, wei *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[strings.ToLower(address)] = new(big.Int).Set(wei)
}

// Authorize marks accounts as already granted, as after an earlier visit.
func (m *MemoryProvider) Authorize(accounts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorized = append([]string(nil), accounts...)
}

// RegisterChain makes chainID known to the wallet.
func (m *MemoryProvider) RegisterChain(params types.ChainParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[chains.NormalizeChainID(params.ChainID)] = params
}

// RejectAccounts makes eth_requestAccounts fail with 4001.
func (m *MemoryProvider) RejectAccounts(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectAccounts = v
}

// RejectSwitch makes wallet_switchEthereumChain fail with 4001.
func (m *MemoryProvider) RejectSwitch(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectSwitch = v
}

// RejectSend makes eth_sendTransaction fail with 4001.
func (m *MemoryProvider) RejectSend(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectSend = v
}

// FailSwitch makes wallet_switchEthereumChain return err.
func (m *MemoryProvider) FailSwitch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchErr = err
}

// FailAddChain makes wallet_addEthereumChain return err.
func (m *MemoryProvider) FailAddChain(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addErr = err
}

// FailSend makes eth_sendTransaction return err.
func (m *MemoryProvider) FailSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// FailBalance makes eth_getBalance return err.
func (m *MemoryProvider) FailBalance(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceErr = err
}

// Hold blocks calls to method until the returned release func is called.
func (m *MemoryProvider) Hold(method string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.holds[method] = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.holds[method] == ch {
				delete(m.holds, method)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many times method was invoked.
func (m *MemoryProvider) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Sent returns the transactions submitted so far.
func (m *MemoryProvider) Sent() []types.TransactionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.TransactionRequest(nil), m.sent...)
}

// CurrentChain returns the chain the wallet is on.
func (m *MemoryProvider) CurrentChain() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainID
}

// EmitAccountsChanged simulates the user switching or revoking accounts.
func (m *MemoryProvider) EmitAccountsChanged(accounts ...string) {
	m.mu.Lock()
	m.authorized = append([]string(nil), accounts...)
	m.mu.Unlock()
	m.emit(Event{Kind: types.EventAccountsChanged, Accounts: append([]string(nil), accounts...)})
}

// EmitChainChanged simulates the user selecting another network in the wallet.
func (m *MemoryProvider) EmitChainChanged(chainID string) {
	id := chains.NormalizeChainID(chainID)
	m.mu.Lock()
	m.chainID = id
	m.mu.Unlock()
	m.emit(Event{Kind: types.EventChainChanged, ChainID: id})
}

func (m *MemoryProvider) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *MemoryProvider) Accounts(ctx context.Context) ([]string, error) {
	if err := m.enter(ctx, methodAccounts); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.authorized...), nil
}

func (m *MemoryProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	if err := m.enter(ctx, methodRequestAccounts); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejectAccounts {
		return nil, translateError(methodRequestAccounts, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."})
	}
	m.authorized = append([]string(nil), m.wallet...)
	return append([]string(nil), m.authorized...), nil
}

func (m *MemoryProvider) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if err := m.enter(ctx, methodGetBalance); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceErr != nil {
		return nil, translateError(methodGetBalance, m.balanceErr)
	}
	if bal, ok := m.balances[strings.ToLower(address)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (m *MemoryProvider) ChainID(ctx context.Context) (string, error) {
	if err := m.enter(ctx, methodChainID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainID, nil
}

func (m *MemoryProvider) SwitchChain(ctx context.Context, chainID string) error {
	if err := m.enter(ctx, methodSwitchChain); err != nil {
		return err
	}
	id := chains.NormalizeChainID(chainID)

	m.mu.Lock()
	switch {
	case m.rejectSwitch:
		m.mu.Unlock()
		return translateError(methodSwitchChain, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."})
	case m.switchErr != nil:
		err := m.switchErr
		m.mu.Unlock()
		return translateError(methodSwitchChain, err)
	}
	if _, ok := m.known[id]; !ok {
		m.mu.Unlock()
		return translateError(methodSwitchChain, &ProviderError{
			Code:    CodeUnrecognizedChain,
			Message: fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", id),
		})
	}
	changed := m.chainID != id
	m.chainID = id
	m.mu.Unlock()

	if changed {
		m.emit(Event{Kind: types.EventChainChanged, ChainID: id})
	}
	return nil
}

func (m *MemoryProvider) AddChain(ctx context.Context, params types.ChainParams) error {
	if err := m.enter(ctx, methodAddChain); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return translateError(methodAddChain, m.addErr)
	}
	if params.ChainID == "" || len(params.RPCURLs) == 0 {
		return translateError(methodAddChain, &ProviderError{Code: -32602, Message: "invalid chain parameters"})
	}
	m.known[chains.NormalizeChainID(params.ChainID)] = params
	return nil
}

func (m *MemoryProvider) SendTransaction(ctx context.Context, tx types.TransactionRequest) (string, error) {
	if err := m.enter(ctx, methodSendTransaction); err != nil {
		return "", err
	}
	args, err := newSendTxArgs(tx)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.rejectSend:
		return "", translateError(methodSendTransaction, &ProviderError{Code: CodeUserRejected, Message: "User denied transaction signature."})
	case m.sendErr != nil:
		return "", translateError(methodSendTransaction, m.sendErr)
	}

	m.sent = append(m.sent, types.TransactionRequest{
		To:       args.To.Hex(),
		From:     args.From.Hex(),
		ValueWei: args.Value.ToInt(),
		Data:     []byte(args.Data),
	})
	hash := crypto.Keccak256Hash(args.From.Bytes(), args.Value.ToInt().Bytes(), big.NewInt(int64(len(m.sent))).Bytes())
	return hash.Hex(), nil
}

func (m *MemoryProvider) Subscribe(ctx context.Context, event types.ProviderEvent, handler Handler) (Subscription, error) {
	if !m.IsAvailable() {
		return nil, errUnavailable()
	}
	if event != types.EventAccountsChanged && event != types.EventChainChanged {
		return nil, fmt.Errorf("unsupported provider event %q", event)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[int]Handler)
	}
	m.nextID++
	id := m.nextID
	m.handlers[event][id] = handler

	return &memorySubscription{m: m, event: event, id: id}, nil
}

// Close drops every subscription.
func (m *MemoryProvider) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[types.ProviderEvent]map[int]Handler)
}

// Subscribers returns the number of live handlers for event.
func (m *MemoryProvider) Subscribers(event types.ProviderEvent) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers[event])
}

// enter counts the call, then waits on any hold for method.
func (m *MemoryProvider) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	if !m.available {
		m.mu.Unlock()
		return errUnavailable()
	}
	m.calls[method]++
	hold := m.holds[method]
	m.mu.Unlock()

	if hold == nil {
		return nil
	}
	select {
	case <-hold:
		return nil
	case <-ctx.Done():
		return translateError(method, ctx.Err())
	}
}

// emit calls handlers outside the lock so they may call back into the provider.
func (m *MemoryProvider) emit(ev Event) {
	m.mu.Lock()
	hs := make([]Handler, 0, len(m.handlers[ev.Kind]))
	for _, h := range m.handlers[ev.Kind] {
		hs = append(hs, h)
	}
	m.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

type memorySubscription struct {
	m     *MemoryProvider
	event types.ProviderEvent
	id    int
}

func (s *memorySubscription) Unsubscribe() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.handlers[s.event], s.id)
}

// RandomAddress returns a fresh checksummed address, handy for demos.
func RandomAddress() string {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}.Hex()
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}
