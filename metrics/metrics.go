package metrics

import "time"

// Metric names recorded by the market.
const (
	WalletConnect   = "wallet_connect"
	WalletReattach  = "wallet_reattach"
	NetworkSwitch   = "network_switch"
	NetworkAddChain = "network_add_chain"
	CheckoutSubmit  = "checkout_submit"
	StateReset      = "state_reset"
	ProviderCall    = "provider_call"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
