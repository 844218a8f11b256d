package types

// Known chain identifiers, as returned by eth_chainId.
const (
	ChainIDFilecoinMainnet     = "0x13a"   // 314
	ChainIDFilecoinCalibration = "0x4cb2f" // 314159
)

// UnknownNetworkName labels chain ids absent from the registry.
const UnknownNetworkName = "Unknown Network"

// NativeDecimals is the number of minor-unit decimals of FIL.
const NativeDecimals = 18

// DefaultMerchantAddress receives every checkout transfer unless configured otherwise.
const DefaultMerchantAddress = "0xeC96e791610605880Cf94EdEb0aaFbCc8Aba234E"
