package utils

const addressEllipsis = "…"

// ShortAddress renders the first 6 and last 4 characters of address.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + addressEllipsis + address[len(address)-4:]
}
