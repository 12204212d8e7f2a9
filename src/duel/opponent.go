package duel

import "math/rand"

const addressAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz123456789"

const addressLength = 44

// NewOpponentID synthesizes a wallet-looking address for a simulated opponent
func NewOpponentID(rng *rand.Rand) string {
	b := make([]byte, addressLength)
	for i := range b {
		b[i] = addressAlphabet[rng.Intn(len(addressAlphabet))]
	}
	return string(b)
}

// Truncate shortens an address to its first and last four characters
func Truncate(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
