package orders

import (
	"crypto/rand"
	"fmt"
	"time"
)

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewOrderNumber returns TP-YYYYMMDD-XXXXXXXX where the suffix is 40 random
// bits in Crockford base32.
func NewOrderNumber(now time.Time) (string, error) {
	var raw [5]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("order number entropy: %w", err)
	}
	var bits uint64
	for _, b := range raw {
		bits = bits<<8 | uint64(b)
	}
	suffix := make([]byte, 8)
	for i := len(suffix) - 1; i >= 0; i-- {
		suffix[i] = crockfordAlphabet[bits&0x1f]
		bits >>= 5
	}
	return fmt.Sprintf("TP-%s-%s", now.UTC().Format("20060102"), suffix), nil
}
