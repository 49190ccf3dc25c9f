package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ChecksumAddress returns the mixed-case checksum form of a hex address.
func ChecksumAddress(addr string) (string, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), "0X")
	if len(s) != 40 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	lower := strings.ToLower(s)
	hash := hex.EncodeToString(Keccak256([]byte(lower)))

	var b strings.Builder
	b.Grow(42)
	b.WriteString("0x")
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			c -= 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}
