package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

const wordSize = 32

// Keccak256 returns the legacy Keccak-256 digest used by Ethereum.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Selector returns the 4-byte function selector of a canonical signature
// such as "tokenURI(uint256)".
func Selector(signature string) []byte {
	return Keccak256([]byte(signature))[:4]
}

var (
	totalSupplySelector = Selector("totalSupply()")
	tokenURISelector    = Selector("tokenURI(uint256)")
)

// encodeCall builds call data from a selector and uint256 arguments.
func encodeCall(selector []byte, args ...*big.Int) string {
	buf := make([]byte, 0, len(selector)+wordSize*len(args))
	buf = append(buf, selector...)
	for _, a := range args {
		word := make([]byte, wordSize)
		a.FillBytes(word)
		buf = append(buf, word...)
	}
	return "0x" + hex.EncodeToString(buf)
}

// decodeHex strips the 0x prefix and decodes the rest.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return b, nil
}

// DecodeUint256 reads the first ABI word as an unsigned integer.
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) < wordSize {
		return nil, fmt.Errorf("%w: uint256 needs %d bytes, got %d", ErrShortResult, wordSize, len(data))
	}
	return new(big.Int).SetBytes(data[:wordSize]), nil
}

// DecodeString reads a single dynamic string return value.
func DecodeString(data []byte) (string, error) {
	offset, err := DecodeUint256(data)
	if err != nil {
		return "", err
	}
	if !offset.IsInt64() || offset.Int64() > int64(len(data)-wordSize) {
		return "", fmt.Errorf("%w: string offset %s out of range", ErrShortResult, offset)
	}
	start := int(offset.Int64())

	length, err := DecodeUint256(data[start:])
	if err != nil {
		return "", err
	}
	begin := start + wordSize
	if !length.IsInt64() || length.Int64() > int64(len(data)-begin) {
		return "", fmt.Errorf("%w: string length %s out of range", ErrShortResult, length)
	}
	return string(data[begin : begin+int(length.Int64())]), nil
}
