// Package ledger reads token metadata locations from an Ethereum-compatible
// JSON-RPC endpoint.
//
// Only the two read-only calls needed to enumerate a collection are
// supported: totalSupply() and tokenURI(uint256). Calls are encoded by hand
// with Keccak-256 function selectors and decoded from raw ABI words.
package ledger
