// Package log builds slog loggers that mask secrets before they reach the
// output.
//
// Marketplace API keys, RPC endpoint keys, wallet material and the usual
// HTTP credentials are redacted by attribute name or by value pattern.
// Public chain data such as contract addresses and IPFS content
// identifiers is left readable.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("reading supply", "rpc", "https://mainnet.infura.io/v3/<key>")
//	// rpc=https://mainnet.infura.io/v3/***REDACTED***
package log
