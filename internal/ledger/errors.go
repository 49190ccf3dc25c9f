package ledger

import "errors"

var (
	// ErrInvalidAddress is returned for strings that are not 20-byte hex addresses.
	ErrInvalidAddress = errors.New("invalid address: expected 0x followed by 40 hex characters")

	// ErrRPC wraps error objects returned by the endpoint.
	ErrRPC = errors.New("rpc error")

	// ErrUnexpectedStatus is returned when the endpoint answers with a non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected rpc status")

	// ErrShortResult is returned when return data is too short for its ABI type.
	ErrShortResult = errors.New("abi result too short")

	// ErrNoRPCURL is returned by NewClient when no endpoint is configured.
	ErrNoRPCURL = errors.New("rpc url is required")
)
