package pricing

import "errors"

var (
	// ErrNoContract is returned when a lookup has neither a contract address
	// nor a collection slug.
	ErrNoContract = errors.New("contract address or collection slug is required for price lookup")

	// ErrUnexpectedStatus is returned when the marketplace answers with a non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected marketplace status")

	// ErrInvalidAmount is returned by FromWei for values that are not decimal numbers.
	ErrInvalidAmount = errors.New("invalid wei amount")
)
