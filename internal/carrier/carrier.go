// Package carrier abstracts the external cross-domain message service that
// moves a token transfer plus an opaque payload to another domain, charging
// a fee in a designated fee asset. The gateway only ever quotes and sends;
// inbound messages are handled (and discarded) by the API layer.
package carrier

import (
	"context"

	"poolgate.io/pgw/internal/types"
)

// Message is one consolidated outbound batch: who receives it on the
// remote domain, which contributors it names, the single token transfer
// covering the window total, and the asset the carrier fee is paid in.
type Message struct {
	Receiver     string   `json:"receiver"`
	Contributors []string `json:"contributors"`
	Amounts      []uint64 `json:"amounts"`
	TokenAsset   string   `json:"token_asset"`
	TokenAmount  uint64   `json:"token_amount"`
	FeeAsset     string   `json:"fee_asset"`
}

// Error marks a failure while talking to the carrier, so callers can
// tell a transport fault apart from local state errors. Unwrap exposes
// the underlying cause.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Carrier quotes and submits cross-domain messages.
type Carrier interface {
	// QuoteFee prices the delivery of msg to dest in the message's fee asset.
	QuoteFee(ctx context.Context, dest types.Destination, msg *Message) (uint64, error)

	// Send submits msg for delivery and returns the carrier's unique
	// message identifier. A returned id means the message was irrevocably
	// accepted.
	Send(ctx context.Context, dest types.Destination, msg *Message) (string, error)
}
