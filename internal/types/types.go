// Package types defines the core domain models for poolgate (pgw).
// It contains the destination window model, settlement records, and the
// error kinds shared across the ledger and dispatcher.
package types

import (
	"errors"
	"fmt"
	"time"
)

// Version is the current version of poolgate
const Version = "0.3.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// Destination identifies a remote domain eligible to receive a
// consolidated transfer.
type Destination string

// Snapshot is a read-only view of a destination's current accumulation
// window. Contributors and Balances are parallel lists: Balances[i] is the
// amount contributed by Contributors[i] in this window. Total equals the
// sum of Balances.
type Snapshot struct {
	Destination  Destination `json:"destination"`
	Contributors []string    `json:"contributors"`
	Balances     []uint64    `json:"balances"`
	Total        uint64      `json:"total"`
}

// SettlementRecord describes one completed settlement: the consolidated
// message accepted by the carrier and the window it drained.
type SettlementRecord struct {
	ID           string      `json:"id"`             // Settlement identifier (UUID)
	MessageID    string      `json:"message_id"`     // Unique id returned by the carrier
	Destination  Destination `json:"destination"`    // Remote domain that received the batch
	Receiver     string      `json:"receiver"`       // Receiving identity on the remote domain
	Contributors []string    `json:"contributors"`   // Depositor identities in the settled window
	Balances     []uint64    `json:"balances"`       // Parallel per-contributor amounts
	Total        uint64      `json:"total"`          // Sum of balances, transferred as one token move
	FeeAsset     string      `json:"fee_asset"`      // Asset the carrier fee was paid in
	FeeAmount    uint64      `json:"fee_amount"`     // Exact quoted and authorized fee
	SettledAt    time.Time   `json:"settled_at"`
}

// ErrUnsupportedDestination is returned when a deposit or settlement names
// a destination that is not part of the configured set. It is rejected
// before any state change.
var ErrUnsupportedDestination = errors.New("unsupported destination")

// InsufficientFeeBalanceError reports a settlement aborted because the
// gateway's fee-asset balance does not cover the carrier quote. The window
// stays open; the call is safe to retry once fee funds are topped up.
type InsufficientFeeBalanceError struct {
	Balance  uint64
	Required uint64
}

func (e *InsufficientFeeBalanceError) Error() string {
	return fmt.Sprintf("insufficient fee balance: have %d, need %d", e.Balance, e.Required)
}
