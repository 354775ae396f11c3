// Package assets defines the external asset primitives the gateway relies
// on: the custody ledger that moves the pooled asset into the gateway, and
// the fee asset used to pay the cross-domain carrier. Both are external
// collaborators; this package provides their interfaces, an HTTP client for
// a remote asset-ledger service, and in-memory implementations for tests
// and standalone runs.
package assets

import "context"

// Custody pulls the pooled asset from a depositor's externally-held balance
// into the gateway's custody.
type Custody interface {
	// TransferIn fails atomically when from has an insufficient balance or
	// has not pre-authorized the gateway.
	TransferIn(ctx context.Context, from string, amount uint64) error
}

// FeeAsset exposes the gateway's balance in the carrier fee asset and the
// ability to authorize a spender for a bounded amount.
type FeeAsset interface {
	BalanceOf(ctx context.Context) (uint64, error)

	// Authorize scopes the spender's draw to exactly amount. Implementations
	// replace any previous authorization rather than extending it.
	Authorize(ctx context.Context, spender string, amount uint64) error
}
