package assets

import (
	"context"
	"fmt"
	"sync"
)

// Bank is an in-memory custody ledger. Depositor balances and their
// approvals toward the gateway are seeded with Fund and Approve.
type Bank struct {
	mu        sync.Mutex
	balances  map[string]uint64
	approvals map[string]uint64
	custody   uint64
}

// NewBank creates an empty in-memory custody ledger.
func NewBank() *Bank {
	return &Bank{
		balances:  make(map[string]uint64),
		approvals: make(map[string]uint64),
	}
}

// Fund credits an account's externally-held balance.
func (b *Bank) Fund(account string, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Approve authorizes the gateway to pull up to amount from account.
func (b *Bank) Approve(account string, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.approvals[account] = amount
}

// TransferIn implements Custody. Balance and approval are checked and
// debited together, so a failure leaves both untouched.
func (b *Bank) TransferIn(ctx context.Context, from string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.approvals[from] < amount {
		return fmt.Errorf("transfer in: %s approved %d, need %d", from, b.approvals[from], amount)
	}
	if b.balances[from] < amount {
		return fmt.Errorf("transfer in: %s holds %d, need %d", from, b.balances[from], amount)
	}

	b.approvals[from] -= amount
	b.balances[from] -= amount
	b.custody += amount
	return nil
}

// CustodyBalance returns the total amount pulled into gateway custody.
func (b *Bank) CustodyBalance() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody
}

// FeeBank is an in-memory fee-asset account for the gateway.
type FeeBank struct {
	mu      sync.Mutex
	balance uint64
	grants  map[string]uint64
}

// NewFeeBank creates a fee account with an initial balance.
func NewFeeBank(initial uint64) *FeeBank {
	return &FeeBank{
		balance: initial,
		grants:  make(map[string]uint64),
	}
}

// BalanceOf implements FeeAsset.
func (f *FeeBank) BalanceOf(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

// Authorize implements FeeAsset. The grant replaces any previous one, so
// the spender is never left with a standing authorization.
func (f *FeeBank) Authorize(ctx context.Context, spender string, amount uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[spender] = amount
	return nil
}

// Grant reports the current authorization for spender.
func (f *FeeBank) Grant(spender string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[spender]
}

// TopUp credits the fee balance.
func (f *FeeBank) TopUp(amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance += amount
}
