package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"poolgate.io/pgw/internal/types"
)

// fakeSettler scripts readiness per destination and records settle calls.
type fakeSettler struct {
	mu        sync.Mutex
	ready     map[types.Destination]bool
	readyErr  map[types.Destination]error
	settled   []types.Destination
	settleErr error
}

func (f *fakeSettler) Destinations() []types.Destination {
	return []types.Destination{"base", "osmo"}
}

func (f *fakeSettler) IsReady(ctx context.Context, dest types.Destination) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readyErr[dest]; err != nil {
		return false, err
	}
	return f.ready[dest], nil
}

func (f *fakeSettler) Settle(ctx context.Context, dest types.Destination) (*types.SettlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	f.settled = append(f.settled, dest)
	f.ready[dest] = false
	return &types.SettlementRecord{MessageID: "msg", Destination: dest}, nil
}

func (f *fakeSettler) settledDests() []types.Destination {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Destination, len(f.settled))
	copy(out, f.settled)
	return out
}

func TestRunOnceSettlesOnlyReadyDestinations(t *testing.T) {
	settler := &fakeSettler{ready: map[types.Destination]bool{"base": true, "osmo": false}}
	s := New(0, settler, nil)

	s.RunOnce(context.Background())

	settled := settler.settledDests()
	if len(settled) != 1 || settled[0] != "base" {
		t.Errorf("Expected only base settled, got %v", settled)
	}
}

func TestRunOnceRetriesOnLaterPass(t *testing.T) {
	settler := &fakeSettler{ready: map[types.Destination]bool{"base": true}}
	settler.settleErr = errors.New("carrier down")
	s := New(0, settler, nil)

	s.RunOnce(context.Background())
	if len(settler.settledDests()) != 0 {
		t.Fatal("Settlement should have failed")
	}

	// next tick after the carrier recovers
	settler.mu.Lock()
	settler.settleErr = nil
	settler.mu.Unlock()

	s.RunOnce(context.Background())
	settled := settler.settledDests()
	if len(settled) != 1 || settled[0] != "base" {
		t.Errorf("Expected base settled on retry, got %v", settled)
	}
}

func TestRunOnceSkipsFailedReadinessCheck(t *testing.T) {
	settler := &fakeSettler{
		ready:    map[types.Destination]bool{"osmo": true},
		readyErr: map[types.Destination]error{"base": errors.New("db closed")},
	}
	s := New(0, settler, nil)

	s.RunOnce(context.Background())

	settled := settler.settledDests()
	if len(settled) != 1 || settled[0] != "osmo" {
		t.Errorf("Expected osmo settled despite base error, got %v", settled)
	}
}
