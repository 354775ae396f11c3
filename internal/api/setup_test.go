package api

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"poolgate.io/pgw/internal/assets"
	"poolgate.io/pgw/internal/carrier"
	"poolgate.io/pgw/internal/dispatcher"
	"poolgate.io/pgw/internal/docs"
	"poolgate.io/pgw/internal/events"
	"poolgate.io/pgw/internal/ledger"
	"poolgate.io/pgw/internal/types"
)

type testEnv struct {
	svc     *Service
	ledger  *ledger.Ledger
	bank    *assets.Bank
	feeBank *assets.FeeBank
	carrier *carrier.Loopback
	hub     *events.Hub
}

// setupTest wires a full service against an in-memory bank, a loopback
// carrier, and a temporary sqlite ledger.
func setupTest(t *testing.T, threshold, feeBalance, carrierFee uint64) *testEnv {
	t.Helper()

	tmpDB, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp db: %v", err)
	}
	tmpDB.Close()

	led, err := ledger.Open(tmpDB.Name(), []types.Destination{"base", "osmo"})
	if err != nil {
		os.Remove(tmpDB.Name())
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() {
		led.Close()
		os.Remove(tmpDB.Name())
	})

	bank := assets.NewBank()
	feeBank := assets.NewFeeBank(feeBalance)
	loopback := carrier.NewLoopback(carrierFee)
	hub := events.NewHub()

	disp, err := dispatcher.New(dispatcher.Params{
		Ledger:    led,
		Custody:   bank,
		FeeAsset:  feeBank,
		Carrier:   loopback,
		Hub:       hub,
		Threshold: threshold,
		Asset:     "upool",
		FeeName:   "ufee",
		Receivers: map[types.Destination]string{
			"base": "pool-base",
			"osmo": "pool-osmo",
		},
	})
	if err != nil {
		t.Fatalf("Failed to build dispatcher: %v", err)
	}

	docsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(docsDir, "protocol.adoc"), []byte("= Protocol\n\nOverview.\n"), 0o644); err != nil {
		t.Fatalf("Failed to write doc fixture: %v", err)
	}

	svc := NewService(led, disp, hub, docs.NewService(docsDir), zap.NewNop())

	return &testEnv{
		svc:     svc,
		ledger:  led,
		bank:    bank,
		feeBank: feeBank,
		carrier: loopback,
		hub:     hub,
	}
}

// fund gives an account a balance and a matching custody approval so
// deposits through the API succeed.
func (e *testEnv) fund(account string, amount uint64) {
	e.bank.Fund(account, amount)
	e.bank.Approve(account, amount)
}
