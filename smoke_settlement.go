//go:build manual
// +build manual

// Quick end-to-end smoke test against a running gateway: book two
// deposits that cross the threshold, trigger settlement, and dump the
// resulting record. Run with: go run -tags manual smoke_settlement.go
//
// Requires a gateway wired to a remote asset ledger
// (POOLGATE_ASSET_LEDGER_URL) where smoke-alice and smoke-bob hold funds
// and have pre-approved the gateway. The default dev setup runs the empty
// in-memory bank, which has no funding endpoint, so the custody pull on
// each deposit would fail there.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
)

func main() {
	base := os.Getenv("POOLGATE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	dest := os.Getenv("POOLGATE_SMOKE_DEST")
	if dest == "" {
		dest = "devnet"
	}

	fmt.Printf("Smoke testing gateway at %s (destination %s)\n", base, dest)

	deposit(base, dest, "smoke-alice", 600)
	deposit(base, dest, "smoke-bob", 500)

	resp, err := http.Post(base+"/api/settle", "application/json",
		bytes.NewBufferString(fmt.Sprintf(`{"destination":%q}`, dest)))
	if err != nil {
		log.Fatalf("settle request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("settle -> %d\n%s\n", resp.StatusCode, body)
}

func deposit(base, dest, depositor string, amount uint64) {
	payload := fmt.Sprintf(`{"destination":%q,"depositor":%q,"amount":%d}`, dest, depositor, amount)
	resp, err := http.Post(base+"/api/deposit", "application/json", bytes.NewBufferString(payload))
	if err != nil {
		log.Fatalf("deposit request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("deposit %s/%d -> %d %s\n", depositor, amount, resp.StatusCode, body)
}
