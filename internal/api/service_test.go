package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"poolgate.io/pgw/internal/types"
)

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func getPath(t *testing.T, handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleDeposit(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)
	env.fund("alice", 2000)

	rec := postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Destination string `json:"destination"`
		WindowTotal uint64 `json:"window_total"`
		Ready       bool   `json:"ready"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.WindowTotal != 600 || resp.Ready {
		t.Errorf("Expected total 600 not ready, got total %d ready %v", resp.WindowTotal, resp.Ready)
	}

	rec = postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.WindowTotal != 1100 || !resp.Ready {
		t.Errorf("Expected total 1100 ready, got total %d ready %v", resp.WindowTotal, resp.Ready)
	}
}

func TestHandleDepositValidation(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"destination":`, http.StatusBadRequest},
		{"missing destination", `{"depositor":"alice","amount":5}`, http.StatusBadRequest},
		{"missing depositor", `{"destination":"base","amount":5}`, http.StatusBadRequest},
		{"zero amount", `{"destination":"base","depositor":"alice","amount":0}`, http.StatusBadRequest},
		{"unknown destination", `{"destination":"mars","depositor":"alice","amount":5}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := postJSON(t, env.svc.HandleDeposit, "/api/deposit", tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/deposit", nil)
	rec := httptest.NewRecorder()
	env.svc.HandleDeposit(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET deposit: expected 405, got %d", rec.Code)
	}
}

func TestHandleReady(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)
	env.fund("alice", 2000)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":400}`)

	rec := getPath(t, env.svc.HandleReady, "/api/ready?destination=base")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		WindowTotal uint64 `json:"window_total"`
		Threshold   uint64 `json:"threshold"`
		Ready       bool   `json:"ready"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.WindowTotal != 400 || resp.Threshold != 1000 || resp.Ready {
		t.Errorf("Unexpected readiness payload: %+v", resp)
	}

	if rec := getPath(t, env.svc.HandleReady, "/api/ready"); rec.Code != http.StatusBadRequest {
		t.Errorf("Missing destination: expected 400, got %d", rec.Code)
	}
	if rec := getPath(t, env.svc.HandleReady, "/api/ready?destination=mars"); rec.Code != http.StatusNotFound {
		t.Errorf("Unknown destination: expected 404, got %d", rec.Code)
	}
}

func TestHandleSnapshot(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)
	env.fund("alice", 2000)
	env.fund("bob", 2000)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":300}`)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"bob","amount":200}`)

	rec := getPath(t, env.svc.HandleSnapshot, "/api/snapshot?destination=base")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var snap types.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if len(snap.Contributors) != 2 || len(snap.Balances) != 2 {
		t.Fatalf("Expected 2 contributors with balances, got %+v", snap)
	}
	if snap.Contributors[0] != "alice" || snap.Balances[0] != 300 {
		t.Errorf("Expected alice/300 first, got %s/%d", snap.Contributors[0], snap.Balances[0])
	}
	if snap.Total != 500 {
		t.Errorf("Expected total 500, got %d", snap.Total)
	}
}

func TestHandleSettleNotReady(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)
	env.fund("alice", 2000)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":400}`)

	rec := postJSON(t, env.svc.HandleSettle, "/api/settle", `{"destination":"base"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 for a not-ready window, got %d: %s", rec.Code, rec.Body.String())
	}
	if sent := env.carrier.SentMessages(); len(sent) != 0 {
		t.Errorf("Expected no carrier messages, got %d", len(sent))
	}
}

func TestHandleSettle(t *testing.T) {
	env := setupTest(t, 1000, 100, 25)
	env.fund("alice", 2000)
	env.fund("bob", 2000)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":600}`)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"bob","amount":500}`)

	rec := postJSON(t, env.svc.HandleSettle, "/api/settle", `{"destination":"base"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var settled types.SettlementRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &settled); err != nil {
		t.Fatalf("Failed to decode settlement: %v", err)
	}
	if settled.MessageID == "" {
		t.Error("Expected a carrier message id")
	}
	if settled.Total != 1100 || settled.FeeAmount != 25 || settled.Receiver != "pool-base" {
		t.Errorf("Unexpected settlement record: %+v", settled)
	}

	// The window must be drained.
	snap := getPath(t, env.svc.HandleSnapshot, "/api/snapshot?destination=base")
	var after types.Snapshot
	if err := json.Unmarshal(snap.Body.Bytes(), &after); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if after.Total != 0 || len(after.Contributors) != 0 {
		t.Errorf("Expected drained window, got %+v", after)
	}
}

func TestHandleSettleInsufficientFee(t *testing.T) {
	env := setupTest(t, 1000, 10, 25)
	env.fund("alice", 2000)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":1200}`)

	rec := postJSON(t, env.svc.HandleSettle, "/api/settle", `{"destination":"base"}`)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Balance  uint64 `json:"balance"`
		Required uint64 `json:"required"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Balance != 10 || resp.Required != 25 {
		t.Errorf("Expected balance 10 required 25, got %+v", resp)
	}

	// Window remains open for a retry.
	env.feeBank.TopUp(100)
	rec = postJSON(t, env.svc.HandleSettle, "/api/settle", `{"destination":"base"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 after top-up, got %d", rec.Code)
	}
}

func TestHandleSettleCarrierDown(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)
	env.fund("alice", 2000)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":1200}`)

	env.carrier.SendErr = fmt.Errorf("relay unavailable")
	rec := postJSON(t, env.svc.HandleSettle, "/api/settle", `{"destination":"base"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d: %s", rec.Code, rec.Body.String())
	}

	env.carrier.SendErr = nil
	rec = postJSON(t, env.svc.HandleSettle, "/api/settle", `{"destination":"base"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 after carrier recovery, got %d", rec.Code)
	}
}

func TestHandleSettlements(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)
	env.fund("alice", 5000)
	postJSON(t, env.svc.HandleDeposit, "/api/deposit", `{"destination":"base","depositor":"alice","amount":1200}`)
	postJSON(t, env.svc.HandleSettle, "/api/settle", `{"destination":"base"}`)

	rec := getPath(t, env.svc.HandleSettlements, "/api/settlements?destination=base")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var recs []types.SettlementRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
		t.Fatalf("Failed to decode settlements: %v", err)
	}
	if len(recs) != 1 || recs[0].Total != 1200 {
		t.Errorf("Expected one settlement of 1200, got %+v", recs)
	}
}

func TestHandleInbound(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)

	rec := postJSON(t, env.svc.HandleInbound, "/api/inbound", `{"any":"payload"}`)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/inbound", nil)
	res := httptest.NewRecorder()
	env.svc.HandleInbound(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET inbound: expected 405, got %d", res.Code)
	}
}

func TestHandleHealthAndVersion(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)

	rec := getPath(t, env.svc.HandleHealth, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected health body: %s", rec.Body.String())
	}

	rec = getPath(t, env.svc.HandleVersion, "/api/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var ver struct {
		Version      string `json:"version"`
		Destinations int    `json:"destinations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ver); err != nil {
		t.Fatalf("Failed to decode version: %v", err)
	}
	if ver.Version != types.Version || ver.Destinations != 2 {
		t.Errorf("Unexpected version payload: %+v", ver)
	}
}

func TestHandleDocsList(t *testing.T) {
	env := setupTest(t, 1000, 100, 10)

	rec := getPath(t, env.svc.HandleDocs, "/docs")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "protocol.adoc") {
		t.Errorf("Expected doc listing to name protocol.adoc: %s", rec.Body.String())
	}

	if rec := getPath(t, env.svc.HandleDocs, "/docs/..%2Fsecret"); rec.Code == http.StatusOK {
		t.Error("Expected traversal attempt to be rejected")
	}
}
