package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"poolgate.io/pgw/internal/types"
)

// @Title: Record Deposit
// @Route: POST /api/deposit
// @Description: Pull funds from a depositor into custody and book them toward a destination window
// @Response: {"destination": "...", "window_total": N, "ready": bool}
func (s *Service) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Destination string `json:"destination"`
		Depositor   string `json:"depositor"`
		Amount      uint64 `json:"amount"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Destination == "" {
		s.writeError(w, http.StatusBadRequest, "Missing 'destination'")
		return
	}
	if req.Depositor == "" {
		s.writeError(w, http.StatusBadRequest, "Missing 'depositor'")
		return
	}
	if req.Amount == 0 {
		s.writeError(w, http.StatusBadRequest, "'amount' must be positive")
		return
	}

	total, ready, err := s.dispatcher.Deposit(r.Context(), types.Destination(req.Destination), req.Depositor, req.Amount)
	if err != nil {
		if errors.Is(err, types.ErrUnsupportedDestination) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("deposit failed",
			zap.String("destination", req.Destination),
			zap.String("depositor", req.Depositor),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"destination":  req.Destination,
		"window_total": total,
		"ready":        ready,
	})
}

// @Title: Window Readiness
// @Route: GET /api/ready?destination=...
// @Description: Report whether a destination window has reached the settlement threshold
// @Response: {"destination": "...", "window_total": N, "threshold": N, "ready": bool}
func (s *Service) HandleReady(w http.ResponseWriter, r *http.Request) {
	dest, ok := s.destinationParam(w, r)
	if !ok {
		return
	}

	ready, err := s.dispatcher.IsReady(r.Context(), dest)
	if err != nil {
		if errors.Is(err, types.ErrUnsupportedDestination) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total, err := s.ledger.Total(r.Context(), dest)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"destination":  string(dest),
		"window_total": total,
		"threshold":    s.dispatcher.Threshold(),
		"ready":        ready,
	})
}

// @Title: Window Snapshot
// @Route: GET /api/snapshot?destination=...
// @Description: Return the open window for a destination: contributors, balances, total
// @Response: Snapshot object
func (s *Service) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	dest, ok := s.destinationParam(w, r)
	if !ok {
		return
	}

	snap, err := s.ledger.Snapshot(r.Context(), dest)
	if err != nil {
		if errors.Is(err, types.ErrUnsupportedDestination) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, snap)
}

// destinationParam extracts and validates the destination query parameter.
func (s *Service) destinationParam(w http.ResponseWriter, r *http.Request) (types.Destination, bool) {
	dest := r.URL.Query().Get("destination")
	if dest == "" {
		s.writeError(w, http.StatusBadRequest, "Missing 'destination' query parameter")
		return "", false
	}
	return types.Destination(dest), true
}

// limitParam parses an optional positive limit, defaulting to 0 (let the
// ledger apply its own default).
func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
