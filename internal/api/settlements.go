package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"poolgate.io/pgw/internal/carrier"
	"poolgate.io/pgw/internal/types"
)

// @Title: Trigger Settlement
// @Route: POST /api/settle
// @Description: Settle a destination's window if it has reached the threshold. A not-ready window is a no-op.
// @Response: 200 SettlementRecord, 204 if not ready, 402 if the fee balance is short, 502 on carrier failure
func (s *Service) HandleSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Destination == "" {
		s.writeError(w, http.StatusBadRequest, "Missing 'destination'")
		return
	}
	dest := types.Destination(req.Destination)

	rec, err := s.dispatcher.Settle(r.Context(), dest)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrUnsupportedDestination):
			s.writeError(w, http.StatusNotFound, err.Error())
		default:
			var feeErr *types.InsufficientFeeBalanceError
			var carrierErr *carrier.Error
			if errors.As(err, &feeErr) {
				s.writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
					"error":    feeErr.Error(),
					"balance":  feeErr.Balance,
					"required": feeErr.Required,
				})
				return
			}
			if errors.As(err, &carrierErr) {
				s.logger.Warn("settlement blocked by carrier",
					zap.String("destination", req.Destination),
					zap.Error(err))
				s.writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			s.logger.Error("settlement failed",
				zap.String("destination", req.Destination),
				zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if rec == nil {
		// Below threshold, nothing to do.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

// @Title: Settlement History
// @Route: GET /api/settlements?destination=...&limit=N
// @Description: Return past settlements for a destination, newest first
// @Response: Array of SettlementRecord objects
func (s *Service) HandleSettlements(w http.ResponseWriter, r *http.Request) {
	dest, ok := s.destinationParam(w, r)
	if !ok {
		return
	}

	recs, err := s.ledger.Settlements(r.Context(), dest, limitParam(r))
	if err != nil {
		if errors.Is(err, types.ErrUnsupportedDestination) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, recs)
}

// @Title: Inbound Message
// @Route: POST /api/inbound
// @Description: Carrier delivery endpoint. The gateway only sends; inbound messages are acknowledged and discarded.
// @Response: 204 No Content
func (s *Service) HandleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n, _ := io.Copy(io.Discard, r.Body)
	s.logger.Info("inbound carrier message discarded", zap.Int64("bytes", n))
	w.WriteHeader(http.StatusNoContent)
}
