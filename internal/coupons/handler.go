package coupons

import (
	"encoding/json"
	"net/http"

	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// Handler exposes coupon validation over HTTP.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

// NewHandler creates a coupons handler.
func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

type validateRequest struct {
	Code        string `json:"code"`
	Amount      int64  `json:"amount"`
	DoctorID    string `json:"doctorId,omitempty"`
	ProcedureID string `json:"procedureId,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

type validateResponse struct {
	Discount    int64 `json:"discount"`
	FinalAmount int64 `json:"finalAmount"`
}

// Validate handles POST /coupons/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Code == "" || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "code and amount are required")
		return
	}

	result, err := h.engine.Validate(r.Context(), req.Code, req.Amount, req.DoctorID, req.ProcedureID, req.UserID)
	if err != nil {
		if reason := Reason(err); reason != "" {
			writeError(w, http.StatusBadRequest, reason)
			return
		}
		h.logger.Error("coupon validation failed", "error", err, "code", req.Code)
		writeError(w, http.StatusInternalServerError, "validation failed")
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Discount:    result.Discount,
		FinalAmount: result.FinalAmount,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
