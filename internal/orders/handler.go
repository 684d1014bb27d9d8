package orders

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicdesk/booking-engine/internal/coupons"
	"github.com/clinicdesk/booking-engine/internal/gateway"
	"github.com/clinicdesk/booking-engine/internal/slots"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// Handler exposes checkout order creation over HTTP.
type Handler struct {
	orchestrator *Orchestrator
	validate     *validator.Validate
	logger       *logging.Logger
}

// NewHandler creates an orders handler.
func NewHandler(orchestrator *Orchestrator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		validate:     validator.New(),
		logger:       logger,
	}
}

type createOrderRequest struct {
	DoctorID    string  `json:"doctorId" validate:"required"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	HoldToken   string  `json:"holdToken,omitempty"`
	ProcedureID string  `json:"procedureId,omitempty"`
	UserID      string  `json:"userId,omitempty"`
	CouponID    string  `json:"couponId,omitempty"`
	IsUrgent    bool    `json:"isUrgent,omitempty"`
	Amount      int64   `json:"amount" validate:"required,gt=0"`
	Receipt     string  `json:"receipt,omitempty"`
	PatientData Patient `json:"patientData" validate:"required"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateOrder handles POST /payments/create-order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "amount, doctorId and patientData are required")
		return
	}
	if req.HoldToken == "" && (req.Date == "" || req.Time == "") {
		writeError(w, http.StatusBadRequest, "either holdToken or date and time are required")
		return
	}

	// A generated receipt must be unique per checkout attempt, never
	// time-derived: two patients checking out in the same second would
	// otherwise collapse into one idempotent order.
	receipt := req.Receipt
	if receipt == "" {
		receipt = "booking_" + uuid.NewString()
	}

	order, err := h.orchestrator.CreateOrder(r.Context(), CreateOrderInput{
		HoldToken: req.HoldToken,
		Slot: slots.Ref{
			DoctorID:  req.DoctorID,
			Date:      req.Date,
			StartTime: req.Time,
		},
		ProcedureID:  req.ProcedureID,
		UserID:       req.UserID,
		CouponCode:   req.CouponID,
		IsUrgent:     req.IsUrgent,
		ClientAmount: req.Amount,
		Patient:      req.PatientData,
		Receipt:      receipt,
	})
	if err != nil {
		h.respondError(w, err, req.DoctorID)
		return
	}

	writeJSON(w, http.StatusOK, createOrderResponse{
		ID:       order.OrderID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.Receipt,
		Status:   "created",
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error, doctorID string) {
	switch {
	case errors.Is(err, slots.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot unavailable")
	case errors.Is(err, slots.ErrHoldExpired), errors.Is(err, slots.ErrHoldNotFound):
		writeError(w, http.StatusConflict, "hold expired, re-select a slot")
	case errors.Is(err, slots.ErrDoctorNotFound):
		writeError(w, http.StatusBadRequest, "unknown doctor")
	case errors.Is(err, ErrPricingMismatch):
		writeError(w, http.StatusBadRequest, "amount does not match server pricing")
	case coupons.Reason(err) != "":
		writeError(w, http.StatusBadRequest, coupons.Reason(err))
	case errors.Is(err, gateway.ErrUnavailable):
		h.logger.Error("gateway order failed", "error", err, "doctor_id", doctorID)
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		h.logger.Error("order creation failed", "error", err, "doctor_id", doctorID)
		writeError(w, http.StatusInternalServerError, "could not create order")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
