package bookings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicdesk/booking-engine/internal/slots"
	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// Handler exposes the booking records over HTTP. Creation here produces a
// PENDING record directly; the normal path goes through checkout, which
// creates the booking as part of order orchestration.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a bookings handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

type createBookingRequest struct {
	UserID      string `json:"userId"`
	DoctorID    string `json:"doctorId"`
	ProcedureID string `json:"procedureId,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId,omitempty"`
	CouponCode  string `json:"couponCode,omitempty"`
}

// Create handles POST /bookings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.DoctorID == "" || req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "doctorId, date and time are required")
		return
	}

	booking, err := h.store.Create(r.Context(), &Booking{
		UserID:      req.UserID,
		DoctorID:    req.DoctorID,
		ProcedureID: req.ProcedureID,
		Slot: slots.Ref{
			DoctorID:  req.DoctorID,
			Date:      req.Date,
			StartTime: req.Time,
		},
		Amount:     req.Amount,
		OrderID:    req.OrderID,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		h.logger.Error("booking create failed", "error", err, "doctor_id", req.DoctorID)
		writeError(w, http.StatusInternalServerError, "could not create booking")
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// List handles GET /bookings.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("booking list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list bookings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

// Get handles GET /bookings/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	booking, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		h.logger.Error("booking fetch failed", "error", err, "booking_id", id)
		writeError(w, http.StatusInternalServerError, "could not load booking")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
