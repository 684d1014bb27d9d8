package slots

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// Handler exposes slot availability and holds over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a slots handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type slotResponse struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type availableResponse struct {
	Slots []slotResponse `json:"slots"`
}

// ListAvailable handles GET /slots/available?doctorId=...&date=...
func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	doctorID := r.URL.Query().Get("doctorId")
	date := r.URL.Query().Get("date")
	if doctorID == "" || date == "" {
		writeError(w, http.StatusBadRequest, "doctorId and date are required")
		return
	}

	available, err := h.service.ListAvailable(r.Context(), doctorID, date)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			writeError(w, http.StatusNotFound, "doctor not found")
			return
		}
		h.logger.Error("availability lookup failed", "error", err, "doctor_id", doctorID, "date", date)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := availableResponse{Slots: make([]slotResponse, 0, len(available))}
	for _, slot := range available {
		resp.Slots = append(resp.Slots, slotResponse{Date: slot.Date, Time: slot.StartTime})
	}
	writeJSON(w, http.StatusOK, resp)
}

type holdRequest struct {
	DoctorID  string `json:"doctorId"`
	Date      string `json:"date"`
	StartTime string `json:"time"`
}

type holdResponse struct {
	HoldToken string `json:"holdToken"`
}

// Hold handles POST /slots/hold.
func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.DoctorID == "" || req.Date == "" || req.StartTime == "" {
		writeError(w, http.StatusBadRequest, "doctorId, date and time are required")
		return
	}

	token, err := h.service.Hold(r.Context(), Ref{
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		StartTime: req.StartTime,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotUnavailable):
			writeError(w, http.StatusConflict, "slot unavailable")
		case errors.Is(err, ErrDoctorNotFound):
			writeError(w, http.StatusNotFound, "doctor not found")
		default:
			h.logger.Error("hold failed", "error", err, "doctor_id", req.DoctorID)
			writeError(w, http.StatusInternalServerError, "hold failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, holdResponse{HoldToken: token})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
