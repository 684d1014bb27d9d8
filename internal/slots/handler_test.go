package slots

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerListAvailable(t *testing.T) {
	h := NewHandler(newTestService(), nil)

	req := httptest.NewRequest(http.MethodGet, "/slots/available?doctorId=dr1&date=2026-09-14", nil)
	rec := httptest.NewRecorder()
	h.ListAvailable(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp availableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Slots, 6)
	assert.Equal(t, slotResponse{Date: "2026-09-14", Time: "09:00"}, resp.Slots[0])
}

func TestHandlerListAvailableMissingParams(t *testing.T) {
	h := NewHandler(newTestService(), nil)

	req := httptest.NewRequest(http.MethodGet, "/slots/available?doctorId=dr1", nil)
	rec := httptest.NewRecorder()
	h.ListAvailable(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListAvailableUnknownDoctor(t *testing.T) {
	h := NewHandler(newTestService(), nil)

	req := httptest.NewRequest(http.MethodGet, "/slots/available?doctorId=dr404&date=2026-09-14", nil)
	rec := httptest.NewRecorder()
	h.ListAvailable(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerHold(t *testing.T) {
	h := NewHandler(newTestService(), nil)
	body := `{"doctorId":"dr1","date":"2026-09-14","time":"10:00"}`

	req := httptest.NewRequest(http.MethodPost, "/slots/hold", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Hold(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp holdResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.HoldToken)

	// Same slot again conflicts.
	req = httptest.NewRequest(http.MethodPost, "/slots/hold", strings.NewReader(body))
	rec = httptest.NewRecorder()
	h.Hold(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerHoldBadPayload(t *testing.T) {
	h := NewHandler(newTestService(), nil)

	req := httptest.NewRequest(http.MethodPost, "/slots/hold", strings.NewReader(`{"doctorId":"dr1"}`))
	rec := httptest.NewRecorder()
	h.Hold(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
