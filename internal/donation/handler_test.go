package donation_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/treasury/internal/donation"
	"github.com/odyssey-erp/treasury/internal/shared"
)

func TestDonationEndpoints(t *testing.T) {
	f := setup(t)
	eligible, ineligible := eligibleCC, ineligibleCC
	good := f.post(t, 1, "-10", &eligible)
	bad := f.post(t, 1, "-10", &ineligible)
	other := f.post(t, 1, "-30", &eligible)

	h := donation.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc)
	r := chi.NewRouter()
	r.Route("/donations", h.MountRoutes)
	send := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req = req.WithContext(shared.ContextWithActor(req.Context(), 4))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := send("/donations", fmt.Sprintf(`{"transaction_id":%d,"description":"Gift","type":"MATERIAL"}`, good))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"processor_id":4`)

	rec = send("/donations", fmt.Sprintf(`{"transaction_id":%d,"description":"Gift","type":"MATERIAL"}`, good))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = send("/donations/batch", fmt.Sprintf(`{"items":[
{"transaction_id":%d,"description":"Gift","type":"FINANCIAL"},
{"transaction_id":%d,"description":"Gift","type":"FINANCIAL"},
{"transaction_id":%d,"description":"Gift","type":"FINANCIAL"}]}`, bad, other, good))
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	var rows []struct {
		TransactionID int64 `json:"transaction_id"`
		Status        int   `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 3)
	require.Equal(t, http.StatusBadRequest, rows[0].Status)
	require.Equal(t, http.StatusCreated, rows[1].Status)
	require.Equal(t, http.StatusConflict, rows[2].Status)

	rec = send("/donations/batch", `{"items":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
