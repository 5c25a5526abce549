package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/treasury/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Validation("ledger: amount must be non-zero"), http.StatusBadRequest},
		{shared.NotFound("ledger: account not found"), http.StatusNotFound},
		{shared.Conflict("budget: plan closed"), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)
		require.Equal(t, tc.status, StatusFor(tc.err))
		var body ProblemDetail
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestDecodeJSONValidates(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	v := validator.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	var p payload
	err := DecodeJSON(req, v, &p)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "name required")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	require.ErrorIs(t, DecodeJSON(req, v, &p), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, v, &p))
	require.Equal(t, "ok", p.Name)
}
