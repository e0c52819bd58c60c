package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/carteira/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", domain.NewNotFound("portfolio", "p1"), http.StatusNotFound, "NOT_FOUND"},
		{"validation", domain.NewValidation("amount", "must be positive"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"wrapped cash", fmt.Errorf("transaction failed: %w", &domain.InsufficientCashError{Shortfall: 10}), http.StatusConflict, domain.CodeInsufficientCash},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, zerolog.Nop(), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestWriteData_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]int{"count": 2})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["data"]["count"])
	assert.NotEmpty(t, body["metadata"]["timestamp"])
}

func TestOwnerID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	_, ok := OwnerID(rec, req)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set(OwnerHeader, "alice")
	owner, ok := OwnerID(httptest.NewRecorder(), req)
	assert.True(t, ok)
	assert.Equal(t, "alice", owner)
}
