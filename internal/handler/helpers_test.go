package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) model.Envelope {
	t.Helper()
	var env model.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWriteRepoErrorMapping(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{fmt.Errorf("%w: amount must be a positive number", repository.ErrInvalid), http.StatusBadRequest, "VALIDATION_ERROR", "amount must be a positive number"},
		{repository.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
		{fmt.Errorf("%w: only the sender can change a message", repository.ErrForbidden), http.StatusForbidden, "FORBIDDEN", "only the sender can change a message"},
		{fmt.Errorf("userRepo.Create a@b.c: %w", repository.ErrConflict), http.StatusConflict, "CONFLICT", "already exists"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL", "Internal server error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeRepoError(rec, "test", tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		env := decode(t, rec)
		assert.False(t, env.Success)
		assert.Equal(t, tc.code, env.ErrorCode)
		assert.Equal(t, tc.message, env.Message)
	}
}

func TestWriteJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, "Invoice created", map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"n":1}`, string(env.Data))

	rec = httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, "Logged out", nil)
	assert.NotContains(t, rec.Body.String(), `"data"`)
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	var dst model.LoginRequest
	assert.False(t, decodeJSON(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	ct, problem := imageType("", png)
	assert.Empty(t, problem)
	assert.Equal(t, "image/png", ct)

	_, problem = imageType("text/plain", []byte("hello"))
	assert.Equal(t, "Profile image must be an image", problem)

	_, problem = imageType("image/png", nil)
	assert.Equal(t, "Image is empty", problem)
}
