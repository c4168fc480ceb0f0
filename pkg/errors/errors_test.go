package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatusCodes(t *testing.T) {
	tests := []struct {
		err    *AppError
		kind   Kind
		status int
	}{
		{Validation("bad input"), KindValidation, http.StatusBadRequest},
		{Unauthorized("", nil), KindUnauthorized, http.StatusUnauthorized},
		{NotFound("record", nil), KindNotFound, http.StatusNotFound},
		{Conflict("already reviewed", nil), KindConflict, http.StatusConflict},
		{Internal(stderrors.New("boom")), KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.status, tt.err.StatusCode())
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "unauthorized", Unauthorized("", nil).Message)
	assert.Equal(t, "record not found", NotFound("record", nil).Message)
	assert.Equal(t, "internal server error", Internal(nil).Message)

	cause := stderrors.New("sql: no rows")
	err := NotFound("prescription", cause)
	assert.Equal(t, "prescription not found: sql: no rows", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestKindOfWrapped(t *testing.T) {
	wrapped := fmt.Errorf("dispense: %w", Conflict("already dispensed", nil))

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.False(t, Is(wrapped, KindNotFound))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("plain")))
}
