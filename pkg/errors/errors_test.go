package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorIs(t *testing.T) {
	err := fmt.Errorf("schedule: %w", Conflict("Scheduling conflict detected for this platform and time"))

	assert.True(t, stderrors.Is(err, ErrConflict))
	assert.False(t, stderrors.Is(err, ErrInvalidState))
	assert.Equal(t, KindConflict, As(err).Kind)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[*AppError]int{
		NotFound("content", nil):       http.StatusNotFound,
		InvalidInput("bad", nil):       http.StatusBadRequest,
		InvalidState("nope"):           http.StatusBadRequest,
		Conflict("taken"):              http.StatusConflict,
		Upstream("platform down", nil): http.StatusBadGateway,
		Store(stderrors.New("boom")):   http.StatusInternalServerError,
		Unauthorized("no token", nil):  http.StatusUnauthorized,
	}
	for err, want := range cases {
		assert.Equal(t, want, err.HTTPStatus(), err.Kind.String())
	}
}

func TestStoreErrorsHideCause(t *testing.T) {
	err := Store(stderrors.New("pq: connection refused"))

	assert.Equal(t, "internal server error", err.PublicMessage())
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAsWrapsUnknownErrors(t *testing.T) {
	assert.Nil(t, As(nil))

	appErr := As(stderrors.New("driver: bad connection"))
	assert.Equal(t, KindStore, appErr.Kind)

	nf := NotFound("booking", nil)
	assert.Same(t, nf, As(fmt.Errorf("wrapped: %w", nf)))
}
