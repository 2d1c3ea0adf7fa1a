package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "directory unavailable")

	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeUnavailable))
	assert.False(t, HasCode(err, CodeInternal))
	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestHasCode_NestedAndWrapped(t *testing.T) {
	inner := New(CodeNotFound, "no employee")
	outer := Wrap(fmt.Errorf("lookup: %w", inner), CodeInternal, "user lookup failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeNotFound))
	assert.True(t, Is(outer, CodeNotFound))
	assert.Equal(t, CodeInternal, CodeOf(outer))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeValidation))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(CodeUnauthorized))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(CodeUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInvariantViolation))
}
