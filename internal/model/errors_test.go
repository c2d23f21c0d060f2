package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapOpReturnsNilForNilError(t *testing.T) {
	assert.Nil(t, WrapOp("op", "subject", ErrStorage, nil))
}

func TestWrapOpMatchesKindViaErrorsIs(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapOp("store.put", "foo", ErrStorage, cause)

	assert.True(t, errors.Is(err, ErrStorage))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, err, cause)
}
