package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsExistingStoreError(t *testing.T) {
	inner := NotFound("renameChat", "chat")
	require.Same(t, inner, Wrap("other", inner))
	require.Nil(t, Wrap("noop", nil))
}

func TestUnavailableMatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable("listChats", cause)

	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "store listChats: dial tcp: connection refused")

	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "listChats", se.Op)
}
