package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectKey_ScopesRelativePathUnderCanonicalID(t *testing.T) {
	key := ProjectKey("abc123", "locks/active.lock")
	assert.Equal(t, "projects/abc123/locks/active.lock", key)
}

func TestMemStore_GetBytesOnMissingKeyReturnsErrNotFound(t *testing.T) {
	store := NewMemStore()
	_, err := store.GetBytes(context.Background(), "projects/abc/missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemStore_PutThenGetRoundTrips(t *testing.T) {
	store := NewMemStore()
	key := "projects/abc/locks/active.lock"
	require.NoError(t, store.PutBytes(context.Background(), key, []byte("hello")))

	data, err := store.GetBytes(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCause_UnwrapsToOriginalError(t *testing.T) {
	original := errors.New("boom")
	wrapped := errWrap(ErrServer, original)

	assert.True(t, errors.Is(wrapped, ErrServer))
	assert.Equal(t, original, Cause(wrapped))
}
