// internal/auth/session_test.go
package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	Init()
	TOKEN_EXPIRE_TIME_SEC = 0

	userID := uuid.New()
	token, err := CreateJWT(userID)
	require.NoError(t, err)

	got, err := Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	Init()

	_, err := Verify(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = Verify(context.Background(), "")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	Init()
	token, err := CreateJWT(uuid.New())
	require.NoError(t, err)

	// rotate keys; old signatures no longer verify
	Init()
	_, err = Verify(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsExpired(t *testing.T) {
	Init()
	TOKEN_EXPIRE_TIME_SEC = 1
	defer func() { TOKEN_EXPIRE_TIME_SEC = 0 }()

	token, err := CreateJWT(uuid.New())
	require.NoError(t, err)

	time.Sleep(1200 * time.Millisecond)

	_, err = Verify(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExpiredToken))
}
