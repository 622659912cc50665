package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginChecker_UserOf(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()

	loginChecker := NewLoginChecker(time.Hour, rdb)
	require.NotNil(t, loginChecker)

	ctx := context.Background()

	mock.ExpectGet(sessionKeyPrefix + "invalid token").RedisNil()
	userID, err := loginChecker.UserOf(ctx, "invalid token")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, userID)

	now := time.Now()
	sessionKey := sessionKeyPrefix + testToken

	mock.ExpectGet(sessionKey).SetVal(loginSessionJson(t, "u1", now))
	userID, err = loginChecker.UserOf(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// a token older than the ttl is as good as absent
	mock.ExpectGet(sessionKey).SetVal(loginSessionJson(t, "u1", now.Add(-2*time.Hour)))
	userID, err = loginChecker.UserOf(ctx, testToken)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, userID)

	require.NoError(t, mock.ExpectationsWereMet())
}
