package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrNotLoggedIn = errors.New("not logged in")

type LoginChecker struct {
	ttl         time.Duration
	redisClient *redis.Client
}

func NewLoginChecker(ttl time.Duration, redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		ttl:         ttl,
		redisClient: redisClient,
	}
}

// UserOf resolves a login token to the user behind it. ErrNotLoggedIn for
// unknown and expired tokens.
func (as *LoginChecker) UserOf(ctx context.Context, token string) (string, error) {
	sessionKey := sessionKeyPrefix + token
	cmd := as.redisClient.Get(ctx, sessionKey)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return "", ErrNotLoggedIn
		}
		return "", err
	}

	var ls LoginSession
	if err := json.Unmarshal([]byte(cmd.Val()), &ls); err != nil {
		return "", err
	}

	if time.Since(ls.CreatedAt) > as.ttl {
		return "", ErrNotLoggedIn
	}

	return ls.UserID, nil
}
