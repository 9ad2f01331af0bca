package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	pendingPrefix = "reply_pending:"
	tokenPrefix   = "reply_token:"
	pausedPrefix  = "dialog_paused:"
	blockedPrefix = "dialog_blocked:"

	// Stale buffers self-destruct; pause and block flags do not, a
	// moderator has to lift them explicitly.
	pendingTTL = 24 * time.Hour
)

// StateRepo is the redis-backed conversation state store.
type StateRepo struct {
	client *goredis.Client
}

func NewStateRepo(client *goredis.Client) *StateRepo {
	return &StateRepo{client: client}
}

func (r *StateRepo) AppendPending(ctx context.Context, userID int64, text string) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, pendingKey(userID), text)
	pipe.Expire(ctx, pendingKey(userID), pendingTTL)
	incr := pipe.Incr(ctx, tokenKey(userID))
	pipe.Expire(ctx, tokenKey(userID), pendingTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("append pending fragment: %w", err)
	}

	return incr.Val(), nil
}

func (r *StateRepo) PendingSnapshot(ctx context.Context, userID int64) ([]string, int64, error) {
	if r.client == nil {
		return nil, 0, fmt.Errorf("redis client is nil")
	}

	pipe := r.client.TxPipeline()
	list := pipe.LRange(ctx, pendingKey(userID), 0, -1)
	tokenCmd := pipe.Get(ctx, tokenKey(userID))

	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, 0, fmt.Errorf("snapshot pending fragments: %w", err)
	}

	token, err := tokenFromCmd(tokenCmd)
	if err != nil {
		return nil, 0, err
	}

	return list.Val(), token, nil
}

func (r *StateRepo) CurrentToken(ctx context.Context, userID int64) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	return tokenFromCmd(r.client.Get(ctx, tokenKey(userID)))
}

// clearPendingScript drops the buffer only while the token still matches.
// Token check and delete run as one script, so an append landing mid-clear
// keeps its fragment.
var clearPendingScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[2])
	return 1
end
return 0
`)

func (r *StateRepo) ClearPendingIf(ctx context.Context, userID int64, token int64) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	cleared, err := clearPendingScript.Run(ctx, r.client,
		[]string{tokenKey(userID), pendingKey(userID)},
		strconv.FormatInt(token, 10)).Int64()
	if err != nil {
		return false, fmt.Errorf("clear pending fragments: %w", err)
	}

	return cleared == 1, nil
}

func (r *StateRepo) SetPaused(ctx context.Context, userID int64, paused bool) error {
	return r.setFlag(ctx, pausedKey(userID), paused)
}

func (r *StateRepo) IsPaused(ctx context.Context, userID int64) (bool, error) {
	return r.getFlag(ctx, pausedKey(userID))
}

func (r *StateRepo) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	return r.setFlag(ctx, blockedKey(userID), blocked)
}

func (r *StateRepo) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	return r.getFlag(ctx, blockedKey(userID))
}

func (r *StateRepo) setFlag(ctx context.Context, key string, on bool) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	var err error
	if on {
		err = r.client.Set(ctx, key, "1", 0).Err()
	} else {
		err = r.client.Del(ctx, key).Err()
	}
	if err != nil {
		return fmt.Errorf("set state flag %s: %w", key, err)
	}

	return nil
}

func (r *StateRepo) getFlag(ctx context.Context, key string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	_, err := r.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get state flag %s: %w", key, err)
	}

	return true, nil
}

func tokenFromCmd(cmd *goredis.StringCmd) (int64, error) {
	value, err := cmd.Result()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get reply token: %w", err)
	}

	token, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse reply token: %w", err)
	}

	return token, nil
}

func pendingKey(userID int64) string {
	return pendingPrefix + strconv.FormatInt(userID, 10)
}

func tokenKey(userID int64) string {
	return tokenPrefix + strconv.FormatInt(userID, 10)
}

func pausedKey(userID int64) string {
	return pausedPrefix + strconv.FormatInt(userID, 10)
}

func blockedKey(userID int64) string {
	return blockedPrefix + strconv.FormatInt(userID, 10)
}
