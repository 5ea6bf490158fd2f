package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// --- Dedup window: Cassandra ---

// Claim inserts the marker with a TTL equal to the window. The row disappears
// on its own once the window has passed, so the next claim succeeds again.
func (s *Store) Claim(ctx context.Context, key DedupKey, notificationID string, window time.Duration) (bool, error) {
	ttl := int(window / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO notification_dedup (dedup_key, notification_id)
		VALUES (?, ?) IF NOT EXISTS USING TTL ?`,
		key.String(), notificationID, ttl,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to claim dedup marker", err)
		return false, err
	}
	return applied, nil
}

// Release drops the marker only while it still belongs to notificationID.
func (s *Store) Release(ctx context.Context, key DedupKey, notificationID string) error {
	result := make(map[string]interface{})
	_, err := s.Session.Query(
		`DELETE FROM notification_dedup WHERE dedup_key = ? IF notification_id = ?`,
		key.String(), notificationID,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to release dedup marker", err)
		return err
	}
	return nil
}

// --- Dedup window: Redis ---

const redisDedupPrefix = "notify:dedup:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDedup keeps dedup markers as expiring Redis keys.
type RedisDedup struct {
	client redis.UniversalClient
}

func NewRedisDedup(client redis.UniversalClient) *RedisDedup {
	return &RedisDedup{client: client}
}

func (r *RedisDedup) Claim(ctx context.Context, key DedupKey, notificationID string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, redisDedupPrefix+key.String(), notificationID, window).Result()
	if err != nil {
		logg.Error("store", "Failed to claim dedup marker in redis", err)
		return false, err
	}
	return ok, nil
}

func (r *RedisDedup) Release(ctx context.Context, key DedupKey, notificationID string) error {
	if err := releaseScript.Run(ctx, r.client, []string{redisDedupPrefix + key.String()}, notificationID).Err(); err != nil {
		logg.Error("store", "Failed to release dedup marker in redis", err)
		return err
	}
	return nil
}
