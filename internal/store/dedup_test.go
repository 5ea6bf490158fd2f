package store

import (
	"context"
	"testing"
	"time"

	"example.com/socialgraph/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisDedup(t *testing.T) (*RedisDedup, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDedup(client), mr
}

func TestRedisDedup_ClaimWindow(t *testing.T) {
	d, mr := newRedisDedup(t)
	ctx := context.Background()
	key := DedupKey{RecipientID: "b", SenderID: "a", Kind: models.KindLike, PostID: "p1"}

	if ok, err := d.Claim(ctx, key, "n1", 24*time.Hour); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if got := mr.TTL(redisDedupPrefix + key.String()); got != 24*time.Hour {
		t.Fatalf("expected marker TTL of 24h, got %s", got)
	}

	mr.FastForward(23 * time.Hour)
	if ok, err := d.Claim(ctx, key, "n2", 24*time.Hour); err != nil || ok {
		t.Fatalf("claim inside the window: ok=%v err=%v", ok, err)
	}
	// a losing claim must not extend the window
	mr.FastForward(2 * time.Hour)
	if ok, err := d.Claim(ctx, key, "n3", 24*time.Hour); err != nil || !ok {
		t.Fatalf("claim after the window: ok=%v err=%v", ok, err)
	}

	other := DedupKey{RecipientID: "b", SenderID: "a", Kind: models.KindLike, PostID: "p2"}
	if ok, _ := d.Claim(ctx, other, "n4", 24*time.Hour); !ok {
		t.Fatal("a different post must get its own marker")
	}
}

func TestRedisDedup_ReleaseOnlyOwner(t *testing.T) {
	d, mr := newRedisDedup(t)
	ctx := context.Background()
	key := DedupKey{RecipientID: "b", SenderID: "a", Kind: models.KindFollow}
	redisKey := redisDedupPrefix + key.String()

	if ok, _ := d.Claim(ctx, key, "n1", time.Hour); !ok {
		t.Fatal("first claim should win")
	}
	if err := d.Release(ctx, key, "someone-else"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if got, err := mr.Get(redisKey); err != nil || got != "n1" {
		t.Fatalf("marker should survive a foreign release, got %q err=%v", got, err)
	}

	if err := d.Release(ctx, key, "n1"); err != nil {
		t.Fatalf("release by owner: %v", err)
	}
	if mr.Exists(redisKey) {
		t.Fatal("owner release should drop the marker")
	}
	if ok, _ := d.Claim(ctx, key, "n2", time.Hour); !ok {
		t.Fatal("claim after release should win")
	}

	// releasing a missing marker is a no-op
	missing := DedupKey{RecipientID: "x", SenderID: "y", Kind: models.KindFollow}
	if err := d.Release(ctx, missing, "n9"); err != nil {
		t.Fatalf("release of missing marker: %v", err)
	}
}

func TestRedisDedup_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	d := NewRedisDedup(client)
	mr.Close()
	key := DedupKey{RecipientID: "b", SenderID: "a", Kind: models.KindFollow}

	if _, err := d.Claim(context.Background(), key, "n1", time.Hour); err == nil {
		t.Fatal("expected claim error with redis down")
	}
	if err := d.Release(context.Background(), key, "n1"); err == nil {
		t.Fatal("expected release error with redis down")
	}
}
