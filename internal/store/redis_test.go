package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "nma")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, _ := setupRedisStore(t)
		return s
	})

	t.Run("Key Layout", func(t *testing.T) {
		s, mr := setupRedisStore(t)

		if err := s.Put(context.Background(), music("c1", "sm1", "a")); err != nil {
			t.Fatalf("failed to put: %v", err)
		}
		if !mr.Exists("nma:record:music:c1") {
			t.Errorf("expected key nma:record:music:c1, have %v", mr.Keys())
		}
	})

	t.Run("Corrupt Value", func(t *testing.T) {
		s, mr := setupRedisStore(t)
		mr.Set("nma:record:music:bad", "{not json")

		_, err := s.Scan(context.Background(), Filter{})
		if !errors.Is(err, shared.ErrStoreUnavailable) {
			t.Errorf("expected ErrStoreUnavailable, got %v", err)
		}
	})

	t.Run("Many Keys Across Scan Batches", func(t *testing.T) {
		s, _ := setupRedisStore(t)
		ctx := context.Background()

		const n = scanBatch + 25
		for i := range n {
			id := string(rune('a'+i%26)) + shared.GenerateID()
			if err := s.Put(ctx, music(id, id, "t")); err != nil {
				t.Fatalf("failed to put: %v", err)
			}
		}

		records, err := s.Scan(ctx, Filter{Kind: models.KindMusic})
		if err != nil {
			t.Fatalf("failed to scan: %v", err)
		}
		if len(records) != n {
			t.Errorf("expected %d records, got %d", n, len(records))
		}
	})
}

func TestDialRedis(t *testing.T) {
	t.Run("Empty URL", func(t *testing.T) {
		_, err := DialRedis(context.Background(), shared.RedisConfig{})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Connects", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("failed to start miniredis: %v", err)
		}
		defer mr.Close()

		s, err := DialRedis(context.Background(), shared.RedisConfig{URL: "redis://" + mr.Addr() + "/0", KeyPrefix: "nma"})
		if err != nil {
			t.Fatalf("failed to dial: %v", err)
		}
		s.Close()
	})
}
