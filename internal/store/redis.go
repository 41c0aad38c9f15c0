package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// redisRecord is the stored JSON value; Seq orders scans.
type redisRecord struct {
	models.Record
	Seq int64 `json:"seq"`
}

// RedisStore keeps one JSON value per record under "{prefix}:record:{kind}:{id}".
//
// Scan walks the keyspace and filters client-side, so its cost grows with the whole collection.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// DialRedis connects to the configured redis URL and checks the connection.
func DialRedis(ctx context.Context, cfg shared.RedisConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: redis.url is empty", shared.ErrInvalidConfig)
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", shared.ErrInvalidConfig, err)
	}

	rdb := redis.NewClient(opt)
	if err := withRetry(ctx, func() error { return rdb.Ping(ctx).Err() }); err != nil {
		rdb.Close()
		return nil, unavailable("connect to redis", err)
	}
	return NewRedisStore(rdb, cfg.KeyPrefix), nil
}

// NewRedisStore wraps an existing client. The store owns rdb and closes it in [RedisStore.Close].
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) namespace() string {
	if s.prefix == "" {
		return "record"
	}
	return s.prefix + ":record"
}

func (s *RedisStore) key(k Key) string {
	return fmt.Sprintf("%s:%s:%s", s.namespace(), k.Kind, k.ID)
}

func (s *RedisStore) sequenceKey() string {
	return s.namespace() + "s:seq"
}

func (s *RedisStore) pattern(kind models.Kind) string {
	if kind == "" {
		return s.namespace() + ":*"
	}
	return fmt.Sprintf("%s:%s:*", s.namespace(), kind)
}

// Scan returns every record matching f, ordered by insertion.
func (s *RedisStore) Scan(ctx context.Context, f Filter) ([]models.Record, error) {
	var stored []redisRecord
	err := withRetry(ctx, func() error {
		stored = stored[:0]
		var cursor uint64
		for {
			keys, next, err := s.rdb.Scan(ctx, cursor, s.pattern(f.Kind), scanBatch).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				values, err := s.rdb.MGet(ctx, keys...).Result()
				if err != nil {
					return err
				}
				for i, v := range values {
					raw, ok := v.(string)
					if !ok {
						continue // deleted between SCAN and MGET
					}
					var rec redisRecord
					if err := json.Unmarshal([]byte(raw), &rec); err != nil {
						return fmt.Errorf("corrupt record at %s: %w", keys[i], err)
					}
					if f.Match(rec.Record) {
						stored = append(stored, rec)
					}
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return nil, unavailable("scan records", err)
	}

	// SCAN may return a key more than once.
	seen := make(map[string]bool, len(stored))
	unique := stored[:0]
	for _, rec := range stored {
		k := KeyOf(rec.Record).String()
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, rec)
	}

	sort.SliceStable(unique, func(i, j int) bool { return unique[i].Seq < unique[j].Seq })

	records := make([]models.Record, 0, len(unique))
	for _, rec := range unique {
		records = append(records, rec.Record)
	}
	return records, nil
}

// Put inserts r, or replaces the record with the same key while keeping its scan position.
func (s *RedisStore) Put(ctx context.Context, r models.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	key := s.key(KeyOf(r))

	err := withRetry(ctx, func() error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			seq, err := s.existingSeq(ctx, tx, key)
			if err != nil {
				return err
			}
			if seq == 0 {
				if seq, err = tx.Incr(ctx, s.sequenceKey()).Result(); err != nil {
					return err
				}
			}
			data, err := json.Marshal(redisRecord{Record: r, Seq: seq})
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
	})
	if err != nil {
		return unavailable("put record "+KeyOf(r).String(), err)
	}
	return nil
}

func (s *RedisStore) existingSeq(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return 0, fmt.Errorf("corrupt record at %s: %w", key, err)
	}
	return rec.Seq, nil
}

// Update sets the patched attributes of the record at k.
func (s *RedisStore) Update(ctx context.Context, k Key, p Patch) error {
	if p.Empty() {
		return fmt.Errorf("%w: empty patch for %s", shared.ErrInvalidInput, k)
	}
	key := s.key(k)

	err := withRetry(ctx, func() error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				return shared.ErrRecordNotFound
			}
			if err != nil {
				return err
			}

			var rec redisRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return fmt.Errorf("corrupt record at %s: %w", key, err)
			}
			p.Apply(&rec.Record)

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
	})
	if errors.Is(err, shared.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, k)
	}
	if err != nil {
		return unavailable("update record "+k.String(), err)
	}
	return nil
}

// Delete removes the record at k.
func (s *RedisStore) Delete(ctx context.Context, k Key) error {
	err := withRetry(ctx, func() error {
		return s.rdb.Del(ctx, s.key(k)).Err()
	})
	if err != nil {
		return unavailable("delete record "+k.String(), err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
