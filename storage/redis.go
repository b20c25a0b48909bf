package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/push-relay/interfaces"
)

// DefaultRedisPrefix namespaces registration hashes.
const DefaultRedisPrefix = "push-relay:tokens:"

const scanBatchSize = 200

var deleteIfTokenScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps each registration as a hash under prefix+key. HSET only
// touches the fields it is given, which gives merge semantics.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	log    *slog.Logger
}

func NewRedisStore(client *redis.Client, prefix string, log *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
		log:    log,
	}
}

func (s *RedisStore) Upsert(ctx context.Context, key, token string) error {
	err := s.client.HSet(ctx, s.prefix+key,
		fieldToken, token,
		fieldTimestamp, s.now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*interfaces.Registration, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, interfaces.ErrRegistrationNotFound
	}

	reg := s.registrationFromFields(key, fields)
	return &reg, nil
}

func (s *RedisStore) List(ctx context.Context) ([]interfaces.Registration, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	registrations := make([]interfaces.Registration, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		// removed between SCAN and HGETALL
		if len(fields) == 0 {
			continue
		}
		registrations = append(registrations, s.registrationFromFields(strings.TrimPrefix(keys[i], s.prefix), fields))
	}

	return registrations, nil
}

func (s *RedisStore) DeleteIfToken(ctx context.Context, key, token string) (bool, error) {
	n, err := deleteIfTokenScript.Run(ctx, s.client, []string{s.prefix + key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Available(ctx context.Context) bool {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.log.Debug("Redis store unavailable", "err", err)
		return false
	}
	return true
}

func (s *RedisStore) Name() string {
	return "redis-" + strings.TrimSuffix(s.prefix, ":")
}

func (s *RedisStore) registrationFromFields(key string, fields map[string]string) interfaces.Registration {
	reg := interfaces.Registration{
		Key:   key,
		Token: fields[fieldToken],
	}
	if ts, ok := fields[fieldTimestamp]; ok {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			s.log.Warn("Ignoring malformed registration timestamp", slog.String("key", key), "err", err)
		} else {
			reg.Timestamp = parsed
		}
	}
	return reg
}
