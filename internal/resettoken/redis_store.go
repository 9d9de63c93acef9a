package resettoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/charlesng35/storefront/pkg/metrics"
)

const redisKeyPrefix = "storefront:reset:"

// RedisStore keeps tokens as JSON strings with a native expiry and tracks each
// customer's tokens in a set so they can be revoked together.
type RedisStore struct {
	client redis.UniversalClient
	opts   options
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("resettoken: redis client is required")
	}
	return &RedisStore{client: client, opts: applyOptions("resettoken.redis", opts)}, nil
}

func tokenKey(token string) string {
	return redisKeyPrefix + "token:" + token
}

func customerKey(customerID string) string {
	return redisKeyPrefix + "customer:" + customerID
}

// Put stores the token with a PX expiry equal to the remaining lifetime. Write
// failures are always returned; tokens already past their lifetime yield ErrExpired.
func (s *RedisStore) Put(ctx context.Context, token Token) error {
	if err := token.validate(); err != nil {
		return err
	}

	remaining := s.opts.ttl - s.opts.clock().Sub(token.IssuedAt)
	if remaining <= 0 {
		return ErrExpired
	}

	payload, err := json.Marshal(fileRecord{
		Email:      token.Email,
		CustomerID: token.CustomerID,
		Timestamp:  token.IssuedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("resettoken: encode token: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(token.Token), payload, remaining)
		pipe.SAdd(ctx, customerKey(token.CustomerID), token.Token)
		pipe.Expire(ctx, customerKey(token.CustomerID), s.opts.ttl)
		return nil
	})
	if err != nil {
		s.recordFailure("put", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Get returns the live record for token. The issue time is checked against the store
// clock as well as relying on the key expiry.
func (s *RedisStore) Get(ctx context.Context, token string) (*Token, error) {
	record, err := s.read(ctx, token)
	if err != nil {
		return nil, err
	}

	result := record.token(token)
	if result.Expired(s.opts.clock(), s.opts.ttl) {
		if err := s.remove(ctx, token, record.CustomerID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return &result, nil
}

// Delete removes token and its customer index entry.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	record, err := s.read(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.remove(ctx, token, record.CustomerID)
}

// DeleteByCustomer removes every outstanding token for customerID.
func (s *RedisStore) DeleteByCustomer(ctx context.Context, customerID string) (int, error) {
	members, err := s.client.SMembers(ctx, customerKey(customerID)).Result()
	if err != nil {
		return 0, s.failure("list customer tokens", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, member := range members {
		keys = append(keys, tokenKey(member))
	}
	if len(keys) == 0 {
		return 0, nil
	}

	var removed *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, keys...)
		pipe.Del(ctx, customerKey(customerID))
		return nil
	})
	if err != nil {
		return 0, s.failure("delete customer tokens", err)
	}
	return int(removed.Val()), nil
}

// Sweep is a no-op; Redis expires keys natively.
func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) read(ctx context.Context, token string) (fileRecord, error) {
	var record fileRecord
	raw, err := s.client.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return record, ErrNotFound
	}
	if err != nil {
		return record, fmt.Errorf("resettoken: redis get: %w", err)
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		s.opts.log.Warn("discarding malformed reset token", zap.Error(err))
		return record, ErrNotFound
	}
	return record, nil
}

func (s *RedisStore) remove(ctx context.Context, token, customerID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tokenKey(token))
		pipe.SRem(ctx, customerKey(customerID), token)
		return nil
	})
	return s.failure("delete", err)
}

func (s *RedisStore) recordFailure(op string, err error) {
	metrics.TokenStoreFailures.WithLabelValues("redis").Inc()
	s.opts.log.Error("reset token store write failed", zap.String("op", op), zap.Error(err))
}

// failure applies the durability policy to writes that only remove tokens.
func (s *RedisStore) failure(op string, err error) error {
	if err == nil {
		return nil
	}

	s.recordFailure(op, err)
	if s.opts.bestEffort {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPersist, err)
}
