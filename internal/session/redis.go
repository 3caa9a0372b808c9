package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/usersvc/internal/models"
)

// RedisStore keeps one JSON document per user under prefix+username.
// Keys are written without a TTL: expiry is judged by the auth service when a
// token is presented, and stale sessions stay until the next login or logout.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return NewRedisStoreWithPrefix(client, "session:")
}

func NewRedisStoreWithPrefix(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

const replaceRetries = 5

func (s *RedisStore) key(username string) string { return s.prefix + username }

func (s *RedisStore) Get(ctx context.Context, username string) (*models.Session, error) {
	if username == "" {
		return nil, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.Username == "" {
		return errors.New("session username cannot be empty")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.Username), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// ReplaceAccess runs under WATCH so a concurrent Put from another instance
// aborts the swap instead of being overwritten.
func (s *RedisStore) ReplaceAccess(ctx context.Context, username, refreshToken, accessToken string, accessExpiresAt time.Time) error {
	key := s.key(username)
	swap := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("redis get: %w", err)
		}
		var sess models.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		if sess.RefreshToken != refreshToken {
			return ErrSuperseded
		}
		sess.AccessToken = accessToken
		sess.AccessExpiresAt = accessExpiresAt
		next, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < replaceRetries; i++ {
		err := s.client.Watch(ctx, swap, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrSuperseded) {
			return fmt.Errorf("redis replace access token: %w", err)
		}
		return err
	}
	return fmt.Errorf("redis replace access token: %w", redis.TxFailedErr)
}

func (s *RedisStore) Delete(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	n, err := s.client.Del(ctx, s.key(username)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}
