package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// RedisStore keeps every document under `<prefix>:<name>`, multi document
// commits run in a MULTI/EXEC transaction.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "comebackwatch"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func OpenRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	err := client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", config.Addr, err)
	}
	return NewRedisStore(client, config.Prefix), nil
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":" + name
}

func (s *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	body, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return body, err
}

func (s *RedisStore) PutMany(ctx context.Context, docs map[string][]byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range sortedNames(docs) {
			pipe.Set(ctx, s.key(name), docs[name], 0)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
