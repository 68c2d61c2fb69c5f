package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const redisStateKey = "seatwatch:state"

type redisStore struct {
	client *redis.Client
}

func openRedis(ctx context.Context, url string) (redisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return redisStore{}, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	err = client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return redisStore{}, fmt.Errorf("ping redis: %w", err)
	}

	slog.InfoContext(ctx, "redis connected", "addr", opt.Addr, "db", opt.DB)
	return redisStore{client: client}, nil
}

func (s redisStore) Load(ctx context.Context) (State, error) {
	data, err := s.client.Get(ctx, redisStateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}.normalized(), nil
	}
	if err != nil {
		return State{}, err
	}
	return decodeState(data)
}

func (s redisStore) Save(ctx context.Context, state State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisStateKey, data, 0).Err()
}

func (s redisStore) Close() error {
	return s.client.Close()
}
