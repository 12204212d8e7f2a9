package cache

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

func ConfigureRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rd := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0, // use default DB
	})
	if err := rd.Ping(ctx).Err(); err != nil {
		rd.Close()
		return nil, errors.Wrap(err, "failed to ping redis")
	}
	return rd, nil
}
