package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type ZSet struct {
	client *redis.Client
	key    string
}

func NewZSet(cache *redis.Client, key string) ZSet {
	return ZSet{
		key:    key,
		client: cache,
	}
}

type ZSetKVP = redis.Z

// Set writes members with their scores, overwriting any previous score
func (zz *ZSet) Set(ctx context.Context, members ...ZSetKVP) error {
	if len(members) == 0 {
		return nil
	}
	return zz.client.ZAdd(ctx, zz.key, toPtrs(members)...).Err()
}

func toPtrs(members []ZSetKVP) []*redis.Z {
	out := make([]*redis.Z, len(members))
	for i := range members {
		out[i] = &members[i]
	}
	return out
}

func (zz *ZSet) Score(ctx context.Context, member string) (float64, error) {
	return zz.client.ZScore(ctx, zz.key, member).Result()
}

// All returns every member ordered by score, highest first
func (zz *ZSet) All(ctx context.Context) ([]ZSetKVP, error) {
	return zz.client.ZRevRangeWithScores(ctx, zz.key, 0, -1).Result()
}

func (zz *ZSet) Count(ctx context.Context) (int64, error) {
	cmd := zz.client.ZCount(ctx, zz.key, "-inf", "+inf")
	return cmd.Val(), cmd.Err()
}

func (zz *ZSet) CountRange(ctx context.Context, min, max float64) (int64, error) {
	cmd := zz.client.ZCount(ctx, zz.key, fmt.Sprintf("%f", min), fmt.Sprintf("%f", max))
	return cmd.Val(), cmd.Err()
}

func (zz *ZSet) Clear(ctx context.Context) error {
	return zz.client.Del(ctx, zz.key).Err()
}
