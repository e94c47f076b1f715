package modulegraph

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	ferrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
)

// DefaultKeyPrefix namespaces module keys in Redis.
const DefaultKeyPrefix = "devserver:module:"

const scanBatch = 256

// RedisGraph stores modules as JSON values in Redis.
type RedisGraph struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisGraph wraps client. A zero ttl keeps entries until invalidated.
func NewRedisGraph(client redis.UniversalClient, ttl time.Duration) *RedisGraph {
	return &RedisGraph{client: client, prefix: DefaultKeyPrefix, ttl: ttl}
}

// DialRedisGraph connects to addr and verifies the connection.
func DialRedisGraph(ctx context.Context, addr string, ttl time.Duration) (*RedisGraph, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "redis module cache unreachable").
			WithContext("addr", addr).
			Retryable().
			Build()
	}
	return NewRedisGraph(client, ttl), nil
}

func (g *RedisGraph) key(url string) string { return g.prefix + url }

func (g *RedisGraph) GetModuleByURL(ctx context.Context, url string) (*Module, error) {
	raw, err := g.client.Get(ctx, g.key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "redis get failed").WithContext("url", url).Build()
	}
	var m Module
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "corrupt module cache entry").WithContext("url", url).Build()
	}
	return &m, nil
}

func (g *RedisGraph) SetTransformResult(ctx context.Context, url, file string, modTime time.Time, result *TransformResult) error {
	raw, err := json.Marshal(&Module{URL: url, File: file, ModTime: modTime, TransformResult: result})
	if err != nil {
		return err
	}
	if err := g.client.Set(ctx, g.key(url), raw, g.ttl).Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "redis set failed").WithContext("url", url).Build()
	}
	return nil
}

// InvalidateAll deletes every module key under the prefix.
func (g *RedisGraph) InvalidateAll(ctx context.Context) error {
	iter := g.client.Scan(ctx, 0, g.prefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := g.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return ferrors.WrapError(err, ferrors.CategoryNetwork, "redis delete failed").Build()
			}
		}
	}
	if err := iter.Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "redis scan failed").Build()
	}
	if err := flush(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "redis delete failed").Build()
	}
	return nil
}

// Close releases the client.
func (g *RedisGraph) Close() error { return g.client.Close() }
