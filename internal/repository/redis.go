package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hunabku/shorturl/internal/config"
	"github.com/hunabku/shorturl/internal/model"
)

// Redis runs scripts atomically, so the read, decide, and write below are
// indivisible with respect to every other client.
var advanceScript = redis.NewScript(`
local state = redis.call('HMGET', KEYS[1], 'last_bucket', 'sequence')
local now = tonumber(ARGV[1])
local last = tonumber(state[1])
if last ~= nil and now <= last then
	local seq = redis.call('HINCRBY', KEYS[1], 'sequence', 1)
	return {last, seq}
end
redis.call('HSET', KEYS[1], 'last_bucket', now, 'sequence', 0)
return {now, 0}
`)

// RedisStore keeps links as JSON strings under <prefix>link:<code> and the
// counter as a hash under <prefix>counter
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient creates a client from cfg and verifies the connection
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(redisOptions(cfg))

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable("connect", err)
	}
	return client, nil
}

// Context deadlines bound socket reads and writes, so a store call never
// outlives the caller's timeout.
func redisOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		PoolSize:              cfg.PoolSize,
		DialTimeout:           5 * time.Second,
		ReadTimeout:           3 * time.Second,
		WriteTimeout:          3 * time.Second,
		ContextTimeoutEnabled: true,
	}
}

// NewRedisStore takes ownership of client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) linkKey(code string) string {
	return r.prefix + "link:" + code
}

func (r *RedisStore) counterKey() string {
	return r.prefix + "counter"
}

func (r *RedisStore) InsertIfAbsent(ctx context.Context, link *model.ShortLink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}

	created, err := r.client.SetNX(ctx, r.linkKey(link.Code), data, 0).Result()
	if err != nil {
		return unavailable("insert", err)
	}
	if !created {
		return ErrDuplicateKey
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, code string) (*model.ShortLink, error) {
	data, err := r.client.Get(ctx, r.linkKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}

	var link model.ShortLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, unavailable("decode", err)
	}
	return &link, nil
}

func (r *RedisStore) Advance(ctx context.Context, now int64) (model.Tick, error) {
	vals, err := advanceScript.Run(ctx, r.client, []string{r.counterKey()}, now).Int64Slice()
	if err != nil {
		return model.Tick{}, unavailable("advance", err)
	}
	if len(vals) != 2 {
		return model.Tick{}, unavailable("advance", errors.New("malformed counter reply"))
	}
	return model.Tick{Bucket: vals[0], Sequence: vals[1]}, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
