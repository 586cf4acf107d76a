package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

const (
	InvalidationChannel = "nameregistry:invalidation"
	keyPrefix           = "nameregistry:reg:"
	genPrefix           = "nameregistry:gen:"

	// genTTL bounds the generation keys; it only needs to outlive one store read.
	genTTL = 24 * time.Hour
)

// fillScript writes the entry only while the generation still matches the
// caller's ticket. A missing generation key counts as zero.
var fillScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1]) or "0"
if cur ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// RedisCache is the shared L2 tier. It also carries invalidations between nodes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr string, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCacheFromClient(rdb, ttl)
}

func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, name string) (*domain.Registration, bool) {
	val, err := r.client.Get(ctx, keyPrefix+name).Bytes()
	if err != nil {
		return nil, false
	}
	var reg domain.Registration
	if err := json.Unmarshal(val, &reg); err != nil {
		return nil, false
	}
	return &reg, true
}

// Generation returns how many times name has been invalidated cluster-wide.
func (r *RedisCache) Generation(ctx context.Context, name string) (int64, error) {
	gen, err := r.client.Get(ctx, genPrefix+name).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// FillIfCurrent stores reg if name's generation is still gen and reports
// whether it did.
func (r *RedisCache) FillIfCurrent(ctx context.Context, reg *domain.Registration, gen int64) (bool, error) {
	data, err := json.Marshal(reg)
	if err != nil {
		return false, err
	}
	keys := []string{genPrefix + reg.Name, keyPrefix + reg.Name}
	applied, err := fillScript.Run(ctx, r.client, keys, strconv.FormatInt(gen, 10), data, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return applied == 1, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Invalidate bumps the generations, deletes the shared entries and publishes
// the names so every node drops its L1 copy.
func (r *RedisCache) Invalidate(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = keyPrefix + n
	}
	pipe := r.client.TxPipeline()
	for _, n := range names {
		pipe.Incr(ctx, genPrefix+n)
		pipe.Expire(ctx, genPrefix+n, genTTL)
	}
	pipe.Del(ctx, keys...)
	for _, n := range names {
		pipe.Publish(ctx, InvalidationChannel, n)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe returns the invalidation subscription. Callers own Close.
func (r *RedisCache) Subscribe(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, InvalidationChannel)
}

// Client exposes the underlying connection for other Redis consumers such as
// the event stream publisher.
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
