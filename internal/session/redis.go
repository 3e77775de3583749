package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ashureev/hope-map/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "hope:session:"

// RedisOptions configures the Redis session store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL is applied to every session on each write; Redis expires idle
	// sessions on its own, so Sweep has nothing to do.
	TTL time.Duration
}

// Redis stores each session as a list of JSON turns plus a small metadata hash.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return &Redis{client: client, ttl: opts.TTL, now: time.Now}, nil
}

func turnsKey(id string) string { return redisKeyPrefix + id + ":turns" }
func metaKey(id string) string  { return redisKeyPrefix + id + ":meta" }

func (r *Redis) Get(ctx context.Context, id string) (*domain.Session, error) {
	var meta *redis.MapStringStringCmd
	var turns *redis.StringSliceCmd
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		meta = p.HGetAll(ctx, metaKey(id))
		turns = p.LRange(ctx, turnsKey(id), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRedisSession(id, fields, turns.Val())
}

func (r *Redis) Create(ctx context.Context, id string) (*domain.Session, error) {
	return r.Append(ctx, id)
}

func (r *Redis) Append(ctx context.Context, id string, turns ...domain.ChatTurn) (*domain.Session, error) {
	encoded := make([]any, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode turn: %w", err)
		}
		encoded = append(encoded, string(b))
	}

	now := strconv.FormatInt(r.now().UnixMilli(), 10)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, metaKey(id), "created_at", now)
		if len(encoded) > 0 {
			p.HSet(ctx, metaKey(id), "updated_at", now)
			p.RPush(ctx, turnsKey(id), encoded...)
		} else {
			p.HSetNX(ctx, metaKey(id), "updated_at", now)
		}
		if r.ttl > 0 {
			p.Expire(ctx, metaKey(id), r.ttl)
			p.Expire(ctx, turnsKey(id), r.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append session %s: %w", id, err)
	}
	return r.Get(ctx, id)
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, metaKey(id), turnsKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (r *Redis) Sweep(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func decodeRedisSession(id string, meta map[string]string, raw []string) (*domain.Session, error) {
	sess := &domain.Session{ID: id, History: make(domain.History, 0, len(raw))}
	for _, item := range raw {
		var t domain.ChatTurn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode turn for %s: %w", id, err)
		}
		sess.History = append(sess.History, t)
	}
	if ms, err := strconv.ParseInt(meta["created_at"], 10, 64); err == nil {
		sess.CreatedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(meta["updated_at"], 10, 64); err == nil {
		sess.UpdatedAt = time.UnixMilli(ms)
	}
	return sess, nil
}
