package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
	"github.com/redis/go-redis/v9"
)

// Each token is a hash {owner, created, last} with timestamps in unix
// microseconds; each owner has a set of its token values.
//
// revokeScript and purgeScript build the identity key from the stored owner,
// so it is not declared in KEYS. On Redis Cluster the key prefix must carry a
// hash tag (for example "{tokenauth}:") to keep every key in one slot.
var (
	createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'created', ARGV[2], 'last', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
return 1
`)

	touchScript = redis.NewScript(`
local last = redis.call('HGET', KEYS[1], 'last')
if not last then
	return 0
end
if tonumber(ARGV[1]) > tonumber(last) then
	redis.call('HSET', KEYS[1], 'last', ARGV[1])
end
return 1
`)

	revokeScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'owner')
if not owner then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('SREM', ARGV[1] .. owner, ARGV[2])
return 1
`)

	purgeScript = redis.NewScript(`
local last = redis.call('HGET', KEYS[1], 'last')
if not last or tonumber(last) >= tonumber(ARGV[1]) then
	return 0
end
local owner = redis.call('HGET', KEYS[1], 'owner')
redis.call('DEL', KEYS[1])
redis.call('SREM', ARGV[2] .. owner, ARGV[3])
return 1
`)
)

// RedisStore is a Redis implementation of the TokenStore interface
type RedisStore struct {
	client *redis.Client
	gen    ports.TokenGenerator
	now    func() time.Time
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client, gen ports.TokenGenerator, opts ...Option) ports.TokenStore {
	o := buildOptions(opts)
	return &RedisStore{
		client: client,
		gen:    gen,
		now:    o.now,
		prefix: o.keyPrefix,
	}
}

func (s *RedisStore) tokenKey(value string) string {
	return s.prefix + "token:" + value
}

func (s *RedisStore) identityPrefix() string {
	return s.prefix + "identity:"
}

func (s *RedisStore) identityKey(owner core.Identity) string {
	return s.identityPrefix() + string(owner)
}

// Create issues a new token for owner
func (s *RedisStore) Create(ctx context.Context, owner core.Identity) (core.Token, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		value, err := s.gen.Generate()
		if err != nil {
			return core.Token{}, err
		}

		now := stamp(s.now())
		created, err := createScript.Run(ctx, s.client,
			[]string{s.tokenKey(value), s.identityKey(owner)},
			string(owner), now.UnixMicro(), value,
		).Int()
		if err != nil {
			return core.Token{}, fmt.Errorf("failed to create token: %w", err)
		}
		if created == 0 {
			continue
		}

		return core.Token{Value: value, Owner: owner, CreatedAt: now, LastUsedAt: now}, nil
	}

	return core.Token{}, errors.New("failed to create token: value collision")
}

// Lookup retrieves a token by value
func (s *RedisStore) Lookup(ctx context.Context, value string) (core.Token, error) {
	fields, err := s.client.HGetAll(ctx, s.tokenKey(value)).Result()
	if err != nil {
		return core.Token{}, fmt.Errorf("failed to lookup token: %w", err)
	}
	if len(fields) == 0 {
		return core.Token{}, core.ErrTokenNotFound
	}
	return decodeToken(value, fields)
}

// Touch records a use of the token
func (s *RedisStore) Touch(ctx context.Context, value string, now time.Time) error {
	found, err := touchScript.Run(ctx, s.client, []string{s.tokenKey(value)}, stamp(now).UnixMicro()).Int()
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	if found == 0 {
		return core.ErrTokenNotFound
	}
	return nil
}

// Revoke deletes a token
func (s *RedisStore) Revoke(ctx context.Context, value string) error {
	if err := revokeScript.Run(ctx, s.client, []string{s.tokenKey(value)}, s.identityPrefix(), value).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ListForIdentity returns all tokens owned by owner
func (s *RedisStore) ListForIdentity(ctx context.Context, owner core.Identity) ([]core.Token, error) {
	values, err := s.client.SMembers(ctx, s.identityKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(values) == 0 {
		return []core.Token{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(values))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, value := range values {
			cmds[i] = p.HGetAll(ctx, s.tokenKey(value))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	out := make([]core.Token, 0, len(values))
	var stale []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, values[i])
			continue
		}
		tok, err := decodeToken(values[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}

	// Index entries can outlive their hash if a revoke raced with a list.
	if len(stale) > 0 {
		s.client.SRem(ctx, s.identityKey(owner), stale...)
	}

	sortTokens(out)
	return out, nil
}

// Purge removes tokens that were last used before staleBefore
func (s *RedisStore) Purge(ctx context.Context, staleBefore time.Time) (int, error) {
	cutoff := staleBefore.UnixMicro()
	match := s.tokenKey("*")
	keyPrefix := s.tokenKey("")

	purged := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return purged, fmt.Errorf("failed to scan tokens: %w", err)
		}

		for _, key := range keys {
			value := strings.TrimPrefix(key, keyPrefix)
			removed, err := purgeScript.Run(ctx, s.client, []string{key}, cutoff, s.identityPrefix(), value).Int()
			if err != nil {
				return purged, fmt.Errorf("failed to purge token: %w", err)
			}
			purged += removed
		}

		cursor = next
		if cursor == 0 {
			return purged, nil
		}
	}
}

func decodeToken(value string, fields map[string]string) (core.Token, error) {
	created, err := strconv.ParseInt(fields["created"], 10, 64)
	if err != nil {
		return core.Token{}, fmt.Errorf("corrupt token record: %w", err)
	}
	last, err := strconv.ParseInt(fields["last"], 10, 64)
	if err != nil {
		return core.Token{}, fmt.Errorf("corrupt token record: %w", err)
	}

	return core.Token{
		Value:      value,
		Owner:      core.Identity(fields["owner"]),
		CreatedAt:  time.UnixMicro(created).UTC(),
		LastUsedAt: time.UnixMicro(last).UTC(),
	}, nil
}
