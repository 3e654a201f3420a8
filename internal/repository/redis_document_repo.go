package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] document hash; ARGV: body, expected version ("" for any), updatedAt ms.
var putScript = redis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], "version") or "0")
if ARGV[2] ~= "" and tonumber(ARGV[2]) ~= current then
  return {-1, current}
end
local next = current + 1
redis.call("HSET", KEYS[1], "body", ARGV[1], "version", next, "updated_at", ARGV[3])
return {next, tonumber(ARGV[3])}
`)

type redisDocumentRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisDocumentRepository stores documents as hashes under prefix.
func NewRedisDocumentRepository(client *redis.Client, prefix string) DocumentRepository {
	if prefix == "" {
		prefix = "judging:store"
	}
	return &redisDocumentRepository{client: client, prefix: prefix}
}

func (r *redisDocumentRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisDocumentRepository) hashKey(key string) string {
	return r.prefix + ":" + key
}

func (r *redisDocumentRepository) Get(ctx context.Context, key string) (StoredDocument, error) {
	values, err := r.client.HGetAll(ctx, r.hashKey(key)).Result()
	if err != nil {
		return StoredDocument{}, err
	}
	if len(values) == 0 {
		return StoredDocument{}, ErrDocumentNotFound
	}

	version, err := strconv.ParseInt(values["version"], 10, 64)
	if err != nil {
		return StoredDocument{}, err
	}
	updatedMs, _ := strconv.ParseInt(values["updated_at"], 10, 64)

	return StoredDocument{
		Key:       key,
		Body:      []byte(values["body"]),
		Version:   version,
		UpdatedAt: time.UnixMilli(updatedMs).UTC(),
	}, nil
}

func (r *redisDocumentRepository) Put(ctx context.Context, key string, body []byte, expected string) (StoredDocument, error) {
	if _, _, err := parseExpected(expected); err != nil {
		return StoredDocument{}, err
	}

	now := time.Now().UTC()
	result, err := putScript.Run(ctx, r.client, []string{r.hashKey(key)}, string(body), expected, now.UnixMilli()).Int64Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StoredDocument{}, ErrVersionMismatch
		}
		return StoredDocument{}, err
	}
	if len(result) != 2 || result[0] < 0 {
		return StoredDocument{}, ErrVersionMismatch
	}

	return StoredDocument{
		Key:       key,
		Body:      body,
		Version:   result[0],
		UpdatedAt: time.UnixMilli(result[1]).UTC(),
	}, nil
}
