package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ubsv-storage/validator-core/errors"
	"github.com/ubsv-storage/validator-core/ulogger"
)

// RedisStore is the production Store, backed by a redis.UniversalClient so
// the same adapter works against a single node, sentinel, or cluster
// deployment without a type switch at the call site.
type RedisStore struct {
	client redis.UniversalClient
	logger ulogger.Logger
	guard  writeGuard
}

// Options configure the underlying client, mirroring the config fields
// exposed in config.DatabaseSettings.
type Options struct {
	Host string
	Port int
	DB   int
}

func addr(o Options) string { return fmt.Sprintf("%s:%d", o.Host, o.Port) }

func New(opts Options, logger ulogger.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr: addr(opts),
		DB:   opts.DB,
	})
	return &RedisStore{client: client, logger: logger}
}

// NewWithClient wires an already-constructed client, such as a cluster
// client.
func NewWithClient(client redis.UniversalClient, logger ulogger.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) Health(ctx context.Context) (int, string, error) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return 503, "redis metadata store", errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "ping failed", err)
	}
	return 200, "redis metadata store", nil
}

func (s *RedisStore) AddMetadata(ctx context.Context, hotkey, dataHash string, meta BlobMetadata) error {
	return s.writeMetadata(ctx, hotkey, dataHash, meta)
}

func (s *RedisStore) UpdateMetadata(ctx context.Context, hotkey, dataHash string, meta BlobMetadata) error {
	return s.writeMetadata(ctx, hotkey, dataHash, meta)
}

func (s *RedisStore) writeMetadata(ctx context.Context, hotkey, dataHash string, meta BlobMetadata) error {
	meta.DataHash = dataHash

	return s.guard.do(hotkey, dataHash, func() (interface{}, error) {
		encoded, err := marshalMeta(meta)
		if err != nil {
			return nil, err
		}

		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, hashKey(hotkey), dataHash, encoded)
		if meta.TTLSeconds > 0 {
			pipe.Set(ctx, ttlKey(hotkey, dataHash), encoded, time.Duration(meta.TTLSeconds)*time.Second)
		} else {
			pipe.Set(ctx, ttlKey(hotkey, dataHash), encoded, 0)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "writing metadata for %s/%s", hotkey, dataHash, err)
		}
		return nil, nil
	})
}

func (s *RedisStore) GetMetadata(ctx context.Context, hotkey, dataHash string) (*BlobMetadata, error) {
	raw, err := s.client.HGet(ctx, hashKey(hotkey), dataHash).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "reading metadata for %s/%s", hotkey, dataHash, err)
	}
	meta, err := unmarshalMeta(raw)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *RedisStore) DeleteMetadata(ctx context.Context, hotkey, dataHash string) error {
	return s.guard.do(hotkey, dataHash, func() (interface{}, error) {
		pipe := s.client.TxPipeline()
		pipe.HDel(ctx, hashKey(hotkey), dataHash)
		pipe.Del(ctx, ttlKey(hotkey, dataHash))
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "deleting metadata for %s/%s", hotkey, dataHash, err)
		}
		return nil, nil
	})
}

func (s *RedisStore) GetAllMetadata(ctx context.Context, hotkey string) (map[string]BlobMetadata, error) {
	raw, err := s.client.HGetAll(ctx, hashKey(hotkey)).Result()
	if err != nil {
		return nil, errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "reading all metadata for %s", hotkey, err)
	}

	out := make(map[string]BlobMetadata, len(raw))
	for dataHash, encoded := range raw {
		meta, err := unmarshalMeta(encoded)
		if err != nil {
			s.logger.Warnf("metadata: dropping unreadable record %s/%s: %v", hotkey, dataHash, err)
			continue
		}
		out[dataHash] = meta
	}
	return out, nil
}

func (s *RedisStore) HKeys(ctx context.Context, hotkey string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, hashKey(hotkey)).Result()
	if err != nil {
		return nil, errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "enumerating keys for %s", hotkey, err)
	}
	return keys, nil
}

func (s *RedisStore) HotkeyAtCapacity(ctx context.Context, hotkey string, capacityBytes int64) (bool, error) {
	all, err := s.GetAllMetadata(ctx, hotkey)
	if err != nil {
		return false, err
	}
	var total int64
	for _, meta := range all {
		total += meta.Size
	}
	return total >= capacityBytes, nil
}

func (s *RedisStore) TotalNetworkStorage(ctx context.Context) (int64, error) {
	var total int64
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "hotkey:*", 100).Result()
		if err != nil {
			return 0, errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "scanning hotkey hashes", err)
		}
		for _, key := range keys {
			values, err := s.client.HGetAll(ctx, key).Result()
			if err != nil {
				return 0, errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "reading hash %s", key, err)
			}
			for _, encoded := range values {
				meta, err := unmarshalMeta(encoded)
				if err != nil {
					continue
				}
				total += meta.Size
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

func (s *RedisStore) Expire(ctx context.Context, hotkey, dataHash string, ttlSeconds int) error {
	if err := s.client.Expire(ctx, ttlKey(hotkey, dataHash), time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		return errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "setting expiry on %s/%s", hotkey, dataHash, err)
	}
	return nil
}

func (s *RedisStore) StoreChunkMetadata(ctx context.Context, dataHash string, chunk ChunkMapping) error {
	return s.guard.do(dataHash, fmt.Sprint(chunk.ChunkIndex), func() (interface{}, error) {
		existing, err := s.GetOrderedMetadata(ctx, dataHash)
		if err != nil {
			return nil, err
		}
		existing = append(existing, chunk)
		return nil, s.persistChunks(ctx, dataHash, existing)
	})
}

func (s *RedisStore) StoreFileChunkMappingOrdered(ctx context.Context, dataHash string, chunks []ChunkMapping) error {
	return s.guard.do(dataHash, "chunks", func() (interface{}, error) {
		return nil, s.persistChunks(ctx, dataHash, chunks)
	})
}

func (s *RedisStore) persistChunks(ctx context.Context, dataHash string, chunks []ChunkMapping) error {
	ordered := sortedChunks(chunks)
	raw, err := json.Marshal(ordered)
	if err != nil {
		return fmt.Errorf("metadata: encoding chunk mapping: %w", err)
	}
	if err := s.client.Set(ctx, chunkKey(dataHash), raw, 0).Err(); err != nil {
		return errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "writing chunk mapping for %s", dataHash, err)
	}
	return nil
}

func (s *RedisStore) GetOrderedMetadata(ctx context.Context, dataHash string) ([]ChunkMapping, error) {
	raw, err := s.client.Get(ctx, chunkKey(dataHash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.ERR_METADATA_STORE_UNAVAILABLE, "reading chunk mapping for %s", dataHash, err)
	}
	var chunks []ChunkMapping
	if err := json.Unmarshal([]byte(raw), &chunks); err != nil {
		return nil, fmt.Errorf("metadata: decoding chunk mapping: %w", err)
	}
	return sortedChunks(chunks), nil
}
