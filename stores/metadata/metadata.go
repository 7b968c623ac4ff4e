// Package metadata wraps the external hash-of-hashes key-value service the
// validator uses to track what each miner claims to hold. Keys are composed
// as hotkey:<hotkey> (a field hash mapping data_hash to a metadata record)
// and <hotkey>:<data_hash> (the TTL-bearing key for that blob).
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// BlobMetadata is the per-(hotkey,data_hash) record stored in the hash
// store. PrevSeed must equal the seed of the most recent successful
// interaction with this miner for this blob; a verifier that would accept an
// opening under an older seed is incorrect.
// ReplicationCount is the same value across every holder's record for a
// given data_hash: the number of miners currently believed to hold the
// blob, per the holder set tracked alongside it (see ChunkMapping).
type BlobMetadata struct {
	DataHash          string `json:"data_hash"`
	Size              int64  `json:"size"`
	EncryptionPayload string `json:"encryption_payload"`
	PrevSeed          string `json:"prev_seed"`
	TTLSeconds        int    `json:"ttl_seconds"`
	MerkleRoot        string `json:"merkle_root"`
	ChunkSize         int    `json:"chunk_size"`
	AtRisk            bool   `json:"at_risk"`
	ConsecutiveFails  int    `json:"consecutive_fails"`
	ReplicationCount  int    `json:"replication_count"`
}

// ChunkMapping records where one chunk of a multi-miner blob lives.
type ChunkMapping struct {
	ChunkIndex int    `json:"chunk_index"`
	ChunkHash  string `json:"chunk_hash"`
	Hotkey     string `json:"hotkey"`
}

// Store is the typed surface the rest of the validator consumes. It is
// satisfied by the Redis-backed implementation in this package and by any
// in-memory fake used in tests.
type Store interface {
	AddMetadata(ctx context.Context, hotkey, dataHash string, meta BlobMetadata) error
	GetMetadata(ctx context.Context, hotkey, dataHash string) (*BlobMetadata, error)
	GetAllMetadata(ctx context.Context, hotkey string) (map[string]BlobMetadata, error)
	UpdateMetadata(ctx context.Context, hotkey, dataHash string, meta BlobMetadata) error
	DeleteMetadata(ctx context.Context, hotkey, dataHash string) error
	HKeys(ctx context.Context, hotkey string) ([]string, error)
	HotkeyAtCapacity(ctx context.Context, hotkey string, capacityBytes int64) (bool, error)
	TotalNetworkStorage(ctx context.Context) (int64, error)
	Expire(ctx context.Context, hotkey, dataHash string, ttlSeconds int) error

	StoreChunkMetadata(ctx context.Context, dataHash string, chunk ChunkMapping) error
	StoreFileChunkMappingOrdered(ctx context.Context, dataHash string, chunks []ChunkMapping) error
	GetOrderedMetadata(ctx context.Context, dataHash string) ([]ChunkMapping, error)

	Health(ctx context.Context) (int, string, error)
}

func hashKey(hotkey string) string { return "hotkey:" + hotkey }

func ttlKey(hotkey, dataHash string) string { return hotkey + ":" + dataHash }

func chunkKey(dataHash string) string { return "chunks:" + dataHash }

// writeGuard serializes conflicting writes against the same (hotkey,
// data_hash) pair, per the adapter's single-flight requirement; unrelated
// pairs never block each other.
type writeGuard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (w *writeGuard) do(hotkey, dataHash string, fn func() (interface{}, error)) error {
	key := hotkey + "\x00" + dataHash
	w.mu.Lock()
	if w.locks == nil {
		w.locks = make(map[string]*sync.Mutex)
	}
	l, ok := w.locks[key]
	if !ok {
		l = &sync.Mutex{}
		w.locks[key] = l
	}
	w.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	_, err := fn()
	return err
}

func marshalMeta(meta BlobMetadata) (string, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("metadata: encoding record: %w", err)
	}
	return string(raw), nil
}

func unmarshalMeta(raw string) (BlobMetadata, error) {
	var meta BlobMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return BlobMetadata{}, fmt.Errorf("metadata: decoding record: %w", err)
	}
	return meta, nil
}

func sortedChunks(chunks []ChunkMapping) []ChunkMapping {
	out := append([]ChunkMapping(nil), chunks...)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}
