package metadata

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by the rebalance/
// orchestrator scenario suites that would otherwise need a live Redis.
type MemoryStore struct {
	mu     sync.Mutex
	byHot  map[string]map[string]BlobMetadata
	chunks map[string][]ChunkMapping
	guard  writeGuard
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byHot:  make(map[string]map[string]BlobMetadata),
		chunks: make(map[string][]ChunkMapping),
	}
}

func (s *MemoryStore) Health(_ context.Context) (int, string, error) {
	return 200, "memory metadata store", nil
}

func (s *MemoryStore) writeMetadata(hotkey, dataHash string, meta BlobMetadata) error {
	return s.guard.do(hotkey, dataHash, func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		meta.DataHash = dataHash
		if s.byHot[hotkey] == nil {
			s.byHot[hotkey] = make(map[string]BlobMetadata)
		}
		s.byHot[hotkey][dataHash] = meta
		return nil, nil
	})
}

func (s *MemoryStore) AddMetadata(_ context.Context, hotkey, dataHash string, meta BlobMetadata) error {
	return s.writeMetadata(hotkey, dataHash, meta)
}

func (s *MemoryStore) UpdateMetadata(_ context.Context, hotkey, dataHash string, meta BlobMetadata) error {
	return s.writeMetadata(hotkey, dataHash, meta)
}

func (s *MemoryStore) GetMetadata(_ context.Context, hotkey, dataHash string) (*BlobMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, ok := s.byHot[hotkey]
	if !ok {
		return nil, nil
	}
	meta, ok := blobs[dataHash]
	if !ok {
		return nil, nil
	}
	out := meta
	return &out, nil
}

func (s *MemoryStore) DeleteMetadata(_ context.Context, hotkey, dataHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blobs, ok := s.byHot[hotkey]; ok {
		delete(blobs, dataHash)
	}
	return nil
}

func (s *MemoryStore) GetAllMetadata(_ context.Context, hotkey string) (map[string]BlobMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]BlobMetadata, len(s.byHot[hotkey]))
	for k, v := range s.byHot[hotkey] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) HKeys(_ context.Context, hotkey string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.byHot[hotkey]))
	for k := range s.byHot[hotkey] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MemoryStore) HotkeyAtCapacity(_ context.Context, hotkey string, capacityBytes int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, meta := range s.byHot[hotkey] {
		total += meta.Size
	}
	return total >= capacityBytes, nil
}

func (s *MemoryStore) TotalNetworkStorage(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, blobs := range s.byHot {
		for _, meta := range blobs {
			total += meta.Size
		}
	}
	return total, nil
}

func (s *MemoryStore) Expire(_ context.Context, hotkey, dataHash string, ttlSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, ok := s.byHot[hotkey]
	if !ok {
		return nil
	}
	meta, ok := blobs[dataHash]
	if !ok {
		return nil
	}
	meta.TTLSeconds = ttlSeconds
	blobs[dataHash] = meta
	return nil
}

func (s *MemoryStore) StoreChunkMetadata(_ context.Context, dataHash string, chunk ChunkMapping) error {
	return s.guard.do(dataHash, "chunks", func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.chunks[dataHash] = sortedChunks(append(s.chunks[dataHash], chunk))
		return nil, nil
	})
}

func (s *MemoryStore) StoreFileChunkMappingOrdered(_ context.Context, dataHash string, chunks []ChunkMapping) error {
	return s.guard.do(dataHash, "chunks", func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.chunks[dataHash] = sortedChunks(chunks)
		return nil, nil
	})
}

func (s *MemoryStore) GetOrderedMetadata(_ context.Context, dataHash string) ([]ChunkMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ChunkMapping(nil), s.chunks[dataHash]...), nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*RedisStore)(nil)
