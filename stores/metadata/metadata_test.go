package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AddAndGetMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	meta := BlobMetadata{Size: 1024, EncryptionPayload: "nonce:tag", PrevSeed: "aa"}
	require.NoError(t, store.AddMetadata(ctx, "hotkey-1", "hash-1", meta))

	got, err := store.GetMetadata(ctx, "hotkey-1", "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hash-1", got.DataHash)
	assert.Equal(t, int64(1024), got.Size)
}

func TestMemoryStore_GetMetadataMissingReturnsNil(t *testing.T) {
	store := NewMemory()
	got, err := store.GetMetadata(context.Background(), "ghost", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_UpdateMetadataOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.AddMetadata(ctx, "hotkey-1", "hash-1", BlobMetadata{PrevSeed: "aa"}))
	require.NoError(t, store.UpdateMetadata(ctx, "hotkey-1", "hash-1", BlobMetadata{PrevSeed: "bb"}))

	got, err := store.GetMetadata(ctx, "hotkey-1", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "bb", got.PrevSeed)
}

func TestMemoryStore_HKeysEnumeratesBlobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.AddMetadata(ctx, "hotkey-1", "hash-1", BlobMetadata{}))
	require.NoError(t, store.AddMetadata(ctx, "hotkey-1", "hash-2", BlobMetadata{}))

	keys, err := store.HKeys(ctx, "hotkey-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hash-1", "hash-2"}, keys)
}

func TestMemoryStore_HotkeyAtCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.AddMetadata(ctx, "hotkey-1", "hash-1", BlobMetadata{Size: 600}))
	require.NoError(t, store.AddMetadata(ctx, "hotkey-1", "hash-2", BlobMetadata{Size: 500}))

	atCapacity, err := store.HotkeyAtCapacity(ctx, "hotkey-1", 1000)
	require.NoError(t, err)
	assert.True(t, atCapacity, "1100 bytes stored against a 1000 byte cap")

	underCap, err := store.HotkeyAtCapacity(ctx, "hotkey-2", 1000)
	require.NoError(t, err)
	assert.False(t, underCap)
}

func TestMemoryStore_TotalNetworkStorage(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.AddMetadata(ctx, "hotkey-1", "hash-1", BlobMetadata{Size: 100}))
	require.NoError(t, store.AddMetadata(ctx, "hotkey-2", "hash-2", BlobMetadata{Size: 250}))

	total, err := store.TotalNetworkStorage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), total)
}

func TestMemoryStore_ChunkMappingRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	chunks := []ChunkMapping{
		{ChunkIndex: 1, ChunkHash: "h1", Hotkey: "hotkey-b"},
		{ChunkIndex: 0, ChunkHash: "h0", Hotkey: "hotkey-a"},
	}
	require.NoError(t, store.StoreFileChunkMappingOrdered(ctx, "blob-hash", chunks))

	got, err := store.GetOrderedMetadata(ctx, "blob-hash")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.Equal(t, 1, got[1].ChunkIndex)
}

func TestMemoryStore_StoreChunkMetadataAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.StoreChunkMetadata(ctx, "blob-hash", ChunkMapping{ChunkIndex: 0, ChunkHash: "h0", Hotkey: "hotkey-a"}))
	require.NoError(t, store.StoreChunkMetadata(ctx, "blob-hash", ChunkMapping{ChunkIndex: 1, ChunkHash: "h1", Hotkey: "hotkey-b"}))

	got, err := store.GetOrderedMetadata(ctx, "blob-hash")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestMemoryStore_PrevSeedInvariantNotUpdatedOnFailure(t *testing.T) {
	// A failed challenge/retrieve must never advance prev_seed — the caller
	// (orchestrator) is responsible for only calling UpdateMetadata on a
	// verified outcome. This test documents that the store itself performs
	// no implicit seed bookkeeping; it only writes what it's told.
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.AddMetadata(ctx, "hotkey-1", "hash-1", BlobMetadata{PrevSeed: "seed-a"}))

	got, err := store.GetMetadata(ctx, "hotkey-1", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "seed-a", got.PrevSeed)
}
