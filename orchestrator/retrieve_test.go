package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRetrieveRound_HappyPath(t *testing.T) {
	mg := testMetagraph("validator", "miner-1")
	o, mc, _ := newTestOrchestrator(t, mg, nil)

	miner, _ := honestMiner(t)
	mc.Register("axon-miner-1", miner)
	require.NoError(t, o.RunStoreRound(context.Background()))

	require.NoError(t, o.RunRetrieveRound(context.Background()))

	keys, err := o.Store.HKeys(context.Background(), "miner-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	meta, err := o.Store.GetMetadata(context.Background(), "miner-1", keys[0])
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.False(t, meta.AtRisk)
	assert.Zero(t, meta.ConsecutiveFails)
}

func TestRunRetrieveRound_CorruptedBytesMarksAtRisk(t *testing.T) {
	mg := testMetagraph("validator", "miner-1")
	o, mc, _ := newTestOrchestrator(t, mg, nil)

	miner, blobs := honestMiner(t)
	mc.Register("axon-miner-1", miner)
	require.NoError(t, o.RunStoreRound(context.Background()))

	keys, err := o.Store.HKeys(context.Background(), "miner-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	dataHash := keys[0]

	stored := blobs[dataHash]
	require.NotNil(t, stored)
	corrupted := make([]byte, len(stored.data))
	for i, b := range stored.data {
		corrupted[i] = b ^ 0xFF
	}
	stored.data = corrupted

	require.NoError(t, o.RunRetrieveRound(context.Background()))

	meta, err := o.Store.GetMetadata(context.Background(), "miner-1", dataHash)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.AtRisk)
	assert.Equal(t, 1, meta.ConsecutiveFails)
}

func TestRunRetrieveRound_ConsecutiveFailuresDropHolder(t *testing.T) {
	mg := testMetagraph("validator", "miner-1")
	o, mc, _ := newTestOrchestrator(t, mg, nil)

	miner, blobs := honestMiner(t)
	mc.Register("axon-miner-1", miner)
	require.NoError(t, o.RunStoreRound(context.Background()))

	keys, err := o.Store.HKeys(context.Background(), "miner-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	dataHash := keys[0]

	holders, err := o.Store.GetOrderedMetadata(context.Background(), dataHash)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	require.Equal(t, "miner-1", holders[0].Hotkey)

	stored := blobs[dataHash]
	require.NotNil(t, stored)
	corrupted := make([]byte, len(stored.data))
	for i, b := range stored.data {
		corrupted[i] = b ^ 0xFF
	}
	stored.data = corrupted

	require.NoError(t, o.RunRetrieveRound(context.Background()))
	meta, err := o.Store.GetMetadata(context.Background(), "miner-1", dataHash)
	require.NoError(t, err)
	require.Equal(t, 1, meta.ConsecutiveFails)

	holders, err = o.Store.GetOrderedMetadata(context.Background(), dataHash)
	require.NoError(t, err)
	assert.Len(t, holders, 1, "one isolated failure must not drop the holder")

	require.NoError(t, o.RunRetrieveRound(context.Background()))
	meta, err = o.Store.GetMetadata(context.Background(), "miner-1", dataHash)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.ConsecutiveFails)

	holders, err = o.Store.GetOrderedMetadata(context.Background(), dataHash)
	require.NoError(t, err)
	assert.Empty(t, holders, "a second consecutive failure must drop the holder from the replication set")
}

func TestRunRetrieveRound_NoHeldBlobsIsNoData(t *testing.T) {
	mg := testMetagraph("validator", "empty-miner")
	o, mc, _ := newTestOrchestrator(t, mg, nil)

	miner, _ := honestMiner(t)
	mc.Register("axon-empty-miner", miner)

	require.NoError(t, o.RunRetrieveRound(context.Background()))

	keys, err := o.Store.HKeys(context.Background(), "empty-miner")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
