package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubsv-storage/validator-core/config"
	"github.com/ubsv-storage/validator-core/protocol"
)

func TestRunStoreRound_HappyPath(t *testing.T) {
	mg := testMetagraph("validator", "miner-1")
	o, mc, _ := newTestOrchestrator(t, mg, nil)

	miner, _ := honestMiner(t)
	mc.Register("axon-miner-1", miner)

	err := o.RunStoreRound(context.Background())
	require.NoError(t, err)

	keys, err := o.Store.HKeys(context.Background(), "miner-1")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	meta, err := o.Store.GetMetadata(context.Background(), "miner-1", keys[0])
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.NotEmpty(t, meta.MerkleRoot)
	assert.NotEmpty(t, meta.PrevSeed)
	assert.Greater(t, meta.ChunkSize, 0)
	assert.Equal(t, 1, meta.ReplicationCount)

	holders, err := o.Store.GetOrderedMetadata(context.Background(), keys[0])
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "miner-1", holders[0].Hotkey)
}

func TestRunStoreRound_FailedSlotIsRetriedAgainstAnotherMiner(t *testing.T) {
	mg := testMetagraph("validator", "cheater", "honest")
	o, mc, _ := newTestOrchestrator(t, mg, func(n *config.NeuronSettings) {
		n.StoreRedundancy = 1
	})

	honest, _ := honestMiner(t)
	mc.Register("axon-honest", honest)

	lying, _ := honestMiner(t)
	lying.StoreFn = func(req protocol.StoreRequest) (*protocol.StoreResponse, error) {
		return nil, errors.New("cheater refuses to store")
	}
	mc.Register("axon-cheater", lying)

	err := o.RunStoreRound(context.Background())
	require.NoError(t, err)

	honestKeys, err := o.Store.HKeys(context.Background(), "honest")
	require.NoError(t, err)
	cheaterKeys, err := o.Store.HKeys(context.Background(), "cheater")
	require.NoError(t, err)

	// want starts at 1 (store_redundancy); whichever candidate the
	// selector drew first either succeeds immediately or fails and is
	// retried against the other, so across both attempts exactly one slot
	// ends up holding the blob.
	assert.Equal(t, 1, len(honestKeys)+len(cheaterKeys))
}
