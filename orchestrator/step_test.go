package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubsv-storage/validator-core/config"
)

func TestShouldRunStep_BlocksElapsedGate(t *testing.T) {
	mg := testMetagraph("validator", "miner-1")
	o, _, _ := newTestOrchestrator(t, mg, func(n *config.NeuronSettings) {
		n.BlocksPerStep = 10
		n.RoundRobinEnabled = false
	})

	o.lastStepBlock = 100
	assert.False(t, o.ShouldRunStep(105))
	assert.True(t, o.ShouldRunStep(110))
}

func TestShouldRunStep_RoundRobinOnlySelectedUIDRuns(t *testing.T) {
	mg := testMetagraph("validator", "v1", "v2", "v3")
	o, _, _ := newTestOrchestrator(t, mg, func(n *config.NeuronSettings) {
		n.BlocksPerStep = 1
		n.RoundRobinEnabled = true
	})
	o.metagraph = mg
	o.SelfUID = 1 // "v1"

	// window = currentBlock / blocksPerStep; turn = window % N. With N=4,
	// window=1 -> turn=1, matching SelfUID.
	assert.True(t, o.isRoundRobinTurn(1))
	// window=2 -> turn=2, not this validator's turn.
	assert.False(t, o.isRoundRobinTurn(2))
}

func TestRunStep_AdvancesStepAndLastStepBlock(t *testing.T) {
	mg := testMetagraph("validator", "miner-1")
	o, mc, chainMock := newTestOrchestrator(t, mg, func(n *config.NeuronSettings) {
		n.RoundRobinEnabled = false
		n.RebalanceK = 0
	})
	chainMock.Block = 50

	miner, _ := honestMiner(t)
	mc.Register("axon-miner-1", miner)

	require.Equal(t, int64(0), o.Step())
	err := o.RunStep(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, int64(1), o.Step())
	assert.Equal(t, int64(50), o.LastStepBlock())
}

func TestRunStep_NotRegisteredHotkeyAborts(t *testing.T) {
	mg := testMetagraph("validator", "miner-1")
	o, _, _ := newTestOrchestrator(t, mg, nil)
	o.Config.SelfHotkey = "not-in-metagraph"

	err := o.RunStep(context.Background(), 1)
	assert.Error(t, err)
	assert.Equal(t, int64(0), o.Step(), "a fatal refreshMetagraph error must abort before any phase runs")
}

func TestRestoreStep_SeedsCountersWithoutRunning(t *testing.T) {
	mg := testMetagraph("validator", "miner-1")
	o, _, _ := newTestOrchestrator(t, mg, nil)

	o.RestoreStep(7, 1400)
	assert.Equal(t, int64(7), o.Step())
	assert.Equal(t, int64(1400), o.LastStepBlock())
}
