package chain

import (
	"context"
	"sync"
)

// Mock is an in-process Client used by orchestrator/reward/rebalance tests.
type Mock struct {
	mu sync.Mutex

	Block        int64
	Registered   map[string]bool
	Metagraph    Metagraph
	SetWeightsFn func(uids []int, weights []float64, netuid int, versionKey int64) error

	SetWeightsCalls [][]float64
}

func NewMock(metagraph Metagraph) *Mock {
	return &Mock{Metagraph: metagraph, Registered: make(map[string]bool)}
}

func (m *Mock) GetCurrentBlock(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Block, nil
}

func (m *Mock) SetWeights(_ context.Context, uids []int, weights []float64, netuid int, versionKey int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetWeightsCalls = append(m.SetWeightsCalls, append([]float64(nil), weights...))
	if m.SetWeightsFn != nil {
		return m.SetWeightsFn(uids, weights, netuid, versionKey)
	}
	return nil
}

func (m *Mock) IsHotkeyRegisteredOnSubnet(_ context.Context, hotkey string, _ int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Registered[hotkey], nil
}

func (m *Mock) GetMetagraph(_ context.Context, _ int) (Metagraph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Metagraph, nil
}

var _ Client = (*Mock)(nil)
