package transport

import (
	"context"
	"sync"

	"github.com/ubsv-storage/validator-core/protocol"
)

// MockMiner is a single miner's scripted behavior, keyed by endpoint in
// Mock. A handler that returns (nil, nil) yields a nil response with no
// error; the orchestrator records such a call as a failed interaction.
type MockMiner struct {
	StoreFn     func(protocol.StoreRequest) (*protocol.StoreResponse, error)
	ChallengeFn func(protocol.ChallengeRequest) (*protocol.ChallengeResponse, error)
	RetrieveFn  func(protocol.RetrieveRequest) (*protocol.RetrieveResponse, error)
}

// Mock is an in-process MinerClient used by orchestrator and rebalance
// tests; each endpoint maps to one miner's scripted responses.
type Mock struct {
	mu     sync.Mutex
	miners map[string]MockMiner
}

func NewMock() *Mock {
	return &Mock{miners: make(map[string]MockMiner)}
}

func (m *Mock) Register(endpoint string, miner MockMiner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.miners[endpoint] = miner
}

func (m *Mock) minerFor(endpoint string) (MockMiner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	miner, ok := m.miners[endpoint]
	return miner, ok
}

func (m *Mock) Store(_ context.Context, endpoint string, req protocol.StoreRequest) (*protocol.StoreResponse, error) {
	miner, ok := m.minerFor(endpoint)
	if !ok || miner.StoreFn == nil {
		return nil, errUnregisteredMiner(endpoint)
	}
	return miner.StoreFn(req)
}

func (m *Mock) Challenge(_ context.Context, endpoint string, req protocol.ChallengeRequest) (*protocol.ChallengeResponse, error) {
	miner, ok := m.minerFor(endpoint)
	if !ok || miner.ChallengeFn == nil {
		return nil, errUnregisteredMiner(endpoint)
	}
	return miner.ChallengeFn(req)
}

func (m *Mock) Retrieve(_ context.Context, endpoint string, req protocol.RetrieveRequest) (*protocol.RetrieveResponse, error) {
	miner, ok := m.minerFor(endpoint)
	if !ok || miner.RetrieveFn == nil {
		return nil, errUnregisteredMiner(endpoint)
	}
	return miner.RetrieveFn(req)
}

type unregisteredMinerError string

func (e unregisteredMinerError) Error() string { return "transport: no mock miner registered for " + string(e) }

func errUnregisteredMiner(endpoint string) error { return unregisteredMinerError(endpoint) }

var _ MinerClient = (*Mock)(nil)
