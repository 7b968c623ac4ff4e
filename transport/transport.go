// Package transport defines the RPC fabric between this validator and
// miner peers. The wire methods (Store, Challenge, Retrieve) are dispatched
// as JSON payloads over a generic unary RPC, since the miner side of the
// protocol has no .proto contract of its own — only a wire shape.
package transport

import (
	"context"

	"github.com/ubsv-storage/validator-core/protocol"
)

// MinerClient is the interface the orchestrator consumes to reach miners'
// axon endpoints. The endpoint is passed on every call, so one instance
// serves every peer.
type MinerClient interface {
	Store(ctx context.Context, endpoint string, req protocol.StoreRequest) (*protocol.StoreResponse, error)
	Challenge(ctx context.Context, endpoint string, req protocol.ChallengeRequest) (*protocol.ChallengeResponse, error)
	Retrieve(ctx context.Context, endpoint string, req protocol.RetrieveRequest) (*protocol.RetrieveResponse, error)
}
