// Package chain defines the external chain client the validator core
// consumes for block height, weight submission, and registration checks.
// The chain RPC fabric itself, along with wallet/keypair management, is out
// of scope; this package only fixes the interface shape callers depend on.
package chain

import "context"

// Metagraph is a dense per-epoch snapshot of the subnet's miner set. UID i
// corresponds to Hotkeys[i] and Axons[i].
type Metagraph struct {
	N       int
	Hotkeys []string
	Axons   []string
}

// Client is the interface C5 and C7 consume; production code talks to the
// chain over its own RPC fabric (out of scope here), tests use Mock.
type Client interface {
	GetCurrentBlock(ctx context.Context) (int64, error)
	SetWeights(ctx context.Context, uids []int, weights []float64, netuid int, versionKey int64) error
	IsHotkeyRegisteredOnSubnet(ctx context.Context, hotkey string, netuid int) (bool, error)
	GetMetagraph(ctx context.Context, netuid int) (Metagraph, error)
}
