package orchestrator

import (
	"crypto/rand"

	"github.com/ubsv-storage/validator-core/pkg/ecc"
	"github.com/ubsv-storage/validator-core/protocol"
)

func freshSeed() (protocol.Seed, error) {
	var seed protocol.Seed
	_, err := rand.Read(seed[:])
	return seed, err
}

// crs is one round's common reference string, regenerated fresh for every
// request so a miner can never precompute a commitment against a reused
// (g, h) pair.
type crs struct {
	curveName string
	gHex      string
	hHex      string
}

func freshCRS(curveName string) (crs, error) {
	g, h, curve, err := ecc.SetupCRS(curveName)
	if err != nil {
		return crs{}, err
	}
	return crs{curveName: curveName, gHex: g.Hex(curve), hHex: h.Hex(curve)}, nil
}
