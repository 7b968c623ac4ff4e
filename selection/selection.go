// Package selection picks peer miners for a round's fan-out: availability-
// filtered random sampling without replacement, capacity-aware for Store
// and holds-data-aware for Challenge/Retrieve.
package selection

import (
	"context"
	"math/rand"

	"github.com/ubsv-storage/validator-core/chain"
	"github.com/ubsv-storage/validator-core/stores/metadata"
)

// Kind distinguishes which availability predicate applies.
type Kind int

const (
	ForStore Kind = iota
	ForChallenge
	ForRetrieve
)

// Candidate is one eligible peer: its dense UID and stable hotkey.
type Candidate struct {
	UID    int
	Hotkey string
}

// Selector draws query miners from a metagraph snapshot, skipping empty
// hotkey slots and self, and applying the round kind's data/capacity
// requirement. It does not check whether a peer's axon is reachable.
type Selector struct {
	store         metadata.Store
	capacityBytes int64
	rng           *rand.Rand
}

func New(store metadata.Store, capacityBytes int64, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Selector{store: store, capacityBytes: capacityBytes, rng: rng}
}

// GetAvailableQueryMiners returns up to k distinct candidates drawn
// uniformly at random without replacement. It never blocks and never
// errors on a shortfall — fewer than k qualifying peers simply yields
// fewer than k candidates.
func (s *Selector) GetAvailableQueryMiners(ctx context.Context, mg chain.Metagraph, selfUID int, kind Kind, k int) ([]Candidate, error) {
	pool, err := s.eligiblePool(ctx, mg, selfUID, kind)
	if err != nil {
		return nil, err
	}

	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	if k > len(pool) {
		k = len(pool)
	}
	return pool[:k], nil
}

func (s *Selector) eligiblePool(ctx context.Context, mg chain.Metagraph, selfUID int, kind Kind) ([]Candidate, error) {
	pool := make([]Candidate, 0, mg.N)

	for uid := 0; uid < mg.N; uid++ {
		if uid == selfUID {
			continue
		}
		hotkey := mg.Hotkeys[uid]
		if hotkey == "" {
			continue
		}

		eligible, err := s.isEligible(ctx, hotkey, kind)
		if err != nil {
			return nil, err
		}
		if eligible {
			pool = append(pool, Candidate{UID: uid, Hotkey: hotkey})
		}
	}
	return pool, nil
}

func (s *Selector) isEligible(ctx context.Context, hotkey string, kind Kind) (bool, error) {
	switch kind {
	case ForStore:
		atCapacity, err := s.store.HotkeyAtCapacity(ctx, hotkey, s.capacityBytes)
		if err != nil {
			return false, err
		}
		return !atCapacity, nil
	case ForChallenge, ForRetrieve:
		keys, err := s.store.HKeys(ctx, hotkey)
		if err != nil {
			return false, err
		}
		return len(keys) > 0, nil
	default:
		return false, nil
	}
}
