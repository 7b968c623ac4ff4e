package orchestrator

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ubsv-storage/validator-core/protocol"
	"github.com/ubsv-storage/validator-core/selection"
)

func chunkSizeFor(minSize, factor, override int) int {
	if override != 0 {
		return override
	}
	if factor <= 1 {
		return minSize
	}
	return minSize + rand.Intn(minSize*(factor-1)+1)
}

// RunChallengeRound samples challenge_sample_size miners concurrently, each
// against one of its own previously stored blobs, and verifies a single
// chunk opening. There are no retries: one failure is a failure.
func (o *Orchestrator) RunChallengeRound(ctx context.Context) error {
	started := time.Now()
	cfg := o.Config.Neuron

	candidates, err := o.Selector.GetAvailableQueryMiners(ctx, o.metagraph, o.SelfUID, selection.ForChallenge, cfg.ChallengeSampleSize)
	if err != nil {
		return err
	}

	outcomes := o.runWave(ctx, candidates, cfg.ChallengeTimeout, o.dispatchChallenge)

	responses := o.foldOutcomes(KindChallenge, started, outcomes)
	rewards := o.applyRewards(KindChallenge, responses)
	o.emitEvent("challenge", outcomes, rewards)
	return nil
}

func (o *Orchestrator) dispatchChallenge(ctx context.Context, cand selection.Candidate) peerOutcome {
	start := time.Now()
	cfg := o.Config.Neuron

	keys, err := o.Store.HKeys(ctx, cand.Hotkey)
	if err != nil || len(keys) == 0 {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, NoData: true}
	}
	dataHash := keys[rand.Intn(len(keys))]

	meta, err := o.Store.GetMetadata(ctx, cand.Hotkey, dataHash)
	if err != nil || meta == nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, NoData: true}
	}

	// chunkSize must match the granularity the blob was actually chunked at
	// during its store round: the Merkle tree being proven into was built
	// then, not now, so a freshly randomized size here would never line up
	// with a real leaf boundary.
	chunkSize := meta.ChunkSize
	if chunkSize <= 0 {
		chunkSize = cfg.MinChunkSize
	}
	numChunks := int(math.Ceil(float64(meta.Size) / float64(chunkSize)))
	if numChunks < 1 {
		numChunks = 1
	}
	challengeIndex := rand.Intn(numChunks)

	seed, err := freshSeed()
	if err != nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "seed generation failed"}
	}
	c, err := freshCRS(cfg.Curve)
	if err != nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "CRS generation failed"}
	}

	req := protocol.ChallengeRequest{
		DataHash:       dataHash,
		ChunkSize:      chunkSize,
		GHex:           c.gHex,
		HHex:           c.hHex,
		Curve:          c.curveName,
		ChallengeIndex: challengeIndex,
		Seed:           seed.Hex(),
	}

	endpoint, ok := o.axonFor(cand.UID)
	if !ok {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "no axon endpoint"}
	}

	resp, err := o.Transport.Challenge(ctx, endpoint, req)
	latency := elapsedMillis(start)
	if err != nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "transport: " + err.Error(), LatencyMs: latency}
	}

	outcome := protocol.VerifyChallengeWithSeed(resp, meta.MerkleRoot)
	if !outcome.Verified {
		// prev_seed is intentionally left untouched: a rejected opening
		// must not advance the replay-prevention watermark.
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: outcome.Reason, LatencyMs: latency, Online: true}
	}

	meta.PrevSeed = seed.Hex()
	if err := o.Store.UpdateMetadata(ctx, cand.Hotkey, dataHash, *meta); err != nil {
		o.Logger.Errorf("challenge round: updating metadata for %s/%s: %v", cand.Hotkey, dataHash, err)
	}

	return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Verified: true, LatencyMs: latency, Online: true}
}
