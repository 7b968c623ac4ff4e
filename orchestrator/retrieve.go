package orchestrator

import (
	"context"
	"encoding/base64"
	"math/rand"
	"time"

	"github.com/ubsv-storage/validator-core/protocol"
	"github.com/ubsv-storage/validator-core/selection"
	"github.com/ubsv-storage/validator-core/stores/metadata"
)

// consecutiveFailThreshold is how many consecutive retrieve failures against
// the same (hotkey, data_hash) drop that holder from the blob's replication
// set, rather than on the first failure.
const consecutiveFailThreshold = 2

// RunRetrieveRound samples miners holding at least one blob and requests a
// full retrieval under a fresh seed. A hash mismatch or failed opening is
// the most severely punished outcome, since it indicates data loss.
func (o *Orchestrator) RunRetrieveRound(ctx context.Context) error {
	started := time.Now()
	cfg := o.Config.Neuron

	candidates, err := o.Selector.GetAvailableQueryMiners(ctx, o.metagraph, o.SelfUID, selection.ForRetrieve, cfg.ChallengeSampleSize)
	if err != nil {
		return err
	}

	outcomes := o.runWave(ctx, candidates, cfg.RetrieveTimeout, func(callCtx context.Context, cand selection.Candidate) peerOutcome {
		dataHash, ok := o.pickHeldBlob(callCtx, cand.Hotkey)
		if !ok {
			return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, NoData: true}
		}
		outcome, _, _ := o.retrieveFrom(callCtx, cand, dataHash)
		return outcome
	})

	responses := o.foldOutcomes(KindRetrieve, started, outcomes)
	rewards := o.applyRewards(KindRetrieve, responses)
	o.emitEvent("retrieve", outcomes, rewards)
	return nil
}

func (o *Orchestrator) pickHeldBlob(ctx context.Context, hotkey string) (string, bool) {
	keys, err := o.Store.HKeys(ctx, hotkey)
	if err != nil || len(keys) == 0 {
		return "", false
	}
	return keys[rand.Intn(len(keys))], true
}

// retrieveFrom issues one Retrieve against cand for dataHash, verifies the
// response, and updates the blob's metadata (prev_seed on success; at-risk
// bookkeeping on failure). It returns the decoded ciphertext on success so
// callers (the rebalance engine) can immediately re-store it elsewhere
// without a second round trip.
func (o *Orchestrator) retrieveFrom(ctx context.Context, cand selection.Candidate, dataHash string) (peerOutcome, []byte, bool) {
	start := time.Now()

	meta, err := o.Store.GetMetadata(ctx, cand.Hotkey, dataHash)
	if err != nil || meta == nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, NoData: true}, nil, false
	}

	seed, err := freshSeed()
	if err != nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "seed generation failed"}, nil, false
	}
	c, err := freshCRS(o.Config.Neuron.Curve)
	if err != nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "CRS generation failed"}, nil, false
	}

	req := protocol.RetrieveRequest{
		DataHash: dataHash,
		Curve:    c.curveName,
		GHex:     c.gHex,
		HHex:     c.hHex,
		Seed:     seed.Hex(),
	}

	endpoint, ok := o.axonFor(cand.UID)
	if !ok {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "no axon endpoint"}, nil, false
	}

	resp, err := o.Transport.Retrieve(ctx, endpoint, req)
	latency := elapsedMillis(start)
	if err != nil {
		o.markRetrieveFailure(ctx, cand.Hotkey, dataHash, *meta)
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "transport: " + err.Error(), LatencyMs: latency}, nil, false
	}

	outcome := protocol.VerifyRetrieveWithSeed(resp, dataHash)
	if !outcome.Verified {
		o.markRetrieveFailure(ctx, cand.Hotkey, dataHash, *meta)
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: outcome.Reason, LatencyMs: latency, Online: true}, nil, false
	}

	blob, err := base64.StdEncoding.DecodeString(resp.EncryptedDataB64)
	if err != nil {
		o.markRetrieveFailure(ctx, cand.Hotkey, dataHash, *meta)
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "malformed ciphertext encoding", LatencyMs: latency, Online: true}, nil, false
	}

	meta.PrevSeed = seed.Hex()
	meta.AtRisk = false
	meta.ConsecutiveFails = 0
	if err := o.Store.UpdateMetadata(ctx, cand.Hotkey, dataHash, *meta); err != nil {
		o.Logger.Errorf("retrieve round: updating metadata for %s/%s: %v", cand.Hotkey, dataHash, err)
	}

	return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Verified: true, LatencyMs: latency, Online: true}, blob, true
}

// markRetrieveFailure flags a blob at-risk and only drops the failing
// holder from the blob's replication set once it has failed retrieval on
// consecutive rounds, not on a single isolated miss.
func (o *Orchestrator) markRetrieveFailure(ctx context.Context, hotkey, dataHash string, meta metadata.BlobMetadata) {
	meta.AtRisk = true
	meta.ConsecutiveFails++
	if err := o.Store.UpdateMetadata(ctx, hotkey, dataHash, meta); err != nil {
		o.Logger.Errorf("retrieve round: flagging at-risk for %s/%s: %v", hotkey, dataHash, err)
	}
	if meta.ConsecutiveFails >= consecutiveFailThreshold {
		o.replaceHolder(ctx, dataHash, hotkey, "")
	}
}

// replaceHolder updates dataHash's known holder set, removing oldHotkey (if
// present) and adding newHotkey (if non-empty), then re-syncs
// replication_count across the surviving holders' records to the new set
// size. Called both to prune a holder whose retrieves keep failing and to
// swap in a rebalance destination for its source.
func (o *Orchestrator) replaceHolder(ctx context.Context, dataHash, oldHotkey, newHotkey string) {
	holders, err := o.Store.GetOrderedMetadata(ctx, dataHash)
	if err != nil {
		o.Logger.Errorf("rebalance: reading holder set for %s: %v", dataHash, err)
		return
	}

	remaining := make([]metadata.ChunkMapping, 0, len(holders)+1)
	for _, h := range holders {
		if h.Hotkey != oldHotkey {
			remaining = append(remaining, h)
		}
	}
	if newHotkey != "" {
		remaining = append(remaining, metadata.ChunkMapping{ChunkIndex: 0, ChunkHash: dataHash, Hotkey: newHotkey})
	}

	if err := o.Store.StoreFileChunkMappingOrdered(ctx, dataHash, remaining); err != nil {
		o.Logger.Errorf("rebalance: updating holder set for %s: %v", dataHash, err)
		return
	}

	count := len(remaining)
	for _, h := range remaining {
		m, err := o.Store.GetMetadata(ctx, h.Hotkey, dataHash)
		if err != nil || m == nil {
			continue
		}
		m.ReplicationCount = count
		if err := o.Store.UpdateMetadata(ctx, h.Hotkey, dataHash, *m); err != nil {
			o.Logger.Errorf("rebalance: syncing replication count for %s/%s: %v", h.Hotkey, dataHash, err)
		}
	}
}
