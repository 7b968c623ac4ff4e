package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/ubsv-storage/validator-core/pkg/ecc"
	"github.com/ubsv-storage/validator-core/protocol"
	"github.com/ubsv-storage/validator-core/selection"
	"github.com/ubsv-storage/validator-core/stores/metadata"
)

const synthBlobSize = 64 * 1024

const maxStoreRetries = 3

// syntheticBlob generates one round's canary payload: random bytes that
// stand in for an already-encrypted ciphertext the validator wants every
// selected miner to hold an identical copy of, plus an opaque nonce
// recorded as the blob's encryption_payload.
func syntheticBlob() (data []byte, encryptionPayload string, err error) {
	data = make([]byte, synthBlobSize)
	if _, err = rand.Read(data); err != nil {
		return nil, "", err
	}
	nonce := make([]byte, 16)
	if _, err = rand.Read(nonce); err != nil {
		return nil, "", err
	}
	return data, hex.EncodeToString(nonce), nil
}

// RunStoreRound selects store_redundancy miners, broadcasts one Store
// synapse, and retries failed slots up to three times with fresh miners.
// Total redundancy is best-effort: the blob is considered stored as soon as
// at least one miner verifies successfully.
func (o *Orchestrator) RunStoreRound(ctx context.Context) error {
	started := time.Now()
	cfg := o.Config.Neuron

	blob, encryptionPayload, err := syntheticBlob()
	if err != nil {
		return err
	}
	dataHash := ecc.HashData(blob)
	blobB64 := base64.StdEncoding.EncodeToString(blob)

	want := cfg.StoreRedundancy
	succeeded := 0
	var allOutcomes []peerOutcome

	excluded := map[int]bool{}
	for attempt := 0; attempt <= maxStoreRetries && want > 0; attempt++ {
		candidates, err := o.Selector.GetAvailableQueryMiners(ctx, o.metagraph, o.SelfUID, selection.ForStore, want+len(excluded))
		if err != nil {
			return err
		}
		candidates = excludeSeen(candidates, excluded)
		if len(candidates) > want {
			candidates = candidates[:want]
		}
		if len(candidates) == 0 {
			break
		}

		outcomes := o.runWave(ctx, candidates, cfg.StoreTimeout, func(callCtx context.Context, cand selection.Candidate) peerOutcome {
			return o.dispatchStore(callCtx, cand, blobB64, dataHash, encryptionPayload, len(blob))
		})
		allOutcomes = append(allOutcomes, outcomes...)

		failed := 0
		for _, out := range outcomes {
			excluded[out.UID] = true
			if out.Verified {
				succeeded++
			} else {
				failed++
			}
		}
		if failed == 0 {
			break
		}
		want = failed
	}
	_ = succeeded // best-effort: the round succeeds overall once >=1 miner verified

	for _, out := range allOutcomes {
		if out.Verified {
			o.replaceHolder(ctx, dataHash, "", out.Hotkey)
		}
	}

	responses := o.foldOutcomes(KindStore, started, allOutcomes)
	rewards := o.applyRewards(KindStore, responses)
	o.emitEvent("store", allOutcomes, rewards)
	return nil
}

func excludeSeen(candidates []selection.Candidate, seen map[int]bool) []selection.Candidate {
	out := make([]selection.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !seen[c.UID] {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) dispatchStore(ctx context.Context, cand selection.Candidate, blobB64, dataHash, encryptionPayload string, rawSize int) peerOutcome {
	start := time.Now()

	seed, err := freshSeed()
	if err != nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "seed generation failed"}
	}
	c, err := freshCRS(o.Config.Neuron.Curve)
	if err != nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "CRS generation failed"}
	}

	cfg := o.Config.Neuron
	chunkSize := chunkSizeFor(cfg.MinChunkSize, cfg.ChunkFactor, cfg.OverrideChunkSize)

	req := protocol.StoreRequest{
		EncryptedDataB64: blobB64,
		ChunkSize:        chunkSize,
		Curve:            c.curveName,
		GHex:             c.gHex,
		HHex:             c.hHex,
		Seed:             seed.Hex(),
	}

	endpoint, ok := o.axonFor(cand.UID)
	if !ok {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "no axon endpoint"}
	}

	resp, err := o.Transport.Store(ctx, endpoint, req)
	latency := elapsedMillis(start)
	if err != nil {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "transport: " + err.Error(), LatencyMs: latency}
	}

	outcome := protocol.VerifyStoreWithSeed(resp)
	if !outcome.Verified {
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: outcome.Reason, LatencyMs: latency, Online: true}
	}

	meta := metadata.BlobMetadata{
		DataHash:          dataHash,
		Size:              int64(rawSize),
		EncryptionPayload: encryptionPayload,
		PrevSeed:          seed.Hex(),
		TTLSeconds:        o.Config.Neuron.DataTTL,
		MerkleRoot:        resp.MerkleRoot,
		ChunkSize:         chunkSize,
	}
	if err := o.Store.AddMetadata(ctx, cand.Hotkey, dataHash, meta); err != nil {
		o.Logger.Errorf("store round: persisting metadata for %s/%s: %v", cand.Hotkey, dataHash, err)
		return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Reason: "metadata store unavailable", LatencyMs: latency, Online: true}
	}

	return peerOutcome{UID: cand.UID, Hotkey: cand.Hotkey, Verified: true, LatencyMs: latency, Online: true}
}
