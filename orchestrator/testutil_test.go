package orchestrator

import (
	"encoding/base64"
	mathrand "math/rand"
	"testing"
	"time"

	"github.com/ubsv-storage/validator-core/chain"
	"github.com/ubsv-storage/validator-core/config"
	"github.com/ubsv-storage/validator-core/pkg/ecc"
	"github.com/ubsv-storage/validator-core/pkg/merkle"
	"github.com/ubsv-storage/validator-core/protocol"
	"github.com/ubsv-storage/validator-core/reputation"
	"github.com/ubsv-storage/validator-core/reward"
	"github.com/ubsv-storage/validator-core/selection"
	"github.com/ubsv-storage/validator-core/stores/metadata"
	"github.com/ubsv-storage/validator-core/transport"
	"github.com/ubsv-storage/validator-core/ulogger"
)

// testMetagraph builds a dense metagraph with one validator at UID 0
// (no axon, never dialed) and one miner slot per remaining hotkey.
func testMetagraph(hotkeys ...string) chain.Metagraph {
	axons := make([]string, len(hotkeys))
	for i := range hotkeys {
		if i == 0 {
			continue
		}
		axons[i] = "axon-" + hotkeys[i]
	}
	return chain.Metagraph{N: len(hotkeys), Hotkeys: hotkeys, Axons: axons}
}

func newTestOrchestrator(t *testing.T, mg chain.Metagraph, neuronOverrides func(*config.NeuronSettings)) (*Orchestrator, *transport.Mock, *chain.Mock) {
	t.Helper()

	mc := transport.NewMock()
	store := metadata.NewMemory()
	rep := reputation.New(reputation.DefaultConfig())
	rewardState := reward.NewState(mg.N, config.RewardSettings{EMAAlpha: 0.3, DecayRate: 0.01, BlocksPerWeight: 100})
	sel := selection.New(store, 10*1024*1024*1024, mathrand.New(mathrand.NewSource(1)))
	chainMock := chain.NewMock(mg)
	logger := ulogger.New("test", "error", false)

	neuron := config.NeuronSettings{
		Curve:               ecc.CurveP256,
		StoreTimeout:        time.Second,
		ChallengeTimeout:    time.Second,
		RetrieveTimeout:     time.Second,
		StoreRedundancy:     1,
		ChallengeSampleSize: 1,
		MinChunkSize:        16,
		ChunkFactor:         1,
		BlocksPerStep:       1,
		CapacityBytes:       10 * 1024 * 1024 * 1024,
	}
	if neuronOverrides != nil {
		neuronOverrides(&neuron)
	}

	cfg := &config.Settings{
		NetUID:     1,
		SelfHotkey: mg.Hotkeys[0],
		VersionKey: 1,
		Neuron:     neuron,
		Reward:     config.RewardSettings{EMAAlpha: 0.3, DecayRate: 0.01, BlocksPerWeight: 100},
	}

	o := New(cfg, logger, chainMock, store, rep, rewardState, sel, mc, nil)
	o.metagraph = mg
	o.SelfUID = 0
	o.uidHotkey = make(map[int]string, mg.N)
	for uid, hk := range mg.Hotkeys {
		o.uidHotkey[uid] = hk
	}
	return o, mc, chainMock
}

// testChunkLeaves mirrors protocol.chunkLeaves exactly: it must produce
// byte-identical leaves to whatever the verifier independently recomputes,
// since the honest fake miner below and the real verifier never share code.
func testChunkLeaves(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 || chunkSize >= len(data) {
		return [][]byte{ecc.HashBytes(data)}
	}
	leaves := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		leaves = append(leaves, ecc.HashBytes(data[offset:end]))
	}
	return leaves
}

func testChunkAt(data []byte, chunkSize, index int) []byte {
	if chunkSize <= 0 || chunkSize >= len(data) {
		return data
	}
	offset := index * chunkSize
	if offset >= len(data) {
		offset = 0
	}
	end := offset + chunkSize
	if end > len(data) {
		end = len(data)
	}
	return data[offset:end]
}

// fakeMinerBlob is one stored blob's state as a well-behaved miner would
// track it: the exact bytes it received plus the chunk size it was told to
// use, so later Challenges reconstruct the same tree the Store round built.
type fakeMinerBlob struct {
	data      []byte
	chunkSize int
}

// honestMiner returns a transport.MockMiner that genuinely stores whatever
// it is sent and answers Store/Challenge/Retrieve the way a correctly
// implemented miner would, including real Pedersen openings and Merkle
// proofs — so tests exercise the real verification code path, not a stub.
func honestMiner(t *testing.T) (transport.MockMiner, map[string]*fakeMinerBlob) {
	t.Helper()
	blobs := make(map[string]*fakeMinerBlob)

	storeFn := func(req protocol.StoreRequest) (*protocol.StoreResponse, error) {
		blob, err := base64.StdEncoding.DecodeString(req.EncryptedDataB64)
		if err != nil {
			return nil, err
		}
		committer, err := committerFromTest(req.Curve, req.GHex, req.HHex)
		if err != nil {
			return nil, err
		}
		seed, err := protocol.SeedFromHex(req.Seed)
		if err != nil {
			return nil, err
		}
		m := ecc.ReduceMessage(committer.Curve, seed[:], blob)
		r, err := ecc.RandomScalar(committer.Curve)
		if err != nil {
			return nil, err
		}
		commitment := committer.Commit(m, r)
		tree := merkle.New(testChunkLeaves(blob, req.ChunkSize))

		dataHash := ecc.HashData(blob)
		blobs[dataHash] = &fakeMinerBlob{data: blob, chunkSize: req.ChunkSize}

		return &protocol.StoreResponse{
			StoreRequest:  req,
			CommitmentHex: commitment.Hex(committer.Curve),
			Randomness:    r.String(),
			MerkleRoot:    tree.RootHex(),
		}, nil
	}

	challengeFn := func(req protocol.ChallengeRequest) (*protocol.ChallengeResponse, error) {
		stored, ok := blobs[req.DataHash]
		if !ok {
			return nil, nil
		}
		committer, err := committerFromTest(req.Curve, req.GHex, req.HHex)
		if err != nil {
			return nil, err
		}
		seed, err := protocol.SeedFromHex(req.Seed)
		if err != nil {
			return nil, err
		}
		chunk := testChunkAt(stored.data, req.ChunkSize, req.ChallengeIndex)
		m := ecc.ReduceMessage(committer.Curve, seed[:], chunk)
		r, err := ecc.RandomScalar(committer.Curve)
		if err != nil {
			return nil, err
		}
		commitment := committer.Commit(m, r)

		tree := merkle.New(testChunkLeaves(stored.data, req.ChunkSize))
		leafIndex := req.ChallengeIndex
		if leafIndex >= tree.LeafCount() {
			leafIndex = tree.LeafCount() - 1
		}
		proof, err := tree.Proof(leafIndex)
		if err != nil {
			return nil, err
		}

		return &protocol.ChallengeResponse{
			ChallengeRequest: req,
			ChunkDataB64:     base64.StdEncoding.EncodeToString(chunk),
			CommitmentHex:    commitment.Hex(committer.Curve),
			Randomness:       r.String(),
			MerkleProof:      proof,
		}, nil
	}

	retrieveFn := func(req protocol.RetrieveRequest) (*protocol.RetrieveResponse, error) {
		stored, ok := blobs[req.DataHash]
		if !ok {
			return nil, nil
		}
		committer, err := committerFromTest(req.Curve, req.GHex, req.HHex)
		if err != nil {
			return nil, err
		}
		seed, err := protocol.SeedFromHex(req.Seed)
		if err != nil {
			return nil, err
		}
		m := ecc.ReduceMessage(committer.Curve, seed[:], stored.data)
		r, err := ecc.RandomScalar(committer.Curve)
		if err != nil {
			return nil, err
		}
		commitment := committer.Commit(m, r)

		return &protocol.RetrieveResponse{
			RetrieveRequest:  req,
			EncryptedDataB64: base64.StdEncoding.EncodeToString(stored.data),
			CommitmentHex:    commitment.Hex(committer.Curve),
			Randomness:       r.String(),
		}, nil
	}

	return transport.MockMiner{StoreFn: storeFn, ChallengeFn: challengeFn, RetrieveFn: retrieveFn}, blobs
}

func committerFromTest(curveName, gHex, hHex string) (ecc.Committer, error) {
	curve, err := ecc.NamedCurve(curveName)
	if err != nil {
		return ecc.Committer{}, err
	}
	g, err := ecc.PointFromHex(curve, gHex)
	if err != nil {
		return ecc.Committer{}, err
	}
	h, err := ecc.PointFromHex(curve, hHex)
	if err != nil {
		return ecc.Committer{}, err
	}
	return ecc.Committer{Curve: curve, G: g, H: h}, nil
}
