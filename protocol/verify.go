package protocol

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/ubsv-storage/validator-core/pkg/ecc"
	"github.com/ubsv-storage/validator-core/pkg/merkle"
)

var errBadSeed = errors.New("protocol: malformed seed")

// Outcome is the result sum type every verifier returns: exactly one of
// Verified, Failed(reason), or NoData — callers match exhaustively
// instead of relying on exceptions.
type Outcome struct {
	Verified bool
	NoData   bool
	Reason   string
}

func verified() Outcome            { return Outcome{Verified: true} }
func failed(reason string) Outcome { return Outcome{Reason: reason} }

// NoData is the outcome for a miner with nothing to challenge or retrieve.
func NoData() Outcome { return Outcome{NoData: true} }

func committerFrom(curveName, gHex, hHex string) (ecc.Committer, error) {
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

func parseRandomness(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}

// chunkLeaves splits data into chunkSize-byte pieces (the last one possibly
// shorter) and hashes each into a Merkle leaf. chunkSize<=0 collapses to a
// single leaf over the whole input.
func chunkLeaves(data []byte, chunkSize int) [][]byte {
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

// VerifyStoreWithSeed recomputes m = H(seed‖blob) and checks that the
// miner's commitment opens to it — proof the miner holds the blob right
// now, under this round's seed — then independently rebuilds the chunk
// Merkle tree over the blob at the request's chunk_size and checks it
// against the miner's advertised root, so a later Challenge can prove
// inclusion of one chunk without the validator re-deriving it from scratch.
func VerifyStoreWithSeed(resp *StoreResponse) Outcome {
	seed, err := SeedFromHex(resp.Seed)
	if err != nil {
		return failed("malformed seed")
	}

	blob, err := base64.StdEncoding.DecodeString(resp.EncryptedDataB64)
	if err != nil {
		return failed("malformed ciphertext encoding")
	}

	committer, err := committerFrom(resp.Curve, resp.GHex, resp.HHex)
	if err != nil {
		return failed("malformed CRS: " + err.Error())
	}

	commitment, err := ecc.PointFromHex(committer.Curve, resp.CommitmentHex)
	if err != nil {
		return failed("malformed commitment")
	}

	r, ok := parseRandomness(resp.Randomness)
	if !ok {
		return failed("malformed randomness")
	}

	m := ecc.ReduceMessage(committer.Curve, seed[:], blob)
	if !committer.Open(commitment, m, r) {
		return failed("commitment did not open")
	}

	tree := merkle.New(chunkLeaves(blob, resp.ChunkSize))
	if tree.RootHex() != resp.MerkleRoot {
		return failed("merkle root mismatch")
	}

	return verified()
}

// VerifyChallengeWithSeed re-opens the chunk commitment against
// H(seed‖chunk) — proof the miner holds this exact chunk right now — and
// independently checks that the chunk's content hash is included in the
// blob's originally stored Merkle root, so a miner can't substitute data it
// never actually stored.
func VerifyChallengeWithSeed(resp *ChallengeResponse, storedRootHex string) Outcome {
	seed, err := SeedFromHex(resp.Seed)
	if err != nil {
		return failed("malformed seed")
	}

	chunk, err := base64.StdEncoding.DecodeString(resp.ChunkDataB64)
	if err != nil {
		return failed("malformed chunk encoding")
	}

	committer, err := committerFrom(resp.Curve, resp.GHex, resp.HHex)
	if err != nil {
		return failed("malformed CRS: " + err.Error())
	}

	commitment, err := ecc.PointFromHex(committer.Curve, resp.CommitmentHex)
	if err != nil {
		return failed("malformed commitment")
	}

	r, ok := parseRandomness(resp.Randomness)
	if !ok {
		return failed("malformed randomness")
	}

	m := ecc.ReduceMessage(committer.Curve, seed[:], chunk)
	if !committer.Open(commitment, m, r) {
		return failed("commitment did not open")
	}

	rootBytes, err := hex.DecodeString(storedRootHex)
	if err != nil {
		return failed("malformed stored root")
	}

	leaf := ecc.HashBytes(chunk)
	if !merkle.VerifyProof(resp.MerkleProof, leaf, rootBytes) {
		return failed("merkle proof invalid")
	}

	return verified()
}

// VerifyRetrieveWithSeed checks the returned ciphertext hashes to the
// requested data_hash and that the accompanying opening under seed holds.
func VerifyRetrieveWithSeed(resp *RetrieveResponse, expectedDataHash string) Outcome {
	seed, err := SeedFromHex(resp.Seed)
	if err != nil {
		return failed("malformed seed")
	}

	blob, err := base64.StdEncoding.DecodeString(resp.EncryptedDataB64)
	if err != nil {
		return failed("malformed ciphertext encoding")
	}

	if ecc.HashData(blob) != expectedDataHash {
		return failed("ciphertext hash mismatch")
	}

	committer, err := committerFrom(resp.Curve, resp.GHex, resp.HHex)
	if err != nil {
		return failed("malformed CRS: " + err.Error())
	}

	commitment, err := ecc.PointFromHex(committer.Curve, resp.CommitmentHex)
	if err != nil {
		return failed("malformed commitment")
	}

	r, ok := parseRandomness(resp.Randomness)
	if !ok {
		return failed("malformed randomness")
	}

	m := ecc.ReduceMessage(committer.Curve, seed[:], blob)
	if !committer.Open(commitment, m, r) {
		return failed("commitment did not open")
	}

	return verified()
}
