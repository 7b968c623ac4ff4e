// Package protocol defines the three validator-to-miner wire shapes (Store,
// Challenge, Retrieve) and their verification predicates. Field names and
// encodings here are the public wire contract and must not change.
package protocol

import (
	"encoding/hex"

	"github.com/ubsv-storage/validator-core/pkg/merkle"
)

// Seed is a 32-byte validator-chosen nonce, hex-encoded on the wire as 64
// hex characters. A fresh seed is required on every request so a miner
// cannot replay a prior proof.
type Seed [32]byte

func (s Seed) Hex() string { return hex.EncodeToString(s[:]) }

func SeedFromHex(s string) (Seed, error) {
	var out Seed
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, errBadSeed
	}
	copy(out[:], raw)
	return out, nil
}

// StoreRequest asks a miner to commit to and hold a new blob. ChunkSize is
// the canonical leaf granularity the miner must use when building the
// Merkle tree over the blob's chunks; every later Challenge against this
// blob proves inclusion against a tree built at this same granularity.
type StoreRequest struct {
	EncryptedDataB64 string `json:"encrypted_data"`
	ChunkSize        int    `json:"chunk_size"`
	Curve            string `json:"curve"`
	GHex             string `json:"g"`
	HHex             string `json:"h"`
	Seed             string `json:"seed"`
}

// StoreResponse is the miner's commitment over the stored blob.
type StoreResponse struct {
	StoreRequest
	CommitmentHex string `json:"commitment"`
	Randomness    string `json:"randomness"` // decimal big.Int
	MerkleRoot    string `json:"merkle_root"`
}

// ChallengeRequest asks a miner to open the commitment of one chunk of a
// previously stored blob.
type ChallengeRequest struct {
	DataHash       string `json:"data_hash"`
	ChunkSize      int    `json:"chunk_size"`
	GHex           string `json:"g"`
	HHex           string `json:"h"`
	Curve          string `json:"curve"`
	ChallengeIndex int    `json:"challenge_index"`
	Seed           string `json:"seed"`
}

// ChallengeResponse carries the requested chunk, its opening, and a Merkle
// proof up to the blob's previously stored root.
type ChallengeResponse struct {
	ChallengeRequest
	ChunkDataB64  string             `json:"chunk_data"`
	CommitmentHex string             `json:"commitment"`
	Randomness    string             `json:"randomness"`
	MerkleProof   []merkle.ProofStep `json:"merkle_proof"`
}

// RetrieveRequest asks a miner to return the full ciphertext of a blob. It
// carries a fresh CRS alongside the seed so the accompanying opening can be
// verified without the validator needing to remember a prior round's CRS.
type RetrieveRequest struct {
	DataHash string `json:"data_hash"`
	Curve    string `json:"curve"`
	GHex     string `json:"g"`
	HHex     string `json:"h"`
	Seed     string `json:"seed"`
}

// RetrieveResponse carries the full ciphertext plus a fresh opening.
type RetrieveResponse struct {
	RetrieveRequest
	EncryptedDataB64 string `json:"encrypted_data"`
	CommitmentHex    string `json:"commitment"`
	Randomness       string `json:"randomness"`
}
