// Package merkle builds Merkle authentication trees over chunk content
// hashes, supporting inclusion proofs and single-leaf updates. Commitment
// points are not hashed into the leaves.
package merkle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Tree is a binary Merkle tree with the carry rule for odd levels: an
// unpaired last leaf on a level is promoted unhashed to the level above.
type Tree struct {
	levels [][][]byte // levels[0] is the leaves, levels[len-1] is the root
}

// New builds a tree over the given leaves. Leaves are not re-hashed; callers
// pass already-hashed leaf values (e.g. the SHA3-256 hash of a chunk's data).
func New(leaves [][]byte) *Tree {
	t := &Tree{}
	if len(leaves) == 0 {
		return t
	}
	level := make([][]byte, len(leaves))
	copy(level, leaves)
	t.levels = [][][]byte{level}
	for len(t.levels[len(t.levels)-1]) > 1 {
		t.levels = append(t.levels, nextLevel(t.levels[len(t.levels)-1]))
	}
	return t
}

func nextLevel(level [][]byte) [][]byte {
	n := len(level)
	var carry []byte
	if n%2 == 1 {
		carry = level[n-1]
		n--
	}
	next := make([][]byte, 0, n/2+1)
	for i := 0; i < n; i += 2 {
		next = append(next, hashPair(level[i], level[i+1]))
	}
	if carry != nil {
		next = append(next, carry)
	}
	return next
}

func hashPair(left, right []byte) []byte {
	h := sha3.New256()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Root returns the tree root, or nil if the tree has no leaves.
func (t *Tree) Root() []byte {
	if t == nil || len(t.levels) == 0 {
		return nil
	}
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return nil
	}
	return top[0]
}

// RootHex renders Root as lowercase hex.
func (t *Tree) RootHex() string {
	return hex.EncodeToString(t.Root())
}

// LeafCount returns the number of leaves in the tree.
func (t *Tree) LeafCount() int {
	if t == nil || len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// ProofStep is one step of an inclusion proof: the sibling hash, tagged with
// which side of the current node it sits on.
type ProofStep struct {
	Left  []byte `json:"left,omitempty"`
	Right []byte `json:"right,omitempty"`
}

// Proof builds an inclusion proof for leaf index i, ordered leaf-to-root.
func (t *Tree) Proof(index int) ([]ProofStep, error) {
	if t == nil || len(t.levels) == 0 {
		return nil, fmt.Errorf("merkle: empty tree")
	}
	if index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("merkle: index %d out of range", index)
	}

	var proof []ProofStep
	idx := index
	for lvl := 0; lvl < len(t.levels)-1; lvl++ {
		level := t.levels[lvl]
		if idx == len(level)-1 && len(level)%2 == 1 {
			// unpaired carry leaf: no sibling at this level
			idx /= 2
			continue
		}
		if idx%2 == 1 {
			proof = append(proof, ProofStep{Left: level[idx-1]})
		} else {
			proof = append(proof, ProofStep{Right: level[idx+1]})
		}
		idx /= 2
	}
	return proof, nil
}

// VerifyProof checks that leaf, combined along proof, reduces to root.
// Concatenation order is sibling‖current if the sibling is on the left,
// else current‖sibling.
func VerifyProof(proof []ProofStep, leaf, root []byte) bool {
	current := leaf
	for _, step := range proof {
		switch {
		case step.Left != nil:
			current = hashPair(step.Left, current)
		case step.Right != nil:
			current = hashPair(current, step.Right)
		default:
			return false
		}
	}
	return string(current) == string(root)
}

// Update replaces the leaf at index and recomputes all ancestors.
func (t *Tree) Update(index int, newValue []byte) error {
	if t == nil || len(t.levels) == 0 {
		return fmt.Errorf("merkle: empty tree")
	}
	if index < 0 || index >= len(t.levels[0]) {
		return fmt.Errorf("merkle: index %d out of range", index)
	}

	t.levels[0][index] = newValue
	idx := index
	for lvl := 0; lvl < len(t.levels)-1; lvl++ {
		parent := idx / 2
		level := t.levels[lvl]
		left := level[parent*2]
		var right []byte
		if parent*2+1 < len(level) {
			right = level[parent*2+1]
		}
		if right == nil {
			// carried leaf: the parent equals the lone child, unhashed
			t.levels[lvl+1][parent] = left
		} else {
			t.levels[lvl+1][parent] = hashPair(left, right)
		}
		idx = parent
	}
	return nil
}

type serializedTree struct {
	Levels [][]string `json:"levels"`
}

// Serialize renders the tree (all levels) to a portable JSON form.
func (t *Tree) Serialize() ([]byte, error) {
	var s serializedTree
	for _, level := range t.levels {
		hexLevel := make([]string, len(level))
		for i, h := range level {
			hexLevel[i] = hex.EncodeToString(h)
		}
		s.Levels = append(s.Levels, hexLevel)
	}
	return json.Marshal(s)
}

// Deserialize restores a tree from its portable JSON form.
func Deserialize(data []byte) (*Tree, error) {
	var s serializedTree
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("merkle: deserialize: %w", err)
	}
	t := &Tree{}
	for _, hexLevel := range s.Levels {
		level := make([][]byte, len(hexLevel))
		for i, hs := range hexLevel {
			b, err := hex.DecodeString(hs)
			if err != nil {
				return nil, fmt.Errorf("merkle: deserialize leaf: %w", err)
			}
			level[i] = b
		}
		t.levels = append(t.levels, level)
	}
	return t, nil
}
