package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaves(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = hashPair([]byte{byte(i)}, []byte{byte(i + 1)})
	}
	return out
}

func TestTree_ProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7, 8} {
		tree := New(leaves(n))
		root := tree.Root()
		require.NotNil(t, root)

		for i := 0; i < n; i++ {
			proof, err := tree.Proof(i)
			require.NoError(t, err)
			assert.True(t, VerifyProof(proof, tree.levels[0][i], root), "leaf %d in tree of size %d", i, n)
		}
	}
}

func TestTree_TamperedLeafFailsVerification(t *testing.T) {
	tree := New(leaves(4))
	proof, err := tree.Proof(2)
	require.NoError(t, err)

	tampered := append([]byte(nil), tree.levels[0][2]...)
	tampered[0] ^= 0xFF

	assert.False(t, VerifyProof(proof, tampered, tree.Root()))
}

func TestTree_TamperedProofFailsVerification(t *testing.T) {
	tree := New(leaves(4))
	proof, err := tree.Proof(1)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	if proof[0].Left != nil {
		proof[0].Left[0] ^= 0xFF
	} else {
		proof[0].Right[0] ^= 0xFF
	}

	assert.False(t, VerifyProof(proof, tree.levels[0][1], tree.Root()))
}

func TestTree_SerializeRoundTrip(t *testing.T) {
	tree := New(leaves(5))
	data, err := tree.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, tree.RootHex(), restored.RootHex())
	assert.Equal(t, tree.LeafCount(), restored.LeafCount())
}

func TestTree_UpdateRecomputesRoot(t *testing.T) {
	tree := New(leaves(4))
	oldRoot := tree.RootHex()

	newLeaf := hashPair([]byte("new"), []byte("leaf"))
	require.NoError(t, tree.Update(1, newLeaf))

	assert.NotEqual(t, oldRoot, tree.RootHex())

	proof, err := tree.Proof(1)
	require.NoError(t, err)
	assert.True(t, VerifyProof(proof, newLeaf, tree.Root()))
}

func TestTree_EmptyTree(t *testing.T) {
	tree := New(nil)
	assert.Nil(t, tree.Root())
	assert.Equal(t, 0, tree.LeafCount())

	_, err := tree.Proof(0)
	assert.Error(t, err)
}

func TestTree_OddLeafCarry(t *testing.T) {
	// 3 leaves: the last leaf should propagate unhashed at each odd level.
	tree := New(leaves(3))
	require.Len(t, tree.levels[1], 2) // pair(0,1), carry(2)
	assert.Equal(t, tree.levels[0][2], tree.levels[1][1])
}
