package ecc

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitOpenRoundTrip(t *testing.T) {
	g, h, curve, err := SetupCRS(CurveP256)
	require.NoError(t, err)

	committer := Committer{Curve: curve, G: g, H: h}
	m := ReduceMessage(curve, []byte("seed"), []byte("chunk data"))
	r, err := RandomScalar(curve)
	require.NoError(t, err)

	c := committer.Commit(m, r)
	assert.True(t, committer.Open(c, m, r))
}

func TestOpenRejectsWrongMessage(t *testing.T) {
	g, h, curve, err := SetupCRS(CurveP256)
	require.NoError(t, err)
	committer := Committer{Curve: curve, G: g, H: h}

	m := ReduceMessage(curve, []byte("seed-a"), []byte("data"))
	other := ReduceMessage(curve, []byte("seed-b"), []byte("data"))
	r, err := RandomScalar(curve)
	require.NoError(t, err)

	c := committer.Commit(m, r)
	assert.False(t, committer.Open(c, other, r))
}

func TestOpenRejectsWrongRandomness(t *testing.T) {
	g, h, curve, err := SetupCRS(CurveP256)
	require.NoError(t, err)
	committer := Committer{Curve: curve, G: g, H: h}

	m := ReduceMessage(curve, []byte("seed"), []byte("data"))
	r1, err := RandomScalar(curve)
	require.NoError(t, err)
	r2, err := RandomScalar(curve)
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)

	c := committer.Commit(m, r1)
	assert.False(t, committer.Open(c, m, r2))
}

func TestPointHexRoundTrip(t *testing.T) {
	g, _, curve, err := SetupCRS(CurveP256)
	require.NoError(t, err)

	hexStr := g.Hex(curve)
	assert.Len(t, hexStr, 130) // 1 byte prefix + 2*32 bytes coords, hex-encoded
	assert.Equal(t, "04", hexStr[:2])

	parsed, err := PointFromHex(curve, hexStr)
	require.NoError(t, err)
	assert.Equal(t, 0, g.X.Cmp(parsed.X))
	assert.Equal(t, 0, g.Y.Cmp(parsed.Y))
}

func TestSetupCRSIsFreshEveryCall(t *testing.T) {
	_, h1, _, err := SetupCRS(CurveP256)
	require.NoError(t, err)
	_, h2, _, err := SetupCRS(CurveP256)
	require.NoError(t, err)

	assert.NotEqual(t, h1.X.Cmp(h2.X), 0, "two rounds must not share a CRS")
}

func TestHashDataDeterministic(t *testing.T) {
	a := HashData([]byte("hello"))
	b := HashData([]byte("hello"))
	c := HashData([]byte("hello!"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // 32 bytes, hex encoded
}

func TestReduceMessageModulusBound(t *testing.T) {
	_, _, curve, err := SetupCRS(CurveP256)
	require.NoError(t, err)
	m := ReduceMessage(curve, []byte("seed"), []byte("data"))
	assert.True(t, m.Cmp(curve.Params().N) < 0)
	assert.True(t, m.Cmp(big.NewInt(0)) >= 0)
}

func TestUnsupportedCurve(t *testing.T) {
	_, err := NamedCurve("secp256k1")
	assert.Error(t, err)
}
