// Package ecc implements the Pedersen commitment scheme the validator uses
// to bind a miner's proof of storage to a single round.
package ecc

import (
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// Curve names accepted in the wire protocol's "curve" field.
const (
	CurveP256 = "P-256"
)

// NamedCurve resolves a wire curve name to its stdlib implementation.
func NamedCurve(name string) (elliptic.Curve, error) {
	switch name {
	case CurveP256, "":
		return elliptic.P256(), nil
	default:
		return nil, fmt.Errorf("ecc: unsupported curve %q", name)
	}
}

// Point is a point on an elliptic curve, hex-encodable per the wire contract
// (uncompressed SEC1 encoding, "04" prefix).
type Point struct {
	X, Y *big.Int
}

func (p Point) IsZero() bool {
	return p.X == nil || p.Y == nil || (p.X.Sign() == 0 && p.Y.Sign() == 0)
}

// Hex renders the point using the curve's uncompressed SEC1 encoding.
func (p Point) Hex(curve elliptic.Curve) string {
	if p.X == nil || p.Y == nil {
		return ""
	}
	return hex.EncodeToString(elliptic.Marshal(curve, p.X, p.Y))
}

// PointFromHex parses an uncompressed SEC1-encoded point.
func PointFromHex(curve elliptic.Curve, s string) (Point, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Point{}, fmt.Errorf("ecc: bad point hex: %w", err)
	}
	x, y := elliptic.Unmarshal(curve, raw)
	if x == nil {
		return Point{}, fmt.Errorf("ecc: invalid point encoding")
	}
	return Point{X: x, Y: y}, nil
}

func (p Point) add(curve elliptic.Curve, q Point) Point {
	x, y := curve.Add(p.X, p.Y, q.X, q.Y)
	return Point{X: x, Y: y}
}

func scalarMul(curve elliptic.Curve, p Point, k *big.Int) Point {
	x, y := curve.ScalarMult(p.X, p.Y, k.Bytes())
	return Point{X: x, Y: y}
}

// HashData is the stable blob identifier: lowercase hex SHA3-256.
func HashData(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the raw SHA3-256 digest of data, used for hashing a
// chunk's content into a Merkle leaf.
func HashBytes(data []byte) []byte {
	sum := sha3.Sum256(data)
	return sum[:]
}

// ReduceMessage hashes seed‖data with SHA3-256 and reduces it modulo the
// curve order, producing the message scalar both parties must agree on.
func ReduceMessage(curve elliptic.Curve, seed, data []byte) *big.Int {
	h := sha3.New256()
	h.Write(seed)
	h.Write(data)
	digest := h.Sum(nil)
	m := new(big.Int).SetBytes(digest)
	return m.Mod(m, curve.Params().N)
}

// SetupCRS generates a fresh common reference string (g, h) for a round.
// g is the curve's base point; h is g multiplied by a scalar hashed from
// fresh random bytes. The scalar is not returned, so a miner sees only the
// two points, and no round reuses a prior round's CRS.
func SetupCRS(curveName string) (g, h Point, curve elliptic.Curve, err error) {
	curve, err = NamedCurve(curveName)
	if err != nil {
		return Point{}, Point{}, nil, err
	}

	params := curve.Params()
	g = Point{X: params.Gx, Y: params.Gy}

	seed := make([]byte, 32)
	if _, err = rand.Read(seed); err != nil {
		return Point{}, Point{}, nil, fmt.Errorf("ecc: sampling CRS seed: %w", err)
	}

	hashed := sha3.Sum256(seed)
	scalar := new(big.Int).SetBytes(hashed[:])
	scalar.Mod(scalar, params.N)
	if scalar.Sign() == 0 {
		scalar.SetInt64(1)
	}

	hx, hy := curve.ScalarBaseMult(scalar.Bytes())
	h = Point{X: hx, Y: hy}
	return g, h, curve, nil
}

// RandomScalar samples a uniform scalar in [1, N).
func RandomScalar(curve elliptic.Curve) (*big.Int, error) {
	n := curve.Params().N
	r, err := rand.Int(rand.Reader, n)
	if err != nil {
		return nil, fmt.Errorf("ecc: sampling randomness: %w", err)
	}
	if r.Sign() == 0 {
		r.SetInt64(1)
	}
	return r, nil
}

// Committer performs Pedersen commitments under a fixed (curve, g, h).
type Committer struct {
	Curve elliptic.Curve
	G, H  Point
}

// Commit computes C = m·g + r·h.
func (c Committer) Commit(m, r *big.Int) Point {
	mg := scalarMul(c.Curve, c.G, m)
	rh := scalarMul(c.Curve, c.H, r)
	return mg.add(c.Curve, rh)
}

// Open verifies that C opens to (m, r) under this CRS.
func (c Committer) Open(commitment Point, m, r *big.Int) bool {
	expected := c.Commit(m, r)
	return expected.X.Cmp(commitment.X) == 0 && expected.Y.Cmp(commitment.Y) == 0
}
