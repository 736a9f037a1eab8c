package price

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-trader/pkg/types"
)

var (
	// tokenLow sorts before tokenHigh, so it is the pool's index-0 asset.
	tokenLow  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenHigh = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func poolState(sqrtPriceX96 *big.Int) *types.PoolState {
	return &types.PoolState{SqrtPriceX96: sqrtPriceX96, Tick: big.NewInt(0), Unlocked: true}
}

func TestSpotPriceZeroSqrtPrice(t *testing.T) {
	p := SpotPrice(poolState(big.NewInt(0)), tokenLow, tokenHigh, 18, 18)
	assert.Zero(t, p.Sign())

	p = SpotPrice(nil, tokenLow, tokenHigh, 18, 18)
	assert.Zero(t, p.Sign())
}

func TestSpotPriceDegradesToZero(t *testing.T) {
	// A sqrt price this small collapses to a zero raw price; the primary
	// branch would divide by it, which must degrade to zero, not panic.
	p := SpotPrice(poolState(big.NewInt(1)), tokenLow, tokenHigh, 18, 18)
	assert.Zero(t, p.Sign())
}

func TestSpotPriceEqualDecimals(t *testing.T) {
	// sqrtPrice = 2 * 2^96 means a raw price of 4 token1 per token0.
	sqrtP := new(big.Int).Lsh(big.NewInt(2), 96)

	// tokenA is secondary: direct multiply, price = 4.
	p := SpotPrice(poolState(sqrtP), tokenHigh, tokenLow, 18, 18)
	want, _ := new(big.Int).SetString("4000000000000000000", 10)
	assert.Equal(t, want, p)

	// tokenA is primary: inverted, price = 0.25.
	p = SpotPrice(poolState(sqrtP), tokenLow, tokenHigh, 18, 18)
	want, _ = new(big.Int).SetString("250000000000000000", 10)
	assert.Equal(t, want, p)
}

func TestSpotPriceInversePathWithDecimalGap(t *testing.T) {
	// tokenA has 6 decimals and is the primary asset, tokenB has 18: the
	// result must come from the inverse-scaled path, not the direct multiply.
	sqrtP := new(big.Int).Lsh(big.NewInt(2), 96) // raw price 4e18

	p := SpotPrice(poolState(sqrtP), tokenLow, tokenHigh, 6, 18)

	// inverse path: (1e36 / 4e18) * 10^(18-6) = 2.5e17 * 1e12 = 2.5e29
	want, _ := new(big.Int).SetString("250000000000000000000000000000", 10)
	require.Equal(t, want, p)

	// and demonstrably not the direct path (4e18 * 1e12 = 4e30)
	direct, _ := new(big.Int).SetString("4000000000000000000000000000000", 10)
	assert.NotEqual(t, direct, p)
}

func TestSpotPriceReciprocal(t *testing.T) {
	one36, _ := new(big.Int).SetString("1000000000000000000000000000000000000", 10)

	cases := []struct {
		name       string
		sqrtFactor int64
		decA, decB int
	}{
		{"equal decimals", 2, 18, 18},
		{"six vs eighteen", 2, 6, 18},
		{"eighteen vs six", 5, 18, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sqrtP := new(big.Int).Lsh(big.NewInt(tc.sqrtFactor), 96)
			state := poolState(sqrtP)

			ab := SpotPrice(state, tokenLow, tokenHigh, tc.decA, tc.decB)
			ba := SpotPrice(state, tokenHigh, tokenLow, tc.decB, tc.decA)

			product := new(big.Int).Mul(ab, ba)
			assert.Equal(t, one36, product)
		})
	}
}

func TestSpotPriceReciprocalApproximate(t *testing.T) {
	// A non-round sqrt price: reciprocity holds up to fixed-point rounding.
	sqrtP, _ := new(big.Int).SetString("1845678901234567890123456789012", 10)
	state := poolState(sqrtP)

	ab := SpotPrice(state, tokenLow, tokenHigh, 18, 18)
	ba := SpotPrice(state, tokenHigh, tokenLow, 18, 18)
	require.Positive(t, ab.Sign())
	require.Positive(t, ba.Sign())

	one36, _ := new(big.Int).SetString("1000000000000000000000000000000000000", 10)
	product := new(big.Int).Mul(ab, ba)

	diff := new(big.Int).Sub(product, one36)
	diff.Abs(diff)
	// within one part in 1e9
	bound := new(big.Int).Quo(one36, big.NewInt(1_000_000_000))
	assert.True(t, diff.Cmp(bound) < 0, "product %s deviates from 1e36 by %s", product, diff)
}

func TestSpotPriceOrderingIsCaseInsensitive(t *testing.T) {
	// Address ordering compares lowercase hex, so mixed-case checksummed
	// addresses pick the same primary asset.
	mixed := common.HexToAddress("0xAaAaAAAAaaaAAaaAAaAaaaAAaAAAaaaAaAaaAaAa")
	sqrtP := new(big.Int).Lsh(big.NewInt(2), 96)

	p1 := SpotPrice(poolState(sqrtP), mixed, tokenHigh, 18, 18)
	p2 := SpotPrice(poolState(sqrtP), tokenLow, tokenHigh, 18, 18)
	assert.Equal(t, p2, p1)
}
