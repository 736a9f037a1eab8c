package price

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"dex-trader/pkg/chain"
	"dex-trader/pkg/types"
)

var (
	q96      = new(big.Int).Lsh(big.NewInt(1), 96)
	scale1e18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	scale1e36 = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
)

// Reader resolves pools and reads their state.
type Reader struct {
	backend chain.Backend
	factory common.Address
	log     *zap.Logger
}

func NewReader(backend chain.Backend, factory common.Address, logger *zap.Logger) *Reader {
	return &Reader{backend: backend, factory: factory, log: logger}
}

// ResolvePool looks up the pool for the pair at the given fee tier.
func (r *Reader) ResolvePool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return common.Address{}, fmt.Errorf("both token addresses are required")
	}
	data, err := chain.PackGetPool(tokenA, tokenB, fee)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack getPool data: %w", err)
	}
	ret, err := r.backend.ReadContract(ctx, r.factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to call getPool: %w", err)
	}
	poolAddr, err := chain.UnpackGetPool(ret)
	if err != nil {
		return common.Address{}, err
	}
	if poolAddr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no pool for pair at fee tier %d", fee)
	}
	return poolAddr, nil
}

// ReadPoolState reads the pool's slot0.
func (r *Reader) ReadPoolState(ctx context.Context, poolAddr common.Address) (*types.PoolState, error) {
	if poolAddr == (common.Address{}) {
		return nil, fmt.Errorf("pool address is required")
	}
	data, err := chain.PackSlot0()
	if err != nil {
		return nil, fmt.Errorf("failed to pack slot0 data: %w", err)
	}
	ret, err := r.backend.ReadContract(ctx, poolAddr, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call slot0: %w", err)
	}
	return chain.UnpackSlot0(ret)
}

// SpotPrice converts the pool's sqrt price into the price of tokenB
// denominated in tokenA, as a 1e18 fixed-point decimal. Returns zero for an
// uninitialized pool, and degrades to zero on any arithmetic failure.
func SpotPrice(state *types.PoolState, tokenA, tokenB common.Address, decimalsA, decimalsB int) (price *big.Int) {
	defer func() {
		if recover() != nil {
			price = big.NewInt(0)
		}
	}()

	if state == nil || state.SqrtPriceX96 == nil || state.SqrtPriceX96.Sign() == 0 {
		return big.NewInt(0)
	}

	// Rescale the sqrt price from the 2^96 base to 1e18, then square back
	// down to get token1 per token0 at 1e18 fixed point.
	sqrt := new(big.Int).Mul(state.SqrtPriceX96, scale1e18)
	sqrt.Quo(sqrt, q96)
	raw := new(big.Int).Mul(sqrt, sqrt)
	raw.Quo(raw, scale1e18)

	// The pool's index-0 asset is the lexicographically smaller address.
	aIsPrimary := strings.ToLower(tokenA.Hex()) < strings.ToLower(tokenB.Hex())

	out := raw
	if aIsPrimary {
		// The pool expresses the opposite ratio; invert at 1e36 precision.
		// Quo panics on a zero raw price and the recover degrades to zero.
		out = new(big.Int).Quo(scale1e36, raw)
	}

	// Compensate for the assets' differing smallest-unit scale.
	if exp := decimalsB - decimalsA; exp >= 0 {
		out.Mul(out, pow10(exp))
	} else {
		out.Quo(out, pow10(-exp))
	}
	return out
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
