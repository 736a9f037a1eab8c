package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel address callers pass for the chain's native asset.
var NativeToken = common.Address{}

// TradeIntent describes a single swap attempt. It is immutable once built;
// callers construct a fresh intent whenever any input changes.
type TradeIntent struct {
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	NativeIn     bool
	NativeOut    bool
}

// NewTradeIntent builds an intent with explicit native flags.
func NewTradeIntent(tokenIn, tokenOut common.Address, amountIn, amountOutMin *big.Int, nativeIn, nativeOut bool) *TradeIntent {
	return &TradeIntent{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     new(big.Int).Set(amountIn),
		AmountOutMin: new(big.Int).Set(amountOutMin),
		NativeIn:     nativeIn,
		NativeOut:    nativeOut,
	}
}

// InferTradeIntent infers the native flags by comparing each address against
// the zero-address sentinel, then delegates to NewTradeIntent.
func InferTradeIntent(tokenIn, tokenOut common.Address, amountIn, amountOutMin *big.Int) *TradeIntent {
	return NewTradeIntent(tokenIn, tokenOut, amountIn, amountOutMin,
		tokenIn == NativeToken, tokenOut == NativeToken)
}

// SimulationResult is the outcome of a dry-run against the router or quoter.
// It is recomputed on every input change and never persisted.
type SimulationResult struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	Ret   []byte
	Err   error
}

// Valid reports whether the simulation exists and completed without error.
func (s *SimulationResult) Valid() bool {
	return s != nil && s.Err == nil && len(s.Data) > 0
}

// PoolState mirrors the pool's slot0 view.
type PoolState struct {
	SqrtPriceX96               *big.Int
	Tick                       *big.Int
	ObservationIndex           uint16
	ObservationCardinality     uint16
	ObservationCardinalityNext uint16
	FeeProtocol                uint8
	Unlocked                   bool
}
