package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"dex-trader/pkg/types"
)

// Uniswap V3 fee tiers (hundredths of a bip).
const (
	FeeTier001 uint32 = 100   // 0.01%
	FeeTier005 uint32 = 500   // 0.05%
	FeeTier030 uint32 = 3000  // 0.30%
	FeeTier100 uint32 = 10000 // 1.00%
)

// ERC-20 methods used by the allowance flow and balance reads.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// SwapRouter02 methods: single-hop swap, native unwrap and call batching.
const routerABI = `[
	{"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMinimum","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IV3SwapRouter.ExactInputSingleParams","name":"params","type":"tuple"}],"name":"exactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"amountMinimum","type":"uint256"},{"internalType":"address","name":"recipient","type":"address"}],"name":"unwrapWETH9","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"bytes[]","name":"data","type":"bytes[]"}],"name":"multicall","outputs":[{"internalType":"bytes[]","name":"results","type":"bytes[]"}],"stateMutability":"payable","type":"function"}
]`

// QuoterV2 quoteExactInputSingle, the only quoter method used.
const quoterABI = `[
	{"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},{"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const factoryABI = `[
	{"inputs":[{"internalType":"address","name":"tokenA","type":"address"},{"internalType":"address","name":"tokenB","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"internalType":"address","name":"pool","type":"address"}],"stateMutability":"view","type":"function"}
]`

const poolABI = `[
	{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint8","name":"feeProtocol","type":"uint8"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20   = mustParseABI(erc20ABI)
	router  = mustParseABI(routerABI)
	quoter  = mustParseABI(quoterABI)
	factory = mustParseABI(factoryABI)
	pool    = mustParseABI(poolABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ExactInputSingleParams is the router's exactInputSingle tuple.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int // uint24
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int // uint160, 0 for no limit
}

// QuoteExactInputSingleParams is the QuoterV2 input tuple.
type QuoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int // uint24
	SqrtPriceLimitX96 *big.Int // uint160, 0 for no limit
}

// PackAllowance encodes allowance(owner, spender).
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20.Pack("allowance", owner, spender)
}

// UnpackAllowance decodes the allowance return value.
func UnpackAllowance(ret []byte) (*big.Int, error) {
	vals, err := erc20.Unpack("allowance", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode allowance: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20.Pack("approve", spender, amount)
}

// PackBalanceOf encodes balanceOf(owner).
func PackBalanceOf(owner common.Address) ([]byte, error) {
	return erc20.Pack("balanceOf", owner)
}

// UnpackBalanceOf decodes the balanceOf return value.
func UnpackBalanceOf(ret []byte) (*big.Int, error) {
	vals, err := erc20.Unpack("balanceOf", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// PackDecimals encodes the ERC-20 decimals read.
func PackDecimals() ([]byte, error) {
	return erc20.Pack("decimals")
}

// UnpackDecimals decodes the decimals return value.
func UnpackDecimals(ret []byte) (uint8, error) {
	vals, err := erc20.Unpack("decimals", ret)
	if err != nil {
		return 0, fmt.Errorf("failed to decode decimals: %w", err)
	}
	return vals[0].(uint8), nil
}

// PackExactInputSingle encodes the router swap call.
func PackExactInputSingle(params ExactInputSingleParams) ([]byte, error) {
	return router.Pack("exactInputSingle", params)
}

// PackUnwrapWETH9 encodes unwrapWETH9(amountMinimum, recipient).
func PackUnwrapWETH9(amountMinimum *big.Int, recipient common.Address) ([]byte, error) {
	return router.Pack("unwrapWETH9", amountMinimum, recipient)
}

// PackMulticall encodes multicall(data[]) batching the given sub-calls.
func PackMulticall(calls [][]byte) ([]byte, error) {
	return router.Pack("multicall", calls)
}

// UnpackMulticall decodes a multicall payload back into its sub-calls.
func UnpackMulticall(data []byte) ([][]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("not a multicall payload")
	}
	method, err := router.MethodById(data[:4])
	if err != nil || method.Name != "multicall" {
		return nil, fmt.Errorf("not a multicall payload")
	}
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode multicall: %w", err)
	}
	return vals[0].([][]byte), nil
}

// PackQuoteExactInputSingle encodes the quoter dry-run call.
func PackQuoteExactInputSingle(params QuoteExactInputSingleParams) ([]byte, error) {
	return quoter.Pack("quoteExactInputSingle", params)
}

// UnpackQuoteAmountOut decodes the quoter's amountOut, discarding the gas and
// tick-crossing metadata.
func UnpackQuoteAmountOut(ret []byte) (*big.Int, error) {
	vals, err := quoter.Unpack("quoteExactInputSingle", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// PackGetPool encodes factory getPool(tokenA, tokenB, fee).
func PackGetPool(tokenA, tokenB common.Address, fee uint32) ([]byte, error) {
	return factory.Pack("getPool", tokenA, tokenB, big.NewInt(int64(fee)))
}

// UnpackGetPool decodes the resolved pool address.
func UnpackGetPool(ret []byte) (common.Address, error) {
	vals, err := factory.Unpack("getPool", ret)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode getPool: %w", err)
	}
	return vals[0].(common.Address), nil
}

// PackSlot0 encodes the pool slot0 read.
func PackSlot0() ([]byte, error) {
	return pool.Pack("slot0")
}

// UnpackSlot0 decodes slot0 into a PoolState.
func UnpackSlot0(ret []byte) (*types.PoolState, error) {
	vals, err := pool.Unpack("slot0", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode slot0: %w", err)
	}
	return &types.PoolState{
		SqrtPriceX96:               vals[0].(*big.Int),
		Tick:                       vals[1].(*big.Int),
		ObservationIndex:           vals[2].(uint16),
		ObservationCardinality:     vals[3].(uint16),
		ObservationCardinalityNext: vals[4].(uint16),
		FeeProtocol:                vals[5].(uint8),
		Unlocked:                   vals[6].(bool),
	}, nil
}
