package quote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"dex-trader/pkg/chain"
)

// ErrNotReady is returned while the quote inputs are incomplete: both token
// identities must be set and the input amount must be positive.
var ErrNotReady = errors.New("quote inputs not ready")

const (
	// quoteRetries is how many additional attempts follow a failed
	// simulation before the error is surfaced.
	quoteRetries = 2
	// defaultRetryDelay is the pause between quote attempts.
	defaultRetryDelay = 1000 * time.Millisecond
)

// Engine requests expected output amounts from the quoter contract via
// simulated calls.
type Engine struct {
	backend    chain.Backend
	quoter     common.Address
	fee        uint32
	retryDelay time.Duration
	log        *zap.Logger
}

func NewEngine(backend chain.Backend, quoter common.Address, fee uint32, logger *zap.Logger) *Engine {
	return &Engine{
		backend:    backend,
		quoter:     quoter,
		fee:        fee,
		retryDelay: defaultRetryDelay,
		log:        logger,
	}
}

// AmountOut simulates quoteExactInputSingle for the pair and returns the
// expected output amount. Failed simulations are retried up to quoteRetries
// additional times with retryDelay between attempts.
func (e *Engine) AmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if tokenIn == (common.Address{}) || tokenOut == (common.Address{}) {
		return nil, ErrNotReady
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrNotReady
	}

	data, err := chain.PackQuoteExactInputSingle(chain.QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(e.fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack quote data: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= quoteRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}

		ret, err := e.backend.Simulate(ctx, e.quoter, data, nil)
		if err != nil {
			lastErr = err
			e.log.Warn("quote simulation failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		return chain.UnpackQuoteAmountOut(ret)
	}

	return nil, fmt.Errorf("quote simulation failed after %d attempts: %w", quoteRetries+1, lastErr)
}

// AmountOutMin quotes the pair and derives the minimum acceptable output at
// the given slippage tolerance. Returns zero while the quote is unavailable.
func (e *Engine) AmountOutMin(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, slippagePercent float64) (*big.Int, error) {
	amountOut, err := e.AmountOut(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return big.NewInt(0), err
	}
	return MinOut(amountOut, slippagePercent), nil
}

// MinOut computes floor(amountOut * floor((100-slippagePercent)*100) / 10000),
// preserving two fractional digits of the slippage percentage before
// truncating. A nil amountOut yields zero.
func MinOut(amountOut *big.Int, slippagePercent float64) *big.Int {
	if amountOut == nil {
		return big.NewInt(0)
	}
	bps := int64(math.Floor((100 - slippagePercent) * 100))
	if bps <= 0 {
		return big.NewInt(0)
	}
	min := new(big.Int).Mul(amountOut, big.NewInt(bps))
	return min.Quo(min, big.NewInt(10000))
}
