package quote

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	mu       sync.Mutex
	simCalls int
	simulate func(attempt int) ([]byte, error)
}

func (f *fakeBackend) Simulate(ctx context.Context, to common.Address, data []byte, value *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.simCalls++
	n := f.simCalls
	f.mu.Unlock()
	return f.simulate(n)
}

func (f *fakeBackend) ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeBackend) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	return common.Hash{}, errors.New("not implemented")
}
func (f *fakeBackend) WaitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeBackend) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeBackend) NativeBalance(ctx context.Context) (*big.Int, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeBackend) Account() (common.Address, bool) {
	return common.HexToAddress("0x1111111111111111111111111111111111111111"), true
}

// quoteReturn builds the 4-word quoteExactInputSingle return payload.
func quoteReturn(amountOut int64) []byte {
	out := make([]byte, 0, 128)
	for _, v := range []*big.Int{big.NewInt(amountOut), big.NewInt(0), big.NewInt(0), big.NewInt(0)} {
		out = append(out, common.LeftPadBytes(v.Bytes(), 32)...)
	}
	return out
}

var (
	tokenIn  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenOut = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func newTestEngine(backend *fakeBackend) *Engine {
	e := NewEngine(backend, common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"), 3000, zap.NewNop())
	e.retryDelay = time.Millisecond
	return e
}

func TestAmountOutNotReady(t *testing.T) {
	e := newTestEngine(&fakeBackend{})

	_, err := e.AmountOut(context.Background(), common.Address{}, tokenOut, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = e.AmountOut(context.Background(), tokenIn, common.Address{}, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = e.AmountOut(context.Background(), tokenIn, tokenOut, big.NewInt(0))
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = e.AmountOut(context.Background(), tokenIn, tokenOut, nil)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestAmountOut(t *testing.T) {
	backend := &fakeBackend{simulate: func(int) ([]byte, error) {
		return quoteReturn(12345), nil
	}}
	e := newTestEngine(backend)

	out, err := e.AmountOut(context.Background(), tokenIn, tokenOut, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(12345), out.Int64())
	assert.Equal(t, 1, backend.simCalls)
}

func TestAmountOutRetriesThenFails(t *testing.T) {
	backend := &fakeBackend{simulate: func(int) ([]byte, error) {
		return nil, errors.New("execution reverted")
	}}
	e := newTestEngine(backend)

	_, err := e.AmountOut(context.Background(), tokenIn, tokenOut, big.NewInt(1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	// Exactly two retries beyond the first attempt.
	assert.Equal(t, 3, backend.simCalls)
}

func TestAmountOutRecoversOnRetry(t *testing.T) {
	backend := &fakeBackend{simulate: func(attempt int) ([]byte, error) {
		if attempt < 3 {
			return nil, errors.New("execution reverted")
		}
		return quoteReturn(777), nil
	}}
	e := newTestEngine(backend)

	out, err := e.AmountOut(context.Background(), tokenIn, tokenOut, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(777), out.Int64())
	assert.Equal(t, 3, backend.simCalls)
}

func TestMinOut(t *testing.T) {
	tests := []struct {
		name      string
		amountOut int64
		slippage  float64
		want      int64
	}{
		{"zero slippage", 10000, 0, 10000},
		{"half percent", 10000, 0.5, 9950},
		{"one percent", 10000, 1, 9900},
		{"two decimals kept", 1000000, 0.25, 997500},
		{"third decimal truncated", 1000000, 0.255, 997400},
		{"full slippage", 10000, 100, 0},
		{"zero amount", 0, 5, 0},
		{"truncates down", 999, 1, 989},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinOut(big.NewInt(tt.amountOut), tt.slippage)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestMinOutNeverExceedsAmountOut(t *testing.T) {
	amounts := []int64{0, 1, 999, 10000, 123456789}
	slippages := []float64{0, 0.01, 0.5, 1, 25.55, 50, 99.99, 100}
	for _, a := range amounts {
		for _, s := range slippages {
			got := MinOut(big.NewInt(a), s)
			assert.LessOrEqual(t, got.Int64(), a, "amountOut=%d slippage=%v", a, s)
			assert.GreaterOrEqual(t, got.Int64(), int64(0))
		}
	}
}

func TestMinOutNilAmount(t *testing.T) {
	assert.Zero(t, MinOut(nil, 1).Sign())
}
