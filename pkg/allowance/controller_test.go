package allowance

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

	"dex-trader/pkg/types"
)

var (
	token   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	spender = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	owner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

// fakeBackend serves allowance reads from the allowances field and releases
// receipt waits through the mined channel.
type fakeBackend struct {
	mu          sync.Mutex
	allowance   *big.Int
	readErr     error
	simErr      error
	submitErr   error
	readCalls   int
	simCalls    int
	submitCalls int
	mined       chan struct{}
}

func newFakeBackend(allowance int64) *fakeBackend {
	return &fakeBackend{
		allowance: big.NewInt(allowance),
		mined:     make(chan struct{}),
	}
}

func (f *fakeBackend) ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return common.LeftPadBytes(f.allowance.Bytes(), 32), nil
}

func (f *fakeBackend) Simulate(ctx context.Context, to common.Address, data []byte, value *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simCalls++
	return nil, f.simErr
}

func (f *fakeBackend) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return common.HexToHash("0xdead"), nil
}

func (f *fakeBackend) WaitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	<-f.mined
	return &ethtypes.Receipt{TxHash: hash, Status: ethtypes.ReceiptStatusSuccessful}, nil
}

func (f *fakeBackend) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeBackend) NativeBalance(ctx context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeBackend) Account() (common.Address, bool) { return owner, true }

func (f *fakeBackend) setAllowance(v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowance = big.NewInt(v)
}

func (f *fakeBackend) counts() (reads, sims, submits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls, f.simCalls, f.submitCalls
}

func TestNativeBypass(t *testing.T) {
	backend := newFakeBackend(0)
	c := New(backend, types.NativeToken, spender, big.NewInt(1000), zap.NewNop())

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	reads, sims, submits := backend.counts()
	assert.Zero(t, reads)
	assert.Zero(t, sims)
	assert.Zero(t, submits)
}

func TestZeroRequiredBypass(t *testing.T) {
	backend := newFakeBackend(0)
	c := New(backend, token, spender, big.NewInt(0), zap.NewNop())

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	reads, _, submits := backend.counts()
	assert.Zero(t, reads)
	assert.Zero(t, submits)
}

func TestSatisfiedAllowance(t *testing.T) {
	backend := newFakeBackend(5000)
	c := New(backend, token, spender, big.NewInt(1000), zap.NewNop())

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, submits := backend.counts()
	assert.Zero(t, submits)
}

func TestUnsatisfiedSubmitsApproval(t *testing.T) {
	backend := newFakeBackend(0)
	c := New(backend, token, spender, big.NewInt(1000), zap.NewNop())

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, c.Pending())

	_, sims, submits := backend.counts()
	assert.Equal(t, 1, sims)
	assert.Equal(t, 1, submits)
}

func TestCheckIsIdempotent(t *testing.T) {
	backend := newFakeBackend(0)
	c := New(backend, token, spender, big.NewInt(1000), zap.NewNop())

	first, err := c.Check(context.Background())
	require.NoError(t, err)
	second, err := c.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	_, _, submits := backend.counts()
	assert.Equal(t, 1, submits, "a pending approval must not be resubmitted")
}

func TestFailClosedOnReadError(t *testing.T) {
	backend := newFakeBackend(0)
	backend.readErr = errors.New("rpc down")
	c := New(backend, token, spender, big.NewInt(1000), zap.NewNop())

	ok, err := c.Check(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)

	_, _, submits := backend.counts()
	assert.Zero(t, submits)
}

func TestConfirmationRefreshesAndFiresEvent(t *testing.T) {
	backend := newFakeBackend(0)
	c := New(backend, token, spender, big.NewInt(1000), zap.NewNop())

	confirmed := make(chan struct{})
	c.OnConfirmed(func() { close(confirmed) })

	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	// Approval mines and the chain now reflects the new allowance.
	backend.setAllowance(1000)
	close(backend.mined)

	select {
	case <-confirmed:
	case <-time.After(time.Second):
		t.Fatal("confirmation event never fired")
	}

	ok, err = c.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, c.Pending())
}

func TestStaleReadForcesRefresh(t *testing.T) {
	backend := newFakeBackend(0)
	c := New(backend, token, spender, big.NewInt(1000), zap.NewNop())

	_, err := c.Check(context.Background())
	require.NoError(t, err)
	close(backend.mined)

	require.Eventually(t, func() bool { return !c.Pending() }, time.Second, 10*time.Millisecond)

	// The receipt exists but the chain still reports the old allowance; every
	// check must re-read rather than trust the stale value.
	readsBefore, _, _ := backend.counts()
	ok, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	readsAfter, _, _ := backend.counts()
	assert.Greater(t, readsAfter, readsBefore)
}

func TestResetForcesReread(t *testing.T) {
	backend := newFakeBackend(5000)
	c := New(backend, token, spender, big.NewInt(1000), zap.NewNop())

	_, err := c.Check(context.Background())
	require.NoError(t, err)
	readsBefore, _, _ := backend.counts()

	c.Reset()
	_, err = c.Check(context.Background())
	require.NoError(t, err)
	readsAfter, _, _ := backend.counts()
	assert.Equal(t, readsBefore+1, readsAfter)
}
