package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"dex-trader/pkg/allowance"
	"dex-trader/pkg/chain"
	"dex-trader/pkg/notify"
	"dex-trader/pkg/types"
)

var (
	ErrRouterNotSet        = errors.New("router address not configured")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrApprovalPending     = errors.New("approval transaction pending")
)

// Config carries the exchange deployment a trader operates against. Injected
// at construction so instances for different chains can coexist.
type Config struct {
	Router        common.Address
	WrappedNative common.Address
	FeeTier       uint32
}

// Trader sequences a swap: balance verification, allowance satisfaction,
// trade simulation, submission and receipt confirmation. One trade intent is
// active at a time.
type Trader struct {
	backend  chain.Backend
	cfg      Config
	notifier notify.Notifier
	log      *zap.Logger

	mu          sync.Mutex
	intent      *types.TradeIntent
	allow       *allowance.Controller
	sim         *types.SimulationResult
	inFlight    bool
	swapTx      *common.Hash
	swapReceipt *ethtypes.Receipt
	submitErr   error
	receiptErr  error
	balanceIn   *big.Int
	balanceOut  *big.Int
}

func New(backend chain.Backend, cfg Config, notifier notify.Notifier, logger *zap.Logger) *Trader {
	return &Trader{
		backend:  backend,
		cfg:      cfg,
		notifier: notifier,
		log:      logger,
	}
}

// SetIntent installs a new trade intent, rebuilding the allowance controller
// and discarding any previous simulation and submission state.
func (t *Trader) SetIntent(intent *types.TradeIntent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.intent = intent
	t.sim = nil
	t.swapTx = nil
	t.swapReceipt = nil
	t.submitErr = nil
	t.receiptErr = nil
	t.inFlight = false

	// Native input bypasses the allowance handshake via the sentinel.
	token := intent.TokenIn
	if intent.NativeIn {
		token = types.NativeToken
	}
	t.allow = allowance.New(t.backend, token, t.cfg.Router, intent.AmountIn, t.log)
	t.allow.OnConfirmed(t.continueAfterApproval)
}

// Allowance exposes the active intent's allowance controller.
func (t *Trader) Allowance() *allowance.Controller {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allow
}

// Start runs the trade once through its ordered preconditions, stopping at
// the first unmet one with a notification. On a false allowance check the
// approval is in flight and the trade resumes automatically on confirmation.
func (t *Trader) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.intent == nil {
		return fmt.Errorf("no trade intent set")
	}

	if t.cfg.Router == (common.Address{}) {
		t.notifier.Error("Router not configured", "")
		return ErrRouterNotSet
	}

	account, ok := t.backend.Account()
	if !ok {
		t.notifier.Error("No account connected", "")
		return chain.ErrNoAccount
	}

	balance, err := t.inputBalance(ctx)
	if err != nil {
		t.notifier.Error("Failed to read balance", err.Error())
		return err
	}
	if balance.Cmp(t.intent.AmountIn) < 0 {
		t.notifier.Error("Insufficient balance",
			fmt.Sprintf("have %s, need %s", balance, t.intent.AmountIn))
		return ErrInsufficientBalance
	}

	satisfied, err := t.allow.Check(ctx)
	if err != nil {
		t.notifier.Error("Approval failed", err.Error())
		return err
	}
	if !satisfied {
		t.notifier.Info("Approval pending",
			"the trade will continue once the approval confirms")
		return nil
	}

	if t.sim == nil {
		t.simulate(ctx, account)
	}
	if t.sim.Err != nil {
		msg := "unknown error"
		if t.sim.Err.Error() != "" {
			msg = t.sim.Err.Error()
		}
		t.notifier.Error("Trade simulation failed", msg)
		t.resetSubmission()
		return t.sim.Err
	}

	// A submission already in flight must not be duplicated, no matter how
	// often the approval trigger re-fires.
	if t.inFlight {
		return nil
	}
	t.inFlight = true

	hash, err := t.backend.Submit(ctx, t.sim.To, t.sim.Data, t.sim.Value)
	if err != nil {
		t.submitErr = err
		t.inFlight = false
		t.resetSubmission()
		t.notifier.Error("Swap submission failed", err.Error())
		return err
	}

	t.swapTx = &hash
	t.log.Info("swap submitted",
		zap.String("hash", hash.Hex()),
		zap.String("tokenIn", t.intent.TokenIn.Hex()),
		zap.String("tokenOut", t.intent.TokenOut.Hex()),
		zap.String("amountIn", t.intent.AmountIn.String()))
	t.notifier.Info("Swap submitted", hash.Hex())

	go t.awaitReceipt(hash)
	return nil
}

// simulate dry-runs the swap call for the current intent and records the
// result. Recomputed whenever the intent changes.
func (t *Trader) simulate(ctx context.Context, account common.Address) {
	to, data, value, err := t.buildSwapCall(account)
	if err != nil {
		t.sim = &types.SimulationResult{Err: err}
		return
	}
	ret, err := t.backend.Simulate(ctx, to, data, value)
	t.sim = &types.SimulationResult{To: to, Data: data, Value: value, Ret: ret, Err: err}
}

// buildSwapCall encodes the router call for the intent. A native output is a
// single multicall of the swap plus an unwrap of the wrapped-native proceeds,
// so the pair executes atomically in one transaction.
func (t *Trader) buildSwapCall(account common.Address) (common.Address, []byte, *big.Int, error) {
	tokenIn := t.intent.TokenIn
	value := big.NewInt(0)
	if t.intent.NativeIn {
		// The router wraps the attached value itself.
		tokenIn = t.cfg.WrappedNative
		value = t.intent.AmountIn
	}

	tokenOut := t.intent.TokenOut
	recipient := account
	if t.intent.NativeOut {
		// Swap into the router so unwrapWETH9 can pay the caller out.
		tokenOut = t.cfg.WrappedNative
		recipient = t.cfg.Router
	}

	swapData, err := chain.PackExactInputSingle(chain.ExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(int64(t.cfg.FeeTier)),
		Recipient:         recipient,
		AmountIn:          t.intent.AmountIn,
		AmountOutMinimum:  t.intent.AmountOutMin,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to pack swap data: %w", err)
	}

	if !t.intent.NativeOut {
		return t.cfg.Router, swapData, value, nil
	}

	unwrapData, err := chain.PackUnwrapWETH9(t.intent.AmountOutMin, account)
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to pack unwrap data: %w", err)
	}
	batched, err := chain.PackMulticall([][]byte{swapData, unwrapData})
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to pack multicall data: %w", err)
	}
	return t.cfg.Router, batched, value, nil
}

// continueAfterApproval advances the approve-then-swap flow: fired once per
// approval confirmation, it re-invokes Start when an error-free simulation is
// available and then resets the allowance controller. Start's in-flight guard
// makes re-entry harmless.
func (t *Trader) continueAfterApproval() {
	t.mu.Lock()
	account, ok := t.backend.Account()
	if !ok {
		t.mu.Unlock()
		return
	}
	if t.sim == nil {
		t.simulate(context.Background(), account)
	}
	ready := t.sim.Valid() && !t.inFlight
	al := t.allow
	t.mu.Unlock()

	if !ready {
		return
	}
	if err := t.Start(context.Background()); err != nil {
		t.log.Error("auto-continued trade failed", zap.Error(err))
	}
	al.Reset()
}

// awaitReceipt confirms the swap, notifies the outcome and performs the full
// post-trade reset.
func (t *Trader) awaitReceipt(hash common.Hash) {
	receipt, err := t.backend.WaitReceipt(context.Background(), hash)

	t.mu.Lock()
	if err != nil {
		t.receiptErr = err
	} else {
		t.swapReceipt = receipt
	}
	t.inFlight = false
	t.mu.Unlock()

	if err != nil {
		t.notifier.Error("Swap confirmation failed", err.Error())
		return
	}
	if receipt.Status == ethtypes.ReceiptStatusFailed {
		t.notifier.Error("Swap reverted", hash.Hex())
	} else {
		t.notifier.Success("Swap confirmed", hash.Hex())
	}
	t.ResetAfterTrade(context.Background())
}

// ResetAfterTrade clears submission state and refreshes both asset balances,
// as after any completed or aborted trade.
func (t *Trader) ResetAfterTrade(ctx context.Context) {
	t.mu.Lock()
	t.resetSubmission()
	t.sim = nil
	al := t.allow
	t.mu.Unlock()

	al.Reset()
	t.refreshBalances(ctx)
}

// resetSubmission drops pending-transaction tracking so a stale submission is
// never left dangling. The last receipt stays readable until the next intent.
// Caller holds the lock.
func (t *Trader) resetSubmission() {
	t.swapTx = nil
}

// Err surfaces the first error in precedence order: approval, simulation,
// submission, receipt.
func (t *Trader) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allow != nil {
		if err := t.allow.Err(); err != nil {
			return err
		}
	}
	if t.sim != nil && t.sim.Err != nil {
		return t.sim.Err
	}
	if t.submitErr != nil {
		return t.submitErr
	}
	return t.receiptErr
}

// Receipt returns the confirmed swap receipt, if any.
func (t *Trader) Receipt() *ethtypes.Receipt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.swapReceipt
}

func (t *Trader) inputBalance(ctx context.Context) (*big.Int, error) {
	if t.intent.NativeIn {
		return t.backend.NativeBalance(ctx)
	}
	return t.backend.TokenBalance(ctx, t.intent.TokenIn)
}

func (t *Trader) refreshBalances(ctx context.Context) {
	balIn, err := t.inputBalance(ctx)
	if err != nil {
		t.log.Warn("input balance refresh failed", zap.Error(err))
	}
	var balOut *big.Int
	if t.intent.NativeOut {
		balOut, err = t.backend.NativeBalance(ctx)
	} else {
		balOut, err = t.backend.TokenBalance(ctx, t.intent.TokenOut)
	}
	if err != nil {
		t.log.Warn("output balance refresh failed", zap.Error(err))
	}

	t.mu.Lock()
	if balIn != nil {
		t.balanceIn = balIn
	}
	if balOut != nil {
		t.balanceOut = balOut
	}
	t.mu.Unlock()
}
