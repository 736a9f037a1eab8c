package allowance

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"dex-trader/pkg/chain"
	"dex-trader/pkg/types"
)

// Controller tracks whether the spender's approved amount covers the required
// trade amount for one ERC-20 token, submitting an approval transaction when
// it does not. The native asset bypasses the whole mechanism.
//
// The zero value is not usable; construct with New. Safe for concurrent use:
// the receipt wait runs in a goroutine and mutates state under the mutex.
type Controller struct {
	backend  chain.Backend
	token    common.Address
	spender  common.Address
	required *big.Int
	native   bool
	log      *zap.Logger

	mu              sync.Mutex
	current         *big.Int // nil until read
	approvalTx      *common.Hash
	approvalReceipt *ethtypes.Receipt
	lastErr         error
	onConfirmed     func()
}

// New builds a controller for (token, spender, required). The native flag is
// inferred from the zero-address sentinel.
func New(backend chain.Backend, token, spender common.Address, required *big.Int, logger *zap.Logger) *Controller {
	return &Controller{
		backend:  backend,
		token:    token,
		spender:  spender,
		required: new(big.Int).Set(required),
		native:   token == types.NativeToken,
		log:      logger,
	}
}

// OnConfirmed registers a callback fired once each time an approval receipt
// arrives. Must be set before the first Check.
func (c *Controller) OnConfirmed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConfirmed = fn
}

// Check reports whether the allowance covers the required amount. When it
// does not, an approval transaction is simulated and submitted exactly once,
// and Check returns false until its receipt confirms and the re-read allowance
// covers the amount. Callers must not proceed to trade on a false return.
func (c *Controller) Check(ctx context.Context) (bool, error) {
	// Trivially satisfied: nothing to approve, no remote calls.
	if c.native || c.required.Sign() == 0 {
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	account, ok := c.backend.Account()
	if !ok {
		return false, chain.ErrNoAccount
	}

	// Unread allowance is unsatisfied: fail closed.
	if c.current == nil {
		if err := c.readAllowance(ctx, account); err != nil {
			c.lastErr = err
			return false, err
		}
	}

	// A confirmed approval with a still-unsatisfied allowance means the read
	// is stale; force a fresh one.
	if c.approvalReceipt != nil && c.current.Cmp(c.required) < 0 {
		if err := c.readAllowance(ctx, account); err != nil {
			c.lastErr = err
			return false, err
		}
	}

	if c.current.Cmp(c.required) >= 0 {
		return true, nil
	}

	// An approval is already in flight; checking again must not resubmit.
	if c.approvalTx != nil && c.approvalReceipt == nil {
		return false, nil
	}

	return false, c.submitApproval(ctx)
}

// readAllowance refreshes the cached allowance for (account, spender).
func (c *Controller) readAllowance(ctx context.Context, account common.Address) error {
	data, err := chain.PackAllowance(account, c.spender)
	if err != nil {
		return fmt.Errorf("failed to pack allowance data: %w", err)
	}
	ret, err := c.backend.ReadContract(ctx, c.token, data)
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	current, err := chain.UnpackAllowance(ret)
	if err != nil {
		return err
	}
	c.current = current
	return nil
}

// submitApproval dry-runs approve(spender, required) and, when the simulation
// is error-free, submits it and starts the receipt wait.
func (c *Controller) submitApproval(ctx context.Context) error {
	data, err := chain.PackApprove(c.spender, c.required)
	if err != nil {
		return fmt.Errorf("failed to pack approve data: %w", err)
	}

	if _, err := c.backend.Simulate(ctx, c.token, data, nil); err != nil {
		c.lastErr = err
		return fmt.Errorf("approve simulation failed: %w", err)
	}

	hash, err := c.backend.Submit(ctx, c.token, data, nil)
	if err != nil {
		c.lastErr = err
		return fmt.Errorf("failed to submit approval: %w", err)
	}

	c.approvalTx = &hash
	c.log.Info("approval submitted",
		zap.String("token", c.token.Hex()),
		zap.String("spender", c.spender.Hex()),
		zap.String("amount", c.required.String()),
		zap.String("hash", hash.Hex()))

	go c.awaitReceipt(hash)
	return nil
}

// awaitReceipt blocks until the approval is mined, then records the receipt,
// invalidates the cached allowance and fires the confirmation event.
func (c *Controller) awaitReceipt(hash common.Hash) {
	receipt, err := c.backend.WaitReceipt(context.Background(), hash)

	c.mu.Lock()
	var confirmed func()
	if err != nil {
		c.lastErr = err
		c.approvalTx = nil
	} else {
		c.approvalReceipt = receipt
		c.current = nil // stale after approval, force re-read
		confirmed = c.onConfirmed
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Error("approval receipt wait failed", zap.Error(err))
		return
	}
	c.log.Info("approval confirmed", zap.String("hash", hash.Hex()))
	if confirmed != nil {
		confirmed()
	}
}

// Reset clears the pending transaction state and forces an allowance re-read.
// Called after an approval completes its trade, or after an error or abort.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approvalTx = nil
	c.approvalReceipt = nil
	c.lastErr = nil
	c.current = nil
}

// Err returns the most recent approval error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Pending reports whether an approval is submitted but not yet confirmed.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approvalTx != nil && c.approvalReceipt == nil
}
