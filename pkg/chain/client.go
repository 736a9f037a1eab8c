package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoAccount is returned by write operations when the client was opened
// without a private key.
var ErrNoAccount = errors.New("no account configured")

// receiptPollInterval is how often WaitReceipt re-checks for a mined receipt.
const receiptPollInterval = 2 * time.Second

// Backend is the chain capability consumed by the trading components: state
// reads, call simulation, transaction submission and receipt tracking.
// Submissions are fire-and-forget; progress is observed via WaitReceipt on the
// returned hash.
type Backend interface {
	ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Simulate(ctx context.Context, to common.Address, data []byte, value *big.Int) ([]byte, error)
	Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TokenBalance(ctx context.Context, token common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context) (*big.Int, error)
	Account() (common.Address, bool)
}

// Options configures a Client.
type Options struct {
	RPCURL     string
	PrivateKey string // hex, optional; read-only client without it
	ChainID    int64
	GasLimit   *uint64 // optional override, otherwise estimated
}

// Client implements Backend over an ethclient connection. All RPC calls pass
// through a rate limiter and a circuit breaker.
type Client struct {
	eth      *ethclient.Client
	chainID  *big.Int
	gasLimit *uint64

	privateKey *ecdsa.PrivateKey
	account    common.Address

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// Dial connects to the RPC endpoint and prepares the signing key, if any.
func Dial(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}

	eth, err := ethclient.Dial(opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	c := &Client{
		eth:      eth,
		chainID:  big.NewInt(opts.ChainID),
		gasLimit: opts.GasLimit,
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ChainRPC",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		log: logger,
	}

	if opts.PrivateKey != "" {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("failed to get public key")
		}
		c.privateKey = privateKey
		c.account = crypto.PubkeyToAddress(*publicKey)
	}

	return c, nil
}

// Account returns the connected account, if a key was configured.
func (c *Client) Account() (common.Address, bool) {
	return c.account, c.privateKey != nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// guard runs fn under the rate limiter and circuit breaker.
func (c *Client) guard(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.([]byte), nil
}

// ReadContract performs an eth_call against latest state.
func (c *Client) ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.guard(ctx, func() ([]byte, error) {
		return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
}

// Simulate dry-runs a write call from the connected account, returning the
// call's return data or the revert error.
func (c *Client) Simulate(ctx context.Context, to common.Address, data []byte, value *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{From: c.account, To: &to, Data: data, Value: value}
	return c.guard(ctx, func() ([]byte, error) {
		return c.eth.CallContract(ctx, msg, nil)
	})
}

// Submit signs and broadcasts a transaction, returning its hash immediately.
func (c *Client) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if c.privateKey == nil {
		return common.Hash{}, ErrNoAccount
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.account)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := c.estimateGas(ctx, to, data, value)

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.log.Info("transaction submitted",
		zap.String("hash", signedTx.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce))

	return signedTx.Hash(), nil
}

// estimateGas estimates gas with a 20% buffer, falling back to the configured
// limit, then a generous default, when estimation fails.
func (c *Client) estimateGas(ctx context.Context, to common.Address, data []byte, value *big.Int) uint64 {
	if c.gasLimit != nil {
		return *c.gasLimit
	}
	msg := ethereum.CallMsg{From: c.account, To: &to, Data: data, Value: value}
	estimated, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		c.log.Warn("gas estimation failed, using default", zap.Error(err))
		return 500000
	}
	return estimated * 120 / 100
}

// WaitReceipt polls until the transaction is mined or the context is done.
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TokenBalance reads the connected account's ERC-20 balance.
func (c *Client) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := PackBalanceOf(c.account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}
	ret, err := c.ReadContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return UnpackBalanceOf(ret)
}

// NativeBalance reads the connected account's native balance.
func (c *Client) NativeBalance(ctx context.Context) (*big.Int, error) {
	out, err := c.guard(ctx, func() ([]byte, error) {
		balance, err := c.eth.BalanceAt(ctx, c.account, nil)
		if err != nil {
			return nil, err
		}
		return balance.Bytes(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return new(big.Int).SetBytes(out), nil
}
