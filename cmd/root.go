package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dex-trader/config"
	"dex-trader/pkg/chain"
)

var rootCmd = &cobra.Command{
	Use:   "dex-trader",
	Short: "A CLI for trading against a Uniswap V3 exchange",
	Long: `dex-trader is a command-line tool for interacting with a Uniswap V3
deployment: reading pool spot prices, quoting swaps, and executing trades with
automatic ERC-20 approval handling and native-asset unwrapping.

Examples:
  dex-trader price 0xA0b8...eB48 eth
  dex-trader quote 250 0xA0b8...eB48 eth
  dex-trader swap 0.5 eth 0xA0b8...eB48 --slippage 0.5
  dex-trader balance 0xA0b8...eB48
  dex-trader status <tx-hash>`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func newLogger(cmd *cobra.Command) *zap.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}

func newBackend(cfg *config.Config, logger *zap.Logger) (*chain.Client, error) {
	opts := chain.Options{
		RPCURL:     cfg.RPCURL,
		PrivateKey: cfg.PrivateKey,
		ChainID:    cfg.ChainID,
	}
	if cfg.GasLimit > 0 {
		opts.GasLimit = &cfg.GasLimit
	}
	return chain.Dial(opts, logger)
}

// parseToken resolves a command-line token argument: a hex contract address,
// or "eth"/"native" for the chain's native asset (the zero-address sentinel).
func parseToken(arg string) (common.Address, error) {
	switch strings.ToLower(arg) {
	case "eth", "native":
		return common.Address{}, nil
	}
	if !common.IsHexAddress(arg) {
		return common.Address{}, fmt.Errorf("invalid token address: %s", arg)
	}
	return common.HexToAddress(arg), nil
}

// tokenDecimals reads a token's decimals; the native asset has 18.
func tokenDecimals(ctx context.Context, backend chain.Backend, token common.Address) (int, error) {
	if token == (common.Address{}) {
		return 18, nil
	}
	data, err := chain.PackDecimals()
	if err != nil {
		return 0, err
	}
	ret, err := backend.ReadContract(ctx, token, data)
	if err != nil {
		return 0, fmt.Errorf("failed to read token decimals: %w", err)
	}
	dec, err := chain.UnpackDecimals(ret)
	if err != nil {
		return 0, err
	}
	return int(dec), nil
}

// parseAmount converts a human-readable amount into smallest units.
func parseAmount(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive: %s", amount)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// formatUnits renders a smallest-unit amount at the given decimal scale.
func formatUnits(amount *big.Int, decimals int) string {
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}
