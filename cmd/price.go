package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"dex-trader/config"
	"dex-trader/pkg/price"
)

var (
	priceFeeTier uint32
	watchPrice   bool
)

var priceCmd = &cobra.Command{
	Use:   "price <token-a> <token-b>",
	Short: "Read the live spot price of token B denominated in token A",
	Long: `Resolve the pool for a token pair, read its state and print the spot
price derived from the pool's fixed-point sqrt price.

Examples:
  dex-trader price 0xA0b8...eB48 eth
  dex-trader price 0xA0b8...eB48 0xC02a...6Cc2 --fee 500
  dex-trader price 0xA0b8...eB48 eth --watch`,
	Args: cobra.ExactArgs(2),
	Run:  runPrice,
}

func init() {
	rootCmd.AddCommand(priceCmd)

	priceCmd.Flags().Uint32Var(&priceFeeTier, "fee", 0, "Fee tier in hundredths of a bip (default from config)")
	priceCmd.Flags().BoolVarP(&watchPrice, "watch", "w", false, "Keep watching the price as pool state refreshes")
}

func runPrice(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	tokenA, err := parseToken(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	tokenB, err := parseToken(args[1])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// The pool holds the wrapped form of the native asset.
	wrapped := common.HexToAddress(cfg.WrappedNative)
	poolTokenA, poolTokenB := tokenA, tokenB
	if poolTokenA == (common.Address{}) {
		poolTokenA = wrapped
	}
	if poolTokenB == (common.Address{}) {
		poolTokenB = wrapped
	}

	logger := newLogger(cmd)
	backend, err := newBackend(cfg, logger)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer backend.Close()

	fee := cfg.FeeTier
	if priceFeeTier != 0 {
		fee = priceFeeTier
	}

	ctx := context.Background()
	reader := price.NewReader(backend, common.HexToAddress(cfg.Factory), logger)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Resolving pool..."
		s.Start()
	}

	poolAddr, err := reader.ResolvePool(ctx, poolTokenA, poolTokenB, fee)
	if err == nil {
		s.Suffix = " Reading pool state..."
	}

	var decimalsA, decimalsB int
	if err == nil {
		decimalsA, err = tokenDecimals(ctx, backend, poolTokenA)
	}
	if err == nil {
		decimalsB, err = tokenDecimals(ctx, backend, poolTokenB)
	}

	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	watcher := price.NewWatcher(reader, poolAddr, logger)
	if err := watcher.Start(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
	defer watcher.Stop()

	display := func() {
		state, ok := watcher.Current()
		if !ok {
			printError(fmt.Errorf("pool state unavailable"))
			return
		}
		spot := price.SpotPrice(state, poolTokenA, poolTokenB, decimalsA, decimalsB)
		value := decimal.NewFromBigInt(spot, -18)

		if jsonOutput {
			out := map[string]interface{}{
				"pool":           poolAddr.Hex(),
				"fee_tier":       fee,
				"sqrt_price_x96": state.SqrtPriceX96.String(),
				"tick":           state.Tick.String(),
				"price":          value.String(),
			}
			jsonData, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(jsonData))
			return
		}

		fmt.Printf("\n  Pool:  %s (fee tier %d)\n", color.CyanString(poolAddr.Hex()), fee)
		fmt.Printf("  Price: %s\n\n", color.GreenString(value.StringFixed(8)))
	}

	display()
	if !watchPrice {
		return
	}

	ticker := time.NewTicker(price.DefaultPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		display()
	}
}
