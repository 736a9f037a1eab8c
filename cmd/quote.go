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
	"github.com/spf13/cobra"

	"dex-trader/config"
	"dex-trader/pkg/quote"
)

var quoteSlippage float64

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token-in> <token-out>",
	Short: "Quote the expected output of a swap",
	Long: `Ask the exchange's quoter for the expected output amount of a swap,
and the minimum acceptable output at the configured slippage tolerance.

Examples:
  dex-trader quote 250 0xA0b8...eB48 eth
  dex-trader quote 0.5 eth 0xA0b8...eB48 --slippage 1`,
	Args: cobra.ExactArgs(3),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().Float64Var(&quoteSlippage, "slippage", 0, "Slippage tolerance in percent (default from config)")
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	tokenIn, err := parseToken(args[1])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	tokenOut, err := parseToken(args[2])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	logger := newLogger(cmd)
	backend, err := newBackend(cfg, logger)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer backend.Close()

	// The quoter only understands the wrapped form of the native asset.
	wrapped := common.HexToAddress(cfg.WrappedNative)
	quoteIn, quoteOut := tokenIn, tokenOut
	if quoteIn == (common.Address{}) {
		quoteIn = wrapped
	}
	if quoteOut == (common.Address{}) {
		quoteOut = wrapped
	}

	ctx := context.Background()
	decimalsIn, err := tokenDecimals(ctx, backend, quoteIn)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	decimalsOut, err := tokenDecimals(ctx, backend, quoteOut)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	amountIn, err := parseAmount(args[0], decimalsIn)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	slippage := cfg.SlippagePercent
	if cmd.Flags().Changed("slippage") {
		slippage = quoteSlippage
	}

	engine := quote.NewEngine(backend, common.HexToAddress(cfg.Quoter), cfg.FeeTier, logger)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	amountOut, err := engine.AmountOut(ctx, quoteIn, quoteOut, amountIn)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	minOut := quote.MinOut(amountOut, slippage)

	if jsonOutput {
		out := map[string]interface{}{
			"amount_in":        amountIn.String(),
			"amount_out":       amountOut.String(),
			"amount_out_min":   minOut.String(),
			"slippage_percent": slippage,
			"fee_tier":         cfg.FeeTier,
		}
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Printf("\n  In:       %s %s\n", formatUnits(amountIn, decimalsIn), args[1])
	fmt.Printf("  Out:      ~%s %s\n", color.GreenString(formatUnits(amountOut, decimalsOut)), args[2])
	fmt.Printf("  Min out:  %s %s (%.2f%% slippage)\n\n", formatUnits(minOut, decimalsOut), args[2], slippage)
}
