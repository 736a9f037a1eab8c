package cmd

import (
	"bufio"
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dex-trader/config"
	"dex-trader/pkg/notify"
	"dex-trader/pkg/quote"
	"dex-trader/pkg/trade"
	"dex-trader/pkg/types"
)

var (
	swapSlippage float64
	noConfirm    bool
	swapTimeout  time.Duration
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <token-in> <token-out>",
	Short: "Execute a swap through the exchange router",
	Long: `Swap one asset for another. The trade is quoted first, the ERC-20
approval handshake runs automatically when needed, and a native-asset output
is unwrapped in the same transaction as the swap.

IMPORTANT:
  - A private key must be configured (DEX_TRADER_PRIVATE_KEY)
  - Use "eth" or "native" as a token argument for the chain's native asset

Examples:
  # Sell USDC for native ETH
  dex-trader swap 250 0xA0b8...eB48 eth

  # Buy USDC with native ETH, 1% slippage, no confirmation prompt
  dex-trader swap 0.5 eth 0xA0b8...eB48 --slippage 1 --yes`,
	Args: cobra.ExactArgs(3),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().Float64Var(&swapSlippage, "slippage", 0, "Slippage tolerance in percent (default from config)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().DurationVar(&swapTimeout, "timeout", 10*time.Minute, "How long to wait for confirmation")
}

func runSwap(cmd *cobra.Command, args []string) {
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
		slippage = swapSlippage
	}

	// Quote the trade to derive the minimum acceptable output.
	engine := quote.NewEngine(backend, common.HexToAddress(cfg.Quoter), cfg.FeeTier, logger)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Fetching quote..."
	s.Start()
	amountOut, err := engine.AmountOut(ctx, quoteIn, quoteOut, amountIn)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	minOut := quote.MinOut(amountOut, slippage)

	displaySwap(args, amountIn, amountOut, minOut, decimalsIn, decimalsOut, slippage)

	if !noConfirm {
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	trader := trade.New(backend, trade.Config{
		Router:        common.HexToAddress(cfg.Router),
		WrappedNative: wrapped,
		FeeTier:       cfg.FeeTier,
	}, notify.NewConsole(), logger)

	trader.SetIntent(types.InferTradeIntent(tokenIn, tokenOut, amountIn, minOut))

	if err := trader.Start(ctx); err != nil {
		os.Exit(1)
	}

	// The approval receipt wait and the swap receipt wait both run in the
	// background; block here until the trade settles one way or the other.
	deadline := time.Now().Add(swapTimeout)
	s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for confirmation..."
	s.Start()
	for time.Now().Before(deadline) {
		if trader.Receipt() != nil || trader.Err() != nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	s.Stop()

	if err := trader.Err(); err != nil {
		os.Exit(1)
	}
	if trader.Receipt() == nil {
		color.Yellow("\nStill pending after %s.", swapTimeout)
		fmt.Println("You can check the transaction later using:")
		color.Cyan("  dex-trader status <tx-hash>\n")
	}
}

func displaySwap(args []string, amountIn, amountOut, minOut *big.Int, decimalsIn, decimalsOut int, slippage float64) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      SWAP")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:     %s %s\n", formatUnits(amountIn, decimalsIn), color.YellowString(args[1]))
	fmt.Printf("  To:       ~%s %s\n", formatUnits(amountOut, decimalsOut), color.YellowString(args[2]))
	fmt.Printf("  Min out:  %s %s (%.2f%% slippage)\n", formatUnits(minOut, decimalsOut), args[2], slippage)

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
