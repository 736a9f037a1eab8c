package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dex-trader/config"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [token...]",
	Short: "Show the connected account's balances",
	Long: `Show the connected account's native balance, plus the balance of each
listed ERC-20 token.

Examples:
  dex-trader balance
  dex-trader balance 0xA0b8...eB48 0xC02a...6Cc2`,
	Run: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	backend, err := newBackend(cfg, newLogger(cmd))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer backend.Close()

	account, ok := backend.Account()
	if !ok {
		printError(fmt.Errorf("no account configured. Please set DEX_TRADER_PRIVATE_KEY"))
		os.Exit(1)
	}

	ctx := context.Background()
	native, err := backend.NativeBalance(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	balances := map[string]string{"native": formatUnits(native, 18)}
	for _, arg := range args {
		token, err := parseToken(arg)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		decimals, err := tokenDecimals(ctx, backend, token)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		balance, err := backend.TokenBalance(ctx, token)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		balances[token.Hex()] = formatUnits(balance, decimals)
	}

	if jsonOutput {
		out := map[string]interface{}{
			"account":  account.Hex(),
			"balances": balances,
		}
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Printf("\nAccount: %s\n\n", color.CyanString(account.Hex()))
	fmt.Printf("  %-44s %s\n", "native", balances["native"])
	for _, arg := range args {
		token, _ := parseToken(arg)
		fmt.Printf("  %-44s %s\n", token.Hex(), balances[token.Hex()])
	}
	fmt.Println()
}
