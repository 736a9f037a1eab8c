package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dex-trader/config"
)

var statusWait time.Duration

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a submitted transaction",
	Long: `Look up a transaction's receipt and report whether it confirmed.

Examples:
  dex-trader status 0x1234...abcd
  dex-trader status 0x1234...abcd --wait 5m`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().DurationVar(&statusWait, "wait", 30*time.Second, "How long to wait for the receipt")
}

func runStatus(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	hash := common.HexToHash(args[0])

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

	ctx, cancel := context.WithTimeout(context.Background(), statusWait)
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking transaction status..."
		s.Start()
	}
	receipt, err := backend.WaitReceipt(ctx, hash)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		if ctx.Err() != nil {
			fmt.Printf("\nTransaction %s is still pending after %s.\n\n", hash.Hex(), statusWait)
			return
		}
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		out := map[string]interface{}{
			"hash":         receipt.TxHash.Hex(),
			"block_number": receipt.BlockNumber.Uint64(),
			"gas_used":     receipt.GasUsed,
			"status":       receipt.Status,
		}
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if receipt.Status == ethtypes.ReceiptStatusFailed {
		color.Red("\n✗ Transaction reverted")
	} else {
		color.Green("\n✓ Transaction confirmed")
	}
	fmt.Printf("  Hash:     %s\n", color.CyanString(receipt.TxHash.Hex()))
	fmt.Printf("  Block:    %d\n", receipt.BlockNumber.Uint64())
	fmt.Printf("  Gas used: %d\n\n", receipt.GasUsed)
}
