package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ministake/ministake/cmd/stakectl/commands"
)

var rootCmd = &cobra.Command{
	Use:   "stakectl",
	Short: "Stake tokens and track lock periods, rewards and withdrawals",
	Long: `stakectl talks to an ERC20 token and its staking contract.

It reads balances, allowance and stakes, submits approve, stake and
withdrawal transactions, watches stakes mature and checks that the ledger
holds enough tokens to pay what it owes.`,
	SilenceUsage:      true,
	PersistentPreRunE: commands.Setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Path to config file (default: ~/.ministake/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&commands.MockMode, "mock", false, "Use an in-memory ledger instead of the chain")
	rootCmd.PersistentFlags().StringVar(&commands.LogLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

func main() {
	rootCmd.AddCommand(commands.NewStatusCmd())
	rootCmd.AddCommand(commands.NewApproveCmd())
	rootCmd.AddCommand(commands.NewStakeCmd())
	rootCmd.AddCommand(commands.NewWithdrawCmd())
	rootCmd.AddCommand(commands.NewEmergencyWithdrawCmd())
	rootCmd.AddCommand(commands.NewWatchCmd())
	rootCmd.AddCommand(commands.NewHealthcheckCmd())
	rootCmd.AddCommand(commands.NewWalletCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())
	rootCmd.AddCommand(commands.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
