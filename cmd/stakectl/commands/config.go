package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ministake/ministake/internal/config"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long: `Show or create the configuration file.

Examples:
  stakectl config show
  stakectl config init --rpc https://rpc.example --token 0x... --staking 0x...`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, the config file, environment and flags are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(currentConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Printf("# %s\n", configPath())
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		rpcURL  string
		wsURL   string
		chainID int64
		token   string
		stakeAt string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if rpcURL != "" {
				cfg.Chain.RPCURL = rpcURL
			}
			if wsURL != "" {
				cfg.Chain.WSEndpoint = wsURL
			}
			if chainID != 0 {
				cfg.Chain.ChainID = chainID
			}
			cfg.Contracts.TokenAddress = token
			cfg.Contracts.StakingAddress = stakeAt

			if token != "" || stakeAt != "" {
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid configuration: %w", err)
				}
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			Success("Configuration written to " + path)
			if token == "" || stakeAt == "" {
				fmt.Println(Hint("Set contracts.token_address and contracts.staking_address before connecting."))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().StringVar(&rpcURL, "rpc", "", "JSON-RPC endpoint")
	cmd.Flags().StringVar(&wsURL, "ws", "", "WebSocket endpoint for event subscriptions")
	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "Chain ID")
	cmd.Flags().StringVar(&token, "token", "", "Token contract address")
	cmd.Flags().StringVar(&stakeAt, "staking", "", "Staking contract address")
	return cmd
}
