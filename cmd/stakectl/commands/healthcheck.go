package commands

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ministake/ministake/internal/healthcheck"
)

var (
	healthJSON        bool
	healthCategory    string
	healthConcurrency int
)

func NewHealthcheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck [user...]",
		Short: "Check the staking contract and its obligations",
		Long: `Run diagnostic checks against the token and staking contracts.

The health check covers:
- Token metadata (symbol, decimals)
- Ledger balance, treasury and total distributed
- Lock period durations and multipliers against the local reward table
- Whether the ledger balance covers every listed user's principal and rewards

Users come from the arguments and from staking.watch_users in the config.

Examples:
  stakectl healthcheck                         # Configured users
  stakectl healthcheck 0xabc... 0xdef...       # Specific users
  stakectl healthcheck --category config       # Only configuration checks
  stakectl healthcheck --json                  # Output results as JSON`,
		RunE: runHealthcheck,
	}

	cmd.Flags().BoolVar(&healthJSON, "json", false, "Output results as JSON")
	cmd.Flags().StringVar(&healthCategory, "category", "", "Filter checks by category (token, ledger, config, users)")
	cmd.Flags().IntVar(&healthConcurrency, "concurrency", 4, "Users fetched in parallel")

	return cmd
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var category healthcheck.Category
	if healthCategory != "" {
		c, ok := healthcheck.ParseCategory(healthCategory)
		if !ok {
			return fmt.Errorf("invalid category: %s (valid: token, ledger, config, users)", healthCategory)
		}
		category = c
	}

	cfg := currentConfig()
	users, err := healthUsers(args, cfg.Staking.WatchUsers)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	l, err := openLedger(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer l.Close()

	if len(users) == 0 && l.Account() != (common.Address{}) {
		users = append(users, l.Account())
	}

	h := healthcheck.New(l, healthcheck.Options{
		JSON:        healthJSON,
		Category:    category,
		Users:       users,
		Decimals:    cfg.Staking.TokenDecimals,
		Concurrency: healthConcurrency,
	}, os.Stdout, isTTY())

	report, err := h.Run(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Exit non-zero for scripts when something failed
	if !report.Summary.IsHealthy() && !healthJSON {
		os.Exit(1)
	}
	return nil
}

// healthUsers merges argument and configured addresses
func healthUsers(args, configured []string) ([]common.Address, error) {
	users := make([]common.Address, 0, len(args)+len(configured))
	for _, s := range append(append([]string{}, args...), configured...) {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid user address %q", s)
		}
		users = append(users, common.HexToAddress(s))
	}
	return users, nil
}
