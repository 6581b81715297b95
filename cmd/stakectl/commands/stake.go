package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

func NewStakeCmd() *cobra.Command {
	var (
		lock    string
		approve bool
	)

	cmd := &cobra.Command{
		Use:   "stake <amount>",
		Short: "Lock tokens in a new stake",
		Long: `Create a stake of <amount> whole tokens locked for one of the three
lock periods. The reward is fixed by the lock period:

  0  1 minute   +10%
  1  2 minutes  +25%
  2  3 minutes  +50%

The durations are those of the reference deployment; 'stakectl healthcheck'
compares them with the contract.

Examples:
  stakectl stake 100 --lock 1
  stakectl stake 100 --lock 2 --approve   # Approve first if needed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := types.ParseLockPeriod(lock)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, true, currentConfig().Staking.SessionConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			amount := args[0]
			if approve {
				if err := a.ensureAllowance(ctx, amount); err != nil {
					return err
				}
			}

			if wei, err := staking.ParseAmount(amount, a.decimals()); err == nil {
				total := staking.CalculateStakeTotal(types.Stake{Amount: wei, LockPeriod: period})
				Info(fmt.Sprintf("Reward at maturity: %s (total %s)", a.tokens(total.Reward), a.tokens(total.Total)))
			}

			msg := fmt.Sprintf("Staking %s tokens for %s", amount, period.Label())
			return a.write(ctx, types.OpStake, msg, func(ctx context.Context) (common.Hash, error) {
				return a.session.Orchestrator.Stake(ctx, amount, period)
			})
		},
	}

	cmd.Flags().StringVarP(&lock, "lock", "l", "0", "Lock period (0, 1 or 2)")
	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the amount first when the allowance is short")
	return cmd
}

// ensureAllowance approves amount unless the current allowance covers it
func (a *app) ensureAllowance(ctx context.Context, amount string) error {
	wei, err := staking.ParseAmount(amount, a.decimals())
	if err != nil {
		Error(staking.ClassifyError(types.OpStake, err))
		return fmt.Errorf("%s: %w", types.OpStake, errReported)
	}
	if _, err := a.session.Reader.Refresh(ctx, staking.FieldAllowance); err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	if allowance := a.session.Reader.Snapshot().Allowance; allowance != nil && allowance.Cmp(wei) >= 0 {
		return nil
	}
	return a.write(ctx, types.OpApprove, "Approving "+amount+" tokens", func(ctx context.Context) (common.Hash, error) {
		return a.session.Orchestrator.Approve(ctx, amount)
	})
}

// parseIndex parses a stake index argument
func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid stake index %q", s)
	}
	return idx, nil
}
