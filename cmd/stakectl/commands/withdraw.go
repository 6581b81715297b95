package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

func NewWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <index>",
		Short: "Withdraw a matured stake with its reward",
		Long: `Withdraw the stake at <index> once its lock period has ended. The
principal and the full reward are paid out.

Use 'stakectl status' to list stake indexes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
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

			msg := fmt.Sprintf("Withdrawing stake #%d", idx)
			return a.write(ctx, types.OpWithdraw, msg, func(ctx context.Context) (common.Hash, error) {
				return a.session.Orchestrator.Withdraw(ctx, idx)
			})
		},
	}
}

func NewEmergencyWithdrawCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "emergency-withdraw <index>",
		Short: "Withdraw a stake before it matures, with a penalty",
		Long: `Withdraw the stake at <index> before its lock period ends. No reward is
paid and the ledger keeps a penalty of about 30% of the principal. The
amounts shown before confirming are an estimate; the ledger decides the
final split.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
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

			if !yes {
				ok, err := a.confirmEmergency(ctx, idx)
				if err != nil {
					return err
				}
				if !ok {
					Info("Emergency withdrawal canceled")
					return nil
				}
			}

			msg := fmt.Sprintf("Emergency withdrawing stake #%d", idx)
			return a.write(ctx, types.OpEmergencyWithdraw, msg, func(ctx context.Context) (common.Hash, error) {
				return a.session.Orchestrator.EmergencyWithdraw(ctx, idx)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// confirmEmergency shows the projected split and asks the user to go ahead.
// Without a terminal the user must pass --yes.
func (a *app) confirmEmergency(ctx context.Context, idx int) (bool, error) {
	if _, err := a.session.Reader.Refresh(ctx, staking.FieldStakes); err != nil {
		return false, fmt.Errorf("failed to read stakes: %w", err)
	}
	s, ok := a.session.Reader.Snapshot().Stake(idx)
	if !ok {
		return false, fmt.Errorf("stake #%d not found", idx)
	}
	if !staking.EligibleForEmergencyWithdrawal(s) {
		return false, fmt.Errorf("stake #%d was already withdrawn", idx)
	}

	p := staking.EmergencyProjection(s.Amount)
	summary := a.emergencySummary(s, p, time.Now())
	if !isInteractive() {
		fmt.Println(summary)
		return false, fmt.Errorf("refusing emergency withdrawal without a terminal; pass --yes to confirm")
	}

	var confirmed bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Emergency withdraw stake #%d?", idx)).
		Description(summary).
		Affirmative("Withdraw now").
		Negative("Cancel").
		Value(&confirmed).
		Run()
	if err != nil {
		return false, err
	}
	return confirmed, nil
}

func (a *app) emergencySummary(s types.Stake, p staking.Projection, now time.Time) string {
	text := fmt.Sprintf("Principal:        %s\nEstimated payout: %s\nEstimated penalty: %s\nForfeited reward: %s",
		a.tokens(s.Amount),
		a.tokens(p.Payout),
		a.tokens(p.Penalty),
		a.tokens(staking.Reward(s.Amount, s.LockPeriod)))
	if staking.ReadyForNormalWithdrawal(s, now) {
		text += "\nThis stake has matured; 'stakectl withdraw' pays the full reward."
	}
	if isTTY() {
		return StyleBoxWarning.Render(text)
	}
	return text
}
