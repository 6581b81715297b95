package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

// errReported marks a failure already printed to the user
var errReported = errors.New("operation failed")

func NewApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <amount>",
		Short: "Allow the staking contract to spend tokens",
		Long: `Set the allowance of the staking contract to <amount> whole tokens.
A stake can only be created once the allowance covers its amount.

Examples:
  stakectl approve 100
  stakectl approve 12.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx, true, currentConfig().Staking.SessionConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.write(ctx, types.OpApprove, "Approving "+args[0]+" tokens", func(ctx context.Context) (common.Hash, error) {
				return a.session.Orchestrator.Approve(ctx, args[0])
			})
		},
	}
}

// write runs one ledger write behind a spinner and reports the outcome
func (a *app) write(ctx context.Context, op types.Operation, msg string, fn func(context.Context) (common.Hash, error)) error {
	var hash common.Hash
	err := WithSpinner(msg, func() error {
		var err error
		hash, err = fn(ctx)
		return err
	})
	if err != nil {
		if hash != (common.Hash{}) {
			Info("Transaction: " + hash.Hex())
		}
		msg := a.session.Orchestrator.LastError()
		if msg == "" {
			msg = staking.ClassifyError(op, err)
		}
		Error(msg)
		return fmt.Errorf("%s: %w", op, errReported)
	}

	if hash == (common.Hash{}) {
		Success(fmt.Sprintf("%s applied to mock ledger", op))
	} else {
		Success(fmt.Sprintf("%s confirmed: %s", op, hash.Hex()))
	}
	return nil
}
