package staking

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ministake/ministake/pkg/types"
)

// StakeSource is the read half of the ledger. All calls are idempotent.
type StakeSource interface {
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner common.Address) (*big.Int, error)
	UserStakes(ctx context.Context, owner common.Address) ([]types.Stake, error)
	LedgerBalance(ctx context.Context) (*big.Int, error)
}

// Ledger is the full remote surface the orchestrator drives. Write methods
// return once the transaction is broadcast; a nil transaction means the
// write was applied synchronously (mock mode) and is already final.
type Ledger interface {
	StakeSource

	// Account returns the signing address, or the zero address when no
	// wallet is connected.
	Account() common.Address

	Approve(ctx context.Context, amount *big.Int) (*gethtypes.Transaction, error)
	Stake(ctx context.Context, amount *big.Int, period types.LockPeriod) (*gethtypes.Transaction, error)
	Withdraw(ctx context.Context, index int) (*gethtypes.Transaction, error)
	EmergencyWithdraw(ctx context.Context, index int) (*gethtypes.Transaction, error)

	// WaitConfirmed blocks until tx is mined with enough confirmations.
	// A reverted receipt must be reported as ErrTransactionReverted.
	WaitConfirmed(ctx context.Context, tx *gethtypes.Transaction) error
}

// Metrics receives staking telemetry. internal/metrics provides the
// Prometheus implementation.
type Metrics interface {
	ObserveRead(field string, d time.Duration, err error)
	ObserveWrite(op types.Operation, status types.TxStatus, d time.Duration)
	StakeMatured()
	DebugEvent(outcome string)
	SetSufficiency(obligation, balance *big.Int, sufficient bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRead(string, time.Duration, error)                 {}
func (nopMetrics) ObserveWrite(types.Operation, types.TxStatus, time.Duration) {}
func (nopMetrics) StakeMatured()                                            {}
func (nopMetrics) DebugEvent(string)                                        {}
func (nopMetrics) SetSufficiency(*big.Int, *big.Int, bool)                  {}

func orNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
