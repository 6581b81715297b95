package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ministake/ministake/pkg/types"
)

// Read-only calls used by the health check. None of them feed the
// read-model.

// TokenAddress returns the staked token's address
func (l *Ledger) TokenAddress() common.Address {
	return l.token.Address()
}

// StakingAddress returns the staking contract's address
func (l *Ledger) StakingAddress() common.Address {
	return l.staking.Address()
}

// Symbol returns the token ticker
func (l *Ledger) Symbol(ctx context.Context) (string, error) {
	return l.token.Symbol(ctx)
}

// Decimals returns the token decimals
func (l *Ledger) Decimals(ctx context.Context) (uint8, error) {
	return l.token.Decimals(ctx)
}

// LockPeriodDuration returns the lock duration configured on the ledger
func (l *Ledger) LockPeriodDuration(ctx context.Context, p types.LockPeriod) (time.Duration, error) {
	return l.staking.LockPeriodDuration(ctx, p)
}

// Multiplier returns the ledger's reward multiplier for p, scaled by 1e18
func (l *Ledger) Multiplier(ctx context.Context, p types.LockPeriod) (*big.Int, error) {
	return l.staking.Multiplier(ctx, p)
}

// TreasuryWallet returns the penalty recipient
func (l *Ledger) TreasuryWallet(ctx context.Context) (common.Address, error) {
	return l.staking.TreasuryWallet(ctx)
}

// RewardToken returns the token the staking contract pays rewards in
func (l *Ledger) RewardToken(ctx context.Context) (common.Address, error) {
	return l.staking.RewardToken(ctx)
}

// TotalDistributed returns the cumulative rewards paid by the ledger
func (l *Ledger) TotalDistributed(ctx context.Context) (*big.Int, error) {
	return l.staking.TotalDistributed(ctx)
}
