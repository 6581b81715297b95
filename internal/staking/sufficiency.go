package staking

import (
	"math/big"

	"github.com/ministake/ministake/pkg/types"
)

// SufficiencyReport compares what active stakes are owed against the ledger's
// token balance. It only covers the stakes passed in, never the whole ledger.
type SufficiencyReport struct {
	ActiveStakes    int
	TotalPrincipal  *big.Int
	TotalRewards    *big.Int
	TotalObligation *big.Int
	LedgerBalance   *big.Int
	Sufficient      bool
}

// Shortfall returns how much the ledger is missing, or zero.
func (r SufficiencyReport) Shortfall() *big.Int {
	if r.Sufficient {
		return new(big.Int)
	}
	return new(big.Int).Sub(r.TotalObligation, r.LedgerBalance)
}

// CheckSufficiency sums principal and local reward over active stakes and
// compares the total with ledgerBalance. A nil balance counts as zero.
func CheckSufficiency(stakes []types.Stake, ledgerBalance *big.Int) SufficiencyReport {
	r := SufficiencyReport{
		TotalPrincipal: new(big.Int),
		TotalRewards:   new(big.Int),
		LedgerBalance:  new(big.Int),
	}
	if ledgerBalance != nil {
		r.LedgerBalance.Set(ledgerBalance)
	}
	for _, s := range stakes {
		if !s.Active || s.Amount == nil {
			continue
		}
		r.ActiveStakes++
		r.TotalPrincipal.Add(r.TotalPrincipal, s.Amount)
		r.TotalRewards.Add(r.TotalRewards, Reward(s.Amount, s.LockPeriod))
	}
	r.TotalObligation = new(big.Int).Add(r.TotalPrincipal, r.TotalRewards)
	r.Sufficient = r.LedgerBalance.Cmp(r.TotalObligation) >= 0
	return r
}
