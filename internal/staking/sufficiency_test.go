package staking

import (
	"math/big"
	"testing"

	"github.com/ministake/ministake/pkg/types"
)

func TestCheckSufficiency(t *testing.T) {
	stakes := []types.Stake{
		{Amount: tokens(100), LockPeriod: 1, Active: true}, // owes 125
		{Amount: tokens(10), LockPeriod: 0, Active: true},  // owes 11
	}

	r := CheckSufficiency(stakes, tokens(136))
	if r.TotalPrincipal.Cmp(tokens(110)) != 0 {
		t.Errorf("TotalPrincipal = %s", r.TotalPrincipal)
	}
	if r.TotalRewards.Cmp(tokens(26)) != 0 {
		t.Errorf("TotalRewards = %s", r.TotalRewards)
	}
	if r.TotalObligation.Cmp(tokens(136)) != 0 {
		t.Errorf("TotalObligation = %s", r.TotalObligation)
	}
	if !r.Sufficient {
		t.Error("balance equal to obligation should be sufficient")
	}
	if r.ActiveStakes != 2 {
		t.Errorf("ActiveStakes = %d", r.ActiveStakes)
	}

	short := CheckSufficiency(stakes, tokens(135))
	if short.Sufficient {
		t.Error("balance below obligation should be insufficient")
	}
	if short.Shortfall().Cmp(tokens(1)) != 0 {
		t.Errorf("Shortfall = %s, want 1e18", short.Shortfall())
	}
}

func TestCheckSufficiency_InactiveStakesIgnored(t *testing.T) {
	stakes := []types.Stake{{Amount: tokens(100), LockPeriod: 2, Active: true}}
	before := CheckSufficiency(stakes, tokens(150))

	withInactive := append(stakes, types.Stake{Amount: tokens(1000), LockPeriod: 2, Active: false})
	after := CheckSufficiency(withInactive, tokens(150))

	if before.Sufficient != after.Sufficient || before.TotalObligation.Cmp(after.TotalObligation) != 0 {
		t.Errorf("inactive stake changed the result: %+v vs %+v", before, after)
	}
}

func TestCheckSufficiency_NilBalance(t *testing.T) {
	if CheckSufficiency([]types.Stake{{Amount: big.NewInt(1), Active: true}}, nil).Sufficient {
		t.Error("nil balance must not cover a positive obligation")
	}
	if !CheckSufficiency(nil, nil).Sufficient {
		t.Error("no obligations should always be sufficient")
	}
}
