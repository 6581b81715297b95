package staking

import (
	"math/big"
	"testing"

	"github.com/ministake/ministake/pkg/types"
)

func TestMultiplierFor(t *testing.T) {
	tests := []struct {
		period types.LockPeriod
		want   string
	}{
		{0, "1100000000000000000"},
		{1, "1250000000000000000"},
		{2, "1500000000000000000"},
		{3, "1000000000000000000"},
		{255, "1000000000000000000"},
	}
	for _, tt := range tests {
		if got := MultiplierFor(tt.period).String(); got != tt.want {
			t.Errorf("MultiplierFor(%d) = %s, want %s", tt.period, got, tt.want)
		}
	}
}

func TestReward(t *testing.T) {
	tests := []struct {
		name   string
		amount *big.Int
		period types.LockPeriod
		want   *big.Int
	}{
		{"100 tokens lock 1", tokens(100), 1, tokens(25)},
		{"100 tokens lock 0", tokens(100), 0, tokens(10)},
		{"100 tokens lock 2", tokens(100), 2, tokens(50)},
		{"unknown period earns nothing", tokens(100), 7, big.NewInt(0)},
		{"floor of tiny amount", big.NewInt(3), 0, big.NewInt(0)},
		{"floor rounds down", big.NewInt(19), 1, big.NewInt(4)},
		{"zero", big.NewInt(0), 2, big.NewInt(0)},
		{"nil", nil, 2, big.NewInt(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reward(tt.amount, tt.period); got.Cmp(tt.want) != 0 {
				t.Errorf("Reward = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReward_BeyondUint256(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 300)
	want := new(big.Int).Quo(huge, big.NewInt(2))
	if got := Reward(huge, types.LockPeriodLong); got.Cmp(want) != 0 {
		t.Errorf("Reward(2^300, long) = %s, want %s", got, want)
	}
}

func TestTotalProjected(t *testing.T) {
	s := types.Stake{Amount: tokens(100), LockPeriod: 1}
	if got := TotalProjected(s); got.Cmp(tokens(125)) != 0 {
		t.Errorf("TotalProjected = %s, want 125e18", got)
	}
}

func TestCalculateStakeTotal(t *testing.T) {
	total := CalculateStakeTotal(types.Stake{Amount: tokens(40), LockPeriod: 2})
	if total.Original.Cmp(tokens(40)) != 0 || total.Reward.Cmp(tokens(20)) != 0 || total.Total.Cmp(tokens(60)) != 0 {
		t.Errorf("CalculateStakeTotal = %+v", total)
	}
}

func TestLedgerPayout(t *testing.T) {
	s := types.Stake{Amount: tokens(100), RewardMultiplier: MultiplierFor(1)}
	if got := LedgerPayout(s); got.Cmp(tokens(125)) != 0 {
		t.Errorf("LedgerPayout = %s, want 125e18", got)
	}
	if got := LedgerPayout(types.Stake{Amount: tokens(1)}); got.Sign() != 0 {
		t.Errorf("LedgerPayout without multiplier = %s, want 0", got)
	}
}

func TestEmergencyProjection(t *testing.T) {
	p := EmergencyProjection(tokens(100))
	if p.Payout.Cmp(tokens(70)) != 0 {
		t.Errorf("payout = %s, want 70e18", p.Payout)
	}
	if p.Penalty.Cmp(tokens(30)) != 0 {
		t.Errorf("penalty = %s, want 30e18", p.Penalty)
	}

	odd := EmergencyProjection(big.NewInt(7))
	if new(big.Int).Add(odd.Payout, odd.Penalty).Int64() != 7 {
		t.Errorf("payout + penalty must equal amount, got %s + %s", odd.Payout, odd.Penalty)
	}
}

func TestTotalStaked(t *testing.T) {
	stakes := []types.Stake{
		{Amount: tokens(10), Active: true},
		{Amount: tokens(20), Active: false},
		{Amount: tokens(5), Active: true},
	}
	if got := TotalStaked(stakes, ActiveOnly); got.Cmp(tokens(15)) != 0 {
		t.Errorf("ActiveOnly = %s, want 15e18", got)
	}
	if got := TotalStaked(stakes, IncludeWithdrawn); got.Cmp(tokens(35)) != 0 {
		t.Errorf("IncludeWithdrawn = %s, want 35e18", got)
	}
}
