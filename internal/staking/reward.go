package staking

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/ministake/ministake/pkg/types"
)

// Scale is the fixed-point denominator for multipliers (1.0 == 1e18).
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

var (
	multiplierShort  = uint256.NewInt(1_100_000_000_000_000_000)
	multiplierMedium = uint256.NewInt(1_250_000_000_000_000_000)
	multiplierLong   = uint256.NewInt(1_500_000_000_000_000_000)
)

// EmergencyPenaltyPercent is the share of principal the reference ledger
// keeps on an emergency withdrawal. The ledger enforces the real value; this
// is only used for the local projection.
const EmergencyPenaltyPercent = 30

func multiplier(p types.LockPeriod) *uint256.Int {
	switch p {
	case types.LockPeriodShort:
		return multiplierShort
	case types.LockPeriodMedium:
		return multiplierMedium
	case types.LockPeriodLong:
		return multiplierLong
	default:
		return Scale
	}
}

// MultiplierFor returns the local reward multiplier for a lock period,
// scaled by 1e18. Unknown periods get 1.00.
func MultiplierFor(p types.LockPeriod) *big.Int {
	return multiplier(p).ToBig()
}

// Reward returns floor(amount * (multiplier - 1)) using 1e18 fixed point.
func Reward(amount *big.Int, p types.LockPeriod) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	bonus := new(uint256.Int).Sub(multiplier(p), Scale)

	if a, overflow := uint256.FromBig(amount); !overflow {
		if z, overflow := new(uint256.Int).MulDivOverflow(a, bonus, Scale); !overflow {
			return z.ToBig()
		}
	}
	// Out of uint256 range, only reachable with hand-built inputs.
	r := new(big.Int).Mul(amount, bonus.ToBig())
	return r.Quo(r, Scale.ToBig())
}

// TotalProjected returns amount + Reward(amount, lock period)
func TotalProjected(s types.Stake) *big.Int {
	if s.Amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Add(s.Amount, Reward(s.Amount, s.LockPeriod))
}

// StakeTotal is the per-stake breakdown shown next to each stake.
type StakeTotal struct {
	Original *big.Int
	Reward   *big.Int
	Total    *big.Int
}

// CalculateStakeTotal breaks a stake into principal, reward and total payout
func CalculateStakeTotal(s types.Stake) StakeTotal {
	original := new(big.Int)
	if s.Amount != nil {
		original.Set(s.Amount)
	}
	reward := Reward(original, s.LockPeriod)
	return StakeTotal{
		Original: original,
		Reward:   reward,
		Total:    new(big.Int).Add(original, reward),
	}
}

// LedgerPayout is the payout implied by the multiplier the ledger stored on
// the stake: amount * rewardMultiplier / 1e18. It can be compared with
// TotalProjected to spot a divergence between the two multipliers.
func LedgerPayout(s types.Stake) *big.Int {
	if s.Amount == nil || s.RewardMultiplier == nil {
		return new(big.Int)
	}
	p := new(big.Int).Mul(s.Amount, s.RewardMultiplier)
	return p.Quo(p, Scale.ToBig())
}

// Projection is the local estimate of an early withdrawal.
type Projection struct {
	Payout  *big.Int
	Penalty *big.Int
}

// EmergencyProjection splits amount into the 70% payout and 30% penalty an
// emergency withdrawal is expected to produce. It is an estimate only.
func EmergencyProjection(amount *big.Int) Projection {
	if amount == nil || amount.Sign() <= 0 {
		return Projection{Payout: new(big.Int), Penalty: new(big.Int)}
	}
	penalty := new(big.Int).Mul(amount, big.NewInt(EmergencyPenaltyPercent))
	penalty.Quo(penalty, big.NewInt(100))
	return Projection{
		Payout:  new(big.Int).Sub(amount, penalty),
		Penalty: penalty,
	}
}

// TotalMode selects which stakes count toward TotalStaked.
type TotalMode int

const (
	// ActiveOnly sums stakes that are still held by the ledger.
	ActiveOnly TotalMode = iota
	// IncludeWithdrawn sums every stake ever made.
	IncludeWithdrawn
)

// TotalStaked sums stake principal according to mode
func TotalStaked(stakes []types.Stake, mode TotalMode) *big.Int {
	total := new(big.Int)
	for _, s := range stakes {
		if s.Amount == nil || (mode == ActiveOnly && !s.Active) {
			continue
		}
		total.Add(total, s.Amount)
	}
	return total
}
