package types

import (
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// LockPeriod is the lock option chosen at stake time. The ledger only
// accepts the three enumerated values.
type LockPeriod uint8

const (
	LockPeriodShort  LockPeriod = 0 // 1 minute, 10% reward
	LockPeriodMedium LockPeriod = 1 // 2 minutes, 25% reward
	LockPeriodLong   LockPeriod = 2 // 3 minutes, 50% reward
)

// LockPeriods lists every valid lock period in ledger order.
var LockPeriods = []LockPeriod{LockPeriodShort, LockPeriodMedium, LockPeriodLong}

// IsValid reports whether the ledger accepts this lock period
func (p LockPeriod) IsValid() bool {
	return p <= LockPeriodLong
}

// Duration returns the lock duration the reference ledger deployment uses.
// The authoritative value is whatever lockPeriods(i) returns on-chain.
func (p LockPeriod) Duration() time.Duration {
	switch p {
	case LockPeriodShort:
		return time.Minute
	case LockPeriodMedium:
		return 2 * time.Minute
	case LockPeriodLong:
		return 3 * time.Minute
	default:
		return 0
	}
}

// Label returns the display label used by the CLI
func (p LockPeriod) Label() string {
	switch p {
	case LockPeriodShort:
		return "1 Minute"
	case LockPeriodMedium:
		return "2 Minutes"
	case LockPeriodLong:
		return "3 Minutes"
	default:
		return fmt.Sprintf("Unknown (%d)", uint8(p))
	}
}

// ParseLockPeriod parses user input ("0", "1", "2") into a LockPeriod.
func ParseLockPeriod(s string) (LockPeriod, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid lock period %q", s)
	}
	p := LockPeriod(n)
	if !p.IsValid() {
		return 0, fmt.Errorf("invalid lock period %d: must be 0, 1 or 2", n)
	}
	return p, nil
}

// Stake mirrors one entry of getUserStakingInfo. Stakes are identified by
// their position in the user's stake list, which the ledger keeps stable.
type Stake struct {
	Index            int        `json:"index"`
	Amount           *big.Int   `json:"amount"`     // base units, uint128 range
	StartTime        uint64     `json:"start_time"` // unix seconds
	EndTime          uint64     `json:"end_time"`   // unix seconds, >= StartTime
	LockPeriod       LockPeriod `json:"lock_period"`
	RewardMultiplier *big.Int   `json:"reward_multiplier"` // as reported by the ledger, scaled by 1e18
	Active           bool       `json:"active"`
}

// EndTimeMillis returns the maturity timestamp in milliseconds
func (s Stake) EndTimeMillis() int64 {
	return int64(s.EndTime) * 1000
}

// Start returns the stake start as a time.Time
func (s Stake) Start() time.Time {
	return time.Unix(int64(s.StartTime), 0)
}

// End returns the stake maturity as a time.Time
func (s Stake) End() time.Time {
	return time.Unix(int64(s.EndTime), 0)
}

// Equal compares two stakes field by field. Each refresh materializes new
// values, so pointer identity is meaningless here.
func (s Stake) Equal(o Stake) bool {
	return s.Index == o.Index &&
		bigEqual(s.Amount, o.Amount) &&
		s.StartTime == o.StartTime &&
		s.EndTime == o.EndTime &&
		s.LockPeriod == o.LockPeriod &&
		bigEqual(s.RewardMultiplier, o.RewardMultiplier) &&
		s.Active == o.Active
}

// StakesEqual compares two stake lists element by element
func StakesEqual(a, b []Stake) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

// StakeStatus is the derived, user-visible state of a stake
type StakeStatus string

const (
	StakeStatusLocked    StakeStatus = "Locked"
	StakeStatusReady     StakeStatus = "Ready to Withdraw"
	StakeStatusWithdrawn StakeStatus = "Withdrawn"
)

// TxStatus is the coarse status of a logical write operation
type TxStatus string

const (
	TxStatusIdle    TxStatus = "idle"
	TxStatusPending TxStatus = "pending"
	TxStatusSuccess TxStatus = "success"
	TxStatusError   TxStatus = "error"
)

// FlowPhase is the fine-grained state of a write flow:
// Idle -> Validating -> AwaitingSignature -> Submitted -> Confirming -> {Confirmed | Failed} -> Idle
type FlowPhase string

const (
	PhaseIdle              FlowPhase = "idle"
	PhaseValidating        FlowPhase = "validating"
	PhaseAwaitingSignature FlowPhase = "awaiting_signature"
	PhaseSubmitted         FlowPhase = "submitted"
	PhaseConfirming        FlowPhase = "confirming"
	PhaseConfirmed         FlowPhase = "confirmed"
	PhaseFailed            FlowPhase = "failed"
)

// Operation names a write against the ledger
type Operation string

const (
	OpApprove           Operation = "approve"
	OpStake             Operation = "stake"
	OpWithdraw          Operation = "withdraw"
	OpEmergencyWithdraw Operation = "emergency_withdraw"
)

// WithdrawalKind distinguishes the two withdrawal paths
type WithdrawalKind string

const (
	WithdrawalNormal    WithdrawalKind = "normal"
	WithdrawalEmergency WithdrawalKind = "emergency"
)

// Operation returns the ledger write used for this kind of withdrawal
func (k WithdrawalKind) Operation() Operation {
	if k == WithdrawalEmergency {
		return OpEmergencyWithdraw
	}
	return OpWithdraw
}

// WithdrawalRequest is the single-slot token serializing withdrawals.
type WithdrawalRequest struct {
	Kind       WithdrawalKind `json:"kind"`
	StakeIndex int            `json:"stake_index"`
}

func (r WithdrawalRequest) String() string {
	return fmt.Sprintf("%s withdrawal of stake #%d", r.Kind, r.StakeIndex)
}

// WithdrawDebugEvent is the diagnostic event the ledger emits on withdrawal.
// Numeric fields are nil when the log did not carry them.
type WithdrawDebugEvent struct {
	User             string   `json:"user"`
	StakeID          *big.Int `json:"stake_id"`
	StakeAmount      *big.Int `json:"stake_amount"`
	RewardMultiplier *big.Int `json:"reward_multiplier"`
	CalculatedReward *big.Int `json:"calculated_reward"`
	TotalPayout      *big.Int `json:"total_payout"`
	ContractBalance  *big.Int `json:"contract_balance"`

	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
}

// MissingFields returns the names of numeric fields that are absent
func (e *WithdrawDebugEvent) MissingFields() []string {
	var missing []string
	if e.User == "" {
		missing = append(missing, "user")
	}
	fields := []struct {
		name string
		v    *big.Int
	}{
		{"stakeId", e.StakeID},
		{"stakeAmount", e.StakeAmount},
		{"rewardMultiplier", e.RewardMultiplier},
		{"calculatedReward", e.CalculatedReward},
		{"totalPayout", e.TotalPayout},
		{"contractBalance", e.ContractBalance},
	}
	for _, f := range fields {
		if f.v == nil {
			missing = append(missing, f.name)
		}
	}
	return missing
}
