package staking

import (
	"time"

	"github.com/ministake/ministake/pkg/types"
)

// Status derives the user-visible status of a stake at now.
func Status(s types.Stake, now time.Time) types.StakeStatus {
	if !s.Active {
		return types.StakeStatusWithdrawn
	}
	if s.EndTimeMillis() > now.UnixMilli() {
		return types.StakeStatusLocked
	}
	return types.StakeStatusReady
}

// ReadyForNormalWithdrawal reports whether the stake is active and matured.
func ReadyForNormalWithdrawal(s types.Stake, now time.Time) bool {
	return s.Active && s.EndTimeMillis() <= now.UnixMilli()
}

// EligibleForEmergencyWithdrawal reports whether the stake can be pulled
// early. Maturity does not matter here, the ledger applies a penalty instead.
func EligibleForEmergencyWithdrawal(s types.Stake) bool {
	return s.Active
}

// TimeUntilReady returns how long until the stake matures, or 0 once it has.
func TimeUntilReady(s types.Stake, now time.Time) time.Duration {
	remaining := time.Duration(s.EndTimeMillis()-now.UnixMilli()) * time.Millisecond
	if remaining < 0 {
		return 0
	}
	return remaining
}
