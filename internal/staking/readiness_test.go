package staking

import (
	"testing"
	"time"

	"github.com/ministake/ministake/pkg/types"
)

func stakeEnding(end time.Time, active bool) types.Stake {
	return types.Stake{
		Amount:    tokens(1),
		StartTime: uint64(end.Add(-time.Minute).Unix()),
		EndTime:   uint64(end.Unix()),
		Active:    active,
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name  string
		stake types.Stake
		want  types.StakeStatus
	}{
		{"locked", stakeEnding(testNow.Add(time.Minute), true), types.StakeStatusLocked},
		{"ready", stakeEnding(testNow.Add(-time.Second), true), types.StakeStatusReady},
		{"ready exactly at end", stakeEnding(testNow, true), types.StakeStatusReady},
		{"withdrawn before maturity", stakeEnding(testNow.Add(time.Hour), false), types.StakeStatusWithdrawn},
		{"withdrawn after maturity", stakeEnding(testNow.Add(-time.Hour), false), types.StakeStatusWithdrawn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.stake, testNow); got != tt.want {
				t.Errorf("Status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadyForNormalWithdrawal_MillisecondBoundary(t *testing.T) {
	s := stakeEnding(testNow, true)
	if !ReadyForNormalWithdrawal(s, testNow) {
		t.Error("stake should be ready when endTime*1000 == now")
	}
	// endTime*1000 == now+1
	if ReadyForNormalWithdrawal(s, testNow.Add(-time.Millisecond)) {
		t.Error("stake should not be ready one millisecond early")
	}
	if ReadyForNormalWithdrawal(stakeEnding(testNow.Add(-time.Hour), false), testNow) {
		t.Error("inactive stake is never ready")
	}
}

func TestEligibleForEmergencyWithdrawal(t *testing.T) {
	if !EligibleForEmergencyWithdrawal(stakeEnding(testNow.Add(time.Hour), true)) {
		t.Error("locked active stake should be eligible")
	}
	if !EligibleForEmergencyWithdrawal(stakeEnding(testNow.Add(-time.Hour), true)) {
		t.Error("matured active stake should be eligible")
	}
	if EligibleForEmergencyWithdrawal(stakeEnding(testNow, false)) {
		t.Error("withdrawn stake should not be eligible")
	}
}

func TestReadyStakeScenario(t *testing.T) {
	s := stakeEnding(testNow.Add(-time.Second), true)
	if Status(s, testNow) != types.StakeStatusReady {
		t.Errorf("status = %q", Status(s, testNow))
	}
	if !ReadyForNormalWithdrawal(s, testNow) || !EligibleForEmergencyWithdrawal(s) {
		t.Error("both withdrawal paths should be permitted")
	}
}

func TestTimeUntilReady(t *testing.T) {
	if d := TimeUntilReady(stakeEnding(testNow.Add(90*time.Second), true), testNow); d != 90*time.Second {
		t.Errorf("TimeUntilReady = %v, want 90s", d)
	}
	if d := TimeUntilReady(stakeEnding(testNow.Add(-time.Minute), true), testNow); d != 0 {
		t.Errorf("TimeUntilReady after maturity = %v, want 0", d)
	}
}
