package commands

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

func TestCommandConstructors(t *testing.T) {
	tests := []struct {
		name string
		use  string
		new  func() string
	}{
		{"status", "status", func() string { return NewStatusCmd().Use }},
		{"approve", "approve <amount>", func() string { return NewApproveCmd().Use }},
		{"stake", "stake <amount>", func() string { return NewStakeCmd().Use }},
		{"withdraw", "withdraw <index>", func() string { return NewWithdrawCmd().Use }},
		{"emergency", "emergency-withdraw <index>", func() string { return NewEmergencyWithdrawCmd().Use }},
		{"watch", "watch", func() string { return NewWatchCmd().Use }},
		{"healthcheck", "healthcheck [user...]", func() string { return NewHealthcheckCmd().Use }},
		{"wallet", "wallet", func() string { return NewWalletCmd().Use }},
		{"config", "config", func() string { return NewConfigCmd().Use }},
		{"version", "version", func() string { return NewVersionCmd().Use }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.new(); got != tt.use {
				t.Errorf("Use mismatch: got %s, want %s", got, tt.use)
			}
		})
	}
}

func TestCommandFlags(t *testing.T) {
	stake := NewStakeCmd()
	for _, name := range []string{"lock", "approve"} {
		if stake.Flags().Lookup(name) == nil {
			t.Errorf("stake: --%s flag should exist", name)
		}
	}
	if NewEmergencyWithdrawCmd().Flags().Lookup("yes") == nil {
		t.Error("emergency-withdraw: --yes flag should exist")
	}
	if NewStatusCmd().Flags().Lookup("all") == nil {
		t.Error("status: --all flag should exist")
	}
	hc := NewHealthcheckCmd()
	for _, name := range []string{"json", "category", "concurrency"} {
		if hc.Flags().Lookup(name) == nil {
			t.Errorf("healthcheck: --%s flag should exist", name)
		}
	}
	if NewConfigCmd().Commands() == nil {
		t.Error("config should have subcommands")
	}
	if got := len(NewWalletCmd().Commands()); got != 5 {
		t.Errorf("wallet subcommands = %d, want 5", got)
	}
}

func TestRenderTablePlain(t *testing.T) {
	out := renderTablePlain([]string{"#", "Amount"}, [][]string{{"0", "100"}, {"1", "2.5"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "-") {
		t.Errorf("separator line = %q", lines[1])
	}
	if renderTablePlain(nil, nil) != "" {
		t.Error("no headers should render nothing")
	}
}

func TestFormatAddress(t *testing.T) {
	if got := FormatAddress("0x1234567890abcdef1234567890abcdef12345678"); got != "0x1234...5678" {
		t.Errorf("FormatAddress = %s", got)
	}
	if got := FormatAddress("0x1234"); got != "0x1234" {
		t.Errorf("short address changed: %s", got)
	}
}

func TestFormatTokens(t *testing.T) {
	v := new(big.Int).Mul(big.NewInt(125), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	if got := FormatTokens(v, 18, "MST"); got != "12.5 MST" {
		t.Errorf("FormatTokens = %q, want 12.5 MST", got)
	}
	if got := FormatTokens(v, 18, ""); got != "12.5" {
		t.Errorf("FormatTokens without symbol = %q", got)
	}
}

func TestParseIndex(t *testing.T) {
	if idx, err := parseIndex("3"); err != nil || idx != 3 {
		t.Errorf("parseIndex(3) = %d, %v", idx, err)
	}
	for _, bad := range []string{"-1", "x", ""} {
		if _, err := parseIndex(bad); err == nil {
			t.Errorf("parseIndex(%q) should fail", bad)
		}
	}
}

func TestHealthUsers(t *testing.T) {
	a := "0x1111111111111111111111111111111111111111"
	b := "0x2222222222222222222222222222222222222222"
	users, err := healthUsers([]string{a}, []string{b})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0] != common.HexToAddress(a) || users[1] != common.HexToAddress(b) {
		t.Errorf("users = %v", users)
	}
	if _, err := healthUsers([]string{"nope"}, nil); err == nil {
		t.Error("invalid address should fail")
	}
}

// openMockApp runs against the in-memory ledger with default settings
func openMockApp(t *testing.T) *app {
	t.Helper()
	MockMode = true
	loaded = nil
	t.Cleanup(func() { MockMode = false })

	a, err := openApp(context.Background(), true, currentConfig().Staking.SessionConfig())
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestMockStakeAndStatus(t *testing.T) {
	a := openMockApp(t)
	ctx := context.Background()

	if _, err := a.session.Orchestrator.Approve(ctx, "100"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := a.session.Orchestrator.Stake(ctx, "100", types.LockPeriodMedium); err != nil {
		t.Fatalf("Stake: %v", err)
	}

	view, err := a.status(ctx, false, time.Now())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !view.Mock {
		t.Error("view should report the mock ledger")
	}
	if len(view.Stakes) != 1 {
		t.Fatalf("stakes = %d, want 1", len(view.Stakes))
	}
	s := view.Stakes[0]
	if s.Amount != "100 MST" || s.Reward != "25 MST" || s.Total != "125 MST" {
		t.Errorf("stake row = %+v", s)
	}
	if s.Status != types.StakeStatusLocked || s.CanWithdraw {
		t.Errorf("fresh stake should be locked: %+v", s)
	}
	if view.TotalStaked != "100 MST" {
		t.Errorf("TotalStaked = %s", view.TotalStaked)
	}
	if !view.Sufficient {
		t.Error("funded mock ledger should be sufficient")
	}
}

func TestMockWriteReportsError(t *testing.T) {
	a := openMockApp(t)

	err := a.write(context.Background(), types.OpStake, "Staking", func(ctx context.Context) (common.Hash, error) {
		return a.session.Orchestrator.Stake(ctx, "100", types.LockPeriodShort)
	})
	if err == nil {
		t.Fatal("stake without allowance should fail")
	}
	if !strings.Contains(err.Error(), "stake") {
		t.Errorf("error = %v", err)
	}
}

func TestEnsureAllowanceSkipsWhenCovered(t *testing.T) {
	a := openMockApp(t)
	ctx := context.Background()

	approvals := 0
	a.session.Orchestrator.OnTransition(func(tr staking.Transition) {
		if tr.Flow == staking.FlowApprove && tr.To == types.PhaseConfirmed {
			approvals++
		}
	})

	if err := a.ensureAllowance(ctx, "50"); err != nil {
		t.Fatalf("ensureAllowance: %v", err)
	}
	if err := a.ensureAllowance(ctx, "20"); err != nil {
		t.Fatalf("ensureAllowance: %v", err)
	}
	if approvals != 1 {
		t.Errorf("approvals = %d, want 1", approvals)
	}
}

func TestEmergencySummary(t *testing.T) {
	a := openMockApp(t)
	amount := new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	now := time.Now()
	s := types.Stake{
		Amount:     amount,
		LockPeriod: types.LockPeriodLong,
		EndTime:    uint64(now.Add(3 * time.Minute).Unix()),
		Active:     true,
	}

	out := a.emergencySummary(s, staking.EmergencyProjection(amount), now)
	for _, want := range []string{"70 MST", "30 MST", "50 MST"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "matured") {
		t.Errorf("locked stake reported as matured:\n%s", out)
	}

	// Maturity is judged against the given time, not the last read-model update.
	out = a.emergencySummary(s, staking.EmergencyProjection(amount), now.Add(4*time.Minute))
	if !strings.Contains(out, "matured") {
		t.Errorf("matured stake should point at withdraw:\n%s", out)
	}
}
