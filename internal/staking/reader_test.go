package staking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ministake/ministake/pkg/types"
)

func TestReader_RefreshLoadsAllFields(t *testing.T) {
	l := newFakeLedger()
	l.addStake(tokens(100), 1, testNow.Add(time.Minute), true)
	m := newFakeMetrics()
	r := newTestReader(l, m)

	changed, err := r.Refresh(context.Background(), FieldAll)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if changed != FieldAll {
		t.Errorf("changed = %s, want all", changed)
	}

	snap := r.Snapshot()
	if snap.TokenBalance.Cmp(tokens(1000)) != 0 {
		t.Errorf("TokenBalance = %s", snap.TokenBalance)
	}
	if len(snap.Stakes) != 1 || snap.Stakes[0].Amount.Cmp(tokens(100)) != 0 {
		t.Errorf("Stakes = %+v", snap.Stakes)
	}
	if snap.Loaded != FieldAll {
		t.Errorf("Loaded = %s", snap.Loaded)
	}
	if !snap.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v", snap.UpdatedAt)
	}
	if m.sufficient == nil || !*m.sufficient {
		t.Error("sufficiency gauge should be set after stakes load")
	}
}

func TestReader_NoChangeSuppressesNotification(t *testing.T) {
	l := newFakeLedger()
	l.addStake(tokens(5), 0, testNow, true)
	r := newTestReader(l, nil)

	notified := 0
	r.Subscribe(func(*Snapshot, Field) { notified++ })

	if _, err := r.Refresh(context.Background(), FieldAll); err != nil {
		t.Fatal(err)
	}
	first := r.Snapshot()

	changed, err := r.Refresh(context.Background(), FieldAll)
	if err != nil {
		t.Fatal(err)
	}
	if changed != FieldNone {
		t.Errorf("identical values reported as changed: %s", changed)
	}
	if notified != 1 {
		t.Errorf("subscriber called %d times, want 1", notified)
	}
	if r.Snapshot() != first {
		t.Error("snapshot should not be replaced when nothing changed")
	}
}

func TestReader_EmptyStakeListCountsAsLoaded(t *testing.T) {
	l := newFakeLedger()
	r := newTestReader(l, nil)

	changed, err := r.Refresh(context.Background(), FieldStakes)
	if err != nil {
		t.Fatal(err)
	}
	if changed != FieldStakes {
		t.Errorf("first load of an empty list should count as a change, got %s", changed)
	}
}

func TestReader_FailedReadKeepsCachedValue(t *testing.T) {
	l := newFakeLedger()
	m := newFakeMetrics()
	r := newTestReader(l, m)
	ctx := context.Background()

	if _, err := r.Refresh(ctx, FieldAll); err != nil {
		t.Fatal(err)
	}

	l.mu.Lock()
	l.balance = tokens(1)
	l.allowance = tokens(42)
	l.readErr[FieldTokenBalance] = errBoom
	l.mu.Unlock()

	changed, err := r.Refresh(ctx, FieldAll)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected read error, got %v", err)
	}
	if changed != FieldAllowance {
		t.Errorf("changed = %s, want allowance only", changed)
	}

	snap := r.Snapshot()
	if snap.TokenBalance.Cmp(tokens(1000)) != 0 {
		t.Errorf("failed read replaced cached balance: %s", snap.TokenBalance)
	}
	if snap.Allowance.Cmp(tokens(42)) != 0 {
		t.Errorf("independent read should still apply, allowance = %s", snap.Allowance)
	}
	if !errors.Is(r.LastError(FieldTokenBalance), errBoom) {
		t.Errorf("LastError = %v", r.LastError(FieldTokenBalance))
	}
	if m.readErrs != 1 {
		t.Errorf("read errors = %d, want 1", m.readErrs)
	}

	l.mu.Lock()
	delete(l.readErr, FieldTokenBalance)
	l.mu.Unlock()
	if _, err := r.Refresh(ctx, FieldTokenBalance); err != nil {
		t.Fatal(err)
	}
	if r.LastError(FieldTokenBalance) != nil {
		t.Error("LastError should clear after a successful read")
	}
}

func TestReader_FieldByFieldEquality(t *testing.T) {
	l := newFakeLedger()
	l.addStake(tokens(5), 0, testNow, true)
	r := newTestReader(l, nil)
	ctx := context.Background()
	if _, err := r.Refresh(ctx, FieldStakes); err != nil {
		t.Fatal(err)
	}

	l.mu.Lock()
	l.stakes[0].Active = false
	l.mu.Unlock()

	changed, err := r.Refresh(ctx, FieldStakes)
	if err != nil {
		t.Fatal(err)
	}
	if changed != FieldStakes {
		t.Errorf("flipping Active should be detected, changed = %s", changed)
	}
	if got := Status(r.Snapshot().Stakes[0], testNow); got != types.StakeStatusWithdrawn {
		t.Errorf("status = %q", got)
	}
}

func TestReader_RunServesInvalidate(t *testing.T) {
	l := newFakeLedger()
	r := newTestReader(l, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, time.Hour)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, func() bool { return r.Snapshot().Loaded == FieldAll })

	l.mu.Lock()
	l.allowance = tokens(77)
	l.mu.Unlock()
	r.Invalidate(FieldAllowance)

	waitFor(t, func() bool {
		a := r.Snapshot().Allowance
		return a != nil && a.Cmp(tokens(77)) == 0
	})
}

func TestField_String(t *testing.T) {
	if got := (FieldStakes | FieldAllowance).String(); got != "allowance,stakes" {
		t.Errorf("String = %q", got)
	}
	if FieldNone.String() != "none" {
		t.Errorf("FieldNone.String = %q", FieldNone.String())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
