package staking

import (
	"context"
	"testing"
	"time"

	"github.com/ministake/ministake/pkg/types"
)

func TestSession_StartStop(t *testing.T) {
	l := newFakeLedger()
	l.addStake(tokens(100), 1, testNow.Add(-time.Second), true)

	s := NewSession(l, SessionConfig{
		RefreshInterval:   time.Hour,
		ReadinessInterval: 10 * time.Millisecond,
		Now:               fixedNow,
	})
	matured := make(chan Maturity, 1)
	s.Scheduler.OnMatured(func(m Maturity) {
		select {
		case matured <- m:
		default:
		}
	})

	events := make(chan *types.WithdrawDebugEvent)
	s.Start(context.Background(), events)
	s.Start(context.Background(), events) // second start is a no-op

	waitFor(t, func() bool { return s.Reader.Snapshot().Loaded == FieldAll })

	select {
	case m := <-matured:
		if m.Stake.Index != 0 {
			t.Errorf("matured index = %d", m.Stake.Index)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not report the matured stake")
	}

	events <- completeEvent()
	waitFor(t, func() bool { return s.Observer.Count() == 1 })

	s.Stop()
	s.Stop()
}
