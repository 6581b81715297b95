package staking

import (
	"context"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScheduler_NotifiesOncePerMaturity(t *testing.T) {
	l := newFakeLedger()
	l.addStake(tokens(10), 0, testNow.Add(-time.Second), true) // matured
	l.addStake(tokens(20), 1, testNow.Add(time.Minute), true)  // locked
	l.addStake(tokens(30), 2, testNow.Add(-time.Hour), false)  // withdrawn
	r := newTestReader(l, nil)
	if _, err := r.Refresh(context.Background(), FieldStakes); err != nil {
		t.Fatal(err)
	}

	c := &clock{now: testNow}
	m := newFakeMetrics()
	s := NewScheduler(r, SchedulerConfig{Interval: time.Second, Metrics: m, Now: c.Now})

	var notified []int
	s.OnMatured(func(mt Maturity) { notified = append(notified, mt.Stake.Index) })

	if got := s.Check(); len(got) != 1 || got[0].Stake.Index != 0 {
		t.Fatalf("first check = %+v, want stake 0", got)
	}
	if got := s.Check(); len(got) != 0 {
		t.Errorf("second check re-notified: %+v", got)
	}

	c.Advance(2 * time.Minute)
	if got := s.Check(); len(got) != 1 || got[0].Stake.Index != 1 {
		t.Fatalf("after advancing, check = %+v, want stake 1", got)
	}

	// A refresh materializes new values for the same stakes.
	if _, err := r.Refresh(context.Background(), FieldStakes); err != nil {
		t.Fatal(err)
	}
	if got := s.Check(); len(got) != 0 {
		t.Errorf("refresh caused duplicate notification: %+v", got)
	}

	if len(notified) != 2 || notified[0] != 0 || notified[1] != 1 {
		t.Errorf("notified = %v", notified)
	}
	if m.matured != 2 {
		t.Errorf("matured metric = %d", m.matured)
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	l := newFakeLedger()
	l.addStake(tokens(10), 0, testNow.Add(-time.Second), true)
	r := newTestReader(l, nil)
	if _, err := r.Refresh(context.Background(), FieldStakes); err != nil {
		t.Fatal(err)
	}
	s := NewScheduler(r, SchedulerConfig{Interval: 10 * time.Millisecond, Now: fixedNow})

	hits := make(chan Maturity, 4)
	s.OnMatured(func(m Maturity) { hits <- m })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	select {
	case m := <-hits:
		if m.Stake.Index != 0 {
			t.Errorf("matured stake = %d", m.Stake.Index)
		}
	case <-time.After(time.Second):
		t.Fatal("no maturity notification")
	}
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if len(hits) != 0 {
		t.Errorf("extra notifications after first: %d", len(hits))
	}
}
