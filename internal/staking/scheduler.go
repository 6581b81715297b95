package staking

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/pkg/types"
)

// DefaultReadinessInterval is how often the scheduler scans stakes.
const DefaultReadinessInterval = 30 * time.Second

// Maturity is emitted once when a stake crosses its end time.
type Maturity struct {
	Stake     types.Stake
	MaturedAt time.Time
	Detected  time.Time
}

// SnapshotSource supplies the current read-model
type SnapshotSource interface {
	Snapshot() *Snapshot
}

// maturityKey identifies one maturity crossing. Index alone is not enough:
// the same index always refers to the same deposit, but keying on the
// immutable fields keeps a refreshed copy from firing twice.
type maturityKey struct {
	index     int
	startTime uint64
	endTime   uint64
	amount    string
}

func keyOf(s types.Stake) maturityKey {
	amount := "0"
	if s.Amount != nil {
		amount = s.Amount.String()
	}
	return maturityKey{index: s.Index, startTime: s.StartTime, endTime: s.EndTime, amount: amount}
}

// SchedulerConfig configures a Scheduler
type SchedulerConfig struct {
	Interval time.Duration
	Decimals uint8
	Metrics  Metrics
	Now      func() time.Time
}

// Scheduler periodically re-evaluates readiness and notifies each maturity
// exactly once per process lifetime.
type Scheduler struct {
	src     SnapshotSource
	cfg     SchedulerConfig
	metrics Metrics

	mu     sync.Mutex
	seen   map[maturityKey]struct{}
	notify []func(Maturity)
}

// NewScheduler creates a Scheduler scanning src
func NewScheduler(src SnapshotSource, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReadinessInterval
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = DefaultDecimals
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		src:     src,
		cfg:     cfg,
		metrics: orNop(cfg.Metrics),
		seen:    make(map[maturityKey]struct{}),
	}
}

// OnMatured registers fn for maturity notifications
func (s *Scheduler) OnMatured(fn func(Maturity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = append(s.notify, fn)
}

// Check scans the current snapshot once and returns the newly matured stakes.
func (s *Scheduler) Check() []Maturity {
	snap := s.src.Snapshot()
	if snap == nil {
		return nil
	}
	now := s.cfg.Now()

	s.mu.Lock()
	var fresh []Maturity
	for _, st := range snap.Stakes {
		if !ReadyForNormalWithdrawal(st, now) {
			continue
		}
		k := keyOf(st)
		if _, ok := s.seen[k]; ok {
			continue
		}
		s.seen[k] = struct{}{}
		fresh = append(fresh, Maturity{Stake: st, MaturedAt: st.End(), Detected: now})
	}
	notify := append([]func(Maturity){}, s.notify...)
	s.mu.Unlock()

	for _, m := range fresh {
		s.metrics.StakeMatured()
		logging.Info("stake ready for withdrawal",
			logging.Component("readiness-scheduler"),
			logging.StakeIndex(m.Stake.Index),
			"amount", FormatAmount(m.Stake.Amount, s.cfg.Decimals),
			"lock_period", m.Stake.LockPeriod.Label(),
			"reward", FormatAmount(Reward(orZero(m.Stake.Amount), m.Stake.LockPeriod), s.cfg.Decimals),
			"matured_at", m.MaturedAt.Format(time.RFC3339))
		for _, fn := range notify {
			fn(m)
		}
	}
	return fresh
}

// Run calls Check immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.Check()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
