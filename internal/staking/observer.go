package staking

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/pkg/types"
)

// Debug event outcomes reported to metrics.
const (
	EventDropped    = "dropped"
	EventForeign    = "foreign"
	EventReconciled = "reconciled"
	EventMismatch   = "mismatch"
)

// Reconciliation compares a WithdrawDebug event with what the client expected.
type Reconciliation struct {
	Event *types.WithdrawDebugEvent

	// StakeKnown is false when the stake id is not in the cached stake list.
	StakeKnown     bool
	ExpectedAmount *big.Int
	ExpectedReward *big.Int
	ExpectedPayout *big.Int

	AmountMatches bool
	RewardMatches bool
	PayoutMatches bool
	// Solvent reports contractBalance >= totalPayout as seen by the ledger.
	Solvent bool
}

// Consistent reports whether every comparison matched
func (r *Reconciliation) Consistent() bool {
	return r.StakeKnown && r.AmountMatches && r.RewardMatches && r.PayoutMatches && r.Solvent
}

// DebugObserver validates and reconciles WithdrawDebug events. It is purely
// diagnostic and never changes the read-model or any flow.
type DebugObserver struct {
	user     common.Address
	src      SnapshotSource
	decimals uint8
	metrics  Metrics

	mu   sync.Mutex
	last *Reconciliation
	seen int
}

// NewDebugObserver creates an observer for user's events
func NewDebugObserver(user common.Address, src SnapshotSource, decimals uint8, m Metrics) *DebugObserver {
	if decimals == 0 {
		decimals = DefaultDecimals
	}
	return &DebugObserver{user: user, src: src, decimals: decimals, metrics: orNop(m)}
}

// Last returns the most recent reconciliation, or nil
func (o *DebugObserver) Last() *Reconciliation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Count returns how many events were reconciled
func (o *DebugObserver) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seen
}

// Handle validates ev and reconciles it against the cached stake. Events
// with any missing field are dropped whole.
func (o *DebugObserver) Handle(ev *types.WithdrawDebugEvent) (*Reconciliation, error) {
	if ev == nil {
		o.metrics.DebugEvent(EventDropped)
		return nil, ErrIncompleteEvent
	}
	if missing := ev.MissingFields(); len(missing) > 0 {
		o.metrics.DebugEvent(EventDropped)
		logging.Warn("dropping incomplete WithdrawDebug event",
			logging.Component("debug-observer"),
			logging.TxHash(ev.TxHash),
			"missing", strings.Join(missing, ","))
		return nil, ErrIncompleteEvent
	}
	if !strings.EqualFold(ev.User, o.user.Hex()) {
		o.metrics.DebugEvent(EventForeign)
		logging.Debug("ignoring WithdrawDebug for another account", "user", ev.User)
		return nil, nil
	}

	rec := &Reconciliation{
		Event:   ev,
		Solvent: ev.ContractBalance.Cmp(ev.TotalPayout) >= 0,
	}

	var stake types.Stake
	if ev.StakeID.IsInt64() {
		if snap := o.src.Snapshot(); snap != nil {
			stake, rec.StakeKnown = snap.Stake(int(ev.StakeID.Int64()))
		}
	}
	if rec.StakeKnown {
		total := CalculateStakeTotal(stake)
		rec.ExpectedAmount = total.Original
		rec.ExpectedReward = total.Reward
		rec.ExpectedPayout = total.Total
		rec.AmountMatches = total.Original.Cmp(ev.StakeAmount) == 0
		rec.RewardMatches = total.Reward.Cmp(ev.CalculatedReward) == 0
		rec.PayoutMatches = total.Total.Cmp(ev.TotalPayout) == 0
	}

	o.mu.Lock()
	o.last = rec
	o.seen++
	o.mu.Unlock()

	args := []any{
		logging.Component("debug-observer"),
		logging.StakeIndex(int(ev.StakeID.Int64())),
		logging.TxHash(ev.TxHash),
		"stake_amount", FormatAmount(ev.StakeAmount, o.decimals),
		"reward_multiplier", FormatAmount(ev.RewardMultiplier, 18),
		"calculated_reward", FormatAmount(ev.CalculatedReward, o.decimals),
		"total_payout", FormatAmount(ev.TotalPayout, o.decimals),
		"contract_balance", FormatAmount(ev.ContractBalance, o.decimals),
	}
	if rec.Consistent() {
		o.metrics.DebugEvent(EventReconciled)
		logging.Info("WithdrawDebug reconciled", args...)
	} else {
		o.metrics.DebugEvent(EventMismatch)
		args = append(args,
			"stake_known", rec.StakeKnown,
			"amount_matches", rec.AmountMatches,
			"reward_matches", rec.RewardMatches,
			"payout_matches", rec.PayoutMatches,
			"solvent", rec.Solvent)
		if rec.ExpectedReward != nil {
			args = append(args, "expected_reward", FormatAmount(rec.ExpectedReward, o.decimals))
		}
		logging.Warn("WithdrawDebug diverges from local projection", args...)
	}
	return rec, nil
}

// Run handles events from ch until ctx is done or ch is closed.
func (o *DebugObserver) Run(ctx context.Context, ch <-chan *types.WithdrawDebugEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_, _ = o.Handle(ev)
		}
	}
}
