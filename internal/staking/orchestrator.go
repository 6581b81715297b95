package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/pkg/types"
)

// Flow is a logical write channel. Approve and stake each have one; both
// withdrawal kinds share the withdraw flow.
type Flow string

const (
	FlowApprove  Flow = "approve"
	FlowStake    Flow = "stake"
	FlowWithdraw Flow = "withdraw"
)

// Flows lists every flow
var Flows = []Flow{FlowApprove, FlowStake, FlowWithdraw}

// FlowState is the observable state of one flow.
type FlowState struct {
	Phase  types.FlowPhase
	Status types.TxStatus
	TxHash common.Hash
	Err    error
}

// Transition is passed to hooks on every phase change.
type Transition struct {
	Flow   Flow
	Op     types.Operation
	From   types.FlowPhase
	To     types.FlowPhase
	TxHash common.Hash
}

// OrchestratorConfig configures an Orchestrator
type OrchestratorConfig struct {
	// ConfirmTimeout bounds the wait for a broadcast transaction to confirm.
	ConfirmTimeout time.Duration
	Decimals       uint8
	Metrics        Metrics
	Now            func() time.Time
}

// Orchestrator serializes writes against the ledger. At most one write is in
// flight across all flows, and the withdrawal slot names the withdrawal
// holding it. A request that finds a write in flight is rejected, never queued.
type Orchestrator struct {
	ledger  Ledger
	reader  *Reader
	cfg     OrchestratorConfig
	metrics Metrics

	mu         sync.Mutex
	flows      map[Flow]*FlowState
	withdrawal *types.WithdrawalRequest
	lastErr    string
	hooks      []func(Transition)
}

// NewOrchestrator creates an Orchestrator writing through ledger and
// refreshing reader after every confirmed write.
func NewOrchestrator(ledger Ledger, reader *Reader, cfg OrchestratorConfig) *Orchestrator {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 5 * time.Minute
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = DefaultDecimals
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	o := &Orchestrator{
		ledger:  ledger,
		reader:  reader,
		cfg:     cfg,
		metrics: orNop(cfg.Metrics),
		flows:   make(map[Flow]*FlowState, len(Flows)),
	}
	for _, f := range Flows {
		o.flows[f] = &FlowState{Phase: types.PhaseIdle, Status: types.TxStatusIdle}
	}
	return o
}

// OnTransition registers a hook called on every phase change. Hooks run
// with no orchestrator lock held.
func (o *Orchestrator) OnTransition(fn func(Transition)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, fn)
}

// State returns a copy of the state of flow
func (o *Orchestrator) State(flow Flow) FlowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.flows[flow]; ok {
		return *st
	}
	return FlowState{Phase: types.PhaseIdle, Status: types.TxStatusIdle}
}

// PendingWithdrawal returns the withdrawal currently holding the slot, if any.
func (o *Orchestrator) PendingWithdrawal() *types.WithdrawalRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.withdrawal == nil {
		return nil
	}
	req := *o.withdrawal
	return &req
}

// LastError returns the user-facing message of the most recent failed or
// rejected write. It is cleared by the next successful write.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Approve lets the staking contract move amount tokens. amount is a decimal
// string in whole tokens.
func (o *Orchestrator) Approve(ctx context.Context, amount string) (common.Hash, error) {
	var wei *big.Int
	return o.submit(ctx, call{
		op:   types.OpApprove,
		flow: FlowApprove,
		validate: func(ctx context.Context) error {
			if err := o.requireAccount(); err != nil {
				return err
			}
			v, err := ParseAmount(amount, o.cfg.Decimals)
			if err != nil {
				return err
			}
			wei = v
			return nil
		},
		send: func(ctx context.Context) (*gethtypes.Transaction, error) {
			return o.ledger.Approve(ctx, wei)
		},
		refresh: FieldAllowance,
		target:  func() string { return "amount=" + FormatAmount(wei, o.cfg.Decimals) },
	})
}

// Stake locks amount tokens for period. The current allowance must already
// cover the amount.
func (o *Orchestrator) Stake(ctx context.Context, amount string, period types.LockPeriod) (common.Hash, error) {
	var wei *big.Int
	return o.submit(ctx, call{
		op:   types.OpStake,
		flow: FlowStake,
		validate: func(ctx context.Context) error {
			if err := o.requireAccount(); err != nil {
				return err
			}
			v, err := ParseAmount(amount, o.cfg.Decimals)
			if err != nil {
				return err
			}
			if !FitsUint128(v) {
				return fmt.Errorf("%w: exceeds the ledger's stake size", ErrInvalidAmount)
			}
			if !period.IsValid() {
				return ErrInvalidLockPeriod
			}
			snap, err := o.ensureLoaded(ctx, FieldAllowance)
			if err != nil {
				return err
			}
			if snap.Allowance == nil || snap.Allowance.Cmp(v) < 0 {
				return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance,
					FormatAmount(snap.Allowance, o.cfg.Decimals), FormatAmount(v, o.cfg.Decimals))
			}
			wei = v
			return nil
		},
		send: func(ctx context.Context) (*gethtypes.Transaction, error) {
			return o.ledger.Stake(ctx, wei, period)
		},
		refresh: FieldStakes | FieldTokenBalance | FieldAllowance | FieldLedgerBalance,
		target: func() string {
			return fmt.Sprintf("amount=%s lock=%s", FormatAmount(wei, o.cfg.Decimals), period.Label())
		},
	})
}

// Withdraw takes out a matured stake with its full reward.
func (o *Orchestrator) Withdraw(ctx context.Context, index int) (common.Hash, error) {
	return o.withdraw(ctx, types.WithdrawalRequest{Kind: types.WithdrawalNormal, StakeIndex: index})
}

// EmergencyWithdraw takes out an active stake before maturity. The ledger
// keeps a penalty.
func (o *Orchestrator) EmergencyWithdraw(ctx context.Context, index int) (common.Hash, error) {
	return o.withdraw(ctx, types.WithdrawalRequest{Kind: types.WithdrawalEmergency, StakeIndex: index})
}

func (o *Orchestrator) withdraw(ctx context.Context, req types.WithdrawalRequest) (common.Hash, error) {
	op := req.Kind.Operation()

	o.mu.Lock()
	if o.withdrawal != nil {
		held := *o.withdrawal
		o.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrWithdrawalInFlight, held)
		o.mu.Lock()
		o.lastErr = ClassifyError(op, err)
		o.mu.Unlock()
		logging.Warn("withdrawal rejected, slot busy",
			logging.Op(string(op)),
			logging.StakeIndex(req.StakeIndex),
			"pending", held.String())
		return common.Hash{}, err
	}
	o.withdrawal = &req
	o.mu.Unlock()

	release := func() {
		o.withdrawal = nil
	}

	return o.submit(ctx, call{
		op:   op,
		flow: FlowWithdraw,
		validate: func(ctx context.Context) error {
			if err := o.requireAccount(); err != nil {
				return err
			}
			snap, err := o.ensureLoaded(ctx, FieldStakes)
			if err != nil {
				return err
			}
			stake, ok := snap.Stake(req.StakeIndex)
			if !ok {
				return fmt.Errorf("%w: index %d", ErrStakeNotFound, req.StakeIndex)
			}
			if !stake.Active {
				return ErrStakeInactive
			}
			if req.Kind == types.WithdrawalNormal && !ReadyForNormalWithdrawal(stake, o.cfg.Now()) {
				return fmt.Errorf("%w until %s", ErrStakeLocked, stake.End().Format(time.RFC3339))
			}
			if req.Kind == types.WithdrawalEmergency && !EligibleForEmergencyWithdrawal(stake) {
				return ErrStakeInactive
			}
			return nil
		},
		send: func(ctx context.Context) (*gethtypes.Transaction, error) {
			if req.Kind == types.WithdrawalEmergency {
				return o.ledger.EmergencyWithdraw(ctx, req.StakeIndex)
			}
			return o.ledger.Withdraw(ctx, req.StakeIndex)
		},
		refresh: FieldStakes | FieldTokenBalance | FieldLedgerBalance,
		target:  func() string { return fmt.Sprintf("stake=%d", req.StakeIndex) },
		release: release,
	})
}

func (o *Orchestrator) requireAccount() error {
	if o.ledger.Account() == (common.Address{}) {
		return ErrNoAccount
	}
	return nil
}

// ensureLoaded returns the snapshot, reading f first if it was never loaded.
func (o *Orchestrator) ensureLoaded(ctx context.Context, f Field) (*Snapshot, error) {
	snap := o.reader.Snapshot()
	if snap.Loaded.Has(f) {
		return snap, nil
	}
	if _, err := o.reader.Refresh(ctx, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", f, err)
	}
	return o.reader.Snapshot(), nil
}

// call describes one write. Every flow goes through submit, which owns the
// phase transitions, confirmation wait, refresh and error reporting.
type call struct {
	op       types.Operation
	flow     Flow
	validate func(ctx context.Context) error
	send     func(ctx context.Context) (*gethtypes.Transaction, error)
	refresh  Field
	target   func() string
	// release runs under the lock when the flow ends, whatever the outcome.
	release func()
}

func (o *Orchestrator) submit(ctx context.Context, c call) (common.Hash, error) {
	if err := o.begin(c); err != nil {
		return common.Hash{}, err
	}
	start := time.Now()

	if err := c.validate(ctx); err != nil {
		verr := invalid(c.op, err)
		o.finish(c, types.PhaseIdle, o.State(c.flow).Status, verr)
		logging.Info("write blocked by validation", logging.Op(string(c.op)), logging.Err(err))
		return common.Hash{}, verr
	}

	account := o.ledger.Account().Hex()

	o.setStatus(c.flow, types.TxStatusPending)
	o.transition(c, types.PhaseAwaitingSignature, common.Hash{})

	tx, err := c.send(ctx)
	if err != nil {
		if IsUserRejection(err) && !errors.Is(err, ErrUserRejected) {
			err = fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		o.fail(c, account, common.Hash{}, start, err)
		return common.Hash{}, err
	}

	var hash common.Hash
	if tx != nil {
		hash = tx.Hash()
	}
	o.setHash(c.flow, hash)
	o.transition(c, types.PhaseSubmitted, hash)
	logging.Audit(logging.AuditEvent{
		Operation: string(c.op) + "_submitted",
		Actor:     account,
		Target:    c.target(),
		Result:    "pending",
		TxHash:    hashString(hash),
	})

	o.transition(c, types.PhaseConfirming, hash)
	if err := o.confirm(ctx, tx); err != nil {
		if errors.Is(err, ErrConfirmationTimeout) {
			// It may still land, so the read-model must not go stale.
			o.refresh(ctx, c.refresh)
		}
		o.fail(c, account, hash, start, err)
		return hash, err
	}

	// The read-model is refreshed before the flow returns to idle.
	o.refresh(ctx, c.refresh)

	o.mu.Lock()
	o.lastErr = ""
	o.flows[c.flow].Status = types.TxStatusSuccess
	o.mu.Unlock()

	o.transition(c, types.PhaseConfirmed, hash)
	o.finish(c, types.PhaseIdle, types.TxStatusSuccess, nil)
	o.metrics.ObserveWrite(c.op, types.TxStatusSuccess, time.Since(start))
	logging.Audit(logging.AuditEvent{
		Operation: string(c.op) + "_confirmed",
		Actor:     account,
		Target:    c.target(),
		Result:    "success",
		TxHash:    hashString(hash),
	})
	return hash, nil
}

// begin claims the flow and moves it to Validating in one step. It fails
// while any flow, not only c.flow, is past Idle.
func (o *Orchestrator) begin(c call) error {
	o.mu.Lock()
	if busy, ok := o.busyFlow(); ok {
		if c.release != nil {
			// The withdrawal slot was acquired by this request.
			c.release()
		}
		o.lastErr = ClassifyError(c.op, fmt.Errorf("%w: %s", ErrWriteInFlight, busy))
		o.mu.Unlock()
		logging.Warn("write rejected, another write in flight",
			logging.Op(string(c.op)),
			"busy", string(busy))
		return fmt.Errorf("%w: %s", ErrWriteInFlight, busy)
	}
	st := o.flows[c.flow]
	st.Phase = types.PhaseValidating
	st.Err = nil
	st.TxHash = common.Hash{}
	hooks := append([]func(Transition){}, o.hooks...)
	o.mu.Unlock()

	for _, h := range hooks {
		h(Transition{Flow: c.flow, Op: c.op, From: types.PhaseIdle, To: types.PhaseValidating})
	}
	return nil
}

// busyFlow returns the flow holding the write slot. Callers hold o.mu.
func (o *Orchestrator) busyFlow() (Flow, bool) {
	for _, f := range Flows {
		if o.flows[f].Phase != types.PhaseIdle {
			return f, true
		}
	}
	return "", false
}

func (o *Orchestrator) confirm(ctx context.Context, tx *gethtypes.Transaction) error {
	if tx == nil {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.ConfirmTimeout)
	defer cancel()

	err := o.ledger.WaitConfirmed(waitCtx, tx)
	if err != nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s: %s", ErrConfirmationTimeout, o.cfg.ConfirmTimeout, tx.Hash().Hex())
	}
	return err
}

// refresh re-reads fields after a write. Fields that fail are handed to the
// reader's polling loop so a running session retries them early.
func (o *Orchestrator) refresh(ctx context.Context, fields Field) {
	if _, err := o.reader.Refresh(ctx, fields); err != nil {
		var failed Field
		fields.Each(func(f Field) {
			if o.reader.LastError(f) != nil {
				failed |= f
			}
		})
		logging.Warn("post-write refresh incomplete", "fields", failed.String(), logging.Err(err))
		if failed != FieldNone {
			o.reader.Invalidate(failed)
		}
	}
}

func (o *Orchestrator) fail(c call, account string, hash common.Hash, start time.Time, err error) {
	o.transition(c, types.PhaseFailed, hash)
	o.finish(c, types.PhaseIdle, types.TxStatusError, err)
	o.metrics.ObserveWrite(c.op, types.TxStatusError, time.Since(start))

	logging.Error("write failed", logging.Op(string(c.op)), logging.TxHash(hashString(hash)), logging.Err(err))
	logging.Audit(logging.AuditEvent{
		Operation: string(c.op) + "_failed",
		Actor:     account,
		Target:    c.target(),
		Result:    "failure",
		TxHash:    hashString(hash),
		Details:   err.Error(),
	})
}

// finish moves the flow to its resting phase, releases the withdrawal slot
// and records err as the session error.
func (o *Orchestrator) finish(c call, phase types.FlowPhase, status types.TxStatus, err error) {
	o.mu.Lock()
	st := o.flows[c.flow]
	from := st.Phase
	st.Phase = phase
	st.Status = status
	st.Err = err
	hash := st.TxHash
	if err != nil {
		o.lastErr = ClassifyError(c.op, err)
	}
	if c.release != nil {
		c.release()
	}
	hooks := append([]func(Transition){}, o.hooks...)
	o.mu.Unlock()

	for _, h := range hooks {
		h(Transition{Flow: c.flow, Op: c.op, From: from, To: phase, TxHash: hash})
	}
}

func (o *Orchestrator) transition(c call, to types.FlowPhase, hash common.Hash) {
	o.mu.Lock()
	st := o.flows[c.flow]
	from := st.Phase
	st.Phase = to
	hooks := append([]func(Transition){}, o.hooks...)
	o.mu.Unlock()

	logging.Debug("flow transition",
		"flow", string(c.flow),
		logging.Op(string(c.op)),
		"from", string(from),
		"to", string(to))
	for _, h := range hooks {
		h(Transition{Flow: c.flow, Op: c.op, From: from, To: to, TxHash: hash})
	}
}

func (o *Orchestrator) setStatus(flow Flow, status types.TxStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flows[flow].Status = status
}

func (o *Orchestrator) setHash(flow Flow, hash common.Hash) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flows[flow].TxHash = hash
}

func hashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
