package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/internal/util"
	"github.com/ministake/ministake/pkg/types"
)

// ReaderConfig configures a Reader
type ReaderConfig struct {
	// ReadsPerSecond caps RPC reads. Zero disables the limit.
	ReadsPerSecond float64
	// Decimals is used only to format amounts in logs.
	Decimals uint8
	// Retry applies to every read. nil uses util.ReadRetryConfig.
	Retry   *util.RetryConfig
	Metrics Metrics
	Now     func() time.Time
}

// ChangeFunc is called after a refresh published a new snapshot.
type ChangeFunc func(snap *Snapshot, changed Field)

// Reader keeps the read-model for one account. It is the only writer of the
// snapshot; everything else reads the published value.
type Reader struct {
	src     StakeSource
	owner   common.Address
	cfg     ReaderConfig
	limiter *rate.Limiter
	metrics Metrics

	snap    atomic.Pointer[Snapshot]
	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   []ChangeFunc

	pending atomic.Uint32
	wake    chan struct{}

	errMu   sync.RWMutex
	lastErr map[Field]error
}

// NewReader creates a Reader for owner. No reads happen until Refresh or Run.
func NewReader(src StakeSource, owner common.Address, cfg ReaderConfig) *Reader {
	if cfg.Retry == nil {
		cfg.Retry = util.ReadRetryConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = DefaultDecimals
	}
	r := &Reader{
		src:     src,
		owner:   owner,
		cfg:     cfg,
		metrics: orNop(cfg.Metrics),
		wake:    make(chan struct{}, 1),
		lastErr: make(map[Field]error),
	}
	if cfg.ReadsPerSecond > 0 {
		burst := int(cfg.ReadsPerSecond)
		if burst < len(fieldNames) {
			burst = len(fieldNames)
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.ReadsPerSecond), burst)
	}
	r.snap.Store(&Snapshot{})
	return r
}

// Owner returns the account this reader tracks
func (r *Reader) Owner() common.Address {
	return r.owner
}

// Snapshot returns the current read-model. Never nil.
func (r *Reader) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Subscribe registers fn to be called after every change.
func (r *Reader) Subscribe(fn ChangeFunc) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.subs = append(r.subs, fn)
}

// LastError returns the most recent read error for a single field, or nil
// once the field has been read successfully again.
func (r *Reader) LastError(f Field) error {
	r.errMu.RLock()
	defer r.errMu.RUnlock()
	return r.lastErr[f]
}

type readResult struct {
	balance *big.Int
	stakes  []types.Stake
	err     error
}

// Refresh reads the requested fields concurrently and publishes a new
// snapshot if any value changed. A failed read keeps the previous value for
// that field; the other reads still apply. The returned error joins every
// failed read.
func (r *Reader) Refresh(ctx context.Context, fields Field) (Field, error) {
	if fields == FieldNone {
		return FieldNone, nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	results := make(map[Field]*readResult, len(fieldNames))
	fields.Each(func(f Field) { results[f] = &readResult{} })

	var g errgroup.Group
	for f, res := range results {
		f, res := f, res
		g.Go(func() error {
			// Errors stay in res so one failing read never cancels the others.
			*res = r.read(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	prev := r.snap.Load()
	next := prev.clone()
	var errs []error
	for f, res := range results {
		r.errMu.Lock()
		r.lastErr[f] = res.err
		r.errMu.Unlock()

		if res.err != nil {
			logging.Warn("read failed, keeping cached value",
				logging.Component("stake-reader"),
				"field", f.String(),
				logging.Address(r.owner.Hex()),
				logging.Err(res.err))
			errs = append(errs, fmt.Errorf("%s: %w", f, res.err))
			continue
		}
		switch f {
		case FieldTokenBalance:
			next.TokenBalance = res.balance
		case FieldAllowance:
			next.Allowance = res.balance
		case FieldStakes:
			next.Stakes = res.stakes
		case FieldLedgerBalance:
			next.LedgerBalance = res.balance
		}
		next.Loaded |= f
	}

	changed := prev.diff(next) | (next.Loaded &^ prev.Loaded)
	if changed == FieldNone {
		return FieldNone, errors.Join(errs...)
	}

	next.UpdatedAt = r.cfg.Now()
	r.snap.Store(next)
	r.logChange(next, changed)

	if changed.Has(FieldStakes) || changed.Has(FieldLedgerBalance) {
		rep := next.Sufficiency()
		r.metrics.SetSufficiency(rep.TotalObligation, rep.LedgerBalance, rep.Sufficient)
	}

	r.subsMu.RLock()
	subs := append([]ChangeFunc(nil), r.subs...)
	r.subsMu.RUnlock()
	for _, fn := range subs {
		fn(next, changed)
	}

	return changed, errors.Join(errs...)
}

func (r *Reader) read(ctx context.Context, f Field) readResult {
	start := time.Now()
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return readResult{err: err}
		}
	}

	var res readResult
	switch f {
	case FieldStakes:
		res.stakes, res.err = retryRead(ctx, r.cfg.Retry, func() ([]types.Stake, error) {
			return r.src.UserStakes(ctx, r.owner)
		})
	default:
		res.balance, res.err = retryRead(ctx, r.cfg.Retry, func() (*big.Int, error) {
			switch f {
			case FieldTokenBalance:
				return r.src.TokenBalance(ctx, r.owner)
			case FieldAllowance:
				return r.src.Allowance(ctx, r.owner)
			default:
				return r.src.LedgerBalance(ctx)
			}
		})
	}
	r.metrics.ObserveRead(f.String(), time.Since(start), res.err)
	return res
}

func retryRead[T any](ctx context.Context, cfg *util.RetryConfig, fn func() (T, error)) (T, error) {
	v, result := util.RetryWithValue(ctx, cfg, fn)
	return v, result.LastError
}

func (r *Reader) logChange(s *Snapshot, changed Field) {
	args := []any{
		logging.Component("stake-reader"),
		logging.Address(r.owner.Hex()),
		"changed", changed.String(),
	}
	if changed.Has(FieldTokenBalance) {
		args = append(args, "token_balance", FormatAmount(s.TokenBalance, r.cfg.Decimals))
	}
	if changed.Has(FieldAllowance) {
		args = append(args, "allowance", FormatAmount(s.Allowance, r.cfg.Decimals))
	}
	if changed.Has(FieldStakes) {
		args = append(args,
			"stakes", len(s.Stakes),
			"active_staked", FormatAmount(TotalStaked(s.Stakes, ActiveOnly), r.cfg.Decimals))
	}
	if changed.Has(FieldLedgerBalance) {
		args = append(args, "ledger_balance", FormatAmount(s.LedgerBalance, r.cfg.Decimals))
	}
	logging.Info("read-model updated", args...)
}

// Invalidate schedules a refresh of fields on the Run loop without waiting.
func (r *Reader) Invalidate(fields Field) {
	for {
		old := r.pending.Load()
		if r.pending.CompareAndSwap(old, old|uint32(fields)) {
			break
		}
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls every field each interval and serves Invalidate requests until
// ctx is done.
func (r *Reader) Run(ctx context.Context, interval time.Duration) {
	_, _ = r.Refresh(ctx, FieldAll)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.Refresh(ctx, FieldAll)
		case <-r.wake:
			if f := Field(r.pending.Swap(0)); f != FieldNone {
				_, _ = r.Refresh(ctx, f)
			}
		}
	}
}
