package staking

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ministake/ministake/internal/util"
	"github.com/ministake/ministake/pkg/types"
)

var (
	testNow     = time.Unix(1_700_000_000, 0)
	testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func fixedNow() time.Time { return testNow }

func noRetry() *util.RetryConfig {
	return &util.RetryConfig{MaxRetries: 0}
}

// fakeLedger applies writes when they are sent, so a refresh after the
// confirmation wait sees the new state.
type fakeLedger struct {
	mu sync.Mutex

	account   common.Address
	balance   *big.Int
	allowance *big.Int
	ledgerBal *big.Int
	stakes    []types.Stake

	readErr   map[Field]error
	readCalls map[Field]int

	sendErr  error
	waitErr  error
	waitGate chan struct{}
	nilTx    bool

	nonce uint64
	sent  []types.Operation
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		account:   testAccount,
		balance:   tokens(1000),
		allowance: new(big.Int),
		ledgerBal: tokens(500),
		readErr:   make(map[Field]error),
		readCalls: make(map[Field]int),
	}
}

func (f *fakeLedger) read(field Field) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls[field]++
	return f.readErr[field]
}

func (f *fakeLedger) calls(field Field) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls[field]
}

func (f *fakeLedger) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if err := f.read(FieldTokenBalance); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeLedger) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if err := f.read(FieldAllowance); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeLedger) UserStakes(ctx context.Context, owner common.Address) ([]types.Stake, error) {
	if err := f.read(FieldStakes); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Stake, len(f.stakes))
	for i, s := range f.stakes {
		s.Amount = new(big.Int).Set(s.Amount)
		out[i] = s
	}
	return out, nil
}

func (f *fakeLedger) LedgerBalance(ctx context.Context) (*big.Int, error) {
	if err := f.read(FieldLedgerBalance); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.ledgerBal), nil
}

func (f *fakeLedger) Account() common.Address { return f.account }

func (f *fakeLedger) tx(op types.Operation, apply func()) (*gethtypes.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, op)
	apply()
	if f.nilTx {
		return nil, nil
	}
	f.nonce++
	return gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: f.nonce, Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (f *fakeLedger) Approve(ctx context.Context, amount *big.Int) (*gethtypes.Transaction, error) {
	return f.tx(types.OpApprove, func() { f.allowance = new(big.Int).Set(amount) })
}

func (f *fakeLedger) Stake(ctx context.Context, amount *big.Int, period types.LockPeriod) (*gethtypes.Transaction, error) {
	return f.tx(types.OpStake, func() {
		start := uint64(testNow.Unix())
		f.stakes = append(f.stakes, types.Stake{
			Index:            len(f.stakes),
			Amount:           new(big.Int).Set(amount),
			StartTime:        start,
			EndTime:          start + uint64(period.Duration().Seconds()),
			LockPeriod:       period,
			RewardMultiplier: MultiplierFor(period),
			Active:           true,
		})
		f.allowance.Sub(f.allowance, amount)
		f.balance.Sub(f.balance, amount)
		f.ledgerBal.Add(f.ledgerBal, amount)
	})
}

func (f *fakeLedger) Withdraw(ctx context.Context, index int) (*gethtypes.Transaction, error) {
	return f.tx(types.OpWithdraw, func() { f.stakes[index].Active = false })
}

func (f *fakeLedger) EmergencyWithdraw(ctx context.Context, index int) (*gethtypes.Transaction, error) {
	return f.tx(types.OpEmergencyWithdraw, func() { f.stakes[index].Active = false })
}

func (f *fakeLedger) WaitConfirmed(ctx context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	gate, err := f.waitGate, f.waitErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeLedger) sentOps() []types.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Operation(nil), f.sent...)
}

func (f *fakeLedger) addStake(amount *big.Int, period types.LockPeriod, end time.Time, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stakes = append(f.stakes, types.Stake{
		Index:            len(f.stakes),
		Amount:           amount,
		StartTime:        uint64(end.Add(-period.Duration()).Unix()),
		EndTime:          uint64(end.Unix()),
		LockPeriod:       period,
		RewardMultiplier: MultiplierFor(period),
		Active:           active,
	})
}

type fakeMetrics struct {
	mu         sync.Mutex
	reads      map[string]int
	readErrs   int
	writes     map[types.Operation]types.TxStatus
	matured    int
	events     map[string]int
	sufficient *bool
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		reads:  make(map[string]int),
		writes: make(map[types.Operation]types.TxStatus),
		events: make(map[string]int),
	}
}

func (m *fakeMetrics) ObserveRead(field string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[field]++
	if err != nil {
		m.readErrs++
	}
}

func (m *fakeMetrics) ObserveWrite(op types.Operation, status types.TxStatus, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[op] = status
}

func (m *fakeMetrics) StakeMatured() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matured++
}

func (m *fakeMetrics) DebugEvent(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[outcome]++
}

func (m *fakeMetrics) SetSufficiency(obligation, balance *big.Int, sufficient bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sufficient = &sufficient
}

var errBoom = errors.New("boom")

func newTestReader(l *fakeLedger, m Metrics) *Reader {
	return NewReader(l, l.Account(), ReaderConfig{Retry: noRetry(), Metrics: m, Now: fixedNow})
}
