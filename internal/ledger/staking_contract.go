package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

// Lock durations (seconds) and multipliers (1e18 scale) of the reference
// deployment, used by mock mode.
var (
	mockLockSeconds = [...]uint64{60, 120, 180}
	mockMultipliers = [...]*big.Int{
		staking.MultiplierFor(types.LockPeriodShort),
		staking.MultiplierFor(types.LockPeriodMedium),
		staking.MultiplierFor(types.LockPeriodLong),
	}
)

// stakeTuple is one element of getUserStakingInfo's tuple[] result
type stakeTuple struct {
	Amount           *big.Int
	StartTime        *big.Int
	EndTime          *big.Int
	LockPeriod       uint8
	RewardMultiplier *big.Int
	Active           bool
}

// StakingContract is the staking ledger contract
type StakingContract struct {
	client        *Client
	tokenContract *TokenContract
	contract      *bind.BoundContract
	contractABI   abi.ABI
	contractAddr  common.Address
	mockMode      bool

	// Mock state
	mockSender      common.Address
	mockTreasury    common.Address
	mockStakes      map[common.Address][]types.Stake
	mockDistributed *big.Int
	mockBlock       uint64
	mockNow         func() time.Time
	mockDebugSubs   []func(types.WithdrawDebugEvent)
	mockMu          sync.Mutex
}

// NewStakingContract binds the staking contract at contractAddr. Without a
// connected client the contract runs in mock mode on top of tokenContract.
func NewStakingContract(client *Client, tokenContract *TokenContract, contractAddr common.Address) (*StakingContract, error) {
	parsedABI, err := abi.JSON(strings.NewReader(StakingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse staking ABI: %w", err)
	}

	if client == nil || !client.IsConnected() {
		return NewMockStakingContract(tokenContract, contractAddr, common.Address{}), nil
	}

	backend := client.Backend()
	return &StakingContract{
		client:        client,
		tokenContract: tokenContract,
		contractABI:   parsedABI,
		contractAddr:  contractAddr,
		contract:      bind.NewBoundContract(contractAddr, parsedABI, backend, backend, backend),
	}, nil
}

// NewMockStakingContract creates an in-memory staking ledger that moves
// funds on the given mock token. Penalties from emergency withdrawals go to
// treasury.
func NewMockStakingContract(token *TokenContract, contractAddr, treasury common.Address) *StakingContract {
	// The ABI is a constant; a parse failure is a programming error caught by tests.
	parsedABI, _ := abi.JSON(strings.NewReader(StakingABI))
	sender := common.Address{}
	if token != nil {
		sender = token.mockSender
	}
	return &StakingContract{
		tokenContract:   token,
		contractABI:     parsedABI,
		contractAddr:    contractAddr,
		mockMode:        true,
		mockSender:      sender,
		mockTreasury:    treasury,
		mockStakes:      make(map[common.Address][]types.Stake),
		mockDistributed: new(big.Int),
		mockNow:         time.Now,
	}
}

// IsMockMode returns whether running in mock mode
func (sc *StakingContract) IsMockMode() bool {
	return sc.mockMode
}

// Address returns the staking contract address
func (sc *StakingContract) Address() common.Address {
	return sc.contractAddr
}

// Stake locks amount for the given period. The token allowance must cover
// amount.
func (sc *StakingContract) Stake(ctx context.Context, amount *big.Int, period types.LockPeriod) (*gethtypes.Transaction, error) {
	if sc.mockMode {
		return nil, sc.mockStake(amount, period)
	}
	return sc.transact(ctx, "stake", amount, uint8(period))
}

// Withdraw releases a matured stake with its reward
func (sc *StakingContract) Withdraw(ctx context.Context, index int) (*gethtypes.Transaction, error) {
	if sc.mockMode {
		return nil, sc.mockWithdraw(index)
	}
	return sc.transact(ctx, "withdraw", big.NewInt(int64(index)))
}

// EmergencyWithdraw releases a stake before maturity with a penalty
func (sc *StakingContract) EmergencyWithdraw(ctx context.Context, index int) (*gethtypes.Transaction, error) {
	if sc.mockMode {
		return nil, sc.mockEmergencyWithdraw(index)
	}
	return sc.transact(ctx, "emergencyWithdraw", big.NewInt(int64(index)))
}

func (sc *StakingContract) transact(ctx context.Context, method string, args ...interface{}) (*gethtypes.Transaction, error) {
	auth, err := sc.client.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction options: %w", err)
	}
	tx, err := sc.contract.Transact(auth, method, args...)
	if err != nil {
		_ = sc.client.SyncNonce(ctx)
		return nil, fmt.Errorf("failed to %s: %w", method, err)
	}
	return tx, nil
}

// UserStakes returns every stake the user ever made, in ledger order
func (sc *StakingContract) UserStakes(ctx context.Context, user common.Address) ([]types.Stake, error) {
	if sc.mockMode {
		sc.mockMu.Lock()
		defer sc.mockMu.Unlock()
		src := sc.mockStakes[user]
		out := make([]types.Stake, len(src))
		for i, s := range src {
			out[i] = copyStake(s)
		}
		return out, nil
	}

	var result []interface{}
	if err := sc.contract.Call(&bind.CallOpts{Context: ctx}, &result, "getUserStakingInfo", user); err != nil {
		return nil, fmt.Errorf("failed to get staking info: %w", err)
	}
	return decodeStakes(result)
}

// decodeStakes converts the unpacked getUserStakingInfo output
func decodeStakes(result []interface{}) ([]types.Stake, error) {
	if len(result) == 0 {
		return nil, nil
	}
	tuples, ok := abi.ConvertType(result[0], new([]stakeTuple)).(*[]stakeTuple)
	if !ok {
		return nil, fmt.Errorf("getUserStakingInfo: unexpected type %T", result[0])
	}
	stakes := make([]types.Stake, 0, len(*tuples))
	for i, t := range *tuples {
		stakes = append(stakes, t.toStake(i))
	}
	return stakes, nil
}

func (t stakeTuple) toStake(index int) types.Stake {
	s := types.Stake{
		Index:            index,
		Amount:           t.Amount,
		LockPeriod:       types.LockPeriod(t.LockPeriod),
		RewardMultiplier: t.RewardMultiplier,
		Active:           t.Active,
	}
	if t.StartTime != nil {
		s.StartTime = t.StartTime.Uint64()
	}
	if t.EndTime != nil {
		s.EndTime = t.EndTime.Uint64()
	}
	return s
}

// TotalDistributed returns the cumulative rewards paid out
func (sc *StakingContract) TotalDistributed(ctx context.Context) (*big.Int, error) {
	if sc.mockMode {
		sc.mockMu.Lock()
		defer sc.mockMu.Unlock()
		return new(big.Int).Set(sc.mockDistributed), nil
	}
	v, err := callBig(ctx, sc.contract, "totalDistributed")
	if err != nil {
		return nil, fmt.Errorf("failed to get total distributed: %w", err)
	}
	return v, nil
}

// TreasuryWallet returns the account receiving emergency penalties
func (sc *StakingContract) TreasuryWallet(ctx context.Context) (common.Address, error) {
	if sc.mockMode {
		return sc.mockTreasury, nil
	}
	return sc.callAddress(ctx, "treasuryWallet")
}

// RewardToken returns the token the contract pays in
func (sc *StakingContract) RewardToken(ctx context.Context) (common.Address, error) {
	if sc.mockMode {
		if sc.tokenContract == nil {
			return common.Address{}, nil
		}
		return sc.tokenContract.Address(), nil
	}
	return sc.callAddress(ctx, "rewardToken")
}

// LockPeriodDuration returns the on-chain lock duration for a period
func (sc *StakingContract) LockPeriodDuration(ctx context.Context, p types.LockPeriod) (time.Duration, error) {
	if sc.mockMode {
		if !p.IsValid() {
			return 0, fmt.Errorf("%w: execution reverted", staking.ErrTransactionReverted)
		}
		return time.Duration(mockLockSeconds[p]) * time.Second, nil
	}
	v, err := callBig(ctx, sc.contract, "lockPeriods", big.NewInt(int64(p)))
	if err != nil {
		return 0, fmt.Errorf("failed to get lock period %d: %w", p, err)
	}
	return time.Duration(v.Int64()) * time.Second, nil
}

// Multiplier returns the on-chain reward multiplier (1e18 scale) for a period
func (sc *StakingContract) Multiplier(ctx context.Context, p types.LockPeriod) (*big.Int, error) {
	if sc.mockMode {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: execution reverted", staking.ErrTransactionReverted)
		}
		return new(big.Int).Set(mockMultipliers[p]), nil
	}
	v, err := callBig(ctx, sc.contract, "multipliers", big.NewInt(int64(p)))
	if err != nil {
		return nil, fmt.Errorf("failed to get multiplier %d: %w", p, err)
	}
	return v, nil
}

func (sc *StakingContract) callAddress(ctx context.Context, method string) (common.Address, error) {
	var result []interface{}
	if err := sc.contract.Call(&bind.CallOpts{Context: ctx}, &result, method); err != nil {
		return common.Address{}, fmt.Errorf("failed to get %s: %w", method, err)
	}
	if len(result) == 0 {
		return common.Address{}, fmt.Errorf("%s: empty result", method)
	}
	addr, ok := result[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected type %T", method, result[0])
	}
	return addr, nil
}

// parseWithdrawDebug decodes a WithdrawDebug log. Fields the log does not
// carry are left nil so the observer can reject the event.
func (sc *StakingContract) parseWithdrawDebug(log gethtypes.Log) (*types.WithdrawDebugEvent, error) {
	ev := &types.WithdrawDebugEvent{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
	}
	if len(log.Topics) > 1 {
		ev.User = common.BytesToAddress(log.Topics[1].Bytes()).Hex()
	}
	if len(log.Topics) > 2 {
		ev.StakeID = new(big.Int).SetBytes(log.Topics[2].Bytes())
	}

	values := make(map[string]interface{})
	if err := sc.contractABI.UnpackIntoMap(values, "WithdrawDebug", log.Data); err != nil {
		return ev, fmt.Errorf("failed to unpack WithdrawDebug: %w", err)
	}
	ev.StakeAmount = bigValue(values, "stakeAmount")
	ev.RewardMultiplier = bigValue(values, "rewardMultiplier")
	ev.CalculatedReward = bigValue(values, "calculatedReward")
	ev.TotalPayout = bigValue(values, "totalPayout")
	ev.ContractBalance = bigValue(values, "contractBalance")
	return ev, nil
}

func bigValue(values map[string]interface{}, key string) *big.Int {
	if v, ok := values[key].(*big.Int); ok {
		return v
	}
	return nil
}

// SetMockClock replaces the mock clock used for lock times
func (sc *StakingContract) SetMockClock(now func() time.Time) {
	sc.mockMu.Lock()
	defer sc.mockMu.Unlock()
	sc.mockNow = now
}

// subscribeMockDebug registers fn for WithdrawDebug events emitted in mock mode
func (sc *StakingContract) subscribeMockDebug(fn func(types.WithdrawDebugEvent)) {
	sc.mockMu.Lock()
	defer sc.mockMu.Unlock()
	sc.mockDebugSubs = append(sc.mockDebugSubs, fn)
}

func (sc *StakingContract) mockStake(amount *big.Int, period types.LockPeriod) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", staking.ErrTransactionReverted)
	}
	if !period.IsValid() {
		return fmt.Errorf("%w: invalid lock period", staking.ErrTransactionReverted)
	}
	if sc.tokenContract == nil {
		return fmt.Errorf("mock staking contract has no token")
	}

	sc.mockMu.Lock()
	defer sc.mockMu.Unlock()

	if err := sc.tokenContract.mockTransferFrom(sc.contractAddr, sc.mockSender, sc.contractAddr, amount); err != nil {
		return err
	}

	start := uint64(sc.mockNow().Unix())
	stakes := sc.mockStakes[sc.mockSender]
	sc.mockStakes[sc.mockSender] = append(stakes, types.Stake{
		Index:            len(stakes),
		Amount:           new(big.Int).Set(amount),
		StartTime:        start,
		EndTime:          start + mockLockSeconds[period],
		LockPeriod:       period,
		RewardMultiplier: new(big.Int).Set(mockMultipliers[period]),
		Active:           true,
	})
	sc.mockBlock++
	return nil
}

// mockActiveStakeLocked returns a pointer into the sender's stake list
func (sc *StakingContract) mockActiveStakeLocked(index int) (*types.Stake, error) {
	stakes := sc.mockStakes[sc.mockSender]
	if index < 0 || index >= len(stakes) {
		return nil, fmt.Errorf("%w: invalid stake index", staking.ErrTransactionReverted)
	}
	s := &stakes[index]
	if !s.Active {
		return nil, fmt.Errorf("%w: stake already withdrawn", staking.ErrTransactionReverted)
	}
	return s, nil
}

func (sc *StakingContract) mockWithdraw(index int) error {
	sc.mockMu.Lock()
	s, err := sc.mockActiveStakeLocked(index)
	if err != nil {
		sc.mockMu.Unlock()
		return err
	}
	if uint64(sc.mockNow().Unix()) < s.EndTime {
		sc.mockMu.Unlock()
		return fmt.Errorf("%w: stake is still locked", staking.ErrTransactionReverted)
	}

	payout := staking.LedgerPayout(*s)
	reward := new(big.Int).Sub(payout, s.Amount)
	balance, err := sc.mockLedgerBalance()
	if err != nil {
		sc.mockMu.Unlock()
		return fmt.Errorf("failed to read contract balance: %w", err)
	}
	if err := sc.tokenContract.mockTransfer(sc.contractAddr, sc.mockSender, payout); err != nil {
		sc.mockMu.Unlock()
		return err
	}
	s.Active = false
	sc.mockDistributed.Add(sc.mockDistributed, reward)
	sc.mockBlock++

	ev := types.WithdrawDebugEvent{
		User:             sc.mockSender.Hex(),
		StakeID:          big.NewInt(int64(index)),
		StakeAmount:      new(big.Int).Set(s.Amount),
		RewardMultiplier: new(big.Int).Set(s.RewardMultiplier),
		CalculatedReward: reward,
		TotalPayout:      payout,
		ContractBalance:  balance,
		BlockNumber:      sc.mockBlock,
		TxHash:           mockTxHash("withdraw", sc.mockSender, index, sc.mockBlock).Hex(),
	}
	subs := append(([]func(types.WithdrawDebugEvent))(nil), sc.mockDebugSubs...)
	sc.mockMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

// mockLedgerBalance is the contract's token balance reported in WithdrawDebug
func (sc *StakingContract) mockLedgerBalance() (*big.Int, error) {
	if sc.tokenContract == nil {
		return nil, errors.New("no token contract")
	}
	return sc.tokenContract.BalanceOf(context.Background(), sc.contractAddr)
}

func (sc *StakingContract) mockEmergencyWithdraw(index int) error {
	sc.mockMu.Lock()
	defer sc.mockMu.Unlock()

	s, err := sc.mockActiveStakeLocked(index)
	if err != nil {
		return err
	}
	proj := staking.EmergencyProjection(s.Amount)
	if err := sc.tokenContract.mockTransfer(sc.contractAddr, sc.mockSender, proj.Payout); err != nil {
		return err
	}
	if proj.Penalty.Sign() > 0 {
		if err := sc.tokenContract.mockTransfer(sc.contractAddr, sc.mockTreasury, proj.Penalty); err != nil {
			return err
		}
	}
	s.Active = false
	sc.mockBlock++
	return nil
}

func mockTxHash(op string, user common.Address, index int, block uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%s:%d:%d", op, user.Hex(), index, block)))
}

func copyStake(s types.Stake) types.Stake {
	out := s
	if s.Amount != nil {
		out.Amount = new(big.Int).Set(s.Amount)
	}
	if s.RewardMultiplier != nil {
		out.RewardMultiplier = new(big.Int).Set(s.RewardMultiplier)
	}
	return out
}
