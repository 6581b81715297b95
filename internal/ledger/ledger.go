package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/pkg/types"
)

// Default addresses used by mock mode
var (
	MockTokenAddress    = common.HexToAddress("0x00000000000000000000000000000000000070c0")
	MockStakingAddress  = common.HexToAddress("0x0000000000000000000000000000000000005a4e")
	MockTreasuryAddress = common.HexToAddress("0x0000000000000000000000000000000000007ea5")
	MockAccount         = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// Options describes how to reach the token and staking contracts
type Options struct {
	Client         *ClientConfig
	TokenAddress   common.Address
	StakingAddress common.Address
	// Key signs writes. nil gives a read-only ledger.
	Key *ecdsa.PrivateKey
	// Account is the owner read by a read-only ledger. Ignored when Key is set.
	Account common.Address
}

// Ledger implements staking.Ledger over the token and staking contracts
type Ledger struct {
	client  *Client
	token   *TokenContract
	staking *StakingContract
	account common.Address
}

var _ staking.Ledger = (*Ledger)(nil)

// Dial connects to the chain and binds both contracts
func Dial(ctx context.Context, opts Options) (*Ledger, error) {
	client := NewClient(opts.Client, opts.Key)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	token, err := NewTokenContract(client, opts.TokenAddress)
	if err != nil {
		client.Close()
		return nil, err
	}
	sc, err := NewStakingContract(client, token, opts.StakingAddress)
	if err != nil {
		client.Close()
		return nil, err
	}

	account := client.Address()
	if opts.Key == nil {
		account = opts.Account
	}
	return &Ledger{
		client:  client,
		token:   token,
		staking: sc,
		account: account,
	}, nil
}

// MockOptions seeds an in-memory ledger
type MockOptions struct {
	// Account is the sender; zero uses MockAccount, or the key's address.
	Account common.Address
	Key     *ecdsa.PrivateKey
	// Balance is the account's initial token balance.
	Balance *big.Int
	// Funding is the staking contract's initial token balance, the pool
	// rewards are paid from.
	Funding *big.Int
	Now     func() time.Time
}

// NewMock returns a ledger backed by in-memory contracts
func NewMock(opts MockOptions) *Ledger {
	account := opts.Account
	if account == (common.Address{}) && opts.Key != nil {
		account = crypto.PubkeyToAddress(opts.Key.PublicKey)
	}
	if account == (common.Address{}) {
		account = MockAccount
	}

	token := NewMockTokenContract(account)
	token.contractAddr = MockTokenAddress
	if opts.Balance != nil {
		token.SetMockBalance(account, opts.Balance)
	}
	if opts.Funding != nil {
		token.SetMockBalance(MockStakingAddress, opts.Funding)
	}

	sc := NewMockStakingContract(token, MockStakingAddress, MockTreasuryAddress)
	if opts.Now != nil {
		sc.SetMockClock(opts.Now)
	}

	logging.Info("using mock ledger",
		logging.Component("ledger"),
		logging.Address(account.Hex()))
	return &Ledger{token: token, staking: sc, account: account}
}

// Close releases the RPC connection
func (l *Ledger) Close() {
	if l.client != nil {
		l.client.Close()
	}
}

// IsMock reports whether the ledger is in-memory
func (l *Ledger) IsMock() bool {
	return l.staking.IsMockMode()
}

// Client returns the chain client, nil in mock mode
func (l *Ledger) Client() *Client {
	return l.client
}

// Token returns the token contract
func (l *Ledger) Token() *TokenContract {
	return l.token
}

// StakingContract returns the staking contract
func (l *Ledger) StakingContract() *StakingContract {
	return l.staking
}

// Account returns the signing address
func (l *Ledger) Account() common.Address {
	return l.account
}

// TokenBalance returns owner's token balance
func (l *Ledger) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return l.token.BalanceOf(ctx, owner)
}

// Allowance returns what the staking contract may spend for owner
func (l *Ledger) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return l.token.Allowance(ctx, owner, l.staking.Address())
}

// UserStakes returns owner's stake list
func (l *Ledger) UserStakes(ctx context.Context, owner common.Address) ([]types.Stake, error) {
	return l.staking.UserStakes(ctx, owner)
}

// LedgerBalance returns the staking contract's token balance
func (l *Ledger) LedgerBalance(ctx context.Context) (*big.Int, error) {
	return l.token.BalanceOf(ctx, l.staking.Address())
}

// Approve sets the staking contract's allowance to amount
func (l *Ledger) Approve(ctx context.Context, amount *big.Int) (*gethtypes.Transaction, error) {
	return l.token.Approve(ctx, l.staking.Address(), amount)
}

// Stake submits a stake
func (l *Ledger) Stake(ctx context.Context, amount *big.Int, period types.LockPeriod) (*gethtypes.Transaction, error) {
	return l.staking.Stake(ctx, amount, period)
}

// Withdraw submits a normal withdrawal
func (l *Ledger) Withdraw(ctx context.Context, index int) (*gethtypes.Transaction, error) {
	return l.staking.Withdraw(ctx, index)
}

// EmergencyWithdraw submits an early withdrawal
func (l *Ledger) EmergencyWithdraw(ctx context.Context, index int) (*gethtypes.Transaction, error) {
	return l.staking.EmergencyWithdraw(ctx, index)
}

// WaitConfirmed waits for tx. Mock writes have no transaction and are final.
func (l *Ledger) WaitConfirmed(ctx context.Context, tx *gethtypes.Transaction) error {
	if tx == nil {
		return nil
	}
	if l.client == nil {
		return fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), ErrNotConnected)
	}
	_, err := l.client.WaitForTransaction(ctx, tx)
	return err
}
