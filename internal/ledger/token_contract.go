package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ministake/ministake/internal/staking"
)

// TokenContract is the staked ERC20 token
type TokenContract struct {
	client       *Client
	contract     *bind.BoundContract
	contractABI  abi.ABI
	contractAddr common.Address
	mockMode     bool

	// Mock state
	mockSender     common.Address
	mockSymbol     string
	mockDecimals   uint8
	mockBalances   map[common.Address]*big.Int
	mockAllowances map[common.Address]map[common.Address]*big.Int
	mockMu         sync.RWMutex
}

// NewTokenContract binds the token at contractAddr. Without a connected
// client the contract runs in mock mode.
func NewTokenContract(client *Client, contractAddr common.Address) (*TokenContract, error) {
	if client == nil || !client.IsConnected() {
		return NewMockTokenContract(common.Address{}), nil
	}

	parsedABI, err := abi.JSON(strings.NewReader(TokenABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}

	backend := client.Backend()
	return &TokenContract{
		client:       client,
		contractABI:  parsedABI,
		contractAddr: contractAddr,
		contract:     bind.NewBoundContract(contractAddr, parsedABI, backend, backend, backend),
	}, nil
}

// NewMockTokenContract creates an in-memory token. sender is the account
// whose writes the mock applies.
func NewMockTokenContract(sender common.Address) *TokenContract {
	return &TokenContract{
		mockMode:       true,
		mockSender:     sender,
		mockSymbol:     "MST",
		mockDecimals:   staking.DefaultDecimals,
		mockBalances:   make(map[common.Address]*big.Int),
		mockAllowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// IsMockMode returns whether running in mock mode
func (tc *TokenContract) IsMockMode() bool {
	return tc.mockMode
}

// Address returns the token contract address
func (tc *TokenContract) Address() common.Address {
	return tc.contractAddr
}

// BalanceOf returns the token balance for an address
func (tc *TokenContract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	if tc.mockMode {
		tc.mockMu.RLock()
		defer tc.mockMu.RUnlock()
		return tc.mockBalanceLocked(account), nil
	}
	v, err := callBig(ctx, tc.contract, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return v, nil
}

// Allowance returns how much spender may move on behalf of owner
func (tc *TokenContract) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	if tc.mockMode {
		tc.mockMu.RLock()
		defer tc.mockMu.RUnlock()
		if v, ok := tc.mockAllowances[owner][spender]; ok {
			return new(big.Int).Set(v), nil
		}
		return big.NewInt(0), nil
	}
	v, err := callBig(ctx, tc.contract, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return v, nil
}

// Decimals returns the token's decimals
func (tc *TokenContract) Decimals(ctx context.Context) (uint8, error) {
	if tc.mockMode {
		return tc.mockDecimals, nil
	}
	var result []interface{}
	if err := tc.contract.Call(&bind.CallOpts{Context: ctx}, &result, "decimals"); err != nil {
		return 0, fmt.Errorf("failed to get decimals: %w", err)
	}
	if len(result) == 0 {
		return 0, fmt.Errorf("decimals: empty result")
	}
	d, ok := result[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", result[0])
	}
	return d, nil
}

// Symbol returns the token's ticker
func (tc *TokenContract) Symbol(ctx context.Context) (string, error) {
	if tc.mockMode {
		return tc.mockSymbol, nil
	}
	var result []interface{}
	if err := tc.contract.Call(&bind.CallOpts{Context: ctx}, &result, "symbol"); err != nil {
		return "", fmt.Errorf("failed to get symbol: %w", err)
	}
	if len(result) == 0 {
		return "", fmt.Errorf("symbol: empty result")
	}
	s, ok := result[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unexpected type %T", result[0])
	}
	return s, nil
}

// Approve lets spender move amount of the sender's tokens. The allowance is
// replaced, not added to.
func (tc *TokenContract) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*gethtypes.Transaction, error) {
	if tc.mockMode {
		tc.mockMu.Lock()
		defer tc.mockMu.Unlock()
		if tc.mockAllowances[tc.mockSender] == nil {
			tc.mockAllowances[tc.mockSender] = make(map[common.Address]*big.Int)
		}
		tc.mockAllowances[tc.mockSender][spender] = new(big.Int).Set(amount)
		return nil, nil
	}

	auth, err := tc.client.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction options: %w", err)
	}
	tx, err := tc.contract.Transact(auth, "approve", spender, amount)
	if err != nil {
		_ = tc.client.SyncNonce(ctx)
		return nil, fmt.Errorf("failed to approve: %w", err)
	}
	return tx, nil
}

// SetMockBalance sets the balance of an account in mock mode
func (tc *TokenContract) SetMockBalance(account common.Address, amount *big.Int) {
	tc.mockMu.Lock()
	defer tc.mockMu.Unlock()
	tc.mockBalances[account] = new(big.Int).Set(amount)
}

func (tc *TokenContract) mockBalanceLocked(account common.Address) *big.Int {
	if v, ok := tc.mockBalances[account]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// mockTransferFrom moves tokens from owner to `to`, spending spender's allowance
func (tc *TokenContract) mockTransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	tc.mockMu.Lock()
	defer tc.mockMu.Unlock()

	allowance := tc.mockAllowances[owner][spender]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: ERC20: insufficient allowance", staking.ErrTransactionReverted)
	}
	if err := tc.mockMoveLocked(owner, to, amount); err != nil {
		return err
	}
	tc.mockAllowances[owner][spender] = new(big.Int).Sub(allowance, amount)
	return nil
}

// mockTransfer moves tokens held by from
func (tc *TokenContract) mockTransfer(from, to common.Address, amount *big.Int) error {
	tc.mockMu.Lock()
	defer tc.mockMu.Unlock()
	return tc.mockMoveLocked(from, to, amount)
}

func (tc *TokenContract) mockMoveLocked(from, to common.Address, amount *big.Int) error {
	balance := tc.mockBalanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: ERC20: transfer amount exceeds balance", staking.ErrTransactionReverted)
	}
	tc.mockBalances[from] = balance.Sub(balance, amount)
	tc.mockBalances[to] = tc.mockBalanceLocked(to).Add(tc.mockBalanceLocked(to), amount)
	return nil
}

// callBig calls a view method returning a single uint256
func callBig(ctx context.Context, c *bind.BoundContract, method string, args ...interface{}) (*big.Int, error) {
	var result []interface{}
	if err := c.Call(&bind.CallOpts{Context: ctx}, &result, method, args...); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	v, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, result[0])
	}
	return v, nil
}
