package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/internal/util"
)

// ErrNotConnected is returned by calls that need an RPC connection
var ErrNotConnected = errors.New("not connected")

// ClientConfig holds the chain connection settings
type ClientConfig struct {
	RPCURL             string
	WSEndpoint         string
	ChainID            int64
	BlockConfirmations int
	MaxGasPrice        *big.Int // nil means uncapped
	PollInterval       time.Duration
	RetryConfig        *util.RetryConfig
}

// DefaultClientConfig returns Base Sepolia defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RPCURL:             "https://sepolia.base.org",
		ChainID:            84532,
		BlockConfirmations: 1,
		MaxGasPrice:        big.NewInt(100e9),
		PollInterval:       2 * time.Second,
		RetryConfig:        util.DefaultRetryConfig(),
	}
}

// Client is the RPC connection plus the signing key of the connected account
type Client struct {
	config     *ClientConfig
	client     *ethclient.Client
	wsClient   *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	nonceMu      sync.Mutex
	pendingNonce uint64

	connected bool
	mu        sync.RWMutex
}

// NewClient creates a client. privateKey may be nil for read-only use.
func NewClient(config *ClientConfig, privateKey *ecdsa.PrivateKey) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.RetryConfig == nil {
		config.RetryConfig = util.DefaultRetryConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}

	c := &Client{
		config:     config,
		privateKey: privateKey,
		chainID:    big.NewInt(config.ChainID),
	}
	if privateKey != nil {
		c.address = crypto.PubkeyToAddress(privateKey.PublicKey)
	}
	return c
}

// Connect dials the RPC endpoint, verifies the chain ID and primes the nonce.
// The WebSocket endpoint is optional; failing to reach it only disables
// event subscriptions.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, result := util.RetryWithValue(ctx, c.config.RetryConfig, func() (*ethclient.Client, error) {
		cl, err := ethclient.DialContext(ctx, c.config.RPCURL)
		if err != nil && strings.Contains(err.Error(), "no known transport") {
			// Malformed URL; another attempt cannot succeed.
			return nil, util.MarkNonRetryable(err)
		}
		return cl, err
	})
	if result.LastError != nil {
		return fmt.Errorf("failed to connect to RPC: %w", result.LastError)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID.Cmp(c.chainID) != 0 {
		client.Close()
		return fmt.Errorf("chain ID mismatch: expected %d, got %d", c.chainID, chainID)
	}

	if c.privateKey != nil {
		nonce, err := client.PendingNonceAt(ctx, c.address)
		if err != nil {
			client.Close()
			return fmt.Errorf("failed to get nonce: %w", err)
		}
		c.pendingNonce = nonce
	}

	if c.config.WSEndpoint != "" {
		ws, err := ethclient.DialContext(ctx, c.config.WSEndpoint)
		if err != nil {
			logging.Warn("websocket endpoint unreachable, event subscriptions disabled",
				logging.Component("ledger-client"), logging.Err(err))
		} else {
			c.wsClient = ws
		}
	}

	c.client = client
	c.connected = true
	logging.Info("connected to chain",
		logging.Component("ledger-client"),
		"chain_id", chainID.String(),
		logging.Address(c.address.Hex()))
	return nil
}

// Close closes both connections
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	if c.wsClient != nil {
		c.wsClient.Close()
		c.wsClient = nil
	}
	c.connected = false
}

// IsConnected returns true after a successful Connect
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Backend returns the RPC client, or nil when not connected
func (c *Client) Backend() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// WSClient returns the subscription client, or nil
func (c *Client) WSClient() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wsClient
}

// HasWSConfig reports whether a WebSocket endpoint is configured
func (c *Client) HasWSConfig() bool {
	return c.config.WSEndpoint != ""
}

// ReconnectWS replaces the WebSocket connection
func (c *Client) ReconnectWS(ctx context.Context) error {
	if !c.HasWSConfig() {
		return fmt.Errorf("no websocket endpoint configured")
	}
	ws, err := ethclient.DialContext(ctx, c.config.WSEndpoint)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	c.mu.Lock()
	old := c.wsClient
	c.wsClient = ws
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Address returns the signing account
func (c *Client) Address() common.Address {
	return c.address
}

// ChainID returns the configured chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// TransactOpts builds signing options with a capped gas price and the next
// local nonce.
func (c *Client) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.privateKey == nil {
		return nil, staking.ErrNoAccount
	}

	client := c.Backend()
	if client == nil {
		return nil, ErrNotConnected
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if c.config.MaxGasPrice != nil && gasPrice.Cmp(c.config.MaxGasPrice) > 0 {
		gasPrice = new(big.Int).Set(c.config.MaxGasPrice)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasPrice = gasPrice

	c.nonceMu.Lock()
	auth.Nonce = new(big.Int).SetUint64(c.pendingNonce)
	c.pendingNonce++
	c.nonceMu.Unlock()

	return auth, nil
}

// SyncNonce resets the local nonce from the chain. Called after a send fails
// so a rejected transaction does not leave a nonce gap.
func (c *Client) SyncNonce(ctx context.Context) error {
	client := c.Backend()
	if client == nil {
		return ErrNotConnected
	}

	nonce, err := client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}

	c.nonceMu.Lock()
	c.pendingNonce = nonce
	c.nonceMu.Unlock()
	return nil
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	client := c.Backend()
	if client == nil {
		return 0, ErrNotConnected
	}
	return client.BlockNumber(ctx)
}

// WaitForTransaction waits until tx is mined and buried under the configured
// number of confirmations. The caller bounds the wait through ctx.
func (c *Client) WaitForTransaction(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	client := c.Backend()
	if client == nil {
		return nil, ErrNotConnected
	}

	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for transaction: %w", err)
	}
	if receipt.Status == gethtypes.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: %s", staking.ErrTransactionReverted, tx.Hash().Hex())
	}
	if c.config.BlockConfirmations <= 1 {
		return receipt, nil
	}

	target := receipt.BlockNumber.Uint64() + uint64(c.config.BlockConfirmations) - 1
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return receipt, ctx.Err()
		case <-ticker.C:
			current, err := client.BlockNumber(ctx)
			if err != nil {
				continue
			}
			if current >= target {
				return receipt, nil
			}
		}
	}
}
