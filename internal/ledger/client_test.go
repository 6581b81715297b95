package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/internal/util"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(nil, nil)
	if c.ChainID().Int64() != 84532 {
		t.Errorf("expected Base Sepolia chain id, got %s", c.ChainID())
	}
	if c.IsConnected() {
		t.Error("new client should not be connected")
	}
	if c.HasWSConfig() {
		t.Error("default config has no websocket endpoint")
	}
	if c.Address() != (common.Address{}) {
		t.Error("read-only client should have zero address")
	}
}

func TestNewClient_AddressFromKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(&ClientConfig{ChainID: 1}, key)
	if c.Address() != crypto.PubkeyToAddress(key.PublicKey) {
		t.Error("client address does not match key")
	}
}

func TestClient_NotConnected(t *testing.T) {
	ctx := context.Background()

	c := NewClient(nil, nil)
	if _, err := c.TransactOpts(ctx); !errors.Is(err, staking.ErrNoAccount) {
		t.Errorf("expected ErrNoAccount without key, got %v", err)
	}

	key, _ := crypto.GenerateKey()
	c = NewClient(nil, key)
	if _, err := c.TransactOpts(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := c.BlockNumber(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := c.SyncNonce(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := c.ReconnectWS(ctx); err == nil {
		t.Error("expected error without websocket endpoint")
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})
	if _, err := c.WaitForTransaction(ctx, tx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	c.Close()
}

func TestClient_ConnectBadScheme(t *testing.T) {
	attempts := 0
	cfg := &ClientConfig{RPCURL: "ftp://rpc.invalid", ChainID: 1, RetryConfig: &util.RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Hour,
		RetryIf: func(error) bool {
			attempts++
			return true
		},
	}}
	c := NewClient(cfg, nil)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error for unsupported scheme")
	}
	if attempts != 0 {
		t.Errorf("unsupported scheme should not be retried, RetryIf called %d times", attempts)
	}
}

func TestLedger_WaitConfirmedWithoutClient(t *testing.T) {
	l, _ := newTestMock(t)
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})
	if err := l.WaitConfirmed(context.Background(), tx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
