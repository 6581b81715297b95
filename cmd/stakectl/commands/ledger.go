package commands

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ministake/ministake/internal/config"
	"github.com/ministake/ministake/internal/ledger"
	"github.com/ministake/ministake/internal/staking"
	"github.com/ministake/ministake/internal/util"
	"github.com/ministake/ministake/internal/wallet"
)

// Balances seeded into the mock ledger, in whole tokens
const (
	mockWalletTokens  = 1000
	mockFundingTokens = 10000
)

// app bundles what a command needs to talk to the ledger
type app struct {
	cfg     *config.Config
	ledger  *ledger.Ledger
	session *staking.Session
	symbol  string
}

// openApp connects to the ledger. signer unlocks the wallet for writes;
// without it the ledger is read-only and reads the wallet's address.
func openApp(ctx context.Context, signer bool, sessionCfg staking.SessionConfig) (*app, error) {
	cfg := currentConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := openLedger(ctx, cfg, signer)
	if err != nil {
		return nil, err
	}

	symbol, err := l.Symbol(ctx)
	if err != nil {
		symbol = ""
	}
	if sessionCfg.Decimals == 0 {
		sessionCfg.Decimals = cfg.Staking.TokenDecimals
	}
	return &app{
		cfg:     cfg,
		ledger:  l,
		session: staking.NewSession(l, sessionCfg),
		symbol:  symbol,
	}, nil
}

func (a *app) Close() {
	a.session.Stop()
	a.ledger.Close()
}

func (a *app) decimals() uint8 {
	return a.cfg.Staking.TokenDecimals
}

func (a *app) tokens(v *big.Int) string {
	return FormatTokens(v, a.decimals(), a.symbol)
}

func openLedger(ctx context.Context, cfg *config.Config, signer bool) (*ledger.Ledger, error) {
	if cfg.Mock {
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.Staking.TokenDecimals)), nil)
		return ledger.NewMock(ledger.MockOptions{
			Account: configuredAddress(cfg),
			Balance: new(big.Int).Mul(big.NewInt(mockWalletTokens), unit),
			Funding: new(big.Int).Mul(big.NewInt(mockFundingTokens), unit),
		}), nil
	}

	w, err := wallet.Load(cfg.Wallet.KeystoreDir, configuredAddress(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	opts := ledger.Options{
		Client: &ledger.ClientConfig{
			RPCURL:             cfg.Chain.RPCURL,
			WSEndpoint:         cfg.Chain.WSEndpoint,
			ChainID:            cfg.Chain.ChainID,
			BlockConfirmations: cfg.Chain.BlockConfirmations,
			MaxGasPrice:        cfg.Chain.MaxGasPriceWei(),
			RetryConfig:        util.DefaultRetryConfig(),
		},
		TokenAddress:   common.HexToAddress(cfg.Contracts.TokenAddress),
		StakingAddress: common.HexToAddress(cfg.Contracts.StakingAddress),
		Account:        configuredAddress(cfg),
	}

	switch {
	case signer && w == nil:
		return nil, fmt.Errorf("no wallet in %s (create one with: stakectl wallet create)", cfg.Wallet.KeystoreDir)
	case signer:
		key, err := unlockWallet(cfg, w)
		if err != nil {
			return nil, err
		}
		opts.Key = key
	case w != nil:
		opts.Account = w.Address()
	}

	l, err := ledger.Dial(ctx, opts)
	if err != nil {
		wallet.Zero(opts.Key)
		return nil, err
	}
	return l, nil
}

func unlockWallet(cfg *config.Config, w *wallet.Wallet) (*ecdsa.PrivateKey, error) {
	r := &wallet.Resolver{PasswordFile: cfg.Wallet.PasswordFile}
	if store, err := wallet.OpenPasswordStore(); err == nil {
		r.Store = store
	}
	if isInteractive() {
		r.Prompt = wallet.PromptPassword
	}
	return r.Unlock(w)
}

func configuredAddress(cfg *config.Config) common.Address {
	if cfg.Wallet.Address == "" {
		return common.Address{}
	}
	return common.HexToAddress(cfg.Wallet.Address)
}

// signalContext returns a context canceled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
