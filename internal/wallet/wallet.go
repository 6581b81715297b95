package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MinPasswordLength is the shortest password accepted for a new keystore
const MinPasswordLength = 8

var (
	ErrWalletExists = errors.New("wallet already exists")
	ErrNoWallet     = errors.New("no wallet found")
	ErrBadPassword  = errors.New("could not decrypt key (wrong password?)")
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// Scrypt parameters for new keys. Tests lower them.
var (
	scryptN = keystore.StandardScryptN
	scryptP = keystore.StandardScryptP
)

// Wallet is one account in a geth V3 keystore directory
type Wallet struct {
	ks      *keystore.KeyStore
	dir     string
	account accounts.Account
}

func openKeystore(dir string) (*keystore.KeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return keystore.NewKeyStore(dir, scryptN, scryptP), nil
}

// Load opens the wallet in dir. A zero address selects the first account.
// It returns (nil, nil) when the directory holds no key, which callers
// treat as read-only mode.
func Load(dir string, address common.Address) (*Wallet, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	accs := ks.Accounts()
	if len(accs) == 0 {
		return nil, nil
	}
	if address == (common.Address{}) {
		return &Wallet{ks: ks, dir: dir, account: accs[0]}, nil
	}
	for _, a := range accs {
		if a.Address == address {
			return &Wallet{ks: ks, dir: dir, account: a}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not in %s", ErrNoWallet, address.Hex(), dir)
}

// Create generates a new key in dir. It refuses to add a second key.
func Create(dir, password string) (*Wallet, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if accs := ks.Accounts(); len(accs) > 0 {
		return nil, fmt.Errorf("%w in %s (address: %s)", ErrWalletExists, dir, accs[0].Address.Hex())
	}
	acc, err := ks.NewAccount(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &Wallet{ks: ks, dir: dir, account: acc}, nil
}

// Import encrypts a hex private key (with or without 0x) into dir
func Import(dir, privKeyHex, password string) (*Wallet, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	defer Zero(key)

	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if accs := ks.Accounts(); len(accs) > 0 {
		return nil, fmt.Errorf("%w in %s (address: %s)", ErrWalletExists, dir, accs[0].Address.Hex())
	}
	acc, err := ks.ImportECDSA(key, password)
	if err != nil {
		return nil, fmt.Errorf("failed to import key: %w", err)
	}
	return &Wallet{ks: ks, dir: dir, account: acc}, nil
}

// Address returns the wallet's account
func (w *Wallet) Address() common.Address {
	return w.account.Address
}

// Dir returns the keystore directory
func (w *Wallet) Dir() string {
	return w.dir
}

// KeyFile returns the path of the encrypted key file
func (w *Wallet) KeyFile() string {
	return w.account.URL.Path
}

// Unlock decrypts the signing key. Callers should Zero it when done.
func (w *Wallet) Unlock(password string) (*ecdsa.PrivateKey, error) {
	keyJSON, err := os.ReadFile(w.account.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPassword, err)
	}
	if key.Address != w.account.Address {
		Zero(key.PrivateKey)
		return nil, fmt.Errorf("key file %s holds %s, expected %s",
			w.account.URL.Path, key.Address.Hex(), w.account.Address.Hex())
	}
	return key.PrivateKey, nil
}

// Zero clears a private key's scalar
func Zero(key *ecdsa.PrivateKey) {
	if key != nil && key.D != nil {
		key.D.SetUint64(0)
	}
}
