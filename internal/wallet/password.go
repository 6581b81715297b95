package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/ministake/ministake/internal/logging"
)

// EnvPassword names the environment variable holding the wallet password
const EnvPassword = "MINISTAKE_WALLET_PASSWORD"

const (
	keyringServiceName = "ministake"
	walletPasswordKey  = "wallet-password"
)

// ErrNoPassword is returned when no password source produced a value
var ErrNoPassword = errors.New("wallet password not available")

// PasswordStore keeps the wallet password in an OS keyring
type PasswordStore struct {
	ring    keyring.Keyring
	backend string
}

// NewPasswordStore wraps an already opened keyring
func NewPasswordStore(ring keyring.Keyring, backend string) *PasswordStore {
	return &PasswordStore{ring: ring, backend: backend}
}

// OpenPasswordStore opens the platform keyring: Keychain on macOS, Secret
// Service or KWallet on Linux.
func OpenPasswordStore() (*PasswordStore, error) {
	var backends []keyring.BackendType
	var name string
	switch runtime.GOOS {
	case "darwin":
		backends = []keyring.BackendType{keyring.KeychainBackend}
		name = "macOS Keychain"
	case "linux":
		backends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend}
		name = "Secret Service (GNOME Keyring / KDE Wallet)"
	default:
		return nil, fmt.Errorf("no keyring backend available on %s", runtime.GOOS)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    keyringServiceName,
		AllowedBackends:                backends,
		KeychainTrustApplication:       true,
		KeychainAccessibleWhenUnlocked: true,
		KeychainSynchronizable:         false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &PasswordStore{ring: ring, backend: name}, nil
}

// Backend returns a human-readable keyring name
func (s *PasswordStore) Backend() string {
	return s.backend
}

// Set stores the password
func (s *PasswordStore) Set(password string) error {
	err := s.ring.Set(keyring.Item{
		Key:         walletPasswordKey,
		Data:        []byte(password),
		Label:       "Ministake Wallet Password",
		Description: "Password for the ministake wallet keystore",
	})
	if err != nil {
		return fmt.Errorf("failed to store in %s: %w", s.backend, err)
	}
	return nil
}

// Get returns the stored password, or "" when none is stored
func (s *PasswordStore) Get() (string, error) {
	item, err := s.ring.Get(walletPasswordKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// Remove deletes the stored password. Removing nothing is not an error.
func (s *PasswordStore) Remove() error {
	err := s.ring.Remove(walletPasswordKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Resolver finds the wallet password. Sources are tried in order:
// environment, password file, keyring, interactive prompt.
type Resolver struct {
	PasswordFile string
	// Store may be nil when no keyring is available.
	Store *PasswordStore
	// Prompt may be nil for non-interactive use.
	Prompt func(label string) (string, error)
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Resolve returns the password and the name of the source it came from
func (r *Resolver) Resolve() (string, string, error) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if pw := getenv(EnvPassword); pw != "" {
		return pw, "environment", nil
	}

	if r.PasswordFile != "" {
		data, err := os.ReadFile(r.PasswordFile)
		if err != nil {
			logging.Warn("wallet password file unreadable",
				logging.Component("wallet"), "path", r.PasswordFile, logging.Err(err))
		} else if pw := strings.TrimRight(string(data), "\r\n"); pw != "" {
			return pw, "password file", nil
		}
	}

	if r.Store != nil {
		pw, err := r.Store.Get()
		if err != nil {
			logging.Debug("keyring lookup failed", logging.Component("wallet"), logging.Err(err))
		} else if pw != "" {
			return pw, r.Store.Backend(), nil
		}
	}

	if r.Prompt != nil {
		pw, err := r.Prompt("Enter wallet password: ")
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		if pw != "" {
			return pw, "prompt", nil
		}
	}
	return "", "", ErrNoPassword
}

// Unlock resolves the password and decrypts w's key
func (r *Resolver) Unlock(w *Wallet) (*ecdsa.PrivateKey, error) {
	pw, source, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	key, err := w.Unlock(pw)
	if err != nil {
		return nil, fmt.Errorf("unlock with password from %s: %w", source, err)
	}
	logging.Info("wallet unlocked",
		logging.Component("wallet"),
		logging.Address(w.Address().Hex()),
		"source", source)
	return key, nil
}

// PromptPassword reads a password from the terminal without echo
func PromptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
