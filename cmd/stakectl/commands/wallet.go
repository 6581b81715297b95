package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ministake/ministake/internal/wallet"
)

// NewWalletCmd creates the wallet command group
func NewWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the signing wallet",
		Long: `Manage the Ethereum wallet that signs approve, stake and withdraw
transactions. The key is kept in an encrypted keystore file (geth V3 format).

The wallet password is looked up in this order:
  1. MINISTAKE_WALLET_PASSWORD environment variable
  2. wallet.password_file in config.yaml
  3. Platform keyring (macOS Keychain, GNOME Keyring / KDE Wallet)
  4. Interactive prompt

Examples:
  stakectl wallet create     # Generate a new wallet
  stakectl wallet import     # Import from a private key
  stakectl wallet show       # Show address and keystore path
  stakectl wallet remember   # Save the password in the keyring
  stakectl wallet forget     # Remove the password from the keyring`,
	}

	cmd.AddCommand(newWalletCreateCmd())
	cmd.AddCommand(newWalletImportCmd())
	cmd.AddCommand(newWalletShowCmd())
	cmd.AddCommand(newWalletRememberCmd())
	cmd.AddCommand(newWalletForgetCmd())

	return cmd
}

const maxAttempts = 3

func keystoreDir(flag string) string {
	if flag != "" {
		return flag
	}
	return currentConfig().Wallet.KeystoreDir
}

// choosePassword prompts for a new password and its confirmation
func choosePassword() (string, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		password, err := wallet.PromptPassword("Enter wallet password: ")
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if len(password) < wallet.MinPasswordLength {
			Warning(fmt.Sprintf("Password must be at least %d characters. Try again.", wallet.MinPasswordLength))
			continue
		}
		confirm, err := wallet.PromptPassword("Confirm wallet password: ")
		if err != nil {
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		if password != confirm {
			Warning("Passwords do not match. Try again.")
			continue
		}
		return password, nil
	}
	return "", fmt.Errorf("too many failed attempts")
}

// rememberPassword stores password in the platform keyring when one exists
func rememberPassword(password string) {
	store, err := wallet.OpenPasswordStore()
	if err == nil {
		err = store.Set(password)
	}
	if err != nil {
		fmt.Println("  Could not store password in a keyring.")
		fmt.Println("  For automatic unlock, set one of:")
		fmt.Println("    - " + wallet.EnvPassword + " environment variable")
		fmt.Println("    - wallet.password_file in config.yaml")
		return
	}
	fmt.Printf("  Password saved to %s\n", store.Backend())
}

func printWallet(w *wallet.Wallet) {
	fmt.Println(StatusBox("Wallet", [][2]string{
		{"Address", w.Address().Hex()},
		{"Keystore", w.Dir()},
		{"Key file", w.KeyFile()},
	}))
}

func newWalletCreateCmd() *cobra.Command {
	var dir string
	var remember bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet",
		Long:  "Create a new Ethereum wallet with a password-encrypted keystore file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = keystoreDir(dir)
			password, err := choosePassword()
			if err != nil {
				return err
			}
			w, err := wallet.Create(dir, password)
			if err != nil {
				return err
			}

			fmt.Println()
			Success("Wallet created!")
			printWallet(w)
			if remember {
				rememberPassword(password)
			}
			fmt.Println()
			Warning("Back up your keystore directory and remember your password.")
			fmt.Println(Hint("If you lose either, your staked funds are unrecoverable."))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "keystore", "", "Path to keystore directory (default from config)")
	cmd.Flags().BoolVar(&remember, "remember", true, "Save the password in the platform keyring")
	return cmd
}

func newWalletImportCmd() *cobra.Command {
	var dir string
	var remember bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a wallet from a private key",
		Long:  "Import an existing Ethereum private key into an encrypted keystore file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = keystoreDir(dir)

			var privKeyHex string
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				input, err := wallet.PromptPassword("Enter private key (hex, with or without 0x prefix): ")
				if err != nil {
					return fmt.Errorf("failed to read private key: %w", err)
				}
				input = strings.TrimPrefix(strings.TrimSpace(input), "0x")
				if len(input) != 64 {
					Warning(fmt.Sprintf("Private key must be 64 hex characters, got %d. Try again.", len(input)))
					continue
				}
				privKeyHex = input
				break
			}
			if privKeyHex == "" {
				return fmt.Errorf("too many failed attempts")
			}

			password, err := choosePassword()
			if err != nil {
				return err
			}
			w, err := wallet.Import(dir, privKeyHex, password)
			if err != nil {
				return err
			}

			fmt.Println()
			Success("Wallet imported!")
			printWallet(w)
			if remember {
				rememberPassword(password)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "keystore", "", "Path to keystore directory (default from config)")
	cmd.Flags().BoolVar(&remember, "remember", true, "Save the password in the platform keyring")
	return cmd
}

func newWalletShowCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show wallet address and keystore path",
		Long:  "Display the wallet address and keystore directory. No password needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = keystoreDir(dir)
			w, err := wallet.Load(dir, configuredAddress(currentConfig()))
			if err != nil {
				return fmt.Errorf("failed to load wallet: %w", err)
			}
			if w == nil {
				Info("No wallet found in " + dir)
				fmt.Println(Hint("Create one with: stakectl wallet create"))
				return nil
			}

			pwStatus := "not stored (prompted when needed)"
			switch {
			case os.Getenv(wallet.EnvPassword) != "":
				pwStatus = "from " + wallet.EnvPassword
			case currentConfig().Wallet.PasswordFile != "":
				pwStatus = "from " + currentConfig().Wallet.PasswordFile
			default:
				if store, err := wallet.OpenPasswordStore(); err == nil {
					if pw, err := store.Get(); err == nil && pw != "" {
						pwStatus = "stored in " + store.Backend()
					}
				}
			}

			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", w.Address().Hex()},
				{"Keystore", w.Dir()},
				{"Password", pwStatus},
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "keystore", "", "Path to keystore directory (default from config)")
	return cmd
}

func newWalletRememberCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "remember",
		Short: "Save the wallet password in the platform keyring",
		Long:  "Prompt for the wallet password, check that it unlocks the key and save it in the platform keyring.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = keystoreDir(dir)
			w, err := wallet.Load(dir, configuredAddress(currentConfig()))
			if err != nil {
				return fmt.Errorf("failed to load wallet: %w", err)
			}
			if w == nil {
				return fmt.Errorf("no wallet found in %s", dir)
			}

			password, err := wallet.PromptPassword("Enter wallet password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			key, err := w.Unlock(password)
			if err != nil {
				return err
			}
			wallet.Zero(key)

			store, err := wallet.OpenPasswordStore()
			if err != nil {
				return err
			}
			if err := store.Set(password); err != nil {
				return fmt.Errorf("failed to save password: %w", err)
			}
			Success("Password saved to " + store.Backend())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "keystore", "", "Path to keystore directory (default from config)")
	return cmd
}

func newWalletForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Remove the wallet password from the platform keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := wallet.OpenPasswordStore()
			if err != nil {
				return err
			}
			if err := store.Remove(); err != nil {
				return fmt.Errorf("failed to remove password: %w", err)
			}
			Success("Password removed from " + store.Backend())
			return nil
		},
	}
}
