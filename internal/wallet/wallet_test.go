package wallet

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const testPassword = "correct-horse-battery"

func TestLoad_EmptyDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keystore")

	w, err := Load(dir, common.Address{})
	if err != nil {
		t.Fatalf("Load on empty dir: %v", err)
	}
	if w != nil {
		t.Fatal("expected nil wallet for empty keystore")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected keystore directory to be created: %v", err)
	}
}

func TestCreate_ThenLoadAndUnlock(t *testing.T) {
	dir := t.TempDir()

	created, err := Create(dir, testPassword)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Address() == (common.Address{}) {
		t.Fatal("expected non-zero address")
	}

	loaded, err := Load(dir, common.Address{})
	if err != nil || loaded == nil {
		t.Fatalf("Load: %v, %v", loaded, err)
	}
	if loaded.Address() != created.Address() {
		t.Errorf("address mismatch: created=%s loaded=%s", created.Address().Hex(), loaded.Address().Hex())
	}
	if loaded.Dir() != dir {
		t.Errorf("Dir = %s, want %s", loaded.Dir(), dir)
	}

	key, err := loaded.Unlock(testPassword)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	defer Zero(key)
	if crypto.PubkeyToAddress(key.PublicKey) != created.Address() {
		t.Error("unlocked key does not match wallet address")
	}
}

func TestCreate_Refusals(t *testing.T) {
	dir := t.TempDir()

	if _, err := Create(dir, "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("short password: err = %v, want ErrWeakPassword", err)
	}
	if _, err := Create(dir, testPassword); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := Create(dir, testPassword); !errors.Is(err, ErrWalletExists) {
		t.Errorf("second Create: err = %v, want ErrWalletExists", err)
	}
}

func TestUnlock_WrongPassword(t *testing.T) {
	w, err := Create(t.TempDir(), testPassword)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Unlock("not-the-password"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("err = %v, want ErrBadPassword", err)
	}
}

func TestImport(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)
	hexKey := "0x" + hex.EncodeToString(crypto.FromECDSA(key))

	dir := t.TempDir()
	w, err := Import(dir, hexKey, testPassword)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if w.Address() != want {
		t.Errorf("Address = %s, want %s", w.Address().Hex(), want.Hex())
	}
	if _, err := os.Stat(w.KeyFile()); err != nil {
		t.Errorf("key file missing: %v", err)
	}

	if _, err := Import(t.TempDir(), "zz", testPassword); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := Import(dir, hexKey, testPassword); !errors.Is(err, ErrWalletExists) {
		t.Errorf("second Import: err = %v, want ErrWalletExists", err)
	}
}

func TestLoad_SelectsAddress(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, testPassword)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := Load(dir, w.Address())
	if err != nil || got.Address() != w.Address() {
		t.Fatalf("Load(%s) = %v, %v", w.Address().Hex(), got, err)
	}

	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	if _, err := Load(dir, other); !errors.Is(err, ErrNoWallet) {
		t.Errorf("unknown address: err = %v, want ErrNoWallet", err)
	}
}

func TestZero(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	Zero(key)
	if key.D.Sign() != 0 {
		t.Error("Zero should clear the scalar")
	}
	Zero(nil)
}

func newTestStore() *PasswordStore {
	return NewPasswordStore(keyring.NewArrayKeyring(nil), "test keyring")
}

func TestPasswordStore(t *testing.T) {
	s := newTestStore()

	if pw, err := s.Get(); err != nil || pw != "" {
		t.Fatalf("empty store Get = %q, %v", pw, err)
	}
	if err := s.Set(testPassword); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if pw, err := s.Get(); err != nil || pw != testPassword {
		t.Fatalf("Get = %q, %v", pw, err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if pw, _ := s.Get(); pw != "" {
		t.Errorf("Get after Remove = %q", pw)
	}
}

func TestResolver_Order(t *testing.T) {
	pwFile := filepath.Join(t.TempDir(), "pw")
	if err := os.WriteFile(pwFile, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	store := newTestStore()
	if err := store.Set("from-keyring"); err != nil {
		t.Fatal(err)
	}
	prompt := func(string) (string, error) { return "from-prompt", nil }
	env := func(v string) func(string) string {
		return func(string) string { return v }
	}

	tests := []struct {
		name       string
		r          Resolver
		want       string
		wantSource string
	}{
		{"environment first", Resolver{Getenv: env("from-env"), PasswordFile: pwFile, Store: store, Prompt: prompt}, "from-env", "environment"},
		{"file before keyring", Resolver{Getenv: env(""), PasswordFile: pwFile, Store: store, Prompt: prompt}, "from-file", "password file"},
		{"keyring before prompt", Resolver{Getenv: env(""), Store: store, Prompt: prompt}, "from-keyring", "test keyring"},
		{"prompt last", Resolver{Getenv: env(""), Prompt: prompt}, "from-prompt", "prompt"},
		{"missing file falls through", Resolver{Getenv: env(""), PasswordFile: pwFile + ".missing", Prompt: prompt}, "from-prompt", "prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pw, source, err := tt.r.Resolve()
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if pw != tt.want || source != tt.wantSource {
				t.Errorf("Resolve = %q from %q, want %q from %q", pw, source, tt.want, tt.wantSource)
			}
		})
	}
}

func TestResolver_NoSource(t *testing.T) {
	r := Resolver{Getenv: func(string) string { return "" }}
	if _, _, err := r.Resolve(); !errors.Is(err, ErrNoPassword) {
		t.Errorf("err = %v, want ErrNoPassword", err)
	}

	r.Prompt = func(string) (string, error) { return "", errors.New("no tty") }
	if _, _, err := r.Resolve(); err == nil || errors.Is(err, ErrNoPassword) {
		t.Errorf("prompt failure should be reported, got %v", err)
	}
}

func TestResolver_Unlock(t *testing.T) {
	w, err := Create(t.TempDir(), testPassword)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	good := Resolver{Getenv: func(string) string { return testPassword }}
	key, err := good.Unlock(w)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	Zero(key)

	bad := Resolver{Getenv: func(string) string { return "wrong-password" }}
	if _, err := bad.Unlock(w); !errors.Is(err, ErrBadPassword) {
		t.Errorf("err = %v, want ErrBadPassword", err)
	}
}
