package keyring

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/zalando/go-keyring"
)

// useMockKeyring resets the backend to an in-memory system keyring.
func useMockKeyring(t *testing.T) {
	t.Helper()
	keyring.MockInit()
	initOnce = sync.Once{}
	localStoreMu.Lock()
	useLocalStorage = false
	localStore = nil
	localStoreMu.Unlock()
}

// useFileStore resets the backend to the encrypted file store at path.
func useFileStore(t *testing.T, path string) {
	t.Helper()
	initOnce = sync.Once{}
	initOnce.Do(func() {})
	initLocalStorage(path)
}

func TestSystemKeyring(t *testing.T) {
	useMockKeyring(t)

	if _, err := Get("bridge-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty keyring error = %v, want ErrNotFound", err)
	}

	if err := Store("bridge-token", "s3cret"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	got, err := Get("bridge-token")
	if err != nil || got != "s3cret" {
		t.Fatalf("Get() = %q, %v; want s3cret", got, err)
	}
	if !Exists("bridge-token") {
		t.Error("Exists() = false after Store")
	}

	if err := Delete("bridge-token"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if Exists("bridge-token") {
		t.Error("Exists() = true after Delete")
	}
	if err := Delete("bridge-token"); err != nil {
		t.Errorf("Delete() of missing secret error = %v", err)
	}
}

func TestValidation(t *testing.T) {
	useMockKeyring(t)

	if err := Store("", "x"); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Store(empty account) error = %v", err)
	}
	if err := Store("a", ""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Store(empty secret) error = %v", err)
	}
	if _, err := Get(""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Get(empty account) error = %v", err)
	}
	if err := Delete(""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Delete(empty account) error = %v", err)
	}
}

func TestGetOrCreate(t *testing.T) {
	useMockKeyring(t)

	calls := 0
	generate := func() string {
		calls++
		return "generated"
	}

	first, err := GetOrCreate("bridge-token", generate)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := GetOrCreate("bridge-token", generate)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if first != "generated" || second != "generated" {
		t.Errorf("GetOrCreate() = %q, %q", first, second)
	}
	if calls != 1 {
		t.Errorf("generate called %d times, want 1", calls)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".credentials")
	useFileStore(t, path)

	if err := Store("bridge-token", "file-secret"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("store file not written: %v", err)
	}
	if strings.Contains(string(data), "file-secret") {
		t.Error("store file contains the plaintext secret")
	}

	// A fresh load must decrypt what was written.
	useFileStore(t, path)
	got, err := Get("bridge-token")
	if err != nil || got != "file-secret" {
		t.Fatalf("Get() after reload = %q, %v", got, err)
	}

	if err := Delete("bridge-token"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	useFileStore(t, path)
	if Exists("bridge-token") {
		t.Error("secret still present after Delete and reload")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	useFileStore(t, filepath.Join(t.TempDir(), ".credentials"))

	plaintext := []byte(`{"bridge-token":"abc"}`)
	a, err := encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	b, err := encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) == string(b) {
		t.Error("encrypt() should use a fresh nonce each time")
	}

	got, err := decrypt(a)
	if err != nil {
		t.Fatalf("decrypt() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("decrypt() = %q, want %q", got, plaintext)
	}

	if _, err := decrypt([]byte("AAAA")); err == nil {
		t.Error("decrypt() of short input should fail")
	}
}
