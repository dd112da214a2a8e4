// Package keyring provides secure secret storage.
// It uses the system keyring when available, falling back to
// encrypted local file storage when not.
package keyring

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/yllada/wa-desktop/common"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = common.ConfigDirName
)

// Common errors returned by keyring operations.
var (
	ErrNotFound    = errors.New("secret not found")
	ErrEmptyKey    = errors.New("account cannot be empty")
	ErrEmptySecret = errors.New("secret cannot be empty")
)

// Storage backend state
var (
	initOnce        sync.Once
	useLocalStorage bool
	localStoreMu    sync.RWMutex
	localStore      map[string]string
	localStoreFile  string
	encryptionKey   []byte
)

// initStorage probes the system keyring once and picks the backend.
func initStorage() {
	initOnce.Do(func() {
		testKey := serviceName + "-probe"
		if err := keyring.Set(serviceName, testKey, "probe"); err == nil {
			keyring.Delete(serviceName, testKey)
			return
		}
		common.LogWarn("System keyring unavailable, using encrypted file storage")
		configDir, err := common.GetConfigDir()
		if err != nil {
			configDir = os.TempDir()
		}
		initLocalStorage(filepath.Join(configDir, common.CredentialsFileName))
	})
}

// initLocalStorage switches to the encrypted file backend stored at path.
func initLocalStorage(path string) {
	localStoreMu.Lock()
	defer localStoreMu.Unlock()

	useLocalStorage = true
	localStoreFile = path

	hostname, _ := os.Hostname()
	secret := fmt.Sprintf("%s-%s-%d", hostname, getMachineID(), os.Getuid())
	hash := sha256.Sum256([]byte(secret))
	encryptionKey = hash[:]

	localStore = make(map[string]string)
	loadLocalStore()
}

func getMachineID() string {
	data, err := os.ReadFile("/etc/machine-id")
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default-machine-id"
}

// loadLocalStore reads the store file. Callers hold localStoreMu.
func loadLocalStore() {
	data, err := os.ReadFile(localStoreFile)
	if err != nil {
		return
	}

	decrypted, err := decrypt(data)
	if err != nil {
		common.LogWarn("Ignoring unreadable secret store %s: %v", localStoreFile, err)
		return
	}

	json.Unmarshal(decrypted, &localStore)
}

func saveLocalStore() error {
	localStoreMu.RLock()
	data, err := json.Marshal(localStore)
	path := localStoreFile
	localStoreMu.RUnlock()
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return renameio.WriteFile(path, encrypted, 0600)
}

func encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(encryptionKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(encryptionKey)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

func isLocal() bool {
	localStoreMu.RLock()
	defer localStoreMu.RUnlock()
	return useLocalStorage
}

func setLocal(account, secret string) error {
	localStoreMu.Lock()
	localStore[account] = secret
	localStoreMu.Unlock()
	return saveLocalStore()
}

// Store saves a secret under account.
func Store(account, secret string) error {
	if account == "" {
		return ErrEmptyKey
	}
	if secret == "" {
		return ErrEmptySecret
	}
	initStorage()

	if isLocal() {
		return setLocal(account, secret)
	}

	if err := keyring.Set(serviceName, account, secret); err != nil {
		common.LogWarn("Keyring write failed, falling back to file storage: %v", err)
		configDir, dirErr := common.GetConfigDir()
		if dirErr != nil {
			return dirErr
		}
		initLocalStorage(filepath.Join(configDir, common.CredentialsFileName))
		return setLocal(account, secret)
	}
	return nil
}

// Get retrieves the secret stored under account.
func Get(account string) (string, error) {
	if account == "" {
		return "", ErrEmptyKey
	}
	initStorage()

	if !isLocal() {
		secret, err := keyring.Get(serviceName, account)
		if err == nil {
			return secret, nil
		}
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading keyring: %w", err)
	}

	localStoreMu.RLock()
	secret, exists := localStore[account]
	localStoreMu.RUnlock()
	if !exists {
		return "", ErrNotFound
	}
	return secret, nil
}

// Delete removes the secret stored under account.
func Delete(account string) error {
	if account == "" {
		return ErrEmptyKey
	}
	initStorage()

	if !isLocal() {
		if err := keyring.Delete(serviceName, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
		return nil
	}

	localStoreMu.Lock()
	delete(localStore, account)
	localStoreMu.Unlock()
	return saveLocalStore()
}

// Exists checks if a secret is stored under account.
func Exists(account string) bool {
	_, err := Get(account)
	return err == nil
}

// GetOrCreate returns the secret stored under account, storing the result
// of generate first when there is none.
func GetOrCreate(account string, generate func() string) (string, error) {
	secret, err := Get(account)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	secret = generate()
	if err := Store(account, secret); err != nil {
		return "", err
	}
	return secret, nil
}
