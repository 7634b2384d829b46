package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	cred := &Credential{
		Provider:     "capsolver",
		APIKey:       "CAP-1234567890abcdef",
		LastModified: time.Now(),
	}

	err := manager.Store(cred)
	if err != nil {
		t.Errorf("Failed to store credential: %v", err)
	}

	retrieved, err := manager.Retrieve("capsolver")
	if err != nil {
		t.Errorf("Failed to retrieve credential: %v", err)
	}

	if retrieved.Provider != cred.Provider {
		t.Errorf("Provider mismatch: got %s, want %s", retrieved.Provider, cred.Provider)
	}
	if retrieved.APIKey != cred.APIKey {
		t.Errorf("APIKey mismatch: got %s, want %s", retrieved.APIKey, cred.APIKey)
	}

	creds, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list credentials: %v", err)
	}
	if len(creds) == 0 {
		t.Error("Expected at least one credential in list")
	}

	sanitized := SanitizeCredential(cred)
	if sanitized.APIKey == cred.APIKey {
		t.Error("APIKey should be masked")
	}
	if sanitized.Provider != cred.Provider {
		t.Error("Provider should not be masked")
	}

	err = manager.Delete("capsolver")
	if err != nil {
		t.Errorf("Failed to delete credential: %v", err)
	}

	_, err = manager.Retrieve("capsolver")
	if err == nil {
		t.Error("Expected error retrieving deleted credential")
	}

	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 credentials after deletion, got %d", mockStore.Count())
	}
}

func TestManagerRejectsIncompleteCredential(t *testing.T) {
	manager, _ := NewMockManager()

	if err := manager.Store(&Credential{APIKey: "key-only"}); err == nil {
		t.Error("Expected error storing credential without provider")
	}
	if err := manager.Store(&Credential{Provider: "capsolver"}); err == nil {
		t.Error("Expected error storing credential without API key")
	}
}

func TestManagerFallbackChain(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = ErrStoreUnavailable
	broken.RetrieveError = ErrStoreUnavailable
	working := NewMockStore()

	manager := NewMockManagerWithStores(broken, working)

	cred := &Credential{Provider: "capsolver", APIKey: "CAP-fallback-key"}
	if err := manager.Store(cred); err != nil {
		t.Fatalf("Store should fall through to the working store: %v", err)
	}

	if broken.Count() != 0 {
		t.Error("Broken store should not hold the credential")
	}
	if working.Count() != 1 {
		t.Error("Working store should hold the credential")
	}

	retrieved, err := manager.Retrieve("capsolver")
	if err != nil {
		t.Fatalf("Retrieve should fall through to the working store: %v", err)
	}
	if retrieved.APIKey != cred.APIKey {
		t.Errorf("APIKey mismatch: got %s, want %s", retrieved.APIKey, cred.APIKey)
	}
}

func TestEncryptedFileStore(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "test_creds.enc")

	os.Setenv("REDSCRAPE_PASSPHRASE", "test_passphrase_123")
	defer os.Unsetenv("REDSCRAPE_PASSPHRASE")

	store, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	cred := &Credential{
		Provider: "capsolver",
		APIKey:   "CAP-encrypted-secret",
		Endpoint: "https://api.capsolver.com",
	}

	err = store.Store(cred)
	if err != nil {
		t.Errorf("Failed to store in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve("capsolver")
	if err != nil {
		t.Errorf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.APIKey != cred.APIKey {
		t.Errorf("APIKey mismatch after encryption round trip")
	}
	if retrieved.Endpoint != cred.Endpoint {
		t.Errorf("Endpoint mismatch after encryption round trip")
	}

	// The key must never appear in the file on disk
	raw, err := os.ReadFile(tempFile)
	if err != nil {
		t.Fatalf("Failed to read encrypted file: %v", err)
	}
	if strings.Contains(string(raw), cred.APIKey) {
		t.Error("API key stored in plaintext")
	}

	// A new store with the same passphrase reads the same data
	store2, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatalf("Failed to reopen encrypted store: %v", err)
	}
	if !store2.Exists("capsolver") {
		t.Error("Reopened store should see the stored credential")
	}

	// Deleting the last credential removes the file
	if err := store.Delete("capsolver"); err != nil {
		t.Errorf("Failed to delete credential: %v", err)
	}
	if _, err := os.Stat(tempFile); !os.IsNotExist(err) {
		t.Error("File should be removed after deleting last credential")
	}
}

func TestEnvironmentStore(t *testing.T) {
	os.Setenv("REDSCRAPE_SOLVER_API_KEY", "CAP-from-env")
	defer os.Unsetenv("REDSCRAPE_SOLVER_API_KEY")

	store := NewEnvironmentStore()

	cred, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if cred.APIKey != "CAP-from-env" {
		t.Errorf("APIKey mismatch: got %s", cred.APIKey)
	}
	if cred.Provider != "capsolver" {
		t.Errorf("Expected default provider, got %s", cred.Provider)
	}

	if err := store.Store(cred); err != ErrStoreUnavailable {
		t.Error("Environment store should reject writes")
	}
	if err := store.Delete("capsolver"); err != ErrStoreUnavailable {
		t.Error("Environment store should reject deletes")
	}

	os.Unsetenv("REDSCRAPE_SOLVER_API_KEY")
	if store.Exists("capsolver") {
		t.Error("Exists should be false without the environment variable")
	}
}

func TestMaskString(t *testing.T) {
	if got := maskString("short"); got != "********" {
		t.Errorf("Short strings should be fully masked, got %s", got)
	}

	masked := maskString("CAP-1234567890abcdef")
	if masked != "CAP-...cdef" {
		t.Errorf("Unexpected mask: %s", masked)
	}
}
