package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only and mainly serves CI and container deployments.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve gets the credential from environment variables
func (e *EnvironmentStore) Retrieve(provider string) (*Credential, error) {
	apiKey := os.Getenv("REDSCRAPE_SOLVER_API_KEY")
	endpoint := os.Getenv("REDSCRAPE_SOLVER_BASE_URL")

	if apiKey == "" {
		return nil, ErrCredentialsNotFound
	}

	// The environment holds a single key, so any provider name matches
	if provider == "" {
		provider = "capsolver"
	}

	return &Credential{
		Provider:     provider,
		APIKey:       apiKey,
		Endpoint:     endpoint,
		LastModified: time.Now(),
	}, nil
}

// List returns a single credential if the environment variable is set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(provider string) error {
	return ErrStoreUnavailable
}

// Exists checks if an environment credential exists
func (e *EnvironmentStore) Exists(provider string) bool {
	return os.Getenv("REDSCRAPE_SOLVER_API_KEY") != ""
}
