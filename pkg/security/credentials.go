package security

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/agora/pkg/errdefs"
)

// PaymentCredentials are the per-tenant secrets needed to talk to the
// payment provider. They are never stored in the clear.
type PaymentCredentials struct {
	Provider      string `json:"provider"`
	APIKey        string `json:"api_key"`
	WebhookSecret string `json:"webhook_secret"`
}

// CredentialStore persists sealed credential blobs keyed by tenant.
type CredentialStore interface {
	PutPaymentCredential(tenantID string, sealed []byte) error
	GetPaymentCredential(tenantID string) ([]byte, error)
}

// CredentialVault seals payment credentials before they reach the store and
// opens them on the way back out.
type CredentialVault struct {
	vault *Vault
	store CredentialStore
}

func NewCredentialVault(vault *Vault, store CredentialStore) *CredentialVault {
	return &CredentialVault{vault: vault, store: store}
}

// Put validates, seals, and stores credentials for a tenant.
func (c *CredentialVault) Put(tenantID string, creds PaymentCredentials) error {
	if tenantID == "" {
		return errdefs.Validationf("tenant id is required")
	}
	if creds.Provider == "" {
		return errdefs.Validationf("payment provider is required")
	}
	if creds.APIKey == "" {
		return errdefs.Validationf("payment api key is required")
	}
	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	sealed, err := c.vault.Seal(plain)
	if err != nil {
		return fmt.Errorf("seal credentials for tenant %s: %w", tenantID, err)
	}
	return c.store.PutPaymentCredential(tenantID, sealed)
}

// Get loads and opens the credentials for a tenant.
func (c *CredentialVault) Get(tenantID string) (*PaymentCredentials, error) {
	sealed, err := c.store.GetPaymentCredential(tenantID)
	if err != nil {
		return nil, err
	}
	plain, err := c.vault.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open credentials for tenant %s: %w", tenantID, err)
	}
	var creds PaymentCredentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials for tenant %s: %w", tenantID, err)
	}
	return &creds, nil
}
