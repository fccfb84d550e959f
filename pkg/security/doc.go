/*
Package security seals tenant payment credentials with AES-256-GCM.

Provider API keys and webhook secrets must never reach the store in the
clear. The Vault encrypts small blobs with authenticated encryption and a
fresh random nonce per seal; the nonce is prepended so every sealed blob is
self-contained.

# Vault

The vault key is 32 bytes. It can be supplied raw or derived from an
operator passphrase:

	vaultKey = SHA-256(passphrase)

Sealing:

 1. Generate random 12-byte nonce
 2. Encrypt plaintext with AES-256-GCM
 3. Prepend nonce: [nonce || ciphertext || tag]

Opening reverses the process and fails on any tampering, truncation, or
wrong key. GCM's authentication tag makes silent corruption impossible.

# Payment Credentials

CredentialVault is the typed layer on top: it JSON-encodes a tenant's
PaymentCredentials, seals the blob, and hands it to the store keyed by
tenant ID. Reads open and decode in reverse. Callers never see sealed
bytes, and the store never sees plaintext.

	vault, _ := security.NewVaultFromPassphrase(cfg.Payments.CredentialPassphrase)
	creds := security.NewCredentialVault(vault, store)

	err := creds.Put("t-abc", security.PaymentCredentials{
		Provider:      "stripe",
		APIKey:        "sk_live_...",
		WebhookSecret: "whsec_...",
	})

# Key Management

The passphrase-derived key is deterministic: the same passphrase always
yields the same key, so replicas and restarts agree without key exchange.
Losing the passphrase makes every sealed credential unrecoverable, and
changing it requires re-sealing each tenant's credentials.
*/
package security
