// Package secrets reads service secrets from HashiCorp Vault.
package secrets

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

// VaultClient reads secrets from a KV v2 mount.
type VaultClient struct {
	client    *vault.Client
	log       logger.Logger
	mountPath string
}

// NewVaultClient creates and configures a new Vault client.
func NewVaultClient(cfg config.VaultConfig, log logger.Logger) (*VaultClient, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mount := strings.Trim(cfg.MountPath, "/")
	if mount == "" {
		mount = "secret"
	}
	return &VaultClient{client: client, log: log.WithComponent("VaultClient"), mountPath: mount}, nil
}

// GetSecret returns the latest version of the secret at path.
func (v *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	secret, err := v.client.KVv2(v.mountPath).Get(ctx, path)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return nil, errors.ErrNotFound("secret", path)
	}
	if err != nil {
		v.log.Error(ctx, "failed to read secret from Vault", err, logger.String("path", path))
		return nil, fmt.Errorf("could not read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.ErrNotFound("secret", path)
	}
	return secret.Data, nil
}

// AuditSigningKey fetches the HMAC key used to sign audit events. Values
// prefixed with "base64:" are decoded; anything else is used as raw bytes.
func (v *VaultClient) AuditSigningKey(ctx context.Context, path, field string) ([]byte, error) {
	data, err := v.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	raw, ok := data[field].(string)
	if !ok || raw == "" {
		return nil, errors.ErrConfiguration("vault."+path, fmt.Sprintf("field %q missing or not a string", field))
	}
	if enc, found := strings.CutPrefix(raw, "base64:"); found {
		key, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, errors.ErrConfiguration("vault."+path, "invalid base64 key")
		}
		return key, nil
	}
	return []byte(raw), nil
}

// Ping reports whether Vault is reachable and unsealed.
func (v *VaultClient) Ping(ctx context.Context) error {
	health, err := v.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return err
	}
	if health.Sealed {
		return errors.ErrConfiguration("vault", "vault is sealed")
	}
	return nil
}
