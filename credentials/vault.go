package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/push-relay/interfaces"
)

// serviceAccountJSONKey lets a KV secret carry the whole key file as one
// string instead of one entry per field.
const serviceAccountJSONKey = "service_account_json"

// VaultSource reads the bundle from a HashiCorp Vault KV v2 secret.
// The client token is taken from VAULT_TOKEN unless one is passed explicitly.
type VaultSource struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultSource creates a new Vault credential source.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "push-relay/firebase")
//   - token: Vault token, empty to use VAULT_TOKEN
//   - log: Structured logger for operational insights
func NewVaultSource(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultSource, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "failed to create Vault client", Err: err}
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultSource{
		client:    client,
		mountPath: strings.Trim(mountPath, "/"),
		dataPath:  strings.Trim(dataPath, "/"),
		log:       log,
	}, nil
}

func (s *VaultSource) Load(ctx context.Context) (*ServiceAccount, error) {
	start := time.Now()
	path := fmt.Sprintf("%s/data/%s", s.mountPath, s.dataPath)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "vault read failed", Err: err}
	}

	if secret == nil || secret.Data == nil {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: fmt.Sprintf("no secret at vault path %s", path)}
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "invalid data format in Vault response"}
	}

	var raw []byte
	if keyFile, ok := data[serviceAccountJSONKey].(string); ok {
		raw = []byte(keyFile)
	} else {
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "could not encode Vault data", Err: err}
		}
	}

	sa, err := ParseServiceAccount(raw)
	if err != nil {
		return nil, err
	}

	s.log.Info("Loaded credentials from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))
	return sa, nil
}

func (s *VaultSource) Name() string {
	return fmt.Sprintf("vault-%s/%s", s.mountPath, s.dataPath)
}
