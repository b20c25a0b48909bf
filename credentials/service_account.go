package credentials

import (
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/push-relay/interfaces"
)

const (
	serviceAccountType = "service_account"
	defaultTokenURI    = "https://oauth2.googleapis.com/token"
)

// ServiceAccount is the platform credential bundle. Field names follow the
// Google service-account JSON key format.
type ServiceAccount struct {
	Type                string `json:"type"`
	ProjectID           string `json:"project_id"`
	PrivateKeyID        string `json:"private_key_id,omitempty"`
	PrivateKey          string `json:"private_key"`
	ClientEmail         string `json:"client_email"`
	ClientID            string `json:"client_id,omitempty"`
	AuthURI             string `json:"auth_uri,omitempty"`
	TokenURI            string `json:"token_uri,omitempty"`
	AuthProviderCertURL string `json:"auth_provider_x509_cert_url,omitempty"`
	ClientCertURL       string `json:"client_x509_cert_url,omitempty"`
	UniverseDomain      string `json:"universe_domain,omitempty"`
}

// ParseServiceAccount decodes a JSON key file and normalizes it.
func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, &interfaces.ConfigurationError{Reason: "service account is not valid JSON", Err: err}
	}
	sa.Normalize()
	return &sa, nil
}

// UnescapePrivateKey turns the literal two-character "\n" sequences that
// flat configuration stores leave in multi-line secrets back into newlines.
// Surrounding quotes left by some .env writers are removed.
func UnescapePrivateKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) >= 2 && key[0] == '"' && key[len(key)-1] == '"' {
		key = key[1 : len(key)-1]
	}
	key = strings.ReplaceAll(key, `\r\n`, "\n")
	return strings.ReplaceAll(key, `\n`, "\n")
}

// Normalize trims the fields, unescapes the private key and fills defaults.
func (sa *ServiceAccount) Normalize() {
	sa.Type = strings.TrimSpace(sa.Type)
	sa.ProjectID = strings.TrimSpace(sa.ProjectID)
	sa.ClientEmail = strings.TrimSpace(sa.ClientEmail)
	sa.PrivateKey = UnescapePrivateKey(sa.PrivateKey)

	if sa.Type == "" {
		sa.Type = serviceAccountType
	}
	if sa.TokenURI == "" {
		sa.TokenURI = defaultTokenURI
	}
}

// Validate checks that the bundle can be used to authenticate.
// Every failure is a *interfaces.ConfigurationError.
func (sa *ServiceAccount) Validate() error {
	if sa.Type != serviceAccountType {
		return &interfaces.ConfigurationError{Field: "type", Reason: fmt.Sprintf("expected %q, got %q", serviceAccountType, sa.Type)}
	}
	if sa.ProjectID == "" {
		return &interfaces.ConfigurationError{Field: "project_id", Reason: "missing"}
	}
	if sa.ClientEmail == "" {
		return &interfaces.ConfigurationError{Field: "client_email", Reason: "missing"}
	}
	if sa.PrivateKey == "" {
		return &interfaces.ConfigurationError{Field: "private_key", Reason: "missing"}
	}

	block, _ := pem.Decode([]byte(sa.PrivateKey))
	if block == nil {
		return &interfaces.ConfigurationError{Field: "private_key", Reason: "not PEM encoded, check newline escaping"}
	}
	if !strings.HasSuffix(block.Type, "PRIVATE KEY") {
		return &interfaces.ConfigurationError{Field: "private_key", Reason: fmt.Sprintf("unexpected PEM block %q", block.Type)}
	}
	return nil
}

// JSON encodes the bundle in the service-account key file format.
func (sa *ServiceAccount) JSON() ([]byte, error) {
	return json.Marshal(sa)
}

// LogValue keeps the private key out of logs.
func (sa *ServiceAccount) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", sa.Type),
		slog.String("project_id", sa.ProjectID),
		slog.String("client_email", sa.ClientEmail),
		slog.String("private_key_id", sa.PrivateKeyID),
	)
}
