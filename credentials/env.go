package credentials

import (
	"context"
	"os"
)

// EnvSource reads the bundle from PREFIX_* environment variables.
type EnvSource struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvSource creates an environment source. A nil lookup uses os.LookupEnv.
func NewEnvSource(prefix string, lookup func(string) (string, bool)) *EnvSource {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvSource{prefix: prefix, lookup: lookup}
}

func (s *EnvSource) get(name string) string {
	v, _ := s.lookup(s.prefix + "_" + name)
	return v
}

func (s *EnvSource) Load(ctx context.Context) (*ServiceAccount, error) {
	sa := &ServiceAccount{
		Type:                s.get("TYPE"),
		ProjectID:           s.get("PROJECT_ID"),
		PrivateKeyID:        s.get("PRIVATE_KEY_ID"),
		PrivateKey:          s.get("PRIVATE_KEY"),
		ClientEmail:         s.get("CLIENT_EMAIL"),
		ClientID:            s.get("CLIENT_ID"),
		AuthURI:             s.get("AUTH_URI"),
		TokenURI:            s.get("TOKEN_URI"),
		AuthProviderCertURL: s.get("AUTH_CERT_URL"),
		ClientCertURL:       s.get("CLIENT_CERT_URL"),
		UniverseDomain:      s.get("UNIVERSE_DOMAIN"),
	}
	sa.Normalize()
	return sa, nil
}

func (s *EnvSource) Name() string {
	return "env-" + s.prefix
}
