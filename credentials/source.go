package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/push-relay/interfaces"
)

// DefaultSourceURI reads the bundle from FIREBASE_* environment variables.
const DefaultSourceURI = "env://FIREBASE"

// Source loads a service-account bundle from one configuration backend.
type Source interface {
	// Load returns the normalized bundle. It does not validate it.
	Load(ctx context.Context) (*ServiceAccount, error)

	// Name returns identifier for logging.
	Name() string
}

// SourceFor creates a credential source from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - env://PREFIX - PREFIX_TYPE, PREFIX_PROJECT_ID, PREFIX_PRIVATE_KEY, ... environment variables
//   - file:///path/key.json - service-account JSON key file
//   - vault://host:port/mount/path - KV v2 secret, token taken from VAULT_TOKEN
//   - s3://[KEY:SECRET@]bucket/key.json?region=..&endpoint=.. - JSON key file in S3
func SourceFor(locationURI string, log *slog.Logger) (Source, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "invalid source URI", Err: err}
	}

	switch strings.ToLower(u.Scheme) {
	case "env":
		prefix := u.Host
		if prefix == "" {
			prefix = "FIREBASE"
		}
		return NewEnvSource(prefix, nil), nil
	case "file":
		return createFileSource(u)
	case "vault":
		return createVaultSource(u, log)
	case "s3":
		return createS3Source(u, log)
	default:
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: fmt.Sprintf("unsupported source scheme %q", u.Scheme)}
	}
}

// Load resolves the source and validates the bundle it yields.
func Load(ctx context.Context, src Source) (*ServiceAccount, error) {
	sa, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := sa.Validate(); err != nil {
		return nil, err
	}
	return sa, nil
}

// createFileSource handles file:///absolute/path.json and file://./relative.json.
func createFileSource(u *url.URL) (Source, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "empty path in file URI"}
	}
	return NewFileSource(path), nil
}

// createVaultSource handles vault://host:port/mount/path?tls=false.
func createVaultSource(u *url.URL, log *slog.Logger) (Source, error) {
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "vault URI must be vault://host:port/mount/path"}
	}

	scheme := "https"
	if u.Query().Get("tls") == "false" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	return NewVaultSource(address, parts[0], parts[1], "", log)
}

// createS3Source handles s3://[ACCESS_KEY:SECRET_KEY@]bucket/key.json?region=us-west-2&endpoint=custom.s3.com.
func createS3Source(u *url.URL, log *slog.Logger) (Source, error) {
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "s3 URI must be s3://bucket/key"}
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Source(u.Host, key, region, query.Get("endpoint"), accessKey, secretKey, log)
}
