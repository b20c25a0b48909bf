package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrRegistrationNotFound is returned when no registration exists for a key.
	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrStoreUnavailable is returned when a store backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrStoreUnavailable = errors.New("registration store unavailable")

	// ErrInvalidLocationURI is returned when a store location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid store location URI")
)

// RegistrationStore is a flat keyed collection of registrations.
type RegistrationStore interface {
	// Upsert merges token and a store-assigned timestamp into the record for
	// key, creating it when absent. Other fields of an existing record are kept.
	Upsert(ctx context.Context, key, token string) error

	// Get returns the registration for key or ErrRegistrationNotFound.
	Get(ctx context.Context, key string) (*Registration, error)

	// List returns every registration in the store.
	List(ctx context.Context) ([]Registration, error)

	// DeleteIfToken removes the registration for key only if its token still
	// equals token. It reports whether a record was removed.
	DeleteIfToken(ctx context.Context, key, token string) (bool, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string
}

// StoreLocation represents the URI of a registration store backend.
type StoreLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStoreLocation creates a new store location from a URI string with validation.
func NewStoreLocation(uri string) (StoreLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StoreLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "firestore", "redis", "rediss", "memory":
	default:
		return StoreLocation{}, fmt.Errorf("%w: unsupported store scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StoreLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI with credentials redacted.
func (loc StoreLocation) String() string {
	if loc.Auth == "" {
		return loc.Raw
	}
	if u, err := url.Parse(loc.Raw); err == nil {
		return u.Redacted()
	}
	return loc.Scheme + "://" + loc.Host + loc.Path
}

// GetParam returns a query parameter value.
func (loc StoreLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}
