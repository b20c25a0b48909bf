package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"
	"github.com/ruteri/push-relay/interfaces"
)

// DefaultCollection is the Firestore collection holding registrations.
const DefaultCollection = "tokens"

// DefaultStoreURI selects the Firestore collection of the configured project.
const DefaultStoreURI = "firestore://" + DefaultCollection

// FirestoreClientFunc returns the Firestore client of the bootstrapped
// platform. It is only invoked for firestore:// locations.
type FirestoreClientFunc func(ctx context.Context) (*firestore.Client, error)

// StoreFactory creates registration stores from location URIs.
type StoreFactory struct {
	log       *slog.Logger
	firestore FirestoreClientFunc
}

// NewStoreFactory creates a new factory. firestoreClient may be nil when no
// firestore:// location is going to be requested.
func NewStoreFactory(logger *slog.Logger, firestoreClient FirestoreClientFunc) *StoreFactory {
	return &StoreFactory{
		log:       logger,
		firestore: firestoreClient,
	}
}

// StoreFor creates a registration store from a location URI.
//
// Supported schemes:
//   - firestore://collection - Firestore collection of the platform project
//   - redis://[:password@]host:port/db?prefix=tokens: - Redis hashes
//   - rediss:// - Redis over TLS
//   - memory:// - process-local map, lost on restart
func (sf *StoreFactory) StoreFor(ctx context.Context, uri string) (interfaces.RegistrationStore, error) {
	loc, err := interfaces.NewStoreLocation(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "firestore":
		return sf.createFirestoreStore(ctx, loc)
	case "redis", "rediss":
		return sf.createRedisStore(ctx, loc)
	case "memory":
		sf.log.Warn("Using in-memory registration store, registrations are lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported store scheme %q", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMirroredStore creates a store writing to every location and reading
// from the first one that answers.
func (sf *StoreFactory) CreateMirroredStore(ctx context.Context, uris []string) (interfaces.RegistrationStore, error) {
	if len(uris) == 1 {
		return sf.StoreFor(ctx, uris[0])
	}

	stores := make([]interfaces.RegistrationStore, 0, len(uris))
	for _, uri := range uris {
		store, err := sf.StoreFor(ctx, uri)
		if err != nil {
			sf.log.Warn("Failed to create registration store",
				"err", err,
				slog.String("location", redactedURI(uri)))
			continue
		}
		stores = append(stores, store)
	}

	if len(stores) == 0 {
		return nil, fmt.Errorf("no valid registration stores created")
	}

	return NewMirroredStore(stores, sf.log), nil
}

// createFirestoreStore uses the host as the collection name.
// URI format: firestore://tokens
func (sf *StoreFactory) createFirestoreStore(ctx context.Context, loc interfaces.StoreLocation) (interfaces.RegistrationStore, error) {
	sf.log.Debug("Creating Firestore store", slog.String("uri", loc.String()))

	if sf.firestore == nil {
		return nil, fmt.Errorf("firestore client not configured")
	}

	collection := loc.Host
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := sf.firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return NewFirestoreStore(client, collection, sf.log), nil
}

// createRedisStore accepts every option of redis.ParseURL plus "prefix".
// URI format: redis://:password@localhost:6379/0?prefix=push-relay:tokens:
func (sf *StoreFactory) createRedisStore(ctx context.Context, loc interfaces.StoreLocation) (interfaces.RegistrationStore, error) {
	sf.log.Debug("Creating Redis store", slog.String("uri", loc.String()))

	u, err := url.Parse(loc.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}
	query := u.Query()
	prefix := query.Get("prefix")
	query.Del("prefix")
	u.RawQuery = query.Encode()

	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		sf.log.Warn("Redis not reachable yet", slog.String("addr", opts.Addr), "err", err)
	}

	return NewRedisStore(client, prefix, sf.log), nil
}

func redactedURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return strings.SplitN(uri, "@", 2)[0]
	}
	return u.Redacted()
}
