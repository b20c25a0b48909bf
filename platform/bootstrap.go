package platform

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/ruteri/push-relay/credentials"
	"github.com/ruteri/push-relay/interfaces"
	"github.com/ruteri/push-relay/push"
	"github.com/ruteri/push-relay/storage"
	"google.golang.org/api/option"
)

// Config selects where credentials come from and where registrations live.
type Config struct {
	// CredentialSource is a credentials.SourceFor URI, env://FIREBASE by default.
	CredentialSource string

	// StoreURIs are storage.StoreFactory locations. More than one location
	// creates a mirrored store.
	StoreURIs []string

	// DryRun makes FCM validate messages without delivering them.
	DryRun bool
}

// Bootstrapper builds the platform client at most once per process. Every
// call to Handle after the first returns the cached outcome, success or
// failure.
type Bootstrapper struct {
	cfg Config
	log *slog.Logger

	sourceFor func(uri string, log *slog.Logger) (credentials.Source, error)

	once   sync.Once
	handle Handle
}

func NewBootstrapper(cfg Config, log *slog.Logger) *Bootstrapper {
	if cfg.CredentialSource == "" {
		cfg.CredentialSource = credentials.DefaultSourceURI
	}
	if len(cfg.StoreURIs) == 0 {
		cfg.StoreURIs = []string{storage.DefaultStoreURI}
	}

	return &Bootstrapper{
		cfg:       cfg,
		log:       log,
		sourceFor: credentials.SourceFor,
	}
}

// Handle bootstraps on first use and returns the cached result afterwards.
func (b *Bootstrapper) Handle(ctx context.Context) Handle {
	b.once.Do(func() {
		start := time.Now()
		client, err := b.bootstrap(ctx)
		if err != nil {
			b.log.Error("Platform initialization failed", "err", err)
			b.handle = Failed(err)
			return
		}

		b.log.Info("Platform initialized",
			slog.String("project_id", client.ProjectID),
			slog.String("store", client.Store.Name()),
			slog.Bool("dry_run", b.cfg.DryRun),
			slog.Duration("duration", time.Since(start)))
		b.handle = Ready(client)
	})
	return b.handle
}

func (b *Bootstrapper) bootstrap(ctx context.Context) (*Client, error) {
	src, err := b.sourceFor(b.cfg.CredentialSource, b.log)
	if err != nil {
		return nil, asConfigurationError("credential_source", "unusable credential source", err)
	}

	sa, err := credentials.Load(ctx, src)
	if err != nil {
		return nil, asConfigurationError("credentials", "failed to load credentials from "+src.Name(), err)
	}
	b.log.Debug("Loaded service account", slog.Any("service_account", sa))

	keyJSON, err := sa.JSON()
	if err != nil {
		return nil, asConfigurationError("credentials", "failed to encode credentials", err)
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: sa.ProjectID}, option.WithCredentialsJSON(keyJSON))
	if err != nil {
		return nil, asConfigurationError("firebase", "failed to initialize app", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, asConfigurationError("firebase", "failed to initialize messaging client", err)
	}

	var closers []func() error
	factory := storage.NewStoreFactory(b.log, func(ctx context.Context) (*firestore.Client, error) {
		fs, err := app.Firestore(ctx)
		if err != nil {
			return nil, err
		}
		closers = append(closers, fs.Close)
		return fs, nil
	})

	store, err := factory.CreateMirroredStore(ctx, b.cfg.StoreURIs)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, asConfigurationError("store", "failed to create registration store", err)
	}

	client := NewClient(sa.ProjectID, store, push.NewFCMGateway(messagingClient, b.cfg.DryRun, b.log))
	client.closers = closers
	return client, nil
}

func asConfigurationError(field, reason string, err error) error {
	var cfgErr *interfaces.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &interfaces.ConfigurationError{Field: field, Reason: reason, Err: err}
}
