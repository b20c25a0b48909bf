package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/ruteri/push-relay/interfaces"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	fieldToken     = "token"
	fieldTimestamp = "timestamp"
)

// FirestoreStore keeps registrations as documents of one Firestore
// collection, keyed by the client identifier.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	log        *slog.Logger
}

func NewFirestoreStore(client *firestore.Client, collection string, log *slog.Logger) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: collection,
		log:        log,
	}
}

// Upsert merges the token and a server timestamp into the document.
func (s *FirestoreStore) Upsert(ctx context.Context, key, token string) error {
	start := time.Now()
	_, err := s.client.Collection(s.collection).Doc(key).Set(ctx, map[string]interface{}{
		fieldToken:     token,
		fieldTimestamp: firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	s.log.Debug("Stored registration in Firestore",
		slog.String("collection", s.collection),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, key string) (*interfaces.Registration, error) {
	snap, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, interfaces.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	reg := registrationFromSnapshot(snap)
	return &reg, nil
}

func (s *FirestoreStore) List(ctx context.Context) ([]interfaces.Registration, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var registrations []interfaces.Registration
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
		}
		registrations = append(registrations, registrationFromSnapshot(snap))
	}

	return registrations, nil
}

// DeleteIfToken compares and deletes inside a transaction so that a
// registration refreshed concurrently is left in place.
func (s *FirestoreStore) DeleteIfToken(ctx context.Context, key, token string) (bool, error) {
	ref := s.client.Collection(s.collection).Doc(key)

	var deleted bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = false

		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}

		if registrationFromSnapshot(snap).Token != token {
			return nil
		}

		deleted = true
		return tx.Delete(ref)
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	return deleted, nil
}

func (s *FirestoreStore) Available(ctx context.Context) bool {
	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		s.log.Debug("Firestore store unavailable", "err", err)
		return false
	}
	return true
}

func (s *FirestoreStore) Name() string {
	return "firestore-" + s.collection
}

// registrationFromSnapshot tolerates documents written by older clients:
// missing or mistyped fields are left empty.
func registrationFromSnapshot(snap *firestore.DocumentSnapshot) interfaces.Registration {
	data := snap.Data()
	token, _ := data[fieldToken].(string)
	timestamp, _ := data[fieldTimestamp].(time.Time)

	return interfaces.Registration{
		Key:       snap.Ref.ID,
		Token:     token,
		Timestamp: timestamp,
	}
}
