package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/push-relay/interfaces"
)

// MirroredStore implements interfaces.RegistrationStore over several stores.
// Writes go to every available store, reads come from the first available
// store that answers.
type MirroredStore struct {
	stores []interfaces.RegistrationStore
	log    *slog.Logger
}

func NewMirroredStore(stores []interfaces.RegistrationStore, logger *slog.Logger) *MirroredStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &MirroredStore{
		stores: stores,
		log:    logger,
	}
}

// Upsert succeeds when at least one store accepted the write.
func (m *MirroredStore) Upsert(ctx context.Context, key, token string) error {
	start := time.Now()
	var errs []error
	var success bool

	for _, store := range m.stores {
		if !store.Available(ctx) {
			m.log.Debug("Store unavailable", slog.String("store", store.Name()))
			continue
		}

		if err := store.Upsert(ctx, key, token); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
			m.log.Debug("Failed to upsert to store",
				slog.String("store", store.Name()),
				"err", err)
			continue
		}
		success = true
	}

	if !success {
		m.log.Error("All stores failed to upsert registration",
			slog.Int("failed_stores", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("%w: all stores failed: %w", interfaces.ErrStoreUnavailable, errors.Join(errs...))
	}

	return nil
}

func (m *MirroredStore) Get(ctx context.Context, key string) (*interfaces.Registration, error) {
	var errs []error
	for _, store := range m.stores {
		if !store.Available(ctx) {
			continue
		}

		reg, err := store.Get(ctx, key)
		if err == nil {
			return reg, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
	}

	if len(errs) == 0 {
		return nil, interfaces.ErrStoreUnavailable
	}
	return nil, errors.Join(errs...)
}

func (m *MirroredStore) List(ctx context.Context) ([]interfaces.Registration, error) {
	var errs []error
	for _, store := range m.stores {
		if !store.Available(ctx) {
			m.log.Debug("Store unavailable", slog.String("store", store.Name()))
			continue
		}

		registrations, err := store.List(ctx)
		if err == nil {
			return registrations, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
		m.log.Debug("Failed to list store",
			slog.String("store", store.Name()),
			"err", err)
	}

	return nil, fmt.Errorf("%w: all stores failed to list: %w", interfaces.ErrStoreUnavailable, errors.Join(errs...))
}

// DeleteIfToken reports true when any store removed the registration.
func (m *MirroredStore) DeleteIfToken(ctx context.Context, key, token string) (bool, error) {
	var errs []error
	var deleted bool
	for _, store := range m.stores {
		if !store.Available(ctx) {
			continue
		}

		ok, err := store.DeleteIfToken(ctx, key, token)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
			continue
		}
		deleted = deleted || ok
	}

	return deleted, errors.Join(errs...)
}

// Available checks if any store is available
func (m *MirroredStore) Available(ctx context.Context) bool {
	for _, store := range m.stores {
		if store.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MirroredStore) Name() string {
	names := make([]string, 0, len(m.stores))
	for _, store := range m.stores {
		names = append(names, store.Name())
	}
	return "mirrored:[" + strings.Join(names, ",") + "]"
}
