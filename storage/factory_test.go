package storage

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/alicebob/miniredis/v2"
	"github.com/ruteri/push-relay/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFor(t *testing.T) {
	mr := miniredis.RunT(t)
	factory := NewStoreFactory(testLogger(), nil)
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := factory.StoreFor(ctx, "memory://")
		require.NoError(t, err)
		assert.Equal(t, "memory", store.Name())
	})

	t.Run("redis with prefix", func(t *testing.T) {
		store, err := factory.StoreFor(ctx, "redis://"+mr.Addr()+"/0?prefix=relay:")
		require.NoError(t, err)
		assert.Equal(t, "redis-relay", store.Name())

		require.NoError(t, store.Upsert(ctx, "+1", "token"))
		assert.Equal(t, "token", mr.HGet("relay:+1", "token"))
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := factory.StoreFor(ctx, "s3://bucket/key")
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
	})

	t.Run("firestore without client", func(t *testing.T) {
		_, err := factory.StoreFor(ctx, "firestore://tokens")
		assert.Error(t, err)
	})
}

func TestStoreForFirestoreClientError(t *testing.T) {
	clientErr := errors.New("no credentials")
	factory := NewStoreFactory(testLogger(), func(ctx context.Context) (*firestore.Client, error) {
		return nil, clientErr
	})

	_, err := factory.StoreFor(context.Background(), DefaultStoreURI)
	assert.ErrorIs(t, err, clientErr)
}

func TestCreateMirroredStore(t *testing.T) {
	mr := miniredis.RunT(t)
	factory := NewStoreFactory(testLogger(), nil)
	ctx := context.Background()

	store, err := factory.CreateMirroredStore(ctx, []string{
		"memory://",
		"ftp://nowhere",
		"redis://" + mr.Addr() + "/0",
	})
	require.NoError(t, err)
	assert.Equal(t, "mirrored:[memory,redis-push-relay:tokens]", store.Name())

	require.NoError(t, store.Upsert(ctx, "+1", "token"))
	assert.Equal(t, "token", mr.HGet(DefaultRedisPrefix+"+1", "token"))

	_, err = factory.CreateMirroredStore(ctx, []string{"ftp://nowhere"})
	assert.Error(t, err)
}
