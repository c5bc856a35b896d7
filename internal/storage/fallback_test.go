package storage_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/hongminglow/cdms-be/internal/logger"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/storage"
	"github.com/hongminglow/cdms-be/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// downStore fails every call as if the database were unreachable.
type downStore struct{}

func (downStore) CreateUser(context.Context, models.User) (models.User, error) {
	return models.User{}, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}
func (downStore) FindByID(context.Context, string) (models.User, error) {
	return models.User{}, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}
func (downStore) FindByEmail(context.Context, string) (models.User, error) {
	return models.User{}, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}
func (downStore) FindByFederatedID(context.Context, string) (models.User, error) {
	return models.User{}, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}

func TestFallbackUserStore_DegradesOnUnavailable(t *testing.T) {
	ctx := context.Background()
	secondary := memory.New()
	store := storage.NewFallbackUserStore(downStore{}, secondary, logger.Discard())

	created, err := store.CreateUser(ctx, models.User{Email: "a@x.com", FullName: "Alice"})
	require.NoError(t, err)

	got, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	got, err = store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

// flakyStore is a UserStore that reports ErrUnavailable while down is set.
type flakyStore struct {
	*memory.Store
	down bool
}

func (f *flakyStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if f.down {
		return models.User{}, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
	}
	return f.Store.CreateUser(ctx, user)
}

func TestFallbackUserStore_RecoveredPrimaryKeepsDegradedUsersUnique(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{Store: memory.New(), down: true}
	store := storage.NewFallbackUserStore(primary, memory.New(), logger.Discard())

	first, err := store.CreateUser(ctx, models.User{Email: "a@x.com", FirebaseUID: "fb-a"})
	require.NoError(t, err)

	primary.down = false
	_, err = store.CreateUser(ctx, models.User{Email: "a@x.com"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, err = store.CreateUser(ctx, models.User{Email: "other@x.com", FirebaseUID: "fb-a"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, err = primary.FindByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	second, err := store.CreateUser(ctx, models.User{Email: "b@x.com"})
	require.NoError(t, err)
	_, err = primary.FindByID(ctx, second.ID)
	assert.NoError(t, err)
}

func TestFallbackUserStore_PrimaryMissConsultsSecondary(t *testing.T) {
	ctx := context.Background()
	primary := memory.New()
	secondary := memory.New()
	store := storage.NewFallbackUserStore(primary, secondary, logger.Discard())

	onlySecondary, err := secondary.CreateUser(ctx, models.User{Email: "b@x.com", FirebaseUID: "fb-b"})
	require.NoError(t, err)
	inPrimary, err := store.CreateUser(ctx, models.User{Email: "c@x.com"})
	require.NoError(t, err)

	got, err := store.FindByFederatedID(ctx, "fb-b")
	require.NoError(t, err)
	assert.Equal(t, onlySecondary.ID, got.ID)

	got, err = store.FindByID(ctx, inPrimary.ID)
	require.NoError(t, err)
	assert.Equal(t, "c@x.com", got.Email)

	_, err = secondary.FindByID(ctx, inPrimary.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.FindByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
