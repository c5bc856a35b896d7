package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hongminglow/cdms-be/internal/models"
)

var _ UserStore = (*FallbackUserStore)(nil)

// FallbackUserStore reads and writes users through a primary store and degrades
// to a secondary (in-memory) store whenever the primary reports ErrUnavailable.
// Records created while degraded live only in the secondary store, so lookups
// that miss in the primary consult the secondary as well, and creates check the
// secondary for the same email or federated id before reaching the primary.
type FallbackUserStore struct {
	primary   UserStore
	secondary UserStore
	logger    *slog.Logger
}

// NewFallbackUserStore wires the primary and secondary stores.
func NewFallbackUserStore(primary, secondary UserStore, logger *slog.Logger) *FallbackUserStore {
	return &FallbackUserStore{primary: primary, secondary: secondary, logger: logger}
}

func (f *FallbackUserStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if err := f.claimedBySecondary(ctx, user); err != nil {
		return models.User{}, err
	}
	created, err := f.primary.CreateUser(ctx, user)
	if errors.Is(err, ErrUnavailable) {
		f.degraded("create_user", err)
		return f.secondary.CreateUser(ctx, user)
	}
	return created, err
}

// claimedBySecondary returns ErrAlreadyExists when a user created while
// degraded already holds the email or federated id.
func (f *FallbackUserStore) claimedBySecondary(ctx context.Context, user models.User) error {
	if _, err := f.secondary.FindByEmail(ctx, user.Email); err == nil {
		return fmt.Errorf("%w: email %s", ErrAlreadyExists, user.Email)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if user.FirebaseUID == "" {
		return nil
	}
	if _, err := f.secondary.FindByFederatedID(ctx, user.FirebaseUID); err == nil {
		return fmt.Errorf("%w: federated id %s", ErrAlreadyExists, user.FirebaseUID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (f *FallbackUserStore) FindByID(ctx context.Context, id string) (models.User, error) {
	return f.find(ctx, "find_by_id", func(s UserStore) (models.User, error) { return s.FindByID(ctx, id) })
}

func (f *FallbackUserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return f.find(ctx, "find_by_email", func(s UserStore) (models.User, error) { return s.FindByEmail(ctx, email) })
}

func (f *FallbackUserStore) FindByFederatedID(ctx context.Context, firebaseUID string) (models.User, error) {
	return f.find(ctx, "find_by_federated_id", func(s UserStore) (models.User, error) { return s.FindByFederatedID(ctx, firebaseUID) })
}

func (f *FallbackUserStore) find(_ context.Context, op string, lookup func(UserStore) (models.User, error)) (models.User, error) {
	user, err := lookup(f.primary)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrUnavailable):
		f.degraded(op, err)
		return lookup(f.secondary)
	case errors.Is(err, ErrNotFound):
		return lookup(f.secondary)
	default:
		return models.User{}, err
	}
}

func (f *FallbackUserStore) degraded(op string, err error) {
	if f.logger != nil {
		f.logger.Warn("credential store unavailable, using in-memory fallback", "operation", op, "error", err)
	}
}
