package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/cdms-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrUnavailable indicates the backing store could not be reached.
var ErrUnavailable = errors.New("store unavailable")

// MaxListResults caps list queries.
const MaxListResults = 100

// UserStore captures persistence operations needed by the auth layer and handlers.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByFederatedID(ctx context.Context, firebaseUID string) (models.User, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert models.Alert) (models.Alert, error)
	ListAlerts(ctx context.Context, status string) ([]models.Alert, error)
	UpdateAlertStatus(ctx context.Context, id, status string) error
}

// CommentStore persists comments.
type CommentStore interface {
	CreateComment(ctx context.Context, comment models.Comment) (models.Comment, error)
	ListComments(ctx context.Context, entityType, entityID string) ([]models.Comment, error)
}

// TagStore persists tags.
type TagStore interface {
	CreateTag(ctx context.Context, tag models.Tag) (models.Tag, error)
	ListTags(ctx context.Context, entityType, entityID string) ([]models.Tag, error)
}

// Store bundles every resource store behind one value.
type Store interface {
	UserStore
	AlertStore
	CommentStore
	TagStore
	Ping(ctx context.Context) error
	Close()
}
