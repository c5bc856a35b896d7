package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps every resource in process memory. It backs local development and
// serves as the credential fallback when Postgres is unreachable.
type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User
	byEmail  map[string]string
	byFedID  map[string]string
	alerts   []models.Alert
	comments []models.Comment
	tags     []models.Tag
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:   make(map[string]models.User),
		byEmail: make(map[string]string),
		byFedID: make(map[string]string),
		now:     time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close()                     {}

// CreateUser inserts a user keyed by local id, enforcing unique email and federated id.
func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	if user.FirebaseUID != "" {
		if _, ok := s.byFedID[user.FirebaseUID]; ok {
			return models.User{}, storage.ErrAlreadyExists
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := s.users[user.ID]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}

	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	if user.FirebaseUID != "" {
		s.byFedID[user.FirebaseUID] = user.ID
	}
	return user, nil
}

func (s *Store) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return models.User{}, storage.ErrNotFound
}

func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail, email)
}

func (s *Store) FindByFederatedID(_ context.Context, firebaseUID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byFedID, firebaseUID)
}

func (s *Store) lookup(index map[string]string, key string) (models.User, error) {
	id, ok := index[key]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) CreateAlert(_ context.Context, alert models.Alert) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = models.AlertOpen
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now().UTC()
	}
	s.alerts = append(s.alerts, alert)
	return alert, nil
}

func (s *Store) ListAlerts(_ context.Context, status string) ([]models.Alert, error) {
	s.mu.RLock()
	out := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limit(out), nil
}

func (s *Store) UpdateAlertStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Status = status
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) CreateComment(_ context.Context, comment models.Comment) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = s.now().UTC()
	}
	s.comments = append(s.comments, comment)
	return comment, nil
}

func (s *Store) ListComments(_ context.Context, entityType, entityID string) ([]models.Comment, error) {
	s.mu.RLock()
	out := make([]models.Comment, 0)
	for _, c := range s.comments {
		if c.EntityType == entityType && c.EntityID == entityID {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limit(out), nil
}

func (s *Store) CreateTag(_ context.Context, tag models.Tag) (models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = s.now().UTC()
	}
	s.tags = append(s.tags, tag)
	return tag, nil
}

func (s *Store) ListTags(_ context.Context, entityType, entityID string) ([]models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Tag, 0)
	for _, t := range s.tags {
		if t.EntityType == entityType && t.EntityID == entityID {
			out = append(out, t)
		}
	}
	return limit(out), nil
}

func limit[T any](items []T) []T {
	if len(items) > storage.MaxListResults {
		return items[:storage.MaxListResults]
	}
	return items
}
