package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hongminglow/cdms-be/internal/models"
	"github.com/hongminglow/cdms-be/internal/storage"
	"github.com/jackc/pgx/v5"
)

// CreateAlert inserts a new alert; empty status defaults to open.
func (s *Store) CreateAlert(ctx context.Context, alert models.Alert) (models.Alert, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Status == "" {
		alert.Status = models.AlertOpen
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now().UTC()
	}
	const query = `
		INSERT INTO alerts (id, title, description, priority, site_id, patient_id, alert_type, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := s.db.Exec(ctx, query, alert.ID, alert.Title, alert.Description, alert.Priority, alert.SiteID, alert.PatientID, alert.AlertType, alert.Status, alert.CreatedBy, alert.CreatedAt); err != nil {
		return models.Alert{}, classify(err)
	}
	return alert, nil
}

// ListAlerts returns the newest alerts, optionally filtered by status.
func (s *Store) ListAlerts(ctx context.Context, status string) ([]models.Alert, error) {
	const query = `
		SELECT id, title, description, priority, site_id, patient_id, alert_type, status, created_by, created_at
		FROM alerts
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, status, storage.MaxListResults)
	if err != nil {
		return nil, classify(err)
	}
	alerts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Alert, error) {
		var a models.Alert
		err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Priority, &a.SiteID, &a.PatientID, &a.AlertType, &a.Status, &a.CreatedBy, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan alerts: %w", classify(err))
	}
	return alerts, nil
}

// UpdateAlertStatus sets the status of an alert, returning storage.ErrNotFound when no row matched.
func (s *Store) UpdateAlertStatus(ctx context.Context, id, status string) error {
	tag, err := s.db.Exec(ctx, `UPDATE alerts SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateComment inserts a new comment.
func (s *Store) CreateComment(ctx context.Context, comment models.Comment) (models.Comment, error) {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = s.now().UTC()
	}
	const query = `
		INSERT INTO comments (id, entity_type, entity_id, comment_text, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.Exec(ctx, query, comment.ID, comment.EntityType, comment.EntityID, comment.CommentText, comment.CreatedBy, comment.CreatedAt); err != nil {
		return models.Comment{}, classify(err)
	}
	return comment, nil
}

// ListComments returns the newest comments for an entity.
func (s *Store) ListComments(ctx context.Context, entityType, entityID string) ([]models.Comment, error) {
	const query = `
		SELECT id, entity_type, entity_id, comment_text, created_by, created_at
		FROM comments
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3`
	rows, err := s.db.Query(ctx, query, entityType, entityID, storage.MaxListResults)
	if err != nil {
		return nil, classify(err)
	}
	comments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Comment, error) {
		var c models.Comment
		err := row.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.CommentText, &c.CreatedBy, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan comments: %w", classify(err))
	}
	return comments, nil
}

// CreateTag inserts a new tag.
func (s *Store) CreateTag(ctx context.Context, tag models.Tag) (models.Tag, error) {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = s.now().UTC()
	}
	const query = `
		INSERT INTO tags (id, entity_type, entity_id, tag_name, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.Exec(ctx, query, tag.ID, tag.EntityType, tag.EntityID, tag.TagName, tag.CreatedBy, tag.CreatedAt); err != nil {
		return models.Tag{}, classify(err)
	}
	return tag, nil
}

// ListTags returns tags for an entity in insertion order.
func (s *Store) ListTags(ctx context.Context, entityType, entityID string) ([]models.Tag, error) {
	const query = `
		SELECT id, entity_type, entity_id, tag_name, created_by, created_at
		FROM tags
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
		LIMIT $3`
	rows, err := s.db.Query(ctx, query, entityType, entityID, storage.MaxListResults)
	if err != nil {
		return nil, classify(err)
	}
	tags, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Tag, error) {
		var t models.Tag
		err := row.Scan(&t.ID, &t.EntityType, &t.EntityID, &t.TagName, &t.CreatedBy, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tags: %w", classify(err))
	}
	return tags, nil
}
