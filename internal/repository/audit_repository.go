package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// AuditRepository appends to the audit trail. There are no update or delete
// methods on purpose: the log is append-only.
type AuditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Log(ctx context.Context, e *models.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	oldValues, err := marshalValues(e.OldValues)
	if err != nil {
		return fmt.Errorf("failed to encode audit old values: %w", err)
	}
	newValues, err := marshalValues(e.NewValues)
	if err != nil {
		return fmt.Errorf("failed to encode audit new values: %w", err)
	}
	metadata, err := marshalValues(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, old_values, new_values, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID,
		oldValues, newValues, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListForEntity returns the audit trail of one entity, oldest first.
func (r *AuditRepository) ListForEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	query := `
		SELECT id, actor_id, action, entity_type, entity_id, old_values, new_values, metadata, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e                 models.AuditEntry
			oldV, newV, metaV []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &oldV, &newV, &metaV, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := unmarshalValues(oldV, &e.OldValues); err != nil {
			return nil, err
		}
		if err := unmarshalValues(newV, &e.NewValues); err != nil {
			return nil, err
		}
		if err := unmarshalValues(metaV, &e.Metadata); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func marshalValues(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalValues(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode audit values: %w", err)
	}
	return nil
}
