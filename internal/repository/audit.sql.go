package repository

import (
	"context"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
)

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertAuditLog,
		arg.EntityType,
		arg.EntityID,
		arg.ActorID,
		arg.Action,
		arg.PrevState,
		arg.NextState,
		arg.Metadata,
	).Scan(&id)
	return id, err
}

const listAuditLogs = `-- name: ListAuditLogs :many
SELECT id, entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at
FROM audit_log WHERE entity_id = $1
ORDER BY id
`

func (q *Queries) ListAuditLogs(ctx context.Context, entityID uuid.UUID) ([]models.AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogs, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.AuditLog{}
	for rows.Next() {
		var i models.AuditLog
		if err := rows.Scan(
			&i.ID,
			&i.EntityType,
			&i.EntityID,
			&i.ActorID,
			&i.Action,
			&i.PrevState,
			&i.NextState,
			&i.Metadata,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
