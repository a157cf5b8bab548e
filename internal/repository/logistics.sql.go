package repository

import (
	"context"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const logisticsColumns = `deal_id, current_stage, delivered, delivered_at, receipt_confirmed_at, updated_at`

func scanDealLogistics(row pgx.Row) (models.DealLogistics, error) {
	var i models.DealLogistics
	err := row.Scan(
		&i.DealID,
		&i.Current,
		&i.Delivered,
		&i.DeliveredAt,
		&i.ReceiptConfirmedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getDealLogistics = `-- name: GetDealLogistics :one
SELECT ` + logisticsColumns + ` FROM deal_logistics WHERE deal_id = $1
`

func (q *Queries) GetDealLogistics(ctx context.Context, dealID uuid.UUID) (models.DealLogistics, error) {
	return scanDealLogistics(q.db.QueryRow(ctx, getDealLogistics, dealID))
}

const getDealLogisticsForUpdate = `-- name: GetDealLogisticsForUpdate :one
SELECT ` + logisticsColumns + ` FROM deal_logistics WHERE deal_id = $1 FOR UPDATE
`

func (q *Queries) GetDealLogisticsForUpdate(ctx context.Context, dealID uuid.UUID) (models.DealLogistics, error) {
	return scanDealLogistics(q.db.QueryRow(ctx, getDealLogisticsForUpdate, dealID))
}

const upsertDealLogistics = `-- name: UpsertDealLogistics :one
INSERT INTO deal_logistics (deal_id, current_stage, delivered, delivered_at, receipt_confirmed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (deal_id) DO UPDATE
SET current_stage = EXCLUDED.current_stage,
    delivered = EXCLUDED.delivered,
    delivered_at = EXCLUDED.delivered_at,
    receipt_confirmed_at = EXCLUDED.receipt_confirmed_at,
    updated_at = NOW()
RETURNING updated_at
`

func (q *Queries) UpsertDealLogistics(ctx context.Context, logistics *models.DealLogistics) error {
	return q.db.QueryRow(ctx, upsertDealLogistics,
		logistics.DealID,
		logistics.Current,
		logistics.Delivered,
		logistics.DeliveredAt,
		logistics.ReceiptConfirmedAt,
	).Scan(&logistics.UpdatedAt)
}
