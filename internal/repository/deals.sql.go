package repository

import (
	"context"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, buyer_org_id, supplier_org_id, offer_id, status, currency, items, total_amount::text, total_micros, created_at, updated_at`

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		i     models.Order
		total string
	)
	err := row.Scan(
		&i.ID,
		&i.BuyerOrgID,
		&i.SupplierOrgID,
		&i.OfferID,
		&i.Status,
		&i.Currency,
		&i.Items,
		&total,
		&i.TotalMicros,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return i, err
	}
	i.TotalAmount, err = decimal.NewFromString(total)
	return i, err
}

const insertOrder = `-- name: InsertOrder :one
INSERT INTO orders (id, buyer_org_id, supplier_org_id, offer_id, status, currency, items, total_amount, total_micros)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9)
RETURNING created_at, updated_at
`

func (q *Queries) InsertOrder(ctx context.Context, order *models.Order) error {
	return q.db.QueryRow(ctx, insertOrder,
		order.ID,
		order.BuyerOrgID,
		order.SupplierOrgID,
		order.OfferID,
		order.Status,
		order.Currency,
		order.Items,
		order.TotalAmount.String(),
		order.TotalMicros,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const updateOrderStatus = `-- name: UpdateOrderStatus :execrows
UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
`

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateOrderStatus, arg.ID, arg.Status)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE (
    ($2 = 'buyer' AND buyer_org_id = $1)
 OR ($2 = 'supplier' AND supplier_org_id = $1)
 OR ($2 = '' AND (buyer_org_id = $1 OR supplier_org_id = $1))
)
AND ($3 = '' OR status = $3)
ORDER BY created_at DESC, id
LIMIT $4 OFFSET $5
`

func (q *Queries) ListOrders(ctx context.Context, arg ListParams) ([]models.Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.OrgID, arg.Role, arg.Status, pageLimit(arg.Limit), arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const dealColumns = `id, rfq_id, offer_id, order_id, buyer_org_id, supplier_org_id, status, main_currency, created_at, updated_at`

func scanDeal(row pgx.Row) (models.Deal, error) {
	var i models.Deal
	err := row.Scan(
		&i.ID,
		&i.RFQID,
		&i.OfferID,
		&i.OrderID,
		&i.BuyerOrgID,
		&i.SupplierOrgID,
		&i.Status,
		&i.MainCurrency,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertDeal = `-- name: InsertDeal :one
INSERT INTO deals (id, rfq_id, offer_id, order_id, buyer_org_id, supplier_org_id, status, main_currency)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at
`

func (q *Queries) InsertDeal(ctx context.Context, deal *models.Deal) error {
	return q.db.QueryRow(ctx, insertDeal,
		deal.ID,
		deal.RFQID,
		deal.OfferID,
		deal.OrderID,
		deal.BuyerOrgID,
		deal.SupplierOrgID,
		deal.Status,
		deal.MainCurrency,
	).Scan(&deal.CreatedAt, &deal.UpdatedAt)
}

const getDeal = `-- name: GetDeal :one
SELECT ` + dealColumns + ` FROM deals WHERE id = $1
`

func (q *Queries) GetDeal(ctx context.Context, id uuid.UUID) (models.Deal, error) {
	return scanDeal(q.db.QueryRow(ctx, getDeal, id))
}

const getDealForUpdate = `-- name: GetDealForUpdate :one
SELECT ` + dealColumns + ` FROM deals WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetDealForUpdate(ctx context.Context, id uuid.UUID) (models.Deal, error) {
	return scanDeal(q.db.QueryRow(ctx, getDealForUpdate, id))
}

const getDealByOfferID = `-- name: GetDealByOfferID :one
SELECT ` + dealColumns + ` FROM deals WHERE offer_id = $1
`

func (q *Queries) GetDealByOfferID(ctx context.Context, offerID uuid.UUID) (models.Deal, error) {
	return scanDeal(q.db.QueryRow(ctx, getDealByOfferID, offerID))
}

const getDealByRFQID = `-- name: GetDealByRFQID :one
SELECT ` + dealColumns + ` FROM deals WHERE rfq_id = $1
`

func (q *Queries) GetDealByRFQID(ctx context.Context, rfqID uuid.UUID) (models.Deal, error) {
	return scanDeal(q.db.QueryRow(ctx, getDealByRFQID, rfqID))
}

const updateDealStatus = `-- name: UpdateDealStatus :execrows
UPDATE deals SET status = $2, updated_at = NOW() WHERE id = $1
`

func (q *Queries) UpdateDealStatus(ctx context.Context, arg UpdateStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateDealStatus, arg.ID, arg.Status)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listDeals = `-- name: ListDeals :many
SELECT ` + dealColumns + ` FROM deals
WHERE (
    ($2 = 'buyer' AND buyer_org_id = $1)
 OR ($2 = 'supplier' AND supplier_org_id = $1)
 OR ($2 = '' AND (buyer_org_id = $1 OR supplier_org_id = $1))
)
AND ($3 = '' OR status = $3)
ORDER BY created_at DESC, id
LIMIT $4 OFFSET $5
`

func (q *Queries) ListDeals(ctx context.Context, arg ListParams) ([]models.Deal, error) {
	rows, err := q.db.Query(ctx, listDeals, arg.OrgID, arg.Role, arg.Status, pageLimit(arg.Limit), arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Deal{}
	for rows.Next() {
		i, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
