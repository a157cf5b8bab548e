package repository

import (
	"context"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const offerColumns = `id, rfq_id, supplier_org_id, status, currency, items, incoterms, payment_terms, valid_until, created_at, updated_at`

func scanOffer(row pgx.Row) (models.Offer, error) {
	var i models.Offer
	err := row.Scan(
		&i.ID,
		&i.RFQID,
		&i.SupplierOrgID,
		&i.Status,
		&i.Currency,
		&i.Items,
		&i.Incoterms,
		&i.PaymentTerms,
		&i.ValidUntil,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertOffer = `-- name: InsertOffer :one
INSERT INTO offers (id, rfq_id, supplier_org_id, status, currency, items, incoterms, payment_terms, valid_until)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at
`

func (q *Queries) InsertOffer(ctx context.Context, offer *models.Offer) error {
	return q.db.QueryRow(ctx, insertOffer,
		offer.ID,
		offer.RFQID,
		offer.SupplierOrgID,
		offer.Status,
		offer.Currency,
		offer.Items,
		offer.Incoterms,
		offer.PaymentTerms,
		offer.ValidUntil,
	).Scan(&offer.CreatedAt, &offer.UpdatedAt)
}

const getOffer = `-- name: GetOffer :one
SELECT ` + offerColumns + ` FROM offers WHERE id = $1
`

func (q *Queries) GetOffer(ctx context.Context, id uuid.UUID) (models.Offer, error) {
	return scanOffer(q.db.QueryRow(ctx, getOffer, id))
}

const getOfferForUpdate = `-- name: GetOfferForUpdate :one
SELECT ` + offerColumns + ` FROM offers WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetOfferForUpdate(ctx context.Context, id uuid.UUID) (models.Offer, error) {
	return scanOffer(q.db.QueryRow(ctx, getOfferForUpdate, id))
}

const updateOfferStatus = `-- name: UpdateOfferStatus :execrows
UPDATE offers SET status = $2, updated_at = NOW() WHERE id = $1
`

func (q *Queries) UpdateOfferStatus(ctx context.Context, arg UpdateStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateOfferStatus, arg.ID, arg.Status)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listOffersByRFQ = `-- name: ListOffersByRFQ :many
SELECT ` + offerColumns + ` FROM offers WHERE rfq_id = $1 ORDER BY created_at, id
`

func (q *Queries) ListOffersByRFQ(ctx context.Context, rfqID uuid.UUID) ([]models.Offer, error) {
	rows, err := q.db.Query(ctx, listOffersByRFQ, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Offer{}
	for rows.Next() {
		i, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
