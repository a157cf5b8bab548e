package repository

import (
	"context"
	"time"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const insertFXQuote = `-- name: InsertFXQuote :one
INSERT INTO fx_quotes (id, from_currency, to_currency, rate, amount_micros, converted_micros, expires_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
RETURNING created_at
`

func (q *Queries) InsertFXQuote(ctx context.Context, quote *models.FXQuote) error {
	return q.db.QueryRow(ctx, insertFXQuote,
		quote.ID,
		quote.FromCurrency,
		quote.ToCurrency,
		quote.Rate.String(),
		quote.AmountMicros,
		quote.ConvertedMicros,
		quote.ExpiresAt,
	).Scan(&quote.CreatedAt)
}

const getFXQuote = `-- name: GetFXQuote :one
SELECT id, from_currency, to_currency, rate::text, amount_micros, converted_micros, expires_at, created_at
FROM fx_quotes WHERE id = $1
`

func (q *Queries) GetFXQuote(ctx context.Context, id uuid.UUID) (models.FXQuote, error) {
	var (
		i    models.FXQuote
		rate string
	)
	err := q.db.QueryRow(ctx, getFXQuote, id).Scan(
		&i.ID,
		&i.FromCurrency,
		&i.ToCurrency,
		&rate,
		&i.AmountMicros,
		&i.ConvertedMicros,
		&i.ExpiresAt,
		&i.CreatedAt,
	)
	if err != nil {
		return i, err
	}
	i.Rate, err = decimal.NewFromString(rate)
	return i, err
}

// Quotes referenced by a payment are kept for the audit trail.
const deleteFXQuotesExpiredBefore = `-- name: DeleteFXQuotesExpiredBefore :execrows
DELETE FROM fx_quotes q
WHERE q.expires_at < $1
  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.fx_quote_id = q.id)
`

func (q *Queries) DeleteFXQuotesExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, deleteFXQuotesExpiredBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
