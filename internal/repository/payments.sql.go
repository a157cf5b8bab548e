package repository

import (
	"context"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, deal_id, payer_org_id, payee_org_id, amount_micros, currency, status, fx_quote_id, fx_rate::text, settled_micros, failure_reason, created_at, completed_at, updated_at`

func scanPayment(row pgx.Row) (models.Payment, error) {
	var (
		i    models.Payment
		rate *string
	)
	err := row.Scan(
		&i.ID,
		&i.DealID,
		&i.PayerOrgID,
		&i.PayeeOrgID,
		&i.AmountMicros,
		&i.Currency,
		&i.Status,
		&i.FXQuoteID,
		&rate,
		&i.SettledMicros,
		&i.FailureReason,
		&i.CreatedAt,
		&i.CompletedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return i, err
	}
	if rate != nil {
		r, err := decimal.NewFromString(*rate)
		if err != nil {
			return i, err
		}
		i.FXRate = &r
	}
	return i, nil
}

func (q *Queries) queryPayments(ctx context.Context, sql string, args ...interface{}) ([]models.Payment, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Payment{}
	for rows.Next() {
		i, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertPayment = `-- name: InsertPayment :one
INSERT INTO payments (id, deal_id, payer_org_id, payee_org_id, amount_micros, currency, status, fx_quote_id, fx_rate, settled_micros, failure_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11)
RETURNING created_at, updated_at
`

func (q *Queries) InsertPayment(ctx context.Context, payment *models.Payment) error {
	var rate *string
	if payment.FXRate != nil {
		s := payment.FXRate.String()
		rate = &s
	}
	return q.db.QueryRow(ctx, insertPayment,
		payment.ID,
		payment.DealID,
		payment.PayerOrgID,
		payment.PayeeOrgID,
		payment.AmountMicros,
		payment.Currency,
		payment.Status,
		payment.FXQuoteID,
		rate,
		payment.SettledMicros,
		payment.FailureReason,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

const getPayment = `-- name: GetPayment :one
SELECT ` + paymentColumns + ` FROM payments WHERE id = $1
`

func (q *Queries) GetPayment(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPayment, id))
}

const getPaymentForUpdate = `-- name: GetPaymentForUpdate :one
SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentForUpdate, id))
}

const completePayment = `-- name: CompletePayment :execrows
UPDATE payments
SET status = 'completed', completed_at = $2, updated_at = NOW()
WHERE id = $1 AND status = 'pending'
`

func (q *Queries) CompletePayment(ctx context.Context, arg CompletePaymentParams) (int64, error) {
	result, err := q.db.Exec(ctx, completePayment, arg.ID, arg.CompletedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const failPayment = `-- name: FailPayment :execrows
UPDATE payments
SET status = 'failed', failure_reason = $2, updated_at = NOW()
WHERE id = $1 AND status = 'pending'
`

func (q *Queries) FailPayment(ctx context.Context, arg FailPaymentParams) (int64, error) {
	result, err := q.db.Exec(ctx, failPayment, arg.ID, arg.Reason)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listPayments = `-- name: ListPayments :many
SELECT ` + paymentColumns + ` FROM payments
WHERE ($1::uuid IS NULL OR deal_id = $1)
AND (
    ($3 = 'buyer' AND payer_org_id = $2)
 OR ($3 = 'supplier' AND payee_org_id = $2)
 OR ($3 = '' AND (payer_org_id = $2 OR payee_org_id = $2))
)
AND ($4 = '' OR status = $4)
ORDER BY created_at DESC, id
LIMIT $5 OFFSET $6
`

func (q *Queries) ListPayments(ctx context.Context, arg ListPaymentsParams) ([]models.Payment, error) {
	return q.queryPayments(ctx, listPayments, arg.DealID, arg.OrgID, arg.Role, arg.Status, pageLimit(arg.Limit), arg.Offset)
}

const listPendingPaymentsByDealForUpdate = `-- name: ListPendingPaymentsByDealForUpdate :many
SELECT ` + paymentColumns + ` FROM payments
WHERE deal_id = $1 AND status = 'pending'
ORDER BY created_at, id
FOR UPDATE
`

func (q *Queries) ListPendingPaymentsByDealForUpdate(ctx context.Context, dealID uuid.UUID) ([]models.Payment, error) {
	return q.queryPayments(ctx, listPendingPaymentsByDealForUpdate, dealID)
}

const sumCompletedSettledMicros = `-- name: SumCompletedSettledMicros :one
SELECT COALESCE(SUM(settled_micros), 0)::bigint FROM payments
WHERE deal_id = $1 AND status = 'completed'
`

func (q *Queries) SumCompletedSettledMicros(ctx context.Context, dealID uuid.UUID) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, sumCompletedSettledMicros, dealID).Scan(&total)
	return total, err
}

const listStalePendingPayments = `-- name: ListStalePendingPayments :many
SELECT ` + paymentColumns + ` FROM payments
WHERE status = 'pending' AND created_at < $1
ORDER BY created_at, id
LIMIT $2
`

func (q *Queries) ListStalePendingPayments(ctx context.Context, arg StalePaymentsParams) ([]models.Payment, error) {
	return q.queryPayments(ctx, listStalePendingPayments, arg.Before, pageLimit(arg.Limit))
}
