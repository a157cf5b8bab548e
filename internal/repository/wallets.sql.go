package repository

import (
	"context"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, org_id, currency, available_micros, held_micros, created_at, updated_at`

func scanWallet(row pgx.Row) (models.Wallet, error) {
	var i models.Wallet
	err := row.Scan(
		&i.ID,
		&i.OrgID,
		&i.Currency,
		&i.AvailableMicros,
		&i.HeldMicros,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const ensureWallet = `-- name: EnsureWallet :exec
INSERT INTO wallets (id, org_id, currency)
VALUES ($1, $2, $3)
ON CONFLICT (org_id, currency) DO NOTHING
`

func (q *Queries) EnsureWallet(ctx context.Context, arg WalletKey) error {
	_, err := q.db.Exec(ctx, ensureWallet, uuid.New(), arg.OrgID, arg.Currency)
	return err
}

const getWallet = `-- name: GetWallet :one
SELECT ` + walletColumns + ` FROM wallets WHERE org_id = $1 AND currency = $2
`

func (q *Queries) GetWallet(ctx context.Context, arg WalletKey) (models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, getWallet, arg.OrgID, arg.Currency))
}

const getWalletForUpdate = `-- name: GetWalletForUpdate :one
SELECT ` + walletColumns + ` FROM wallets WHERE org_id = $1 AND currency = $2 FOR UPDATE
`

func (q *Queries) GetWalletForUpdate(ctx context.Context, arg WalletKey) (models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, getWalletForUpdate, arg.OrgID, arg.Currency))
}

const updateWalletBalances = `-- name: UpdateWalletBalances :execrows
UPDATE wallets
SET available_micros = $2, held_micros = $3, updated_at = NOW()
WHERE id = $1
`

func (q *Queries) UpdateWalletBalances(ctx context.Context, arg UpdateWalletBalancesParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateWalletBalances, arg.ID, arg.AvailableMicros, arg.HeldMicros)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listWalletsByOrg = `-- name: ListWalletsByOrg :many
SELECT ` + walletColumns + ` FROM wallets WHERE org_id = $1 ORDER BY currency
`

func (q *Queries) ListWalletsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Wallet, error) {
	return q.queryWallets(ctx, listWalletsByOrg, orgID)
}

const listWallets = `-- name: ListWallets :many
SELECT ` + walletColumns + ` FROM wallets ORDER BY org_id, currency
`

func (q *Queries) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	return q.queryWallets(ctx, listWallets)
}

func (q *Queries) queryWallets(ctx context.Context, sql string, args ...interface{}) ([]models.Wallet, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Wallet{}
	for rows.Next() {
		i, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertWalletEntry = `-- name: InsertWalletEntry :one
INSERT INTO wallet_entries (id, wallet_id, kind, amount_micros, payment_id, reference)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at
`

func (q *Queries) InsertWalletEntry(ctx context.Context, entry *models.WalletEntry) error {
	return q.db.QueryRow(ctx, insertWalletEntry,
		entry.ID,
		entry.WalletID,
		entry.Kind,
		entry.AmountMicros,
		entry.PaymentID,
		entry.Reference,
	).Scan(&entry.CreatedAt)
}

const getWalletEntryByReference = `-- name: GetWalletEntryByReference :one
SELECT id, wallet_id, kind, amount_micros, payment_id, reference, created_at
FROM wallet_entries WHERE reference = $1
`

func (q *Queries) GetWalletEntryByReference(ctx context.Context, reference string) (models.WalletEntry, error) {
	var i models.WalletEntry
	err := q.db.QueryRow(ctx, getWalletEntryByReference, reference).Scan(
		&i.ID,
		&i.WalletID,
		&i.Kind,
		&i.AmountMicros,
		&i.PaymentID,
		&i.Reference,
		&i.CreatedAt,
	)
	return i, err
}

const getWalletEntryTotals = `-- name: GetWalletEntryTotals :one
SELECT
    COALESCE(SUM(amount_micros) FILTER (WHERE kind = 'credit'), 0)::bigint,
    COALESCE(SUM(amount_micros) FILTER (WHERE kind = 'reserve'), 0)::bigint,
    COALESCE(SUM(amount_micros) FILTER (WHERE kind = 'capture'), 0)::bigint,
    COALESCE(SUM(amount_micros) FILTER (WHERE kind = 'release'), 0)::bigint
FROM wallet_entries WHERE wallet_id = $1
`

func (q *Queries) GetWalletEntryTotals(ctx context.Context, walletID uuid.UUID) (WalletEntryTotals, error) {
	var i WalletEntryTotals
	err := q.db.QueryRow(ctx, getWalletEntryTotals, walletID).Scan(
		&i.CreditMicros,
		&i.ReserveMicros,
		&i.CaptureMicros,
		&i.ReleaseMicros,
	)
	return i, err
}
