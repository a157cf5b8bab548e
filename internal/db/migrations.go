package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the full escrow database schema.
const schema = `
CREATE TABLE IF NOT EXISTS rfqs (
    id              UUID PRIMARY KEY,
    buyer_org_id    UUID NOT NULL,
    supplier_org_id UUID,
    status          TEXT NOT NULL CHECK (status IN ('draft', 'sent', 'responded', 'closed')),
    items           JSONB NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_rfqs_buyer ON rfqs(buyer_org_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_rfqs_supplier ON rfqs(supplier_org_id, created_at DESC);

CREATE TABLE IF NOT EXISTS offers (
    id              UUID PRIMARY KEY,
    rfq_id          UUID NOT NULL REFERENCES rfqs(id),
    supplier_org_id UUID NOT NULL,
    status          TEXT NOT NULL CHECK (status IN ('sent', 'accepted', 'rejected')),
    currency        CHAR(3) NOT NULL,
    items           JSONB NOT NULL,
    incoterms       TEXT,
    payment_terms   TEXT,
    valid_until     TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_offers_rfq ON offers(rfq_id);

CREATE TABLE IF NOT EXISTS orders (
    id              UUID PRIMARY KEY,
    buyer_org_id    UUID NOT NULL,
    supplier_org_id UUID NOT NULL,
    offer_id        UUID NOT NULL UNIQUE REFERENCES offers(id),
    status          TEXT NOT NULL CHECK (status IN ('draft', 'confirmed', 'in_progress', 'completed', 'cancelled')),
    currency        CHAR(3) NOT NULL,
    items           JSONB NOT NULL,
    total_amount    NUMERIC(24, 6) NOT NULL,
    total_micros    BIGINT NOT NULL CHECK (total_micros >= 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS deals (
    id              UUID PRIMARY KEY,
    rfq_id          UUID NOT NULL UNIQUE REFERENCES rfqs(id),
    offer_id        UUID NOT NULL UNIQUE REFERENCES offers(id),
    order_id        UUID NOT NULL UNIQUE REFERENCES orders(id),
    buyer_org_id    UUID NOT NULL,
    supplier_org_id UUID NOT NULL,
    status          TEXT NOT NULL CHECK (status IN ('negotiation', 'ordered', 'paid_partially', 'paid', 'closed')),
    main_currency   CHAR(3) NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallets (
    id               UUID PRIMARY KEY,
    org_id           UUID NOT NULL,
    currency         CHAR(3) NOT NULL,
    available_micros BIGINT NOT NULL DEFAULT 0 CHECK (available_micros >= 0),
    held_micros      BIGINT NOT NULL DEFAULT 0 CHECK (held_micros >= 0),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (org_id, currency)
);

CREATE TABLE IF NOT EXISTS wallet_entries (
    id            UUID PRIMARY KEY,
    wallet_id     UUID NOT NULL REFERENCES wallets(id),
    kind          TEXT NOT NULL CHECK (kind IN ('reserve', 'capture', 'release', 'credit')),
    amount_micros BIGINT NOT NULL CHECK (amount_micros > 0),
    payment_id    UUID,
    reference     TEXT UNIQUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_wallet_entries_wallet ON wallet_entries(wallet_id);

CREATE TABLE IF NOT EXISTS fx_quotes (
    id               UUID PRIMARY KEY,
    from_currency    CHAR(3) NOT NULL,
    to_currency      CHAR(3) NOT NULL,
    rate             NUMERIC(24, 12) NOT NULL CHECK (rate > 0),
    amount_micros    BIGINT NOT NULL,
    converted_micros BIGINT NOT NULL,
    expires_at       TIMESTAMPTZ NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS payments (
    id             UUID PRIMARY KEY,
    deal_id        UUID NOT NULL REFERENCES deals(id),
    payer_org_id   UUID NOT NULL,
    payee_org_id   UUID NOT NULL,
    amount_micros  BIGINT NOT NULL CHECK (amount_micros > 0),
    currency       CHAR(3) NOT NULL,
    status         TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
    fx_quote_id    UUID REFERENCES fx_quotes(id),
    fx_rate        NUMERIC(24, 12),
    settled_micros BIGINT NOT NULL DEFAULT 0,
    failure_reason TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at   TIMESTAMPTZ,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_payments_deal_status ON payments(deal_id, status);

CREATE TABLE IF NOT EXISTS deal_logistics (
    deal_id              UUID PRIMARY KEY REFERENCES deals(id),
    current_stage        TEXT NOT NULL DEFAULT '',
    delivered            BOOLEAN NOT NULL DEFAULT FALSE,
    delivered_at         TIMESTAMPTZ,
    receipt_confirmed_at TIMESTAMPTZ,
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id   UUID NOT NULL,
    actor_id    UUID,
    action      TEXT NOT NULL,
    prev_state  TEXT,
    next_state  TEXT,
    metadata    JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_id);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    idempotency_key TEXT PRIMARY KEY,
    request_hash    TEXT NOT NULL,
    method          TEXT NOT NULL,
    path            TEXT NOT NULL,
    response_status INTEGER NOT NULL DEFAULT 0,
    response_body   BYTEA NOT NULL DEFAULT '',
    content_type    TEXT NOT NULL DEFAULT '',
    in_progress     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// migrations run in order after schema creation. Each must be idempotent; append only.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_payments_pending_created
	     ON payments(created_at) WHERE status = 'pending'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS deals_rfq_id_key ON deals(rfq_id)`,
}

// Migrate applies the schema and every migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
