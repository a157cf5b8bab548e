package service

import (
	"context"
	"testing"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) post(op func(context.Context, repository.Querier, Posting) error, p Posting) error {
	return f.store.RunInTx(context.Background(), func(q repository.Querier) error {
		return op(context.Background(), q, p)
	})
}

func TestLedgerReserveReleaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()
	f.fund(t, org, "USD", 1_000_000)
	before := f.wallet(t, org, "USD")

	p := Posting{OrgID: org, Currency: "USD", AmountMicros: 400_000}
	require.NoError(t, f.post(f.ledger.Reserve, p))
	mid := f.wallet(t, org, "USD")
	assert.Equal(t, int64(600_000), mid.AvailableMicros)
	assert.Equal(t, int64(400_000), mid.HeldMicros)

	require.NoError(t, f.post(f.ledger.Release, p))
	after := f.wallet(t, org, "USD")
	assert.Equal(t, before.AvailableMicros, after.AvailableMicros)
	assert.Equal(t, int64(0), after.HeldMicros)
}

func TestLedgerCaptureCreditConservesValue(t *testing.T) {
	f := newFixture(t)
	payer, payee := uuid.New(), uuid.New()
	f.fund(t, payer, "EUR", 2_000_000)
	f.fund(t, payee, "EUR", 5)

	p := Posting{OrgID: payer, Currency: "EUR", AmountMicros: 750_000}
	require.NoError(t, f.post(f.ledger.Reserve, p))
	beforePayer := f.wallet(t, payer, "EUR")
	beforePayee := f.wallet(t, payee, "EUR")

	require.NoError(t, f.store.RunInTx(context.Background(), func(q repository.Querier) error {
		if err := f.ledger.Capture(context.Background(), q, p); err != nil {
			return err
		}
		credit := p
		credit.OrgID = payee
		return f.ledger.Credit(context.Background(), q, credit)
	}))

	afterPayer := f.wallet(t, payer, "EUR")
	afterPayee := f.wallet(t, payee, "EUR")
	assert.Equal(t, beforePayer.AvailableMicros+beforePayer.HeldMicros-750_000, afterPayer.AvailableMicros+afterPayer.HeldMicros)
	assert.Equal(t, beforePayee.AvailableMicros+750_000, afterPayee.AvailableMicros)
	assert.Equal(t,
		beforePayer.AvailableMicros+beforePayer.HeldMicros+beforePayee.AvailableMicros,
		afterPayer.AvailableMicros+afterPayer.HeldMicros+afterPayee.AvailableMicros,
	)
}

func TestLedgerReserveInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()

	err := f.post(f.ledger.Reserve, Posting{OrgID: org, Currency: "USD", AmountMicros: 1})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds, "missing wallet has no funds")

	f.fund(t, org, "USD", 500)
	err = f.post(f.ledger.Reserve, Posting{OrgID: org, Currency: "USD", AmountMicros: 501})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	w := f.wallet(t, org, "USD")
	assert.Equal(t, int64(500), w.AvailableMicros)
	assert.Equal(t, int64(0), w.HeldMicros)
}

func TestLedgerHeldShortfallIsInvariantViolation(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()
	f.fund(t, org, "USD", 1_000)
	require.NoError(t, f.post(f.ledger.Reserve, Posting{OrgID: org, Currency: "USD", AmountMicros: 100}))

	cases := []struct {
		name string
		op   func(context.Context, repository.Querier, Posting) error
		p    Posting
	}{
		{"capture beyond held", f.ledger.Capture, Posting{OrgID: org, Currency: "USD", AmountMicros: 101}},
		{"release beyond held", f.ledger.Release, Posting{OrgID: org, Currency: "USD", AmountMicros: 101}},
		{"capture on missing wallet", f.ledger.Capture, Posting{OrgID: uuid.New(), Currency: "USD", AmountMicros: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, f.post(tc.op, tc.p), domain.ErrInvariantViolation)
			w := f.wallet(t, org, "USD")
			assert.Equal(t, int64(900), w.AvailableMicros)
			assert.Equal(t, int64(100), w.HeldMicros)
		})
	}
}

func TestLedgerRejectsInvalidPostings(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()
	require.ErrorIs(t, f.post(f.ledger.Credit, Posting{OrgID: org, Currency: "USD", AmountMicros: 0}), domain.ErrValidation)
	require.ErrorIs(t, f.post(f.ledger.Credit, Posting{OrgID: org, Currency: "usd", AmountMicros: 1}), domain.ErrValidation)
}

func TestLedgerListWallets(t *testing.T) {
	f := newFixture(t)
	org := uuid.New()
	f.fund(t, org, "USD", 1)
	f.fund(t, org, "CNY", 2)
	f.fund(t, uuid.New(), "USD", 3)

	wallets, err := f.ledger.ListWallets(context.Background(), org)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "CNY", wallets[0].Currency)
	assert.Equal(t, "USD", wallets[1].Currency)
}
