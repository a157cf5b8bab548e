package service

import (
	"context"
	"testing"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer, supplier := newActor(domain.RoleBuyer), newActor(domain.RoleSupplier)
	res := f.acceptedDeal(t, buyer, supplier, "USD", "2")
	f.fund(t, buyer.OrgID, "USD", 50_000_000)

	settled, err := f.payments.CreatePayment(ctx, buyer, CreatePaymentInput{DealID: res.Deal.ID, AmountMicros: 10_000_000, Currency: "USD"})
	require.NoError(t, err)
	_, err = f.payments.CompletePayment(ctx, SystemActor, settled.ID)
	require.NoError(t, err)
	released, err := f.payments.CreatePayment(ctx, buyer, CreatePaymentInput{DealID: res.Deal.ID, AmountMicros: 4_000_000, Currency: "USD"})
	require.NoError(t, err)
	_, err = f.payments.FailPayment(ctx, SystemActor, released.ID, "test")
	require.NoError(t, err)
	_, err = f.payments.CreatePayment(ctx, buyer, CreatePaymentInput{DealID: res.Deal.ID, AmountMicros: 2_000_000, Currency: "USD"})
	require.NoError(t, err)

	imbalances, err := f.recon.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, imbalances, "every mutation went through the ledger")

	w := f.wallet(t, buyer.OrgID, "USD")
	_, err = f.store.Queries().UpdateWalletBalances(ctx, repository.UpdateWalletBalancesParams{
		ID:              w.ID,
		AvailableMicros: w.AvailableMicros + 1,
		HeldMicros:      w.HeldMicros,
	})
	require.NoError(t, err)

	imbalances, err = f.recon.Run(ctx)
	require.NoError(t, err)
	require.Len(t, imbalances, 1)
	assert.Equal(t, w.ID, imbalances[0].WalletID)
	assert.Equal(t, imbalances[0].JournalNet+1, imbalances[0].BalanceTotal)
}
