package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queries struct {
	store *Store
	tx    *state
}

var _ repository.Querier = (*queries)(nil)

func (q *queries) do(ctx context.Context, fn func(st *state, now time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.tx != nil {
		return fn(q.tx, q.store.now())
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	return fn(q.store.st, q.store.now())
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: "23503", ConstraintName: constraint, Message: "insert or update violates foreign key constraint"}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{Code: "23514", ConstraintName: constraint, Message: "new row violates check constraint"}
}

// matchesSide reports whether org sits on the requested side of a two-party record.
func matchesSide(role string, org, buyer, supplier uuid.UUID) bool {
	switch role {
	case domain.RoleBuyer:
		return buyer == org
	case domain.RoleSupplier:
		return supplier == org
	case "":
		return buyer == org || supplier == org
	default:
		return false
	}
}

func paginate[T any](items []T, limit, offset int32) []T {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return []T{}
	}
	end := int(offset) + int(limit)
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneRFQ(r models.RFQ) models.RFQ {
	r.Items = append([]models.RFQItem(nil), r.Items...)
	return r
}

func cloneOffer(o models.Offer) models.Offer {
	o.Items = append([]models.OfferItem(nil), o.Items...)
	return o
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OfferItem(nil), o.Items...)
	return o
}

// RFQs

func (q *queries) InsertRFQ(ctx context.Context, rfq *models.RFQ) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.rfqs[rfq.ID]; ok {
			return uniqueViolation("rfqs_pkey")
		}
		rfq.CreatedAt, rfq.UpdatedAt = now, now
		st.rfqs[rfq.ID] = cloneRFQ(*rfq)
		st.rfqOrder = append(st.rfqOrder, rfq.ID)
		return nil
	})
}

func (q *queries) GetRFQ(ctx context.Context, id uuid.UUID) (models.RFQ, error) {
	var out models.RFQ
	err := q.do(ctx, func(st *state, _ time.Time) error {
		r, ok := st.rfqs[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = cloneRFQ(r)
		return nil
	})
	return out, err
}

func (q *queries) GetRFQForUpdate(ctx context.Context, id uuid.UUID) (models.RFQ, error) {
	return q.GetRFQ(ctx, id)
}

func (q *queries) UpdateRFQ(ctx context.Context, arg repository.UpdateRFQParams) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, now time.Time) error {
		r, ok := st.rfqs[arg.ID]
		if !ok {
			return nil
		}
		r.SupplierOrgID = arg.SupplierOrgID
		r.Status = arg.Status
		r.Items = append([]models.RFQItem(nil), arg.Items...)
		r.UpdatedAt = now
		st.rfqs[arg.ID] = r
		n = 1
		return nil
	})
	return n, err
}

func (q *queries) ListRFQs(ctx context.Context, arg repository.ListParams) ([]models.RFQ, error) {
	var out []models.RFQ
	err := q.do(ctx, func(st *state, _ time.Time) error {
		matched := []models.RFQ{}
		for i := len(st.rfqOrder) - 1; i >= 0; i-- {
			r := st.rfqs[st.rfqOrder[i]]
			isBuyer := r.BuyerOrgID == arg.OrgID
			isSupplier := r.SupplierOrgID != nil && *r.SupplierOrgID == arg.OrgID && r.Status != domain.RFQStatusDraft
			var visible bool
			switch arg.Role {
			case domain.RoleBuyer:
				visible = isBuyer
			case domain.RoleSupplier:
				visible = isSupplier
			case "":
				visible = isBuyer || isSupplier
			}
			if !visible || (arg.Status != "" && r.Status != arg.Status) {
				continue
			}
			matched = append(matched, cloneRFQ(r))
		}
		out = paginate(matched, arg.Limit, arg.Offset)
		return nil
	})
	return out, err
}

// Offers

func (q *queries) InsertOffer(ctx context.Context, offer *models.Offer) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.offers[offer.ID]; ok {
			return uniqueViolation("offers_pkey")
		}
		if _, ok := st.rfqs[offer.RFQID]; !ok {
			return foreignKeyViolation("offers_rfq_id_fkey")
		}
		offer.CreatedAt, offer.UpdatedAt = now, now
		st.offers[offer.ID] = cloneOffer(*offer)
		st.offerSeq = append(st.offerSeq, offer.ID)
		return nil
	})
}

func (q *queries) GetOffer(ctx context.Context, id uuid.UUID) (models.Offer, error) {
	var out models.Offer
	err := q.do(ctx, func(st *state, _ time.Time) error {
		o, ok := st.offers[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = cloneOffer(o)
		return nil
	})
	return out, err
}

func (q *queries) GetOfferForUpdate(ctx context.Context, id uuid.UUID) (models.Offer, error) {
	return q.GetOffer(ctx, id)
}

func (q *queries) UpdateOfferStatus(ctx context.Context, arg repository.UpdateStatusParams) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, now time.Time) error {
		o, ok := st.offers[arg.ID]
		if !ok {
			return nil
		}
		o.Status = arg.Status
		o.UpdatedAt = now
		st.offers[arg.ID] = o
		n = 1
		return nil
	})
	return n, err
}

func (q *queries) ListOffersByRFQ(ctx context.Context, rfqID uuid.UUID) ([]models.Offer, error) {
	out := []models.Offer{}
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, id := range st.offerSeq {
			if o := st.offers[id]; o.RFQID == rfqID {
				out = append(out, cloneOffer(o))
			}
		}
		return nil
	})
	return out, err
}

// Orders

func (q *queries) InsertOrder(ctx context.Context, order *models.Order) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.orders[order.ID]; ok {
			return uniqueViolation("orders_pkey")
		}
		for _, existing := range st.orders {
			if existing.OfferID == order.OfferID {
				return uniqueViolation("orders_offer_id_key")
			}
		}
		if _, ok := st.offers[order.OfferID]; !ok {
			return foreignKeyViolation("orders_offer_id_fkey")
		}
		order.CreatedAt, order.UpdatedAt = now, now
		st.orders[order.ID] = cloneOrder(*order)
		st.orderSeq = append(st.orderSeq, order.ID)
		return nil
	})
}

func (q *queries) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	var out models.Order
	err := q.do(ctx, func(st *state, _ time.Time) error {
		o, ok := st.orders[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (q *queries) UpdateOrderStatus(ctx context.Context, arg repository.UpdateStatusParams) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, now time.Time) error {
		o, ok := st.orders[arg.ID]
		if !ok {
			return nil
		}
		o.Status = arg.Status
		o.UpdatedAt = now
		st.orders[arg.ID] = o
		n = 1
		return nil
	})
	return n, err
}

func (q *queries) ListOrders(ctx context.Context, arg repository.ListParams) ([]models.Order, error) {
	var out []models.Order
	err := q.do(ctx, func(st *state, _ time.Time) error {
		matched := []models.Order{}
		for i := len(st.orderSeq) - 1; i >= 0; i-- {
			o := st.orders[st.orderSeq[i]]
			if !matchesSide(arg.Role, arg.OrgID, o.BuyerOrgID, o.SupplierOrgID) {
				continue
			}
			if arg.Status != "" && o.Status != arg.Status {
				continue
			}
			matched = append(matched, cloneOrder(o))
		}
		out = paginate(matched, arg.Limit, arg.Offset)
		return nil
	})
	return out, err
}

// Deals

func (q *queries) InsertDeal(ctx context.Context, deal *models.Deal) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.deals[deal.ID]; ok {
			return uniqueViolation("deals_pkey")
		}
		for _, existing := range st.deals {
			if existing.OfferID == deal.OfferID {
				return uniqueViolation("deals_offer_id_key")
			}
			if existing.OrderID == deal.OrderID {
				return uniqueViolation("deals_order_id_key")
			}
			if existing.RFQID == deal.RFQID {
				return uniqueViolation("deals_rfq_id_key")
			}
		}
		if _, ok := st.orders[deal.OrderID]; !ok {
			return foreignKeyViolation("deals_order_id_fkey")
		}
		deal.CreatedAt, deal.UpdatedAt = now, now
		st.deals[deal.ID] = *deal
		st.dealSeq = append(st.dealSeq, deal.ID)
		return nil
	})
}

func (q *queries) GetDeal(ctx context.Context, id uuid.UUID) (models.Deal, error) {
	var out models.Deal
	err := q.do(ctx, func(st *state, _ time.Time) error {
		d, ok := st.deals[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = d
		return nil
	})
	return out, err
}

func (q *queries) GetDealForUpdate(ctx context.Context, id uuid.UUID) (models.Deal, error) {
	return q.GetDeal(ctx, id)
}

func (q *queries) GetDealByOfferID(ctx context.Context, offerID uuid.UUID) (models.Deal, error) {
	var out models.Deal
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, d := range st.deals {
			if d.OfferID == offerID {
				out = d
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (q *queries) GetDealByRFQID(ctx context.Context, rfqID uuid.UUID) (models.Deal, error) {
	var out models.Deal
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, d := range st.deals {
			if d.RFQID == rfqID {
				out = d
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (q *queries) UpdateDealStatus(ctx context.Context, arg repository.UpdateStatusParams) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, now time.Time) error {
		d, ok := st.deals[arg.ID]
		if !ok {
			return nil
		}
		d.Status = arg.Status
		d.UpdatedAt = now
		st.deals[arg.ID] = d
		n = 1
		return nil
	})
	return n, err
}

func (q *queries) ListDeals(ctx context.Context, arg repository.ListParams) ([]models.Deal, error) {
	var out []models.Deal
	err := q.do(ctx, func(st *state, _ time.Time) error {
		matched := []models.Deal{}
		for i := len(st.dealSeq) - 1; i >= 0; i-- {
			d := st.deals[st.dealSeq[i]]
			if !matchesSide(arg.Role, arg.OrgID, d.BuyerOrgID, d.SupplierOrgID) {
				continue
			}
			if arg.Status != "" && d.Status != arg.Status {
				continue
			}
			matched = append(matched, d)
		}
		out = paginate(matched, arg.Limit, arg.Offset)
		return nil
	})
	return out, err
}

// Wallets

func (q *queries) EnsureWallet(ctx context.Context, arg repository.WalletKey) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		key := walletKey{org: arg.OrgID, currency: arg.Currency}
		if _, ok := st.walletIdx[key]; ok {
			return nil
		}
		w := models.Wallet{
			ID:        uuid.New(),
			OrgID:     arg.OrgID,
			Currency:  arg.Currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.wallets[w.ID] = w
		st.walletIdx[key] = w.ID
		return nil
	})
}

func (q *queries) GetWallet(ctx context.Context, arg repository.WalletKey) (models.Wallet, error) {
	var out models.Wallet
	err := q.do(ctx, func(st *state, _ time.Time) error {
		id, ok := st.walletIdx[walletKey{org: arg.OrgID, currency: arg.Currency}]
		if !ok {
			return pgx.ErrNoRows
		}
		out = st.wallets[id]
		return nil
	})
	return out, err
}

func (q *queries) GetWalletForUpdate(ctx context.Context, arg repository.WalletKey) (models.Wallet, error) {
	return q.GetWallet(ctx, arg)
}

func (q *queries) UpdateWalletBalances(ctx context.Context, arg repository.UpdateWalletBalancesParams) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, now time.Time) error {
		w, ok := st.wallets[arg.ID]
		if !ok {
			return nil
		}
		if arg.AvailableMicros < 0 {
			return checkViolation("wallets_available_micros_check")
		}
		if arg.HeldMicros < 0 {
			return checkViolation("wallets_held_micros_check")
		}
		w.AvailableMicros = arg.AvailableMicros
		w.HeldMicros = arg.HeldMicros
		w.UpdatedAt = now
		st.wallets[arg.ID] = w
		n = 1
		return nil
	})
	return n, err
}

func (q *queries) ListWalletsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Wallet, error) {
	out := []models.Wallet{}
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, w := range st.wallets {
			if w.OrgID == orgID {
				out = append(out, w)
			}
		}
		return nil
	})
	sortWallets(out)
	return out, err
}

func (q *queries) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	out := []models.Wallet{}
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, w := range st.wallets {
			out = append(out, w)
		}
		return nil
	})
	sortWallets(out)
	return out, err
}

func (q *queries) InsertWalletEntry(ctx context.Context, entry *models.WalletEntry) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.wallets[entry.WalletID]; !ok {
			return foreignKeyViolation("wallet_entries_wallet_id_fkey")
		}
		if entry.AmountMicros <= 0 {
			return checkViolation("wallet_entries_amount_micros_check")
		}
		if entry.Reference != nil {
			for _, e := range st.entries {
				if e.Reference != nil && *e.Reference == *entry.Reference {
					return uniqueViolation("wallet_entries_reference_key")
				}
			}
		}
		entry.CreatedAt = now
		st.entries = append(st.entries, *entry)
		return nil
	})
}

func (q *queries) GetWalletEntryByReference(ctx context.Context, reference string) (models.WalletEntry, error) {
	var out models.WalletEntry
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, e := range st.entries {
			if e.Reference != nil && *e.Reference == reference {
				out = e
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (q *queries) GetWalletEntryTotals(ctx context.Context, walletID uuid.UUID) (repository.WalletEntryTotals, error) {
	var out repository.WalletEntryTotals
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, e := range st.entries {
			if e.WalletID != walletID {
				continue
			}
			switch e.Kind {
			case domain.EntryKindCredit:
				out.CreditMicros += e.AmountMicros
			case domain.EntryKindReserve:
				out.ReserveMicros += e.AmountMicros
			case domain.EntryKindCapture:
				out.CaptureMicros += e.AmountMicros
			case domain.EntryKindRelease:
				out.ReleaseMicros += e.AmountMicros
			}
		}
		return nil
	})
	return out, err
}

// FX quotes

func (q *queries) InsertFXQuote(ctx context.Context, quote *models.FXQuote) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.quotes[quote.ID]; ok {
			return uniqueViolation("fx_quotes_pkey")
		}
		quote.CreatedAt = now
		st.quotes[quote.ID] = *quote
		return nil
	})
}

func (q *queries) GetFXQuote(ctx context.Context, id uuid.UUID) (models.FXQuote, error) {
	var out models.FXQuote
	err := q.do(ctx, func(st *state, _ time.Time) error {
		fq, ok := st.quotes[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = fq
		return nil
	})
	return out, err
}

func (q *queries) DeleteFXQuotesExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, _ time.Time) error {
		referenced := map[uuid.UUID]struct{}{}
		for _, p := range st.payments {
			if p.FXQuoteID != nil {
				referenced[*p.FXQuoteID] = struct{}{}
			}
		}
		for id, fq := range st.quotes {
			if _, ok := referenced[id]; ok {
				continue
			}
			if fq.ExpiresAt.Before(before) {
				delete(st.quotes, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

// Payments

func (q *queries) InsertPayment(ctx context.Context, payment *models.Payment) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.payments[payment.ID]; ok {
			return uniqueViolation("payments_pkey")
		}
		if _, ok := st.deals[payment.DealID]; !ok {
			return foreignKeyViolation("payments_deal_id_fkey")
		}
		if payment.AmountMicros <= 0 {
			return checkViolation("payments_amount_micros_check")
		}
		payment.CreatedAt, payment.UpdatedAt = now, now
		st.payments[payment.ID] = *payment
		st.paySeq = append(st.paySeq, payment.ID)
		return nil
	})
}

func (q *queries) GetPayment(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	var out models.Payment
	err := q.do(ctx, func(st *state, _ time.Time) error {
		p, ok := st.payments[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = p
		return nil
	})
	return out, err
}

func (q *queries) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	return q.GetPayment(ctx, id)
}

func (q *queries) CompletePayment(ctx context.Context, arg repository.CompletePaymentParams) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, now time.Time) error {
		p, ok := st.payments[arg.ID]
		if !ok || p.Status != domain.PaymentStatusPending {
			return nil
		}
		completedAt := arg.CompletedAt
		p.Status = domain.PaymentStatusCompleted
		p.CompletedAt = &completedAt
		p.UpdatedAt = now
		st.payments[arg.ID] = p
		n = 1
		return nil
	})
	return n, err
}

func (q *queries) FailPayment(ctx context.Context, arg repository.FailPaymentParams) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, now time.Time) error {
		p, ok := st.payments[arg.ID]
		if !ok || p.Status != domain.PaymentStatusPending {
			return nil
		}
		reason := arg.Reason
		p.Status = domain.PaymentStatusFailed
		p.FailureReason = &reason
		p.UpdatedAt = now
		st.payments[arg.ID] = p
		n = 1
		return nil
	})
	return n, err
}

func (q *queries) ListPayments(ctx context.Context, arg repository.ListPaymentsParams) ([]models.Payment, error) {
	var out []models.Payment
	err := q.do(ctx, func(st *state, _ time.Time) error {
		matched := []models.Payment{}
		for i := len(st.paySeq) - 1; i >= 0; i-- {
			p := st.payments[st.paySeq[i]]
			if arg.DealID != nil && p.DealID != *arg.DealID {
				continue
			}
			if !matchesSide(arg.Role, arg.OrgID, p.PayerOrgID, p.PayeeOrgID) {
				continue
			}
			if arg.Status != "" && p.Status != arg.Status {
				continue
			}
			matched = append(matched, p)
		}
		out = paginate(matched, arg.Limit, arg.Offset)
		return nil
	})
	return out, err
}

func (q *queries) ListPendingPaymentsByDealForUpdate(ctx context.Context, dealID uuid.UUID) ([]models.Payment, error) {
	out := []models.Payment{}
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, id := range st.paySeq {
			p := st.payments[id]
			if p.DealID == dealID && p.Status == domain.PaymentStatusPending {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (q *queries) SumCompletedSettledMicros(ctx context.Context, dealID uuid.UUID) (int64, error) {
	var total int64
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, p := range st.payments {
			if p.DealID == dealID && p.Status == domain.PaymentStatusCompleted {
				total += p.SettledMicros
			}
		}
		return nil
	})
	return total, err
}

func (q *queries) ListStalePendingPayments(ctx context.Context, arg repository.StalePaymentsParams) ([]models.Payment, error) {
	var out []models.Payment
	err := q.do(ctx, func(st *state, _ time.Time) error {
		matched := []models.Payment{}
		for _, id := range st.paySeq {
			p := st.payments[id]
			if p.Status == domain.PaymentStatusPending && p.CreatedAt.Before(arg.Before) {
				matched = append(matched, p)
			}
		}
		out = paginate(matched, arg.Limit, 0)
		return nil
	})
	return out, err
}

// Logistics

func (q *queries) GetDealLogistics(ctx context.Context, dealID uuid.UUID) (models.DealLogistics, error) {
	var out models.DealLogistics
	err := q.do(ctx, func(st *state, _ time.Time) error {
		l, ok := st.logistics[dealID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = l
		return nil
	})
	return out, err
}

func (q *queries) GetDealLogisticsForUpdate(ctx context.Context, dealID uuid.UUID) (models.DealLogistics, error) {
	return q.GetDealLogistics(ctx, dealID)
}

func (q *queries) UpsertDealLogistics(ctx context.Context, logistics *models.DealLogistics) error {
	return q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.deals[logistics.DealID]; !ok {
			return foreignKeyViolation("deal_logistics_deal_id_fkey")
		}
		logistics.UpdatedAt = now
		st.logistics[logistics.DealID] = *logistics
		return nil
	})
}

// Audit

func (q *queries) InsertAuditLog(ctx context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.do(ctx, func(st *state, now time.Time) error {
		id = int64(len(st.audit)) + 1
		st.audit = append(st.audit, models.AuditLog{
			ID:         id,
			EntityType: arg.EntityType,
			EntityID:   arg.EntityID,
			ActorID:    arg.ActorID,
			Action:     arg.Action,
			PrevState:  arg.PrevState,
			NextState:  arg.NextState,
			Metadata:   append([]byte(nil), arg.Metadata...),
			CreatedAt:  now,
		})
		return nil
	})
	return id, err
}

func (q *queries) ListAuditLogs(ctx context.Context, entityID uuid.UUID) ([]models.AuditLog, error) {
	out := []models.AuditLog{}
	err := q.do(ctx, func(st *state, _ time.Time) error {
		for _, a := range st.audit {
			if a.EntityID == entityID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

// Idempotency keys

func (q *queries) GetIdempotencyKey(ctx context.Context, key string) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.do(ctx, func(st *state, _ time.Time) error {
		k, ok := st.idem[key]
		if !ok {
			return pgx.ErrNoRows
		}
		out = k
		return nil
	})
	return out, err
}

func (q *queries) ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.do(ctx, func(st *state, now time.Time) error {
		if _, ok := st.idem[arg.IdempotencyKey]; ok {
			return pgx.ErrNoRows
		}
		out = repository.IdempotencyKey{
			IdempotencyKey: arg.IdempotencyKey,
			RequestHash:    arg.RequestHash,
			Method:         arg.Method,
			Path:           arg.Path,
			InProgress:     true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		st.idem[arg.IdempotencyKey] = out
		return nil
	})
	return out, err
}

func (q *queries) FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.do(ctx, func(st *state, now time.Time) error {
		k, ok := st.idem[arg.IdempotencyKey]
		if !ok || k.RequestHash != arg.RequestHash {
			return pgx.ErrNoRows
		}
		k.ResponseStatus = arg.ResponseStatus
		k.ResponseBody = append([]byte(nil), arg.ResponseBody...)
		k.ContentType = arg.ContentType
		k.InProgress = false
		k.UpdatedAt = now
		st.idem[arg.IdempotencyKey] = k
		out = k
		return nil
	})
	return out, err
}

func (q *queries) ReleaseIdempotencyKey(ctx context.Context, arg repository.ReleaseIdempotencyKeyParams) (int64, error) {
	var n int64
	err := q.do(ctx, func(st *state, _ time.Time) error {
		k, ok := st.idem[arg.IdempotencyKey]
		if !ok || k.RequestHash != arg.RequestHash || !k.InProgress {
			return nil
		}
		delete(st.idem, arg.IdempotencyKey)
		n = 1
		return nil
	})
	return n, err
}

func sortWallets(ws []models.Wallet) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].OrgID != ws[j].OrgID {
			return ws[i].OrgID.String() < ws[j].OrgID.String()
		}
		return ws[i].Currency < ws[j].Currency
	})
}
