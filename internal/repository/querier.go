package repository

import (
	"context"
	"time"

	"github.com/ayo6706/trade-escrow/internal/models"
	"github.com/google/uuid"
)

// Querier is the data access contract implemented by the Postgres queries and the in-memory store.
// Lookups return pgx.ErrNoRows when the row does not exist.
type Querier interface {
	InsertRFQ(ctx context.Context, rfq *models.RFQ) error
	GetRFQ(ctx context.Context, id uuid.UUID) (models.RFQ, error)
	GetRFQForUpdate(ctx context.Context, id uuid.UUID) (models.RFQ, error)
	UpdateRFQ(ctx context.Context, arg UpdateRFQParams) (int64, error)
	ListRFQs(ctx context.Context, arg ListParams) ([]models.RFQ, error)

	InsertOffer(ctx context.Context, offer *models.Offer) error
	GetOffer(ctx context.Context, id uuid.UUID) (models.Offer, error)
	GetOfferForUpdate(ctx context.Context, id uuid.UUID) (models.Offer, error)
	UpdateOfferStatus(ctx context.Context, arg UpdateStatusParams) (int64, error)
	ListOffersByRFQ(ctx context.Context, rfqID uuid.UUID) ([]models.Offer, error)

	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, arg UpdateStatusParams) (int64, error)
	ListOrders(ctx context.Context, arg ListParams) ([]models.Order, error)

	InsertDeal(ctx context.Context, deal *models.Deal) error
	GetDeal(ctx context.Context, id uuid.UUID) (models.Deal, error)
	GetDealForUpdate(ctx context.Context, id uuid.UUID) (models.Deal, error)
	GetDealByOfferID(ctx context.Context, offerID uuid.UUID) (models.Deal, error)
	GetDealByRFQID(ctx context.Context, rfqID uuid.UUID) (models.Deal, error)
	UpdateDealStatus(ctx context.Context, arg UpdateStatusParams) (int64, error)
	ListDeals(ctx context.Context, arg ListParams) ([]models.Deal, error)

	EnsureWallet(ctx context.Context, arg WalletKey) error
	GetWallet(ctx context.Context, arg WalletKey) (models.Wallet, error)
	GetWalletForUpdate(ctx context.Context, arg WalletKey) (models.Wallet, error)
	UpdateWalletBalances(ctx context.Context, arg UpdateWalletBalancesParams) (int64, error)
	ListWalletsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.Wallet, error)
	ListWallets(ctx context.Context) ([]models.Wallet, error)
	InsertWalletEntry(ctx context.Context, entry *models.WalletEntry) error
	GetWalletEntryByReference(ctx context.Context, reference string) (models.WalletEntry, error)
	GetWalletEntryTotals(ctx context.Context, walletID uuid.UUID) (WalletEntryTotals, error)

	InsertFXQuote(ctx context.Context, quote *models.FXQuote) error
	GetFXQuote(ctx context.Context, id uuid.UUID) (models.FXQuote, error)
	DeleteFXQuotesExpiredBefore(ctx context.Context, before time.Time) (int64, error)

	InsertPayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (models.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (models.Payment, error)
	CompletePayment(ctx context.Context, arg CompletePaymentParams) (int64, error)
	FailPayment(ctx context.Context, arg FailPaymentParams) (int64, error)
	ListPayments(ctx context.Context, arg ListPaymentsParams) ([]models.Payment, error)
	ListPendingPaymentsByDealForUpdate(ctx context.Context, dealID uuid.UUID) ([]models.Payment, error)
	SumCompletedSettledMicros(ctx context.Context, dealID uuid.UUID) (int64, error)
	ListStalePendingPayments(ctx context.Context, arg StalePaymentsParams) ([]models.Payment, error)

	GetDealLogistics(ctx context.Context, dealID uuid.UUID) (models.DealLogistics, error)
	GetDealLogisticsForUpdate(ctx context.Context, dealID uuid.UUID) (models.DealLogistics, error)
	UpsertDealLogistics(ctx context.Context, logistics *models.DealLogistics) error

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)
	ListAuditLogs(ctx context.Context, entityID uuid.UUID) ([]models.AuditLog, error)

	GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error)
	ReleaseIdempotencyKey(ctx context.Context, arg ReleaseIdempotencyKeyParams) (int64, error)
}

// ListParams filters list queries by the acting organization's side of the record.
// An empty Role matches records where the org is on either side.
type ListParams struct {
	OrgID  uuid.UUID
	Role   string
	Status string
	Limit  int32
	Offset int32
}

type UpdateRFQParams struct {
	ID            uuid.UUID
	SupplierOrgID *uuid.UUID
	Status        string
	Items         []models.RFQItem
}

type UpdateStatusParams struct {
	ID     uuid.UUID
	Status string
}

type WalletKey struct {
	OrgID    uuid.UUID
	Currency string
}

type UpdateWalletBalancesParams struct {
	ID              uuid.UUID
	AvailableMicros int64
	HeldMicros      int64
}

// WalletEntryTotals sums a wallet's journal by entry kind.
type WalletEntryTotals struct {
	CreditMicros  int64
	ReserveMicros int64
	CaptureMicros int64
	ReleaseMicros int64
}

type CompletePaymentParams struct {
	ID          uuid.UUID
	CompletedAt time.Time
}

type FailPaymentParams struct {
	ID     uuid.UUID
	Reason string
}

type ListPaymentsParams struct {
	DealID *uuid.UUID
	OrgID  uuid.UUID
	Role   string
	Status string
	Limit  int32
	Offset int32
}

type StalePaymentsParams struct {
	Before time.Time
	Limit  int32
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

type ReleaseIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
}
