package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RFQItem struct {
	ProductRef  *string          `json:"product_ref,omitempty"`
	Name        string           `json:"name"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

type RFQ struct {
	ID            uuid.UUID  `json:"id"`
	BuyerOrgID    uuid.UUID  `json:"buyer_org_id"`
	SupplierOrgID *uuid.UUID `json:"supplier_org_id,omitempty"`
	Status        string     `json:"status"`
	Items         []RFQItem  `json:"items"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type OfferItem struct {
	RFQItemIndex *int            `json:"rfq_item_index,omitempty"`
	ProductRef   *string         `json:"product_ref,omitempty"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type Offer struct {
	ID            uuid.UUID   `json:"id"`
	RFQID         uuid.UUID   `json:"rfq_id"`
	SupplierOrgID uuid.UUID   `json:"supplier_org_id"`
	Status        string      `json:"status"`
	Currency      string      `json:"currency"`
	Items         []OfferItem `json:"items"`
	Incoterms     *string     `json:"incoterms,omitempty"`
	PaymentTerms  *string     `json:"payment_terms,omitempty"`
	ValidUntil    *time.Time  `json:"valid_until,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	BuyerOrgID    uuid.UUID       `json:"buyer_org_id"`
	SupplierOrgID uuid.UUID       `json:"supplier_org_id"`
	OfferID       uuid.UUID       `json:"offer_id"`
	Status        string          `json:"status"`
	Currency      string          `json:"currency"`
	Items         []OfferItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalMicros   int64           `json:"total_micros"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Deal struct {
	ID            uuid.UUID `json:"id"`
	RFQID         uuid.UUID `json:"rfq_id"`
	OfferID       uuid.UUID `json:"offer_id"`
	OrderID       uuid.UUID `json:"order_id"`
	BuyerOrgID    uuid.UUID `json:"buyer_org_id"`
	SupplierOrgID uuid.UUID `json:"supplier_org_id"`
	Status        string    `json:"status"`
	MainCurrency  string    `json:"main_currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Wallet struct {
	ID              uuid.UUID `json:"id"`
	OrgID           uuid.UUID `json:"org_id"`
	Currency        string    `json:"currency"`
	AvailableMicros int64     `json:"available_micros"`
	HeldMicros      int64     `json:"held_micros"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type WalletEntry struct {
	ID           uuid.UUID  `json:"id"`
	WalletID     uuid.UUID  `json:"wallet_id"`
	Kind         string     `json:"kind"` // reserve, capture, release, credit
	AmountMicros int64      `json:"amount_micros"`
	PaymentID    *uuid.UUID `json:"payment_id,omitempty"`
	Reference    *string    `json:"reference,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type FXQuote struct {
	ID              uuid.UUID       `json:"id"`
	FromCurrency    string          `json:"from_currency"`
	ToCurrency      string          `json:"to_currency"`
	Rate            decimal.Decimal `json:"rate"`
	AmountMicros    int64           `json:"amount_micros"`
	ConvertedMicros int64           `json:"converted_micros"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Payment struct {
	ID            uuid.UUID        `json:"id"`
	DealID        uuid.UUID        `json:"deal_id"`
	PayerOrgID    uuid.UUID        `json:"payer_org_id"`
	PayeeOrgID    uuid.UUID        `json:"payee_org_id"`
	AmountMicros  int64            `json:"amount_micros"`
	Currency      string           `json:"currency"`
	Status        string           `json:"status"`
	FXQuoteID     *uuid.UUID       `json:"fx_quote_id,omitempty"`
	FXRate        *decimal.Decimal `json:"fx_rate,omitempty"`
	SettledMicros int64            `json:"settled_micros"` // in the deal's main currency
	FailureReason *string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type DealLogistics struct {
	DealID             uuid.UUID  `json:"deal_id"`
	Current            string     `json:"current"`
	Delivered          bool       `json:"delivered"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	ReceiptConfirmedAt *time.Time `json:"receipt_confirmed_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type AuditLog struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Action     string     `json:"action"`
	PrevState  *string    `json:"prev_state,omitempty"`
	NextState  *string    `json:"next_state,omitempty"`
	Metadata   []byte     `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Amount returns the payment amount in major units.
func (p Payment) Amount() decimal.Decimal {
	return decimal.NewFromInt(p.AmountMicros).Shift(-6)
}
