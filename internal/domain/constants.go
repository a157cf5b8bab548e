package domain

// RFQ statuses.
const (
	RFQStatusDraft     = "draft"
	RFQStatusSent      = "sent"
	RFQStatusResponded = "responded"
	RFQStatusClosed    = "closed"
)

// Offer statuses.
const (
	OfferStatusSent     = "sent"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
)

// Order statuses.
const (
	OrderStatusDraft      = "draft"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// Deal statuses.
const (
	DealStatusNegotiation   = "negotiation"
	DealStatusOrdered       = "ordered"
	DealStatusPaidPartially = "paid_partially"
	DealStatusPaid          = "paid"
	DealStatusClosed        = "closed"
)

// Payment statuses.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Wallet journal entry kinds.
const (
	EntryKindReserve = "reserve"
	EntryKindCapture = "capture"
	EntryKindRelease = "release"
	EntryKindCredit  = "credit"
)

// Roles an organization can act in.
const (
	RoleBuyer    = "buyer"
	RoleSupplier = "supplier"
	RoleBoth     = "both"
	RoleAdmin    = "admin"
)

// Payment failure reasons.
const (
	FailureInsufficientFunds = "insufficient_funds"
	FailureHoldExpired       = "hold_expired"
)

// SubtotalTolerance is the maximum accepted drift between quantity*unit_price and a client supplied subtotal.
const SubtotalTolerance = "0.01"
