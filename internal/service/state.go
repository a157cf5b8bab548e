package service

import (
	"github.com/ayo6706/trade-escrow/internal/domain"
)

type transitions map[string]map[string]struct{}

func (t transitions) allows(current, next string) bool {
	nextStates, ok := t[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

var rfqTransitions = transitions{
	domain.RFQStatusDraft: {
		domain.RFQStatusSent: {},
	},
	domain.RFQStatusSent: {
		domain.RFQStatusResponded: {},
		domain.RFQStatusClosed:    {},
	},
	domain.RFQStatusResponded: {
		domain.RFQStatusClosed: {},
	},
	domain.RFQStatusClosed: {},
}

var offerTransitions = transitions{
	domain.OfferStatusSent: {
		domain.OfferStatusAccepted: {},
		domain.OfferStatusRejected: {},
	},
	domain.OfferStatusAccepted: {},
	domain.OfferStatusRejected: {},
}

var orderTransitions = transitions{
	domain.OrderStatusDraft: {
		domain.OrderStatusConfirmed: {},
		domain.OrderStatusCancelled: {},
	},
	domain.OrderStatusConfirmed: {
		domain.OrderStatusInProgress: {},
		domain.OrderStatusCancelled:  {},
	},
	domain.OrderStatusInProgress: {
		domain.OrderStatusCompleted: {},
		domain.OrderStatusCancelled: {},
	},
	domain.OrderStatusCompleted: {},
	domain.OrderStatusCancelled: {},
}

// Deal status only moves forward. Payment settlement may skip intermediate states.
var dealTransitions = transitions{
	domain.DealStatusNegotiation: {
		domain.DealStatusOrdered:       {},
		domain.DealStatusPaidPartially: {},
		domain.DealStatusPaid:          {},
	},
	domain.DealStatusOrdered: {
		domain.DealStatusPaidPartially: {},
		domain.DealStatusPaid:          {},
	},
	domain.DealStatusPaidPartially: {
		domain.DealStatusPaid: {},
	},
	domain.DealStatusPaid: {
		domain.DealStatusClosed: {},
	},
	domain.DealStatusClosed: {},
}

var dealRank = map[string]int{
	domain.DealStatusNegotiation:   0,
	domain.DealStatusOrdered:       1,
	domain.DealStatusPaidPartially: 2,
	domain.DealStatusPaid:          3,
	domain.DealStatusClosed:        4,
}
