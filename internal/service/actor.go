package service

import (
	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/google/uuid"
)

// Actor is the authenticated caller: a user acting on behalf of an organization.
type Actor struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

// CanBuy reports whether the organization may act on the buyer side.
func (a Actor) CanBuy() bool {
	return a.Role == domain.RoleBuyer || a.Role == domain.RoleBoth
}

// CanSupply reports whether the organization may act on the supplier side.
func (a Actor) CanSupply() bool {
	return a.Role == domain.RoleSupplier || a.Role == domain.RoleBoth
}

func (a Actor) userRef() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
