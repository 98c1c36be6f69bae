package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

// Actor is the authenticated caller a domain operation runs on behalf of.
type Actor struct {
	UserID     uuid.UUID
	Role       enums.UserRole
	SellerType *enums.SellerType
}

// SystemActor is used by background jobs and payment callbacks.
func SystemActor() Actor {
	return Actor{Role: enums.UserRoleSystem}
}

// IsPrivileged reports whether the actor may act on behalf of the platform.
func (a Actor) IsPrivileged() bool {
	return a.Role.IsPrivileged()
}

// ActorFromClaims converts verified token claims into an Actor.
func ActorFromClaims(claims *AccessTokenClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{
		UserID:     claims.UserID,
		Role:       claims.Role,
		SellerType: claims.SellerType,
	}
}

// ActorIDPtr returns the actor's user id, or nil for the system actor.
func (a Actor) ActorIDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
