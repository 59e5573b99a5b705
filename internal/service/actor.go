package service

import (
	"github.com/google/uuid"
	"github.com/stemsi/certify-backend/internal/model"
)

// Actor is whoever performs an operation, as established by the auth layer.
type Actor struct {
	UserID    uuid.UUID
	Role      model.Role
	IPAddress string
	UserAgent string
	// System marks background jobs such as the expiry sweeper.
	System bool
}

// SystemActor performs work on behalf of no user.
var SystemActor = Actor{System: true}

// AnonymousActor builds the actor for public, unauthenticated requests.
func AnonymousActor(ip, userAgent string) Actor {
	return Actor{IPAddress: ip, UserAgent: userAgent}
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// Owns reports whether the resource belongs to the actor.
func (a Actor) Owns(userID uuid.UUID) bool {
	return a.UserID != uuid.Nil && a.UserID == userID
}

// CanAccess is Owns or IsAdmin.
func (a Actor) CanAccess(userID uuid.UUID) bool {
	return a.Owns(userID) || a.IsAdmin()
}

// PerformedBy is the audit attribution; nil for anonymous and system actors.
func (a Actor) PerformedBy() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
