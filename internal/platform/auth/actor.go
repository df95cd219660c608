package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles known to the scheduling API. Only RoleSuperAdmin changes behavior:
// it passes every permission check.
const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleAdmin        = "ADMIN"
	RoleProfessional = "PROFESSIONAL"
	RoleReceptionist = "RECEPTIONIST"
	RolePatient      = "PATIENT"
)

// Permissions checked by route middleware.
const (
	PermViewAppointments     = "view_scheduled_appointments"
	PermCreateAppointments   = "create_appointments"
	PermEditAppointments     = "edit_appointments"
	PermCancelAppointments   = "cancel_appointments"
	PermCompleteAppointments = "complete_appointments"
	PermEditEmployees        = "edit_employees"
)

// Actor is the authenticated caller, resolved once per request from the
// token claims.
type Actor struct {
	UserID         string
	Role           string
	Permissions    []string
	ProfessionalID *uuid.UUID
	PatientID      *uuid.UUID
}

func (a Actor) Can(permission string) bool {
	if a.Role == RoleSuperAdmin {
		return true
	}
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// UserIDFromContext returns the caller's subject, or "" when unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	a, _ := ActorFromContext(ctx)
	return a.UserID
}

func parseOptionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
