package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AvailabilityRepository interface {
	// ReplaceForProfessional deletes every window of the professional and
	// inserts windows in their place.
	ReplaceForProfessional(ctx context.Context, professionalID uuid.UUID, windows []*AvailabilityWindow) error
	ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*AvailabilityWindow, error)
	// FindActive returns active windows on weekday, ordered by professional
	// and start time.
	FindActive(ctx context.Context, weekday int, specialtyID, professionalID *uuid.UUID) ([]*AvailabilityWindow, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate loads and row-locks the appointment for the rest of the
	// enclosing transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Patch(ctx context.Context, id uuid.UUID, patch AppointmentPatch) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	// FindBlocking returns SCHEDULED or COMPLETED appointments of the
	// professional that overlap [start, end), skipping excludeID.
	FindBlocking(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*Appointment, error)
	// Search orders by start descending. A limit of zero returns every match.
	Search(ctx context.Context, filter AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}

// Directory exposes the professional data scheduling reads but does not own.
type Directory interface {
	// LockProfessional row-locks the professional so concurrent bookings for
	// the same person serialize. Returns a not-found error if absent.
	LockProfessional(ctx context.Context, professionalID uuid.UUID) error
	ProfessionalSpecialties(ctx context.Context, professionalID uuid.UUID) ([]uuid.UUID, error)
}

// TxRunner runs fn inside one transaction; repository calls made with the
// context passed to fn participate in it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
