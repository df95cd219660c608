package scheduling

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxAppointmentTypeLen = 50

// CreateAppointment books a new SCHEDULED appointment. When a professional
// is given, the professional is locked for the rest of the transaction and
// the slot must not overlap any of their blocking appointments.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       in.PatientID,
		ProfessionalID:  in.ProfessionalID,
		SpecialtyID:     in.SpecialtyID,
		AppointmentType: in.AppointmentType,
		Start:           in.Start,
		End:             in.End,
		Status:          StatusScheduled,
		Notes:           in.Notes,
	}

	var created *Appointment
	err := s.inTx(ctx, "create appointment", func(ctx context.Context) error {
		if a.ProfessionalID != nil {
			if err := s.ensureProfessionalFree(ctx, *a.ProfessionalID, a, nil); err != nil {
				return err
			}
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return err
		}
		var err error
		created, err = s.appointments.GetByID(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("patient_id", created.PatientID.String()).
		Time("start", created.Start).
		Msg("appointment created")
	s.committed(ctx, EventAppointmentCreated, created)
	return created, nil
}

// RescheduleAppointment applies the supplied fields of patch. For an
// appointment that blocks time, any change to the time range or the
// professional re-runs the overlap check against the effective values,
// ignoring the appointment itself.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var updated *Appointment
	err := s.inTx(ctx, "reschedule appointment", func(ctx context.Context) error {
		current, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if patch.Start != nil || patch.End != nil || patch.ProfessionalID != nil {
			effective := *current
			if patch.Start != nil {
				effective.Start = *patch.Start
			}
			if patch.End != nil {
				effective.End = *patch.End
			}
			if patch.ProfessionalID != nil {
				effective.ProfessionalID = patch.ProfessionalID
			}
			if !effective.End.After(effective.Start) {
				return validationError("end_datetime", msgEndBeforeStart)
			}
			// Cancelled and no-show appointments hold no time.
			if effective.ProfessionalID != nil && current.Status.Blocking() {
				if err := s.ensureProfessionalFree(ctx, *effective.ProfessionalID, &effective, &id); err != nil {
					return err
				}
			}
		}

		if err := s.appointments.Patch(ctx, id, patch); err != nil {
			return err
		}
		updated, err = s.appointments.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Time("start", updated.Start).
		Time("end", updated.End).
		Msg("appointment rescheduled")
	s.committed(ctx, EventAppointmentRescheduled, updated)
	return updated, nil
}

// CancelAppointment moves a SCHEDULED appointment to CANCELLED, which frees
// its time for other bookings.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.transition(ctx, id, StatusCancelled, func(current Status) error {
		switch current {
		case StatusScheduled:
			return nil
		case StatusCancelled:
			return stateError(msgAlreadyCancelled)
		case StatusCompleted:
			return stateError(msgCancelCompleted)
		default:
			return stateError("cannot cancel an appointment with status %s", current)
		}
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, EventAppointmentCancelled, a)
	return a, nil
}

// CompleteAppointment marks an appointment as attended. Cancelled or already
// completed appointments are rejected, and a no-show can only be completed
// while its time is still free.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.transition(ctx, id, StatusCompleted, func(current Status) error {
		switch current {
		case StatusCancelled:
			return stateError(msgCompleteCancelled)
		case StatusCompleted:
			return stateError(msgAlreadyCompleted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, EventAppointmentCompleted, a)
	return a, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, allowed func(Status) error) (*Appointment, error) {
	var result *Appointment
	err := s.inTx(ctx, "change appointment status", func(ctx context.Context) error {
		current, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := allowed(current.Status); err != nil {
			return err
		}
		// Leaving a freed status takes the time back, which someone else may
		// have booked in the meantime.
		if to.Blocking() && !current.Status.Blocking() && current.ProfessionalID != nil {
			if err := s.ensureProfessionalFree(ctx, *current.ProfessionalID, current, &id); err != nil {
				return err
			}
		}
		if err := s.appointments.SetStatus(ctx, id, to); err != nil {
			return err
		}
		result, err = s.appointments.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(to)).Msg("appointment status changed")
	return result, nil
}

// GetAppointment returns one appointment with patient, professional and
// specialty display data.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a *Appointment
	err := s.read(ctx, "get appointment", func() error {
		var err error
		a, err = s.appointments.GetByID(ctx, id)
		return err
	})
	return a, err
}

// ensureProfessionalFree locks the professional and rejects a when it
// overlaps one of their blocking appointments. Must run inside InTx.
func (s *Service) ensureProfessionalFree(ctx context.Context, professionalID uuid.UUID, a *Appointment, excludeID *uuid.UUID) error {
	if err := s.directory.LockProfessional(ctx, professionalID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return validationError("professional_id", "professional %s does not exist", professionalID)
		}
		return err
	}
	clashes, err := s.appointments.FindBlocking(ctx, professionalID, a.Start, a.End, excludeID)
	if err != nil {
		return err
	}
	if len(clashes) > 0 {
		s.logger.Debug().
			Str("professional_id", professionalID.String()).
			Str("clashes_with", clashes[0].ID.String()).
			Msg("booking rejected")
		return conflictError(msgProfessionalBusy)
	}
	return nil
}

func validateCreate(in CreateAppointmentInput) error {
	if in.PatientID == uuid.Nil {
		return validationError("patient_id", "patient_id is required")
	}
	if in.Start.IsZero() {
		return validationError("start_datetime", "start_datetime is required")
	}
	if in.End.IsZero() {
		return validationError("end_datetime", "end_datetime is required")
	}
	if !in.End.After(in.Start) {
		return validationError("end_datetime", msgEndBeforeStart)
	}
	return validateAppointmentType(in.AppointmentType)
}

func validatePatch(p AppointmentPatch) error {
	if p.Start != nil && p.Start.IsZero() {
		return validationError("start_datetime", "start_datetime must be a valid timestamp")
	}
	if p.End != nil && p.End.IsZero() {
		return validationError("end_datetime", "end_datetime must be a valid timestamp")
	}
	if p.Start != nil && p.End != nil && !p.End.After(*p.Start) {
		return validationError("end_datetime", msgEndBeforeStart)
	}
	return validateAppointmentType(p.AppointmentType)
}

func validateAppointmentType(t *string) error {
	if t != nil && utf8.RuneCountInString(*t) > maxAppointmentTypeLen {
		return validationError("appointment_type", "appointment_type must be at most %d characters", maxAppointmentTypeLen)
	}
	return nil
}
