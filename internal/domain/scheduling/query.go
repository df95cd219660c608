package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/pagination"
)

// AppointmentPage is one page of a listing, newest start first.
type AppointmentPage struct {
	Items  []*Appointment
	Total  int
	Params pagination.Params
}

// ListAppointments filters appointments by date range, participant and
// status. Dates are whole days in the clinic time zone, both ends inclusive.
func (s *Service) ListAppointments(ctx context.Context, q AppointmentQuery) (*AppointmentPage, error) {
	filter, err := s.parseQuery(q)
	if err != nil {
		return nil, err
	}
	params := pagination.Normalize(q.Page, q.Limit)

	var items []*Appointment
	var total int
	err = s.read(ctx, "search appointments", func() error {
		var err error
		items, total, err = s.appointments.Search(ctx, filter, params.Limit, params.Offset())
		return err
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return &AppointmentPage{Items: items, Total: total, Params: params}, nil
}

// AppointmentsForPatient lists every appointment of one patient, newest
// first, without paging.
func (s *Service) AppointmentsForPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return s.listAll(ctx, "appointments for patient", AppointmentFilter{PatientID: &patientID})
}

// AppointmentsForProfessional lists every appointment of one professional,
// newest first, without paging.
func (s *Service) AppointmentsForProfessional(ctx context.Context, professionalID uuid.UUID) ([]*Appointment, error) {
	return s.listAll(ctx, "appointments for professional", AppointmentFilter{ProfessionalID: &professionalID})
}

func (s *Service) listAll(ctx context.Context, op string, f AppointmentFilter) ([]*Appointment, error) {
	var items []*Appointment
	err := s.read(ctx, op, func() error {
		var err error
		items, _, err = s.appointments.Search(ctx, f, 0, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, nil
}

func (s *Service) parseQuery(q AppointmentQuery) (AppointmentFilter, error) {
	f := AppointmentFilter{
		ProfessionalID: q.ProfessionalID,
		PatientID:      q.PatientID,
	}
	if q.From != "" {
		from, err := time.ParseInLocation(dateLayout, q.From, s.location)
		if err != nil {
			return f, validationError("from", "from must be formatted as YYYY-MM-DD")
		}
		f.StartFrom = &from
	}
	if q.To != "" {
		to, err := time.ParseInLocation(dateLayout, q.To, s.location)
		if err != nil {
			return f, validationError("to", "to must be formatted as YYYY-MM-DD")
		}
		endOfDay := to.AddDate(0, 0, 1)
		f.StartBefore = &endOfDay
	}
	if f.StartFrom != nil && f.StartBefore != nil && !f.StartBefore.After(*f.StartFrom) {
		return f, validationError("to", "to must not be before from")
	}
	if q.Status != "" {
		st := Status(q.Status)
		if !st.Valid() {
			return f, validationError("status", "status must be one of SCHEDULED, COMPLETED, CANCELLED, NO_SHOW")
		}
		f.Status = &st
	}
	return f, nil
}
