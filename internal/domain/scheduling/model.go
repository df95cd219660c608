package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

var validStatuses = map[Status]bool{
	StatusScheduled: true,
	StatusCompleted: true,
	StatusCancelled: true,
	StatusNoShow:    true,
}

// BlockingStatuses occupy the professional's time. Anything else frees it.
var BlockingStatuses = []Status{StatusScheduled, StatusCompleted}

func (s Status) Valid() bool { return validStatuses[s] }

func (s Status) Blocking() bool {
	return s == StatusScheduled || s == StatusCompleted
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AvailabilityWindow maps to the employee_availability table: a recurring
// weekly interval during which a professional can be booked.
type AvailabilityWindow struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ProfessionalID   uuid.UUID  `db:"employee_id" json:"professional_id"`
	Weekday          int        `db:"day_of_week" json:"day_of_week"`
	StartTime        TimeOfDay  `db:"start_time" json:"start_time"`
	EndTime          TimeOfDay  `db:"end_time" json:"end_time"`
	SpecialtyID      *uuid.UUID `db:"specialty_id" json:"specialty_id,omitempty"`
	Active           bool       `db:"is_active" json:"is_active"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	ProfessionalName string     `json:"professional_name,omitempty"`
	SpecialtyName    *string    `json:"specialty_name,omitempty"`
}

// WindowInput is one entry of an availability replacement request.
type WindowInput struct {
	Weekday     int        `json:"day_of_week" validate:"min=0,max=6"`
	StartTime   string     `json:"start_time" validate:"required"`
	EndTime     string     `json:"end_time" validate:"required"`
	SpecialtyID *uuid.UUID `json:"specialty_id,omitempty"`
}

// PersonSummary is the display projection of a patient or professional.
type PersonSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

type SpecialtySummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	ProfessionalID  *uuid.UUID        `db:"professional_id" json:"professional_id"`
	SpecialtyID     *uuid.UUID        `db:"specialty_id" json:"specialty_id"`
	AppointmentType *string           `db:"appointment_type" json:"appointment_type"`
	Start           time.Time         `db:"start_datetime" json:"start_datetime"`
	End             time.Time         `db:"end_datetime" json:"end_datetime"`
	Status          Status            `db:"status" json:"status"`
	Notes           *string           `db:"notes" json:"notes"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
	Patient         *PersonSummary    `json:"patient,omitempty"`
	Professional    *PersonSummary    `json:"professional,omitempty"`
	Specialty       *SpecialtySummary `json:"specialty,omitempty"`
}

// CreateAppointmentInput is the payload accepted by CreateAppointment.
type CreateAppointmentInput struct {
	PatientID       uuid.UUID  `json:"patient_id" validate:"required"`
	ProfessionalID  *uuid.UUID `json:"professional_id"`
	SpecialtyID     *uuid.UUID `json:"specialty_id"`
	AppointmentType *string    `json:"appointment_type" validate:"omitempty,max=50"`
	Start           time.Time  `json:"start_datetime" validate:"required"`
	End             time.Time  `json:"end_datetime" validate:"required"`
	Notes           *string    `json:"notes"`
}

// AppointmentPatch holds the fields a reschedule may change. Nil means keep.
type AppointmentPatch struct {
	ProfessionalID  *uuid.UUID `json:"professional_id"`
	SpecialtyID     *uuid.UUID `json:"specialty_id"`
	AppointmentType *string    `json:"appointment_type" validate:"omitempty,max=50"`
	Start           *time.Time `json:"start_datetime"`
	End             *time.Time `json:"end_datetime"`
	Notes           *string    `json:"notes"`
}

func (p AppointmentPatch) Empty() bool {
	return p.ProfessionalID == nil && p.SpecialtyID == nil && p.AppointmentType == nil &&
		p.Start == nil && p.End == nil && p.Notes == nil
}

// Slot is a bookable interval produced by availability search.
type Slot struct {
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	ProfessionalID uuid.UUID  `json:"professional_id"`
	SpecialtyID    *uuid.UUID `json:"specialty_id,omitempty"`
	SpecialtyName  *string    `json:"specialty_name,omitempty"`
	Available      bool       `json:"available"`
}

type ProfessionalSlots struct {
	ProfessionalID   uuid.UUID `json:"professional_id"`
	ProfessionalName string    `json:"professional_name"`
	Slots            []Slot    `json:"available_slots"`
}

// AvailabilityResult is the response of an availability search for one day.
type AvailabilityResult struct {
	Date          string              `json:"date"`
	Weekday       int                 `json:"day_of_week"`
	Timezone      string              `json:"timezone"`
	Professionals []ProfessionalSlots `json:"professionals"`
}

// AvailabilityQuery selects the day and optional filters for slot search.
// A nil Location means the clinic default.
type AvailabilityQuery struct {
	Date           string
	SpecialtyID    *uuid.UUID
	ProfessionalID *uuid.UUID
	Location       *time.Location
}

// AppointmentQuery is the raw listing filter as received from callers.
// From and To are YYYY-MM-DD, inclusive, in the clinic time zone.
type AppointmentQuery struct {
	From           string
	To             string
	ProfessionalID *uuid.UUID
	PatientID      *uuid.UUID
	Status         string
	Page           int
	Limit          int
}

// AppointmentFilter is the validated form of AppointmentQuery handed to
// storage. StartBefore is exclusive.
type AppointmentFilter struct {
	StartFrom      *time.Time
	StartBefore    *time.Time
	ProfessionalID *uuid.UUID
	PatientID      *uuid.UUID
	Status         *Status
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
