package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// Foreign keys and checks whose violations are caller mistakes.
var (
	foreignKeyFields = map[string]string{
		"appointments_patient_id_fkey":            "patient_id",
		"appointments_professional_id_fkey":       "professional_id",
		"appointments_specialty_id_fkey":          "specialty_id",
		"employee_availability_employee_id_fkey":  "professional_id",
		"employee_availability_specialty_id_fkey": "specialty_id",
	}
	checkViolations = map[string]*Error{
		"appointments_time_order":          {Kind: ErrValidation, Field: "end_datetime", Message: msgEndBeforeStart},
		"appointments_status_valid":        {Kind: ErrValidation, Field: "status", Message: "invalid appointment status"},
		"employee_availability_time_order": {Kind: ErrValidation, Field: "end_time", Message: "end_time must be after start_time"},
		"employee_availability_day_range":  {Kind: ErrValidation, Field: "day_of_week", Message: "day_of_week must be between 0 and 6"},
	}
)

// translateError maps driver errors onto the domain taxonomy. Exclusion
// violations carry the same messages as the application-level checks so
// callers cannot tell which guard caught the overlap.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	if code, constraint, ok := db.ConstraintViolation(err); ok {
		switch code {
		case db.CodeExclusionViolation:
			if constraint == "employee_availability_no_overlap" {
				return conflictError(msgWindowsOverlap)
			}
			return conflictError(msgProfessionalBusy)
		case db.CodeForeignKeyViolation:
			field := foreignKeyFields[constraint]
			if field == "" {
				field = constraint
			}
			return validationError(field, "%s references a record that does not exist", field)
		case db.CodeCheckViolation:
			if v, ok := checkViolations[constraint]; ok {
				cp := *v
				return &cp
			}
			return validationError("", "constraint %s violated", constraint)
		case db.CodeUniqueViolation:
			return conflictError("duplicate record (%s)", constraint)
		}
	}
	return storageError(op, err)
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const windowCols = `w.id, w.employee_id, w.day_of_week, w.start_time, w.end_time, w.specialty_id,
	w.is_active, w.created_at, w.updated_at, e.first_name, e.last_name, s.name`

const windowFrom = ` FROM employee_availability w
	JOIN employees e ON e.id = w.employee_id
	LEFT JOIN specialties s ON s.id = w.specialty_id`

func timeOfDayFromPG(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func timeOfDayToPG(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var start, end pgtype.Time
	var firstName, lastName string
	err := row.Scan(&w.ID, &w.ProfessionalID, &w.Weekday, &start, &end, &w.SpecialtyID,
		&w.Active, &w.CreatedAt, &w.UpdatedAt, &firstName, &lastName, &w.SpecialtyName)
	if err != nil {
		return nil, err
	}
	w.StartTime = timeOfDayFromPG(start)
	w.EndTime = timeOfDayFromPG(end)
	w.ProfessionalName = strings.TrimSpace(firstName + " " + lastName)
	return &w, nil
}

func (r *availabilityRepoPG) queryWindows(ctx context.Context, op, query string, args ...interface{}) ([]*AvailabilityWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(op, err)
	}
	defer rows.Close()
	var items []*AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, translateError(op, err)
		}
		items = append(items, w)
	}
	return items, translateError(op, rows.Err())
}

func (r *availabilityRepoPG) ReplaceForProfessional(ctx context.Context, professionalID uuid.UUID, windows []*AvailabilityWindow) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM employee_availability WHERE employee_id = $1`, professionalID); err != nil {
		return translateError("delete availability", err)
	}
	if len(windows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, w := range windows {
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		w.ProfessionalID = professionalID
		batch.Queue(`
			INSERT INTO employee_availability (id, employee_id, day_of_week, start_time, end_time, specialty_id, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			w.ID, w.ProfessionalID, w.Weekday, timeOfDayToPG(w.StartTime), timeOfDayToPG(w.EndTime), w.SpecialtyID, w.Active)
	}
	br := q.SendBatch(ctx, batch)
	for range windows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return translateError("insert availability", err)
		}
	}
	return translateError("insert availability", br.Close())
}

func (r *availabilityRepoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*AvailabilityWindow, error) {
	return r.queryWindows(ctx, "list availability",
		`SELECT `+windowCols+windowFrom+` WHERE w.employee_id = $1 ORDER BY w.day_of_week, w.start_time`,
		professionalID)
}

func (r *availabilityRepoPG) FindActive(ctx context.Context, weekday int, specialtyID, professionalID *uuid.UUID) ([]*AvailabilityWindow, error) {
	query := `SELECT ` + windowCols + windowFrom + ` WHERE w.is_active AND w.day_of_week = $1`
	args := []interface{}{weekday}
	idx := 2

	if specialtyID != nil {
		query += fmt.Sprintf(` AND w.specialty_id = $%d`, idx)
		args = append(args, *specialtyID)
		idx++
	}
	if professionalID != nil {
		query += fmt.Sprintf(` AND w.employee_id = $%d`, idx)
		args = append(args, *professionalID)
	}
	query += ` ORDER BY e.last_name, e.first_name, w.employee_id, w.start_time`

	return r.queryWindows(ctx, "find availability", query, args...)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `a.id, a.patient_id, a.professional_id, a.specialty_id, a.appointment_type,
	a.start_datetime, a.end_datetime, a.status, a.notes, a.created_at, a.updated_at,
	p.first_name, p.last_name, e.first_name, e.last_name, s.name`

const apptFrom = ` FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	LEFT JOIN employees e ON e.id = a.professional_id
	LEFT JOIN specialties s ON s.id = a.specialty_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	var patientFirst, patientLast string
	var profFirst, profLast, specialtyName *string
	err := row.Scan(&a.ID, &a.PatientID, &a.ProfessionalID, &a.SpecialtyID, &a.AppointmentType,
		&a.Start, &a.End, &status, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
		&patientFirst, &patientLast, &profFirst, &profLast, &specialtyName)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Patient = &PersonSummary{ID: a.PatientID, FirstName: patientFirst, LastName: patientLast}
	if a.ProfessionalID != nil && profFirst != nil {
		a.Professional = &PersonSummary{ID: *a.ProfessionalID, FirstName: *profFirst, LastName: strVal(profLast)}
	}
	if a.SpecialtyID != nil && specialtyName != nil {
		a.Specialty = &SpecialtySummary{ID: *a.SpecialtyID, Name: *specialtyName}
	}
	return &a, nil
}

func (r *appointmentRepoPG) queryAppointments(ctx context.Context, op, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(op, err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, translateError(op, err)
		}
		items = append(items, a)
	}
	return items, translateError(op, rows.Err())
}

func (r *appointmentRepoPG) getOne(ctx context.Context, id uuid.UUID, suffix string) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`+suffix, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundError("appointment %s not found", id)
	}
	if err != nil {
		return nil, translateError("get appointment", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, specialty_id, appointment_type,
			start_datetime, end_datetime, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.ProfessionalID, a.SpecialtyID, a.AppointmentType,
		a.Start, a.End, string(a.Status), a.Notes).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translateError("insert appointment", err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.getOne(ctx, id, "")
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.getOne(ctx, id, " FOR UPDATE OF a")
}

func (r *appointmentRepoPG) Patch(ctx context.Context, id uuid.UUID, patch AppointmentPatch) error {
	args := []interface{}{id}
	var sets []string
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.ProfessionalID != nil {
		set("professional_id", *patch.ProfessionalID)
	}
	if patch.SpecialtyID != nil {
		set("specialty_id", *patch.SpecialtyID)
	}
	if patch.AppointmentType != nil {
		set("appointment_type", *patch.AppointmentType)
	}
	if patch.Start != nil {
		set("start_datetime", *patch.Start)
	}
	if patch.End != nil {
		set("end_datetime", *patch.End)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	sets = append(sets, "updated_at = NOW()")

	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointments SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return translateError("update appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundError("appointment %s not found", id)
	}
	return nil
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return translateError("update appointment status", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundError("appointment %s not found", id)
	}
	return nil
}

func blockingStatusArgs() []string {
	out := make([]string, len(BlockingStatuses))
	for i, s := range BlockingStatuses {
		out[i] = string(s)
	}
	return out
}

func (r *appointmentRepoPG) FindBlocking(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + apptFrom + `
		WHERE a.professional_id = $1
		  AND a.start_datetime < $3
		  AND a.end_datetime > $2
		  AND a.status = ANY($4)`
	args := []interface{}{professionalID, start, end, blockingStatusArgs()}
	if excludeID != nil {
		query += ` AND a.id <> $5`
		args = append(args, *excludeID)
	}
	query += ` ORDER BY a.start_datetime`
	return r.queryAppointments(ctx, "find overlapping appointments", query, args...)
}

func (r *appointmentRepoPG) Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.StartFrom != nil {
		where += fmt.Sprintf(` AND a.start_datetime >= $%d`, idx)
		args = append(args, *f.StartFrom)
		idx++
	}
	if f.StartBefore != nil {
		where += fmt.Sprintf(` AND a.start_datetime < $%d`, idx)
		args = append(args, *f.StartBefore)
		idx++
	}
	if f.ProfessionalID != nil {
		where += fmt.Sprintf(` AND a.professional_id = $%d`, idx)
		args = append(args, *f.ProfessionalID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, string(*f.Status))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, translateError("count appointments", err)
	}

	query := `SELECT ` + apptCols + apptFrom + where + ` ORDER BY a.start_datetime DESC, a.id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, limit, offset)
	}

	items, err := r.queryAppointments(ctx, "search appointments", query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// =========== Directory ===========

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory {
	return &directoryPG{pool: pool}
}

func (r *directoryPG) LockProfessional(ctx context.Context, professionalID uuid.UUID) error {
	var id uuid.UUID
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id FROM employees WHERE id = $1 FOR UPDATE`, professionalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFoundError("professional %s not found", professionalID)
	}
	return translateError("lock professional", err)
}

func (r *directoryPG) ProfessionalSpecialties(ctx context.Context, professionalID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT specialty_id FROM employee_specialties WHERE employee_id = $1 ORDER BY specialty_id`, professionalID)
	if err != nil {
		return nil, translateError("list professional specialties", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	return ids, translateError("list professional specialties", err)
}
