package scheduling

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/availability", h.GetAvailability, auth.RequireActor())

	prof := api.Group("/professionals")
	prof.GET("/:id/availability", h.ListAvailability, auth.RequireActor())
	prof.PUT("/:id/availability", h.SetAvailability, auth.RequirePermission(auth.PermEditEmployees))

	appt := api.Group("/appointments")
	appt.POST("", h.CreateAppointment, auth.RequirePermission(auth.PermCreateAppointments))
	appt.GET("", h.ListAppointments, auth.RequirePermission(auth.PermViewAppointments))
	appt.GET("/me", h.MyAppointments, auth.RequireActor())
	appt.GET("/me/professional", h.MyProfessionalAppointments, auth.RequireActor())
	appt.GET("/:id", h.GetAppointment, auth.RequirePermission(auth.PermViewAppointments))
	appt.PATCH("/:id", h.RescheduleAppointment, auth.RequirePermission(auth.PermEditAppointments))
	appt.PUT("/:id", h.RescheduleAppointment, auth.RequirePermission(auth.PermEditAppointments))
	appt.POST("/:id/cancel", h.CancelAppointment, auth.RequirePermission(auth.PermCancelAppointments))
	appt.POST("/:id/complete", h.CompleteAppointment, auth.RequirePermission(auth.PermCompleteAppointments))
}

// -- Availability --

func (h *Handler) GetAvailability(c echo.Context) error {
	q := AvailabilityQuery{Date: c.QueryParam("date")}
	if q.Date == "" {
		return badRequest("date", "date is required")
	}
	var err error
	if q.SpecialtyID, err = optionalUUIDParam(c, "specialty_id"); err != nil {
		return err
	}
	if q.ProfessionalID, err = optionalUUIDParam(c, "professional_id"); err != nil {
		return err
	}
	if tz := c.QueryParam("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return badRequest("tz", "unknown time zone "+strconv.Quote(tz))
		}
		q.Location = loc
	}

	result, err := h.svc.ComputeAvailability(c.Request().Context(), q)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, result)
}

type setAvailabilityRequest struct {
	Windows []WindowInput `json:"availability" validate:"dive"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req setAvailabilityRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	windows, err := h.svc.SetAvailability(c.Request().Context(), id, req.Windows)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, windows)
}

func (h *Handler) ListAvailability(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	windows, err := h.svc.ListAvailability(c.Request().Context(), id)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, windows)
}

// -- Appointments --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var in CreateAppointmentInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), in)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := AppointmentQuery{
		From:   c.QueryParam("from"),
		To:     c.QueryParam("to"),
		Status: c.QueryParam("status"),
		Page:   pg.Page,
		Limit:  pg.Limit,
	}
	var err error
	if q.ProfessionalID, err = optionalUUIDParam(c, "professional_id"); err != nil {
		return err
	}
	if q.PatientID, err = optionalUUIDParam(c, "patient_id"); err != nil {
		return err
	}

	page, err := h.svc.ListAppointments(c.Request().Context(), q)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page.Items, page.Total, page.Params))
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var patch AppointmentPatch
	if err := bindAndValidate(c, &patch); err != nil {
		return err
	}
	if patch.Empty() {
		return badRequest("", "at least one field must be provided")
	}
	a, err := h.svc.RescheduleAppointment(c.Request().Context(), id, patch)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	return h.transition(c, h.svc.CancelAppointment)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	return h.transition(c, h.svc.CompleteAppointment)
}

func (h *Handler) transition(c echo.Context, fn func(context.Context, uuid.UUID) (*Appointment, error)) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	a, err := fn(c.Request().Context(), id)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, a)
}

// MyAppointments lists the appointments of the patient linked to the caller.
func (h *Handler) MyAppointments(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if actor.PatientID == nil {
		return errorResponse(notFoundError("no patient is associated with the current user"))
	}
	items, err := h.svc.AppointmentsForPatient(c.Request().Context(), *actor.PatientID)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, items)
}

// MyProfessionalAppointments lists the schedule of the professional linked
// to the caller.
func (h *Handler) MyProfessionalAppointments(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if actor.ProfessionalID == nil {
		return errorResponse(notFoundError("no professional is associated with the current user"))
	}
	items, err := h.svc.AppointmentsForProfessional(c.Request().Context(), *actor.ProfessionalID)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Helpers --

func bindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		msg := "malformed request body"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if he.Code == http.StatusRequestEntityTooLarge {
				return he
			}
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}
		return badRequest("", msg)
	}
	if err := c.Validate(v); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return badRequest("", err.Error())
	}
	return nil
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, badRequest(name, "invalid "+name)
	}
	return id, nil
}

func optionalUUIDParam(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, badRequest(name, "invalid "+name)
	}
	return &id, nil
}

func badRequest(field, message string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errorBody("validation_error", message, field))
}

func errorBody(code, message, field string) map[string]interface{} {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if field != "" {
		body["field"] = field
	}
	return body
}

// errorResponse maps the scheduling error kinds onto HTTP. Storage and
// unknown errors keep the cause as the internal error for the request log.
func errorResponse(err error) error {
	var se *Error
	if !errors.As(err, &se) {
		if errors.Is(err, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusGatewayTimeout,
				errorBody("timeout", "request processing exceeded the allowed time limit", "")).SetInternal(err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError,
			errorBody("internal_error", "internal server error", "")).SetInternal(err)
	}

	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, errorBody("validation_error", se.Message, se.Field))
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, errorBody("not_found", se.Message, ""))
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, errorBody("conflict", se.Message, ""))
	case errors.Is(err, ErrState):
		return echo.NewHTTPError(http.StatusConflict, errorBody("invalid_state", se.Message, ""))
	case errors.Is(err, ErrStorage):
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			errorBody("storage_unavailable", "the appointment store is unavailable, try again", "")).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError,
		errorBody("internal_error", "internal server error", "")).SetInternal(err)
}
