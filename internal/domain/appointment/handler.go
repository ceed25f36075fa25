package appointment

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mediflow/frontdesk/internal/form"
	"github.com/mediflow/frontdesk/pkg/pagination"
)

// Handler serves the appointment JSON API.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments", h.ListAppointments)
	api.POST("/appointments", h.CreateAppointment)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PUT("/appointments/:id", h.UpdateAppointment)
	api.DELETE("/appointments/:id", h.DeleteAppointment)
}

// filterFromQuery reads patientId, status, q, date_from and date_to. Dates
// are calendar days; date_to covers its whole day.
func (h *Handler) filterFromQuery(c echo.Context) (Filter, error) {
	f := Filter{Status: c.QueryParam("status"), Search: c.QueryParam("q")}
	if v := c.QueryParam("patientId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Filter{}, fmt.Errorf("patientId must be an integer")
		}
		f.PatientID = id
	}
	loc := h.svc.Location()
	if v := c.QueryParam("date_from"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return Filter{}, fmt.Errorf("date_from must be YYYY-MM-DD")
		}
		f.From = &d
	}
	if v := c.QueryParam("date_to"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return Filter{}, fmt.Errorf("date_to must be YYYY-MM-DD")
		}
		end := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc)
		f.To = &end
	}
	return f, nil
}

func (h *Handler) ListAppointments(c echo.Context) error {
	f, err := h.filterFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg)
	if err != nil {
		return form.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return form.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	in := NewInput(0)
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.ID = 0
	a, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return form.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.ID = id
	a, err := h.svc.Update(c.Request().Context(), in)
	if err != nil {
		return form.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return form.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
