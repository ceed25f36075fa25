package form

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediflow/frontdesk/internal/platform/records"
)

// HTTPError maps a validation or gateway error onto the JSON API.
func HTTPError(err error) *echo.HTTPError {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": InvalidMessage,
			"fields":  ve.Fields,
		})
	case errors.Is(err, ErrSubmitInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case records.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case records.IsRejected(err):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, records.Message(err))
	}
	var re *records.RemoteError
	if errors.As(err, &re) {
		return echo.NewHTTPError(http.StatusBadGateway, re.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
