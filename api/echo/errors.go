package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/ohmage/oauth2/errors"
)

// writeError maps an engine error onto its OAuth2 wire form and HTTP
// status. Server errors are logged with the underlying cause, which the
// wire body never carries.
func writeError(c echo.Context, err error) error {
	wireErr := errors.Wire(err)

	status := http.StatusBadRequest
	switch wireErr.Code {
	case errors.InvalidClient:
		status = http.StatusUnauthorized
	case errors.ServerError:
		status = http.StatusInternalServerError
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}
	if errors.IsKind(err, errors.KindNotFound) {
		status = http.StatusNotFound
	}

	return c.JSON(status, wireErr)
}
