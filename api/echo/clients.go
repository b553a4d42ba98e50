package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ohmage/oauth2/api"
	"github.com/ohmage/oauth2/errors"
)

// RegisterClientHandler creates a client owned by the authenticated user.
// The response is the only place the client secret appears in the clear.
func (oa *OAuth2API) RegisterClientHandler(c echo.Context) error {
	var req api.RegisterClientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("malformed request body"))
	}

	client, err := oa.clientService.RegisterClient(c.Request().Context(),
		currentUserID(c), req.Name, req.Description, req.RedirectURI)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, client)
}

// UpdateClientHandler merges changed fields into a client the
// authenticated user owns.
func (oa *OAuth2API) UpdateClientHandler(c echo.Context) error {
	var req api.UpdateClientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("malformed request body"))
	}

	client, err := oa.clientService.UpdateClient(c.Request().Context(),
		currentUserID(c), c.Param("id"), req.Name, req.Description, req.RedirectURI)
	if err != nil {
		return writeError(c, err)
	}
	client.Secret = ""
	return c.JSON(http.StatusOK, client)
}

// GetClientHandler returns the public view of a client registration.
func (oa *OAuth2API) GetClientHandler(c echo.Context) error {
	client, err := oa.clientService.GetClient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, client)
}

// ListClientsHandler returns the IDs of the clients the authenticated
// user owns.
func (oa *OAuth2API) ListClientsHandler(c echo.Context) error {
	ids, err := oa.clientService.ListClientIDs(c.Request().Context(), currentUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"client_ids": ids})
}
