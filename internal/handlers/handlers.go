package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/bellflower/pkg/context"
	"github.com/Ramsey-B/bellflower/pkg/middleware"
	"github.com/Ramsey-B/bellflower/pkg/models"
)

// caller returns the identity the authentication middleware stored on the request.
func caller(c echo.Context) (models.Caller, error) {
	who, ok := appctx.GetCaller(c.Request().Context())
	if !ok {
		return models.Caller{}, httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return who, nil
}

func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, middleware.MessageResponse{Msg: msg})
}

func queryBool(c echo.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be a boolean", name)
	}
	return value, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be an integer", name)
	}
	return value, nil
}

// optionalQuery returns nil for an absent or blank parameter.
func optionalQuery(c echo.Context, name string) *string {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil
	}
	return &raw
}
