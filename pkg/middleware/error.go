package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/bellflower/pkg/context"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// InternalErrorPrefix starts the reference message returned for server-side failures.
const InternalErrorPrefix = "ОШИБКА! #"

type MessageResponse struct {
	Msg string `json:"msg"`
}

// Error renders client errors as {"msg": "..."}. Server errors get an opaque reference id in the
// body; the same id is logged with the full error.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()

		code := http.StatusInternalServerError
		message := http.StatusText(code)

		var he *echo.HTTPError
		switch {
		case httperror.IsHTTPError(err):
			code = httperror.GetStatusCode(err)
			message = httperror.ToHTTPError(err).Error()
		case errors.As(err, &he):
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			} else {
				message = http.StatusText(code)
			}
		}

		log := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status":     code,
			"request_id": context.GetRequestID(ctx),
			"trace_id":   tracing.GetTraceID(ctx),
		})

		if code >= http.StatusInternalServerError {
			ref := uuid.New().String()
			log.WithField("error_id", ref).Error("api is returning an internal error")
			message = InternalErrorPrefix + ref
		} else {
			log.Info("api is returning an error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, MessageResponse{Msg: message})
	}
}
