package middleware

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct{}

func (Validator) Validate(i interface{}) error {
	if err := validate.Struct(i); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, describe(err))
	}
	return nil
}

// BindRequest binds the body and query of the request into req and validates it.
func BindRequest(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return Validator{}.Validate(req)
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "min", "max":
			parts = append(parts, fe.Field()+" must have "+fe.Tag()+" length "+fe.Param())
		default:
			parts = append(parts, fe.Field()+" failed "+fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}
