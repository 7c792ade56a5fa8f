package util

import (
	"github.com/labstack/echo/v4"
)

// BindAndValidate binds path and query parameters into data and runs the
// registered validator. Errors carry the validation kind.
func BindAndValidate(c echo.Context, data any) error {
	if err := c.Bind(data); err != nil {
		return BindError(err)
	}
	return c.Validate(data)
}
