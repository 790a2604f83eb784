package api

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validator: validator.New()}
}

func (v *RequestValidator) Validate(i any) error {
	return v.validator.Struct(i)
}

// bind decodes a JSON body into dst, rejecting unknown fields.
func bind(c echo.Context, dst any) error {
	body := io.LimitReader(c.Request().Body, maxBodyBytes)
	dec := sonic.ConfigStd.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}

func bindAndValidate(c echo.Context, dst any) error {
	if err := bind(c, dst); err != nil {
		return err
	}
	if err := c.Validate(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
