package server

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/lecturehall/classroom-oauth/internal/store"
)

// Management endpoints answer with the product-wide envelope. Protocol
// errors from the OAuth flow never use it; they are rendered as
// redirect query strings or bare error bodies instead.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

const (
	codeOK                  = 0
	codeParamsCheckFailed   = 40001
	codeApplicationNotFound = 40401
	codeClientIDNotFound    = 40402
	codeSecretNotFound      = 40403
	codeInternal            = 50000
)

func ok(e echo.Context, data any) error {
	return e.JSON(200, envelope{Code: codeOK, Data: data})
}

// fail translates typed store failures into the envelope; anything
// unrecognized is reported as an internal error.
func fail(e echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrApplicationNotFound):
		return e.JSON(200, envelope{Code: codeApplicationNotFound, Msg: store.ErrApplicationNotFound.Error()})
	case errors.Is(err, store.ErrClientIDNotFound):
		return e.JSON(200, envelope{Code: codeClientIDNotFound, Msg: store.ErrClientIDNotFound.Error()})
	case errors.Is(err, store.ErrSecretNotFound):
		return e.JSON(200, envelope{Code: codeSecretNotFound, Msg: store.ErrSecretNotFound.Error()})
	case errors.Is(err, store.ErrParamsCheckFailed):
		return e.JSON(200, envelope{Code: codeParamsCheckFailed, Msg: store.ErrParamsCheckFailed.Error()})
	default:
		return e.JSON(200, envelope{Code: codeInternal, Msg: "internal error"})
	}
}

func failParams(e echo.Context, msg string) error {
	return e.JSON(200, envelope{Code: codeParamsCheckFailed, Msg: msg})
}
