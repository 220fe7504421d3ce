package server

import (
	"github.com/labstack/echo/v4"

	"github.com/lecturehall/classroom-oauth/internal/session"
)

type secretCreateRequest struct {
	OauthUUID string `json:"oauthUUID"`
}

// handleSecretCreate mints a fresh client secret. The raw value appears
// in this response and nowhere else; every later listing is masked.
func (s *Server) handleSecretCreate(e echo.Context) error {
	var req secretCreateRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}

	ctx := e.Request().Context()
	if err := s.registry.AssertIsOwner(ctx, req.OauthUUID, session.UserUUID(e)); err != nil {
		return fail(e, err)
	}

	clientID, err := s.registry.FindClientID(ctx, req.OauthUUID)
	if err != nil {
		return fail(e, err)
	}

	secret, err := s.secrets.Create(ctx, req.OauthUUID, clientID)
	if err != nil {
		return fail(e, err)
	}

	return ok(e, map[string]string{
		"secretUUID":   secret.SecretUUID,
		"clientSecret": secret.ClientSecret,
	})
}

type secretDeleteRequest struct {
	SecretUUID string `json:"secretUUID"`
}

func (s *Server) handleSecretDelete(e echo.Context) error {
	var req secretDeleteRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}

	ctx := e.Request().Context()
	if err := s.secrets.AssertIsOwner(ctx, req.SecretUUID, session.UserUUID(e)); err != nil {
		return fail(e, err)
	}

	if err := s.secrets.Delete(ctx, req.SecretUUID); err != nil {
		return fail(e, err)
	}

	return ok(e, nil)
}
