package server

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lecturehall/classroom-oauth/internal/flow"
	"github.com/lecturehall/classroom-oauth/internal/scope"
	"github.com/lecturehall/classroom-oauth/internal/session"
)

type consentView struct {
	OauthUUID   string   `json:"oauthUUID"`
	AppName     string   `json:"appName"`
	LogoURL     string   `json:"logoURL"`
	OwnerUUID   string   `json:"ownerUUID"`
	CallbackURL string   `json:"callbackURL"`
	CSRFToken   string   `json:"csrfToken"`
	Scopes      []string `json:"scopes"`
	RedirectURI string   `json:"redirectURI"`
	State       string   `json:"state"`
}

func (s *Server) handleAuthorizeView(e echo.Context) error {
	clientID := e.QueryParam("clientID")
	redirectURI := e.QueryParam("redirectURI")
	state := e.QueryParam("state")
	userUUID := session.UserUUID(e)

	scopes, err := scope.New(strings.Fields(e.QueryParam("scopes")))
	if err != nil {
		return e.JSON(200, &flow.ProtocolError{
			Code:        flow.ErrorInvalidScope,
			Description: "requested scope is not allowed",
		})
	}

	result, err := s.engine.View(e.Request().Context(), clientID, redirectURI, scopes, state, userUUID)
	if err != nil {
		return err
	}

	if result.Err != nil {
		// the redirect target is only trusted once the prefix check
		// passed, which is exactly when invalid_scope can occur
		if result.Err.Code == flow.ErrorInvalidScope {
			return e.Redirect(302, flow.ErrorLocation(redirectURI, state, result.Err))
		}
		return e.JSON(200, result.Err)
	}

	if result.Status == flow.AutoRedirect {
		redirect, err := s.engine.Redirect(e.Request().Context(), result.OauthUUID, userUUID, result.CSRFToken, true, redirectURI, state)
		if err != nil {
			return err
		}
		return e.Redirect(302, redirect.Location)
	}

	return ok(e, consentView{
		OauthUUID:   result.OauthUUID,
		AppName:     result.AppName,
		LogoURL:     result.LogoURL,
		OwnerUUID:   result.OwnerUUID,
		CallbackURL: result.CallbackURL,
		CSRFToken:   result.CSRFToken,
		Scopes:      result.Scopes.Strings(),
		RedirectURI: result.RedirectURI,
		State:       result.State,
	})
}

type authorizeSubmitRequest struct {
	RedirectURI string `json:"redirectURI" form:"redirectURI"`
	State       string `json:"state" form:"state"`
	OauthUUID   string `json:"oauthUUID" form:"oauthUUID"`
	CSRFToken   string `json:"csrfToken" form:"csrfToken"`
	Authorize   string `json:"authorize" form:"authorize"`
}

func (s *Server) handleAuthorizeSubmit(e echo.Context) error {
	var req authorizeSubmitRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}

	userUUID := session.UserUUID(e)
	authorize := req.Authorize == "true"

	result, err := s.engine.Redirect(e.Request().Context(), req.OauthUUID, userUUID, req.CSRFToken, authorize, req.RedirectURI, req.State)
	if err != nil {
		return err
	}

	return e.Redirect(302, result.Location)
}
