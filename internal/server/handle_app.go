package server

import (
	"github.com/labstack/echo/v4"

	"github.com/lecturehall/classroom-oauth/internal/scope"
	"github.com/lecturehall/classroom-oauth/internal/session"
	"github.com/lecturehall/classroom-oauth/internal/store"
)

type appCreateRequest struct {
	AppName      string   `json:"appName"`
	AppDesc      string   `json:"appDesc"`
	HomepageURL  string   `json:"homepageURL"`
	CallbackURLs []string `json:"callbackURLs"`
	Scopes       []string `json:"scopes"`
}

func (s *Server) handleAppCreate(e echo.Context) error {
	var req appCreateRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}
	if req.AppName == "" || len(req.CallbackURLs) == 0 {
		return failParams(e, "appName and callbackURLs are required")
	}

	scopes, err := scope.New(req.Scopes)
	if err != nil {
		return failParams(e, err.Error())
	}

	oauthUUID, err := s.registry.Create(e.Request().Context(), session.UserUUID(e), req.AppName, req.AppDesc, req.HomepageURL, req.CallbackURLs, scopes)
	if err != nil {
		return fail(e, err)
	}

	return ok(e, map[string]string{"oauthUUID": oauthUUID})
}

type appUpdateRequest struct {
	OauthUUID    string   `json:"oauthUUID"`
	AppName      *string  `json:"appName"`
	AppDesc      *string  `json:"appDesc"`
	HomepageURL  *string  `json:"homepageURL"`
	CallbackURLs []string `json:"callbackURLs"`
	Scopes       []string `json:"scopes"`
}

func (s *Server) handleAppUpdate(e echo.Context) error {
	var req appUpdateRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}

	ctx := e.Request().Context()
	if err := s.registry.AssertIsOwner(ctx, req.OauthUUID, session.UserUUID(e)); err != nil {
		return fail(e, err)
	}

	fields := store.UpdateFields{
		AppName:      req.AppName,
		AppDesc:      req.AppDesc,
		HomepageURL:  req.HomepageURL,
		CallbackURLs: req.CallbackURLs,
	}
	if req.Scopes != nil {
		scopes, err := scope.New(req.Scopes)
		if err != nil {
			return failParams(e, err.Error())
		}
		fields.Scopes = scopes
	}

	if err := s.registry.Update(ctx, req.OauthUUID, fields); err != nil {
		return fail(e, err)
	}

	return ok(e, nil)
}

type appDeleteRequest struct {
	OauthUUID string `json:"oauthUUID"`
}

func (s *Server) handleAppDelete(e echo.Context) error {
	var req appDeleteRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}

	ctx := e.Request().Context()
	if err := s.registry.AssertIsOwner(ctx, req.OauthUUID, session.UserUUID(e)); err != nil {
		return fail(e, err)
	}

	if err := s.registry.Delete(ctx, req.OauthUUID); err != nil {
		return fail(e, err)
	}

	return ok(e, nil)
}

type appListItem struct {
	OauthUUID   string `json:"oauthUUID"`
	AppName     string `json:"appName"`
	AppDesc     string `json:"appDesc"`
	HomepageURL string `json:"homepageURL"`
	LogoURL     string `json:"logoURL"`
	GrantCount  int64  `json:"grantCount"`
	CreatedAt   int64  `json:"createdAt"`
}

func (s *Server) handleAppList(e echo.Context) error {
	ctx := e.Request().Context()

	apps, err := s.registry.List(ctx, session.UserUUID(e))
	if err != nil {
		return fail(e, err)
	}

	items := make([]appListItem, len(apps))
	for i, app := range apps {
		count, err := s.grants.CountByOAuthUUID(ctx, app.OauthUUID)
		if err != nil {
			return fail(e, err)
		}
		items[i] = appListItem{
			OauthUUID:   app.OauthUUID,
			AppName:     app.AppName,
			AppDesc:     app.AppDesc,
			HomepageURL: app.HomepageURL,
			LogoURL:     app.LogoURL,
			GrantCount:  count,
			CreatedAt:   app.CreatedAt.Unix(),
		}
	}

	return ok(e, items)
}

// handleAppDetail is the consent-facing view: only users holding a live
// grant for the application may see it.
func (s *Server) handleAppDetail(e echo.Context) error {
	oauthUUID := e.QueryParam("oauthUUID")
	if oauthUUID == "" {
		return failParams(e, "oauthUUID is required")
	}

	detail, err := s.registry.Detail(e.Request().Context(), oauthUUID, session.UserUUID(e))
	if err != nil {
		return fail(e, err)
	}

	return ok(e, map[string]any{
		"oauthUUID":     detail.OauthUUID,
		"appName":       detail.AppName,
		"appDesc":       detail.AppDesc,
		"homepageURL":   detail.HomepageURL,
		"logoURL":       detail.LogoURL,
		"ownerUUID":     detail.OwnerUUID,
		"grantedScopes": detail.GrantedScopes.Strings(),
	})
}

// handleAppSettingDetail is the owner's admin view, including masked
// secrets and the grant count.
func (s *Server) handleAppSettingDetail(e echo.Context) error {
	oauthUUID := e.QueryParam("oauthUUID")
	if oauthUUID == "" {
		return failParams(e, "oauthUUID is required")
	}

	ctx := e.Request().Context()
	if err := s.registry.AssertIsOwner(ctx, oauthUUID, session.UserUUID(e)); err != nil {
		return fail(e, err)
	}

	app, err := s.registry.Info(ctx, oauthUUID)
	if err != nil {
		return fail(e, err)
	}

	maskedSecrets, err := s.secrets.Info(ctx, oauthUUID)
	if err != nil {
		return fail(e, err)
	}

	grantCount, err := s.grants.CountByOAuthUUID(ctx, oauthUUID)
	if err != nil {
		return fail(e, err)
	}

	secretItems := make([]map[string]any, len(maskedSecrets))
	for i, sec := range maskedSecrets {
		secretItems[i] = map[string]any{
			"secretUUID":   sec.SecretUUID,
			"clientSecret": sec.ClientSecret,
			"createdAt":    sec.CreatedAt,
		}
	}

	return ok(e, map[string]any{
		"oauthUUID":    app.OauthUUID,
		"clientID":     app.ClientID,
		"appName":      app.AppName,
		"appDesc":      app.AppDesc,
		"homepageURL":  app.HomepageURL,
		"logoURL":      app.LogoURL,
		"scopes":       scope.Parse(app.Scopes).Strings(),
		"callbackURLs": app.CallbackURLs,
		"secrets":      secretItems,
		"grantCount":   grantCount,
	})
}

type appRevokeRequest struct {
	OauthUUID string `json:"oauthUUID"`
}

// handleAppRevoke lets a user withdraw their own grant, invalidating
// any live token pair issued to the application on their behalf.
func (s *Server) handleAppRevoke(e echo.Context) error {
	var req appRevokeRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}

	if err := s.engine.RevokeUserTokens(e.Request().Context(), req.OauthUUID, session.UserUUID(e)); err != nil {
		return fail(e, err)
	}

	return ok(e, nil)
}
