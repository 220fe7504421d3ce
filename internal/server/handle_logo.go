package server

import (
	"github.com/labstack/echo/v4"

	"github.com/lecturehall/classroom-oauth/internal/session"
	"github.com/lecturehall/classroom-oauth/internal/store"
)

// handleLogoUpload replaces an application's logo. Removing the old
// blob is best-effort: a stale file never fails the request.
func (s *Server) handleLogoUpload(e echo.Context) error {
	oauthUUID := e.FormValue("oauthUUID")
	if oauthUUID == "" {
		return failParams(e, "oauthUUID is required")
	}

	ctx := e.Request().Context()
	if err := s.registry.AssertIsOwner(ctx, oauthUUID, session.UserUUID(e)); err != nil {
		return fail(e, err)
	}

	file, err := e.FormFile("file")
	if err != nil {
		return failParams(e, "logo file is required")
	}

	src, err := file.Open()
	if err != nil {
		return fail(e, err)
	}
	defer src.Close()

	app, err := s.registry.Info(ctx, oauthUUID)
	if err != nil {
		return fail(e, err)
	}

	logoURL, err := s.blobs.Save(ctx, file.Filename, src)
	if err != nil {
		return fail(e, err)
	}

	if err := s.registry.Update(ctx, oauthUUID, store.UpdateFields{LogoURL: &logoURL}); err != nil {
		return fail(e, err)
	}

	if err := s.blobs.Remove(ctx, app.LogoURL); err != nil {
		s.log.Warn("could not remove old logo", "oauthUUID", oauthUUID, "err", err)
	}

	return ok(e, map[string]string{"logoURL": logoURL})
}
