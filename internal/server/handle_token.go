package server

import (
	"strings"

	"github.com/labstack/echo/v4"
)

type accessTokenRequest struct {
	GrantType    string `json:"grantType" form:"grantType"`
	ClientID     string `json:"clientID" form:"clientID"`
	ClientSecret string `json:"clientSecret" form:"clientSecret"`
	Code         string `json:"code" form:"code"`
}

func (s *Server) handleAccessToken(e echo.Context) error {
	var req accessTokenRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}

	result, err := s.engine.AccessToken(e.Request().Context(), req.GrantType, req.ClientID, req.ClientSecret, req.Code)
	if err != nil {
		return err
	}

	if result.Err != nil {
		return e.JSON(200, result.Err)
	}

	return e.JSON(200, result)
}

type refreshTokenRequest struct {
	GrantType    string `json:"grantType" form:"grantType"`
	ClientID     string `json:"clientID" form:"clientID"`
	ClientSecret string `json:"clientSecret" form:"clientSecret"`
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

func (s *Server) handleRefreshToken(e echo.Context) error {
	var req refreshTokenRequest
	if err := e.Bind(&req); err != nil {
		return failParams(e, "invalid request body")
	}

	result, err := s.engine.RefreshToken(e.Request().Context(), req.GrantType, req.ClientID, req.ClientSecret, req.RefreshToken)
	if err != nil {
		return err
	}

	if result.Err != nil {
		return e.JSON(200, result.Err)
	}

	return e.JSON(200, result)
}

func (s *Server) handleUserProfile(e echo.Context) error {
	header := e.Request().Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")

	result, err := s.engine.UserProfile(e.Request().Context(), token)
	if err != nil {
		return err
	}

	if result.Err != nil {
		return e.JSON(200, result.Err)
	}

	return e.JSON(200, result)
}
