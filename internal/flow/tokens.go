package flow

import (
	"context"
	"fmt"

	"github.com/lecturehall/classroom-oauth/internal/ephemeral"
	"github.com/lecturehall/classroom-oauth/internal/helpers"
	"github.com/lecturehall/classroom-oauth/internal/store"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenResult is the response shape shared by code exchange and refresh.
type TokenResult struct {
	Err *ProtocolError `json:"-"`

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// AccessToken exchanges a one-time authorization code for a token pair.
// The code is resolved and deleted in one step, so it is gone whatever
// happens afterwards; a previously-live pair for (clientID, userUUID)
// is revoked before the fresh pair is persisted.
func (e *Engine) AccessToken(ctx context.Context, grantType, clientID, clientSecret, code string) (*TokenResult, error) {
	if grantType != GrantTypeAuthorizationCode {
		return &TokenResult{Err: &ProtocolError{ErrorInvalidRequest, "unsupported grant type"}}, nil
	}

	userUUID, err := e.eph.ConsumeAuthCode(ctx, code)
	if err == ephemeral.ErrNotFound {
		return &TokenResult{Err: &ProtocolError{ErrorAccessDenied, "authorization code invalid or expired"}}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.secrets.AssertExist(ctx, clientID, clientSecret); err != nil {
		if err == store.ErrParamsCheckFailed {
			return &TokenResult{Err: &ProtocolError{ErrorAccessDenied, "client credentials mismatch"}}, nil
		}
		return nil, err
	}

	return e.issuePair(ctx, clientID, userUUID)
}

// RefreshToken rotates a token pair. The old access and refresh records
// are deleted before the new pair is persisted.
func (e *Engine) RefreshToken(ctx context.Context, grantType, clientID, clientSecret, refreshToken string) (*TokenResult, error) {
	if grantType != GrantTypeRefreshToken {
		return &TokenResult{Err: &ProtocolError{ErrorInvalidRequest, "unsupported grant type"}}, nil
	}

	record, err := e.eph.RefreshToken(ctx, refreshToken)
	if err == ephemeral.ErrNotFound {
		return &TokenResult{Err: &ProtocolError{ErrorAccessDenied, "refresh token invalid or expired"}}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.secrets.AssertExist(ctx, clientID, clientSecret); err != nil {
		if err == store.ErrParamsCheckFailed {
			return &TokenResult{Err: &ProtocolError{ErrorAccessDenied, "client credentials mismatch"}}, nil
		}
		return nil, err
	}

	if err := e.eph.DeleteTokens(ctx, record.AccessToken, refreshToken); err != nil {
		return nil, err
	}

	return e.issuePair(ctx, clientID, record.UserUUID)
}

func (e *Engine) issuePair(ctx context.Context, clientID, userUUID string) (*TokenResult, error) {
	if err := e.eph.RevokePair(ctx, clientID, userUUID); err != nil {
		return nil, err
	}

	accessToken, err := helpers.RandomString(helpers.TokenLength)
	if err != nil {
		return nil, fmt.Errorf("could not generate access token: %w", err)
	}

	refreshToken, err := helpers.RandomString(helpers.TokenLength)
	if err != nil {
		return nil, fmt.Errorf("could not generate refresh token: %w", err)
	}

	if err := e.eph.SaveTokenPair(ctx, clientID, userUUID, accessToken, refreshToken, accessTokenTTL); err != nil {
		return nil, err
	}

	return &TokenResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    AccessTokenExpiresIn,
		TokenType:    TokenType,
	}, nil
}

// RevokeUserTokens invalidates the live pair for one user of an
// application and removes the user's grant. Used by the revoke surface;
// application deletion sweeps all pairs through the registry instead.
func (e *Engine) RevokeUserTokens(ctx context.Context, oauthUUID, userUUID string) error {
	clientID, err := e.registry.FindClientID(ctx, oauthUUID)
	if err != nil {
		return err
	}

	if err := e.eph.RevokePair(ctx, clientID, userUUID); err != nil {
		return err
	}

	return e.grants.Revoke(ctx, oauthUUID, userUUID)
}
