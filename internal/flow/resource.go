package flow

import (
	"context"

	"github.com/lecturehall/classroom-oauth/internal/ephemeral"
	"github.com/lecturehall/classroom-oauth/internal/scope"
	"github.com/lecturehall/classroom-oauth/internal/store"
)

// ProfileResult returns only the fields whose scope was granted; absent
// scopes leave their field out of the JSON entirely.
type ProfileResult struct {
	Err *ProtocolError `json:"-"`

	UserUUID  *string `json:"userUUID,omitempty"`
	UserName  *string `json:"userName,omitempty"`
	AvatarURL *string `json:"avatarURL,omitempty"`
}

// UserProfile resolves a bearer access token and serves the profile
// fields its grant permits. Any resolution failure is reported as an
// invalid_token error body, matching OAuth's error-as-payload
// convention for this endpoint.
func (e *Engine) UserProfile(ctx context.Context, accessToken string) (*ProfileResult, error) {
	invalid := &ProfileResult{Err: &ProtocolError{ErrorInvalidToken, "access token invalid or expired"}}

	record, err := e.eph.AccessToken(ctx, accessToken)
	if err == ephemeral.ErrNotFound {
		return invalid, nil
	}
	if err != nil {
		return nil, err
	}

	app, err := e.registry.FindByClientID(ctx, record.ClientID)
	if err == store.ErrApplicationNotFound {
		return invalid, nil
	}
	if err != nil {
		return nil, err
	}

	granted, hasGrant, err := e.grants.GetScopes(ctx, app.OauthUUID, record.UserUUID)
	if err != nil {
		return nil, err
	}
	if !hasGrant {
		return invalid, nil
	}

	user, err := e.users.FindByUUID(ctx, record.UserUUID)
	if err == store.ErrUserNotFound {
		return invalid, nil
	}
	if err != nil {
		return nil, err
	}

	result := &ProfileResult{}
	if granted.Contains(scope.UserUUIDRead) {
		result.UserUUID = &user.UserUUID
	}
	if granted.Contains(scope.UserNameRead) {
		result.UserName = &user.UserName
	}
	if granted.Contains(scope.UserAvatarRead) {
		avatar := user.AvatarURL
		if avatar == "" {
			avatar = e.defaultAvatarURL
		}
		result.AvatarURL = &avatar
	}

	return result, nil
}
