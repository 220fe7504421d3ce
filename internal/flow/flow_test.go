package flow

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lecturehall/classroom-oauth/internal/ephemeral"
	"github.com/lecturehall/classroom-oauth/internal/models"
	"github.com/lecturehall/classroom-oauth/internal/scope"
	"github.com/lecturehall/classroom-oauth/internal/store"
)

type testEnv struct {
	engine   *Engine
	registry *store.Registry
	secrets  *store.Secrets
	grants   *store.Grants
	eph      *ephemeral.Store
	mr       *miniredis.Miniredis
	db       *gorm.DB

	oauthUUID    string
	clientID     string
	clientSecret string
}

const (
	testCallback = "https://app.example/cb"
	testOwner    = "owner-1"
	testUser     = "user-1"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.OAuthApplication{},
		&models.OAuthSecret{},
		&models.OAuthUserGrant{},
		&models.User{},
	))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	eph := ephemeral.New(client)
	registry := store.NewRegistry(db, eph, "/static/oauth-app-logo.png", nil)
	secrets := store.NewSecrets(db, registry)
	grants := store.NewGrants(db)
	users := store.NewUsers(db)

	engine := NewEngine(EngineArgs{
		Registry:         registry,
		Secrets:          secrets,
		Grants:           grants,
		Users:            users,
		Ephemeral:        eph,
		DefaultAvatarURL: "/static/default-avatar.png",
	})

	oauthUUID, err := registry.Create(ctx, testOwner, "Quiz Helper", "a quiz app", "https://app.example",
		[]string{testCallback}, scope.Set{scope.UserNameRead, scope.UserAvatarRead})
	require.NoError(t, err)

	clientID, err := registry.FindClientID(ctx, oauthUUID)
	require.NoError(t, err)

	secret, err := secrets.Create(ctx, oauthUUID, clientID)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.User{
		UserUUID: testUser,
		UserName: "Casey",
	}).Error)

	return &testEnv{
		engine:       engine,
		registry:     registry,
		secrets:      secrets,
		grants:       grants,
		eph:          eph,
		mr:           mr,
		db:           db,
		oauthUUID:    oauthUUID,
		clientID:     clientID,
		clientSecret: secret.ClientSecret,
	}
}

// approve runs view + redirect for the test user and returns the minted
// authorization code.
func (env *testEnv) approve(t *testing.T, scopes scope.Set) string {
	t.Helper()
	ctx := context.Background()

	view, err := env.engine.View(ctx, env.clientID, testCallback, scopes, "abc", testUser)
	require.NoError(t, err)
	require.Nil(t, view.Err)

	redirect, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, true, testCallback, "abc")
	require.NoError(t, err)
	require.Nil(t, redirect.Err)

	u, err := url.Parse(redirect.Location)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code)

	return code
}

func TestViewNeedsConsent(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	view, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.Nil(view.Err)

	assert.Equal(NeedsConsent, view.Status)
	assert.Equal(env.oauthUUID, view.OauthUUID)
	assert.Equal("Quiz Helper", view.AppName)
	assert.Equal(testOwner, view.OwnerUUID)
	assert.Equal(testCallback, view.CallbackURL)
	assert.Len(view.CSRFToken, 22)
	assert.Equal(scope.Set{scope.UserNameRead}, view.Scopes)
}

func TestViewUnknownClient(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	view, err := env.engine.View(ctx, "nosuchclient", testCallback, scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.NotNil(view.Err)
	require.Equal(ErrorInvalidRequest, view.Err.Code)
}

func TestViewRedirectURIContainment(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	// a path under the registered prefix is fine
	view, err := env.engine.View(ctx, env.clientID, testCallback+"/done", scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.Nil(view.Err)

	// even a single differing trailing character is rejected
	view, err = env.engine.View(ctx, env.clientID, "https://app.example/cx", scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.NotNil(view.Err)
	require.Equal(ErrorInvalidRequest, view.Err.Code)

	view, err = env.engine.View(ctx, env.clientID, "https://evil.example/cb", scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.NotNil(view.Err)
	require.Equal(ErrorInvalidRequest, view.Err.Code)
}

func TestViewScopeContainment(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	// user.uuid:read is outside the application's allowed superset
	view, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserUUIDRead}, "abc", testUser)
	require.NoError(err)
	require.NotNil(view.Err)
	require.Equal(ErrorInvalidScope, view.Err.Code)

	view, err = env.engine.View(ctx, env.clientID, testCallback, nil, "abc", testUser)
	require.NoError(err)
	require.NotNil(view.Err)
	require.Equal(ErrorInvalidScope, view.Err.Code)
}

func TestViewEscapesRenderedValues(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	state := `"><script>alert(1)</script>`
	view, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead}, state, testUser)
	require.NoError(err)
	require.Nil(view.Err)
	require.NotContains(view.State, "<script>")
}

func TestViewAutoRedirectOnSupersetGrant(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	require.NoError(env.grants.Grant(ctx, env.oauthUUID, testUser, scope.Set{scope.UserNameRead, scope.UserAvatarRead}))

	view, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.Nil(view.Err)
	require.Equal(AutoRedirect, view.Status)
	// the auto path still consumes a live csrf token
	require.NotEmpty(view.CSRFToken)

	// a broader request than the existing grant still needs consent
	require.NoError(env.grants.Grant(ctx, env.oauthUUID, testUser, scope.Set{scope.UserNameRead}))
	view, err = env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead, scope.UserAvatarRead}, "abc", testUser)
	require.NoError(err)
	require.Nil(view.Err)
	require.Equal(NeedsConsent, view.Status)
}

func TestRedirectCSRFTokenSingleUse(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	view, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.Nil(view.Err)

	first, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, true, testCallback, "abc")
	require.NoError(err)
	require.Nil(first.Err)

	// reuse fails regardless of the authorize flag
	second, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, true, testCallback, "abc")
	require.NoError(err)
	require.NotNil(second.Err)
	require.Equal(ErrorAccessDenied, second.Err.Code)
	require.Contains(second.Location, "csrf+token+expired")

	third, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, false, testCallback, "abc")
	require.NoError(err)
	require.NotNil(third.Err)
	require.Contains(third.Location, "csrf+token+expired")
}

func TestRedirectConsumesCSRFTokenOnDeny(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	view, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)

	deny, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, false, testCallback, "abc")
	require.NoError(err)
	require.NotNil(deny.Err)
	require.Equal(ErrorAccessDenied, deny.Err.Code)
	require.Contains(deny.Location, "error_description=The+user+denied+your+request")

	// the deny consumed the token: approving afterwards is impossible
	retry, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, true, testCallback, "abc")
	require.NoError(err)
	require.Contains(retry.Location, "csrf+token+expired")
}

func TestRedirectMismatchedCSRFToken(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	_, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)

	result, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, "forged-token", true, testCallback, "abc")
	require.NoError(err)
	require.NotNil(result.Err)
	require.Equal(ErrorAccessDenied, result.Err.Code)
}

func TestRedirectExpiredPendingScopes(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	view, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)

	// expire only the pending-scopes record, then re-arm the csrf token
	env.mr.FastForward(11 * time.Minute)
	require.NoError(env.eph.SaveCSRFToken(ctx, env.oauthUUID, testUser, view.CSRFToken, 10*time.Minute))

	result, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, true, testCallback, "abc")
	require.NoError(err)
	require.NotNil(result.Err)
	// scopes must never silently default
	require.Equal(ErrorInvalidScope, result.Err.Code)
}

func TestRedirectQuerySeparator(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	view, err := env.engine.View(ctx, env.clientID, testCallback+"?foo=bar", scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.Nil(view.Err)

	result, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, true, testCallback+"?foo=bar", "abc")
	require.NoError(err)
	require.Nil(result.Err)
	require.True(strings.HasPrefix(result.Location, testCallback+"?foo=bar&"))
}

func TestAccessTokenSingleUseCode(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)
	code := env.approve(t, scope.Set{scope.UserNameRead})

	first, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.Nil(first.Err)
	require.Len(first.AccessToken, 40)
	require.Len(first.RefreshToken, 40)

	second, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.NotNil(second.Err)
	require.Equal(ErrorAccessDenied, second.Err.Code)
}

func TestAccessTokenBadCredentials(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)
	code := env.approve(t, scope.Set{scope.UserNameRead})

	result, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, "wrong-secret", code)
	require.NoError(err)
	require.NotNil(result.Err)
	require.Equal(ErrorAccessDenied, result.Err.Code)

	// the code was consumed by the failed attempt: it is single-use
	// regardless of what happens after resolution
	retry, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.NotNil(retry.Err)
}

func TestAccessTokenWrongGrantType(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	result, err := env.engine.AccessToken(ctx, "client_credentials", env.clientID, env.clientSecret, "whatever")
	require.NoError(err)
	require.NotNil(result.Err)
	require.Equal(ErrorInvalidRequest, result.Err.Code)
}

func TestTokenPairExclusivity(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	code := env.approve(t, scope.Set{scope.UserNameRead})
	first, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.Nil(first.Err)

	code = env.approve(t, scope.Set{scope.UserNameRead})
	second, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.Nil(second.Err)

	// the earlier pair no longer resolves
	profile, err := env.engine.UserProfile(ctx, first.AccessToken)
	require.NoError(err)
	require.NotNil(profile.Err)

	refresh, err := env.engine.RefreshToken(ctx, GrantTypeRefreshToken, env.clientID, env.clientSecret, first.RefreshToken)
	require.NoError(err)
	require.NotNil(refresh.Err)

	// the fresh pair works
	profile, err = env.engine.UserProfile(ctx, second.AccessToken)
	require.NoError(err)
	require.Nil(profile.Err)
}

func TestRefreshTokenRotation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	code := env.approve(t, scope.Set{scope.UserNameRead})
	issued, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.Nil(issued.Err)

	rotated, err := env.engine.RefreshToken(ctx, GrantTypeRefreshToken, env.clientID, env.clientSecret, issued.RefreshToken)
	require.NoError(err)
	require.Nil(rotated.Err)
	require.NotEqual(issued.AccessToken, rotated.AccessToken)
	require.NotEqual(issued.RefreshToken, rotated.RefreshToken)
	require.Equal(AccessTokenExpiresIn, rotated.ExpiresIn)
	require.Equal(TokenType, rotated.TokenType)

	// the old pair is gone
	old, err := env.engine.RefreshToken(ctx, GrantTypeRefreshToken, env.clientID, env.clientSecret, issued.RefreshToken)
	require.NoError(err)
	require.NotNil(old.Err)

	profile, err := env.engine.UserProfile(ctx, issued.AccessToken)
	require.NoError(err)
	require.NotNil(profile.Err)

	profile, err = env.engine.UserProfile(ctx, rotated.AccessToken)
	require.NoError(err)
	require.Nil(profile.Err)
}

func TestRefreshTokenUnknown(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	result, err := env.engine.RefreshToken(ctx, GrantTypeRefreshToken, env.clientID, env.clientSecret, "nosuchtoken")
	require.NoError(err)
	require.NotNil(result.Err)
	require.Equal(ErrorAccessDenied, result.Err.Code)
}

func TestHappyPath(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	view, err := env.engine.View(ctx, env.clientID, testCallback, scope.Set{scope.UserNameRead}, "abc", testUser)
	require.NoError(err)
	require.Nil(view.Err)
	require.Equal(NeedsConsent, view.Status)

	redirect, err := env.engine.Redirect(ctx, env.oauthUUID, testUser, view.CSRFToken, true, testCallback, "abc")
	require.NoError(err)
	require.Nil(redirect.Err)

	u, err := url.Parse(redirect.Location)
	require.NoError(err)
	assert.True(strings.HasPrefix(redirect.Location, testCallback+"?"))
	assert.Equal("abc", u.Query().Get("state"))
	code := u.Query().Get("code")
	require.Len(code, 22)

	tokens, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.Nil(tokens.Err)
	assert.Equal(864000, tokens.ExpiresIn)
	assert.Equal("token", tokens.TokenType)

	profile, err := env.engine.UserProfile(ctx, tokens.AccessToken)
	require.NoError(err)
	require.Nil(profile.Err)

	// only the granted field comes back
	require.NotNil(profile.UserName)
	assert.Equal("Casey", *profile.UserName)
	assert.Nil(profile.UserUUID)
	assert.Nil(profile.AvatarURL)
}

func TestRevokeUserTokens(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	code := env.approve(t, scope.Set{scope.UserNameRead})
	tokens, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.Nil(tokens.Err)

	require.NoError(env.engine.RevokeUserTokens(ctx, env.oauthUUID, testUser))

	profile, err := env.engine.UserProfile(ctx, tokens.AccessToken)
	require.NoError(err)
	require.NotNil(profile.Err)

	has, err := env.grants.HasGrant(ctx, env.oauthUUID, testUser)
	require.NoError(err)
	require.False(has)
}

func TestApplicationDeleteInvalidatesTokens(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t)

	code := env.approve(t, scope.Set{scope.UserNameRead})
	tokens, err := env.engine.AccessToken(ctx, GrantTypeAuthorizationCode, env.clientID, env.clientSecret, code)
	require.NoError(err)
	require.Nil(tokens.Err)

	require.NoError(env.registry.Delete(ctx, env.oauthUUID))

	profile, err := env.engine.UserProfile(ctx, tokens.AccessToken)
	require.NoError(err)
	require.NotNil(profile.Err)
	require.Equal(ErrorInvalidToken, profile.Err.Code)
}
