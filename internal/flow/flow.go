// Package flow implements the authorization-code grant state machine:
// consent view, code issuance, token exchange and refresh, plus the
// scope-limited user-profile resource endpoint.
package flow

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lecturehall/classroom-oauth/internal/ephemeral"
	"github.com/lecturehall/classroom-oauth/internal/helpers"
	"github.com/lecturehall/classroom-oauth/internal/scope"
	"github.com/lecturehall/classroom-oauth/internal/store"
)

const (
	csrfTokenTTL     = 10 * time.Minute
	pendingScopesTTL = 10 * time.Minute
	authCodeTTL      = 10 * time.Minute
	accessTokenTTL   = 10 * 24 * time.Hour

	// AccessTokenExpiresIn is the advertised lifetime in seconds.
	AccessTokenExpiresIn = 864000
	// TokenType is the token_type value this product has always sent.
	TokenType = "token"
)

// Protocol error codes, delivered as redirect query strings or JSON
// bodies, never as HTTP error statuses.
const (
	ErrorInvalidRequest = "invalid_request"
	ErrorInvalidScope   = "invalid_scope"
	ErrorAccessDenied   = "access_denied"
	ErrorInvalidToken   = "invalid_token"
	ErrorServerError    = "server_error"
)

// ProtocolError is an OAuth-spec error signal. It is a value carried in
// flow results, not a Go error: transport always succeeds.
type ProtocolError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

type Engine struct {
	registry *store.Registry
	secrets  *store.Secrets
	grants   *store.Grants
	users    *store.Users
	eph      *ephemeral.Store
	log      *slog.Logger

	defaultAvatarURL string
}

type EngineArgs struct {
	Registry         *store.Registry
	Secrets          *store.Secrets
	Grants           *store.Grants
	Users            *store.Users
	Ephemeral        *ephemeral.Store
	Log              *slog.Logger
	DefaultAvatarURL string
}

func NewEngine(args EngineArgs) *Engine {
	log := args.Log
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		registry:         args.Registry,
		secrets:          args.Secrets,
		grants:           args.Grants,
		users:            args.Users,
		eph:              args.Ephemeral,
		log:              log,
		defaultAvatarURL: args.DefaultAvatarURL,
	}
}

// ViewStatus is the observable outcome of rendering the authorize view.
type ViewStatus string

const (
	NeedsConsent ViewStatus = "needs_consent"
	AutoRedirect ViewStatus = "auto_redirect"
)

// ViewResult carries either a protocol error or the data needed to
// render the consent page / short-circuit an already-granted request.
// State and RedirectURI are HTML-escaped copies for page rendering; the
// raw redirect target is only ever rebuilt from the request values.
type ViewResult struct {
	Status    ViewStatus
	Err       *ProtocolError
	OauthUUID string

	AppName   string
	LogoURL   string
	OwnerUUID string

	// CallbackURL is the registered prefix the redirect URI matched.
	CallbackURL string
	CSRFToken   string
	Scopes      scope.Set

	RedirectURI string
	State       string
}

// View validates an incoming authorize request and prepares the consent
// decision. The redirect URI must start with one of the application's
// registered callback prefixes; requested scopes must sit inside the
// application's allowed superset. If the user already granted an
// equal-or-broader scope set the consent screen is skipped.
func (e *Engine) View(ctx context.Context, clientID, redirectURI string, scopes scope.Set, state, userUUID string) (*ViewResult, error) {
	app, err := e.registry.FindByClientID(ctx, clientID)
	if err == store.ErrApplicationNotFound {
		return &ViewResult{Err: &ProtocolError{ErrorInvalidRequest, "client not found"}}, nil
	}
	if err != nil {
		return nil, err
	}

	matched, ok := matchCallback(app.CallbackURLs, redirectURI)
	if !ok {
		return &ViewResult{Err: &ProtocolError{ErrorInvalidRequest, "redirect uri mismatch"}}, nil
	}

	allowed := scope.Parse(app.Scopes)
	if len(scopes) == 0 || !allowed.ContainsAll(scopes) {
		return &ViewResult{Err: &ProtocolError{ErrorInvalidScope, "requested scope is not allowed"}}, nil
	}

	csrfToken, err := helpers.RandomString(helpers.CSRFTokenLength)
	if err != nil {
		return nil, fmt.Errorf("could not generate csrf token: %w", err)
	}

	if err := e.eph.SaveCSRFToken(ctx, app.OauthUUID, userUUID, csrfToken, csrfTokenTTL); err != nil {
		return nil, err
	}

	// whichever path issues the code must see exactly the scope set
	// the user was shown
	if err := e.eph.SavePendingScopes(ctx, app.OauthUUID, userUUID, scopes.Join(), pendingScopesTTL); err != nil {
		return nil, err
	}

	result := &ViewResult{
		Status:      NeedsConsent,
		OauthUUID:   app.OauthUUID,
		AppName:     app.AppName,
		LogoURL:     app.LogoURL,
		OwnerUUID:   app.OwnerUUID,
		CallbackURL: matched,
		CSRFToken:   csrfToken,
		Scopes:      scopes,
		RedirectURI: html.EscapeString(redirectURI),
		State:       html.EscapeString(state),
	}

	granted, hasGrant, err := e.grants.GetScopes(ctx, app.OauthUUID, userUUID)
	if err != nil {
		return nil, err
	}
	if hasGrant && granted.ContainsAll(scopes) {
		result.Status = AutoRedirect
	}

	return result, nil
}

// matchCallback reports whether the redirect URI starts with one of the
// registered space-joined callback prefixes, returning the matched one.
func matchCallback(callbackURLs, redirectURI string) (string, bool) {
	if redirectURI == "" {
		return "", false
	}
	for _, prefix := range strings.Fields(callbackURLs) {
		if strings.HasPrefix(redirectURI, prefix) {
			return prefix, true
		}
	}
	return "", false
}

// RedirectResult always carries a Location: protocol failures in this
// leg are communicated to the application via its own callback.
type RedirectResult struct {
	Location string
	Err      *ProtocolError
}

// Redirect finalizes the consent decision. The CSRF token is consumed
// once found, whatever the outcome. On approval the grant is recorded
// with the pending scope set and a one-time authorization code is
// minted and appended to the callback along with the client state.
func (e *Engine) Redirect(ctx context.Context, oauthUUID, userUUID, csrfToken string, authorize bool, redirectURI, state string) (*RedirectResult, error) {
	stored, err := e.eph.ConsumeCSRFToken(ctx, oauthUUID, userUUID)
	if err == ephemeral.ErrNotFound {
		return errorRedirect(redirectURI, state, ErrorAccessDenied, "csrf token expired"), nil
	}
	if err != nil {
		return nil, err
	}

	if stored != csrfToken {
		return errorRedirect(redirectURI, state, ErrorAccessDenied, "csrf token expired"), nil
	}

	if !authorize {
		return errorRedirect(redirectURI, state, ErrorAccessDenied, "The user denied your request"), nil
	}

	pending, err := e.eph.PendingScopes(ctx, oauthUUID, userUUID)
	if err == ephemeral.ErrNotFound {
		// scopes must not silently default to anything
		return errorRedirect(redirectURI, state, ErrorInvalidScope, "authorization scope expired"), nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.grants.Grant(ctx, oauthUUID, userUUID, scope.Parse(pending)); err != nil {
		return nil, err
	}

	code, err := helpers.RandomString(helpers.AuthCodeLength)
	if err != nil {
		return nil, fmt.Errorf("could not generate authorization code: %w", err)
	}

	if err := e.eph.SaveAuthCode(ctx, code, userUUID, authCodeTTL); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("code", code)
	params.Set("state", state)

	return &RedirectResult{Location: appendQuery(redirectURI, params)}, nil
}

func errorRedirect(redirectURI, state, code, description string) *RedirectResult {
	return &RedirectResult{
		Location: ErrorLocation(redirectURI, state, &ProtocolError{code, description}),
		Err:      &ProtocolError{code, description},
	}
}

// ErrorLocation builds the callback redirect carrying a protocol error.
// Only call it with a redirect URI that already passed the prefix check.
func ErrorLocation(redirectURI, state string, perr *ProtocolError) string {
	params := url.Values{}
	params.Set("error", perr.Code)
	params.Set("error_description", perr.Description)
	if state != "" {
		params.Set("state", state)
	}
	return appendQuery(redirectURI, params)
}

// appendQuery joins with & when the target already carries a query
// string, otherwise with ?.
func appendQuery(redirectURI string, params url.Values) string {
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	return redirectURI + sep + params.Encode()
}
