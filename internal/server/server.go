package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/lecturehall/classroom-oauth/internal/flow"
	"github.com/lecturehall/classroom-oauth/internal/session"
	"github.com/lecturehall/classroom-oauth/internal/store"
)

// Server is the HTTP boundary of the OAuth subsystem: it parses typed
// bodies, queries and headers and hands them to the flow engine and
// stores.
type Server struct {
	registry *store.Registry
	secrets  *store.Secrets
	grants   *store.Grants
	engine   *flow.Engine
	sessions *session.Manager
	blobs    BlobStore
	log      *slog.Logger
}

type Args struct {
	Registry *store.Registry
	Secrets  *store.Secrets
	Grants   *store.Grants
	Engine   *flow.Engine
	Sessions *session.Manager
	Blobs    BlobStore
	Log      *slog.Logger
}

func New(args Args) *Server {
	log := args.Log
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		registry: args.Registry,
		secrets:  args.Secrets,
		grants:   args.Grants,
		engine:   args.Engine,
		sessions: args.Sessions,
		blobs:    args.Blobs,
		log:      log,
	}
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/oauth")

	// authorize leg needs the resource owner's first-party session
	g.GET("/authorize", s.handleAuthorizeView, s.sessions.Middleware)
	g.POST("/authorize", s.handleAuthorizeSubmit, s.sessions.Middleware)

	// token leg authenticates with client credentials in the body
	g.POST("/access-token", s.handleAccessToken)
	g.POST("/refresh-token", s.handleRefreshToken)

	// the bearer token is the credential here
	g.GET("/api/user-profile", s.handleUserProfile)
	g.POST("/api/user-profile", s.handleUserProfile)

	// owner-facing management console
	g.POST("/app/create", s.handleAppCreate, s.sessions.Middleware)
	g.POST("/app/update", s.handleAppUpdate, s.sessions.Middleware)
	g.POST("/app/delete", s.handleAppDelete, s.sessions.Middleware)
	g.GET("/app/list", s.handleAppList, s.sessions.Middleware)
	g.GET("/app/detail", s.handleAppDetail, s.sessions.Middleware)
	g.GET("/app/setting/detail", s.handleAppSettingDetail, s.sessions.Middleware)
	g.POST("/app/revoke", s.handleAppRevoke, s.sessions.Middleware)
	g.POST("/secret/create", s.handleSecretCreate, s.sessions.Middleware)
	g.POST("/secret/delete", s.handleSecretDelete, s.sessions.Middleware)
	g.POST("/logo/upload", s.handleLogoUpload, s.sessions.Middleware)
}
