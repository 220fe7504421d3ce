package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lecturehall/classroom-oauth/internal/config"
	"github.com/lecturehall/classroom-oauth/internal/ephemeral"
	"github.com/lecturehall/classroom-oauth/internal/flow"
	"github.com/lecturehall/classroom-oauth/internal/models"
	"github.com/lecturehall/classroom-oauth/internal/server"
	"github.com/lecturehall/classroom-oauth/internal/session"
	"github.com/lecturehall/classroom-oauth/internal/store"
)

func main() {
	app := &cli.App{
		Name:    "classroom-oauth",
		Usage:   "oauth authorization server for the classroom platform",
		Version: versioninfo.Short(),
		Action:  run,
	}

	app.RunAndExitOnError()
}

func run(cmd *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.OAuthApplication{},
		&models.OAuthSecret{},
		&models.OAuthUserGrant{},
		&models.User{},
	); err != nil {
		return fmt.Errorf("could not migrate database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(cmd.Context, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("could not connect to redis: %w", err)
	}

	log := slog.Default()

	eph := ephemeral.New(rdb)
	registry := store.NewRegistry(db, eph, cfg.DefaultLogoURL, log)
	secrets := store.NewSecrets(db, registry)
	grants := store.NewGrants(db)
	users := store.NewUsers(db)

	engine := flow.NewEngine(flow.EngineArgs{
		Registry:         registry,
		Secrets:          secrets,
		Grants:           grants,
		Users:            users,
		Ephemeral:        eph,
		Log:              log,
		DefaultAvatarURL: cfg.DefaultAvatarURL,
	})

	sessions := session.NewManager([]byte(cfg.SessionSecret), cfg.SessionCookieName, cfg.LoginURL)
	blobs := server.NewFSBlobStore(cfg.LogoDir, cfg.LogoBaseURL)

	srv := server.New(server.Args{
		Registry: registry,
		Secrets:  secrets,
		Grants:   grants,
		Engine:   engine,
		Sessions: sessions,
		Blobs:    blobs,
		Log:      log,
	})

	e := echo.New()
	e.Use(slogecho.New(log))
	srv.RegisterRoutes(e)

	httpd := http.Server{
		Addr:    cfg.ListenAddr,
		Handler: e,
	}

	log.Info("starting oauth server", "addr", cfg.ListenAddr)

	if err := httpd.ListenAndServe(); err != nil {
		return err
	}

	return nil
}
