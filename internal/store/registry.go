package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lecturehall/classroom-oauth/internal/helpers"
	"github.com/lecturehall/classroom-oauth/internal/models"
	"github.com/lecturehall/classroom-oauth/internal/scope"
)

// TokenRevoker invalidates every live token pair issued under a client
// id. The registry calls it before deleting an application so the
// ephemeral sweep is never skipped by a failed row delete.
type TokenRevoker interface {
	RevokeAllPairs(ctx context.Context, clientID string) error
}

// Registry manages the durable records of registered OAuth applications.
type Registry struct {
	db             *gorm.DB
	revoker        TokenRevoker
	defaultLogoURL string
	log            *slog.Logger
}

func NewRegistry(db *gorm.DB, revoker TokenRevoker, defaultLogoURL string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{db: db, revoker: revoker, defaultLogoURL: defaultLogoURL, log: log}
}

// Create registers a new application and returns its oauthUUID. The
// clientID is minted here; scopes are deduplicated by the Set type.
func (r *Registry) Create(ctx context.Context, ownerUUID, appName, appDesc, homepageURL string, callbackURLs []string, scopes scope.Set) (string, error) {
	clientID, err := helpers.RandomString(helpers.ClientIDLength)
	if err != nil {
		return "", fmt.Errorf("could not generate client id: %w", err)
	}

	app := &models.OAuthApplication{
		OauthUUID:    uuid.NewString(),
		OwnerUUID:    ownerUUID,
		ClientID:     clientID,
		AppName:      appName,
		AppDesc:      appDesc,
		HomepageURL:  homepageURL,
		LogoURL:      r.defaultLogoURL,
		Scopes:       scopes.Join(),
		CallbackURLs: strings.Join(callbackURLs, " "),
	}

	if err := r.db.WithContext(ctx).Create(app).Error; err != nil {
		return "", fmt.Errorf("could not create oauth application: %w", err)
	}

	return app.OauthUUID, nil
}

// UpdateFields carries a partial update; nil fields are left untouched.
type UpdateFields struct {
	AppName      *string
	AppDesc      *string
	HomepageURL  *string
	LogoURL      *string
	CallbackURLs []string
	Scopes       scope.Set
}

// Update writes only the provided columns. A fully-empty input is a
// no-op and performs no database write.
func (r *Registry) Update(ctx context.Context, oauthUUID string, fields UpdateFields) error {
	updates := map[string]any{}

	if fields.AppName != nil {
		updates["app_name"] = *fields.AppName
	}
	if fields.AppDesc != nil {
		updates["app_desc"] = *fields.AppDesc
	}
	if fields.HomepageURL != nil {
		updates["homepage_url"] = *fields.HomepageURL
	}
	if fields.LogoURL != nil {
		updates["logo_url"] = *fields.LogoURL
	}
	if fields.CallbackURLs != nil {
		updates["callback_urls"] = strings.Join(fields.CallbackURLs, " ")
	}
	if fields.Scopes != nil {
		updates["scopes"] = fields.Scopes.Join()
	}

	if len(updates) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).
		Model(&models.OAuthApplication{}).
		Where("oauth_uuid = ? AND is_deleted = ?", oauthUUID, false).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("could not update oauth application: %w", err)
	}

	return nil
}

// Info returns the owner's full admin view of an application.
func (r *Registry) Info(ctx context.Context, oauthUUID string) (*models.OAuthApplication, error) {
	var app models.OAuthApplication
	err := r.db.WithContext(ctx).
		Where("oauth_uuid = ? AND is_deleted = ?", oauthUUID, false).
		First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load oauth application: %w", err)
	}

	return &app, nil
}

// DetailView is the consent-facing view of an application joined with
// the requesting user's own grant.
type DetailView struct {
	OauthUUID     string
	AppName       string
	AppDesc       string
	HomepageURL   string
	LogoURL       string
	OwnerUUID     string
	GrantedScopes scope.Set
}

// Detail returns the public view of an application for a user who has a
// live grant. Users without a grant get ErrApplicationNotFound so
// application metadata never leaks to non-grantees.
func (r *Registry) Detail(ctx context.Context, oauthUUID, userUUID string) (*DetailView, error) {
	app, err := r.Info(ctx, oauthUUID)
	if err != nil {
		return nil, err
	}

	var grant models.OAuthUserGrant
	err = r.db.WithContext(ctx).
		Where("oauth_uuid = ? AND user_uuid = ?", oauthUUID, userUUID).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load user grant: %w", err)
	}

	return &DetailView{
		OauthUUID:     app.OauthUUID,
		AppName:       app.AppName,
		AppDesc:       app.AppDesc,
		HomepageURL:   app.HomepageURL,
		LogoURL:       app.LogoURL,
		OwnerUUID:     app.OwnerUUID,
		GrantedScopes: scope.Parse(grant.Scopes),
	}, nil
}

// AssertIsOwner fails with ErrApplicationNotFound, not a permission
// error, when the application does not exist or belongs to someone else.
func (r *Registry) AssertIsOwner(ctx context.Context, oauthUUID, userUUID string) error {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OAuthApplication{}).
		Where("oauth_uuid = ? AND owner_uuid = ? AND is_deleted = ?", oauthUUID, userUUID, false).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("could not check application ownership: %w", err)
	}
	if count == 0 {
		return ErrApplicationNotFound
	}

	return nil
}

func (r *Registry) FindClientID(ctx context.Context, oauthUUID string) (string, error) {
	var app models.OAuthApplication
	err := r.db.WithContext(ctx).
		Select("client_id").
		Where("oauth_uuid = ? AND is_deleted = ?", oauthUUID, false).
		First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrClientIDNotFound
	}
	if err != nil {
		return "", fmt.Errorf("could not find client id: %w", err)
	}

	return app.ClientID, nil
}

func (r *Registry) FindByClientID(ctx context.Context, clientID string) (*models.OAuthApplication, error) {
	var app models.OAuthApplication
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND is_deleted = ?", clientID, false).
		First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load application by client id: %w", err)
	}

	return &app, nil
}

// List returns the applications registered by an owner, newest first.
func (r *Registry) List(ctx context.Context, ownerUUID string) ([]models.OAuthApplication, error) {
	var apps []models.OAuthApplication
	err := r.db.WithContext(ctx).
		Where("owner_uuid = ? AND is_deleted = ?", ownerUUID, false).
		Order("created_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("could not list applications: %w", err)
	}

	return apps, nil
}

// Delete soft-deletes the application and removes its secrets and
// grants. Live token pairs are revoked first: the ephemeral sweep does
// not participate in the row transaction, so it must run before the
// rows disappear.
func (r *Registry) Delete(ctx context.Context, oauthUUID string) error {
	clientID, err := r.FindClientID(ctx, oauthUUID)
	if err != nil {
		return err
	}

	if err := r.revoker.RevokeAllPairs(ctx, clientID); err != nil {
		return fmt.Errorf("could not revoke live tokens: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Model(&models.OAuthApplication{}).
		Where("oauth_uuid = ?", oauthUUID).
		Update("is_deleted", true).Error; err != nil {
		return fmt.Errorf("could not delete oauth application: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("oauth_uuid = ?", oauthUUID).
		Delete(&models.OAuthSecret{}).Error; err != nil {
		return fmt.Errorf("could not delete application secrets: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("oauth_uuid = ?", oauthUUID).
		Delete(&models.OAuthUserGrant{}).Error; err != nil {
		return fmt.Errorf("could not delete application grants: %w", err)
	}

	return nil
}
