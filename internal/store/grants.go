package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lecturehall/classroom-oauth/internal/models"
	"github.com/lecturehall/classroom-oauth/internal/scope"
)

// Grants is the ledger of which users approved which applications.
type Grants struct {
	db *gorm.DB
}

func NewGrants(db *gorm.DB) *Grants {
	return &Grants{db: db}
}

// Grant records a user's approval. Re-consent with an equal scope set
// is a no-op; a different scope set replaces the stored scopes rather
// than merging them. Either way exactly one row exists per
// (oauthUUID, userUUID).
func (g *Grants) Grant(ctx context.Context, oauthUUID, userUUID string, scopes scope.Set) error {
	var existing models.OAuthUserGrant
	err := g.db.WithContext(ctx).
		Where("oauth_uuid = ? AND user_uuid = ?", oauthUUID, userUUID).
		First(&existing).Error

	if err == nil {
		if scope.Parse(existing.Scopes).Equal(scopes) {
			return nil
		}
		if err := g.db.WithContext(ctx).
			Model(&models.OAuthUserGrant{}).
			Where("id = ?", existing.ID).
			Update("scopes", scopes.Join()).Error; err != nil {
			return fmt.Errorf("could not update user grant: %w", err)
		}
		return nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("could not load user grant: %w", err)
	}

	grant := &models.OAuthUserGrant{
		OauthUUID: oauthUUID,
		UserUUID:  userUUID,
		Scopes:    scopes.Join(),
	}
	if err := g.db.WithContext(ctx).Create(grant).Error; err != nil {
		return fmt.Errorf("could not create user grant: %w", err)
	}

	return nil
}

func (g *Grants) Revoke(ctx context.Context, oauthUUID, userUUID string) error {
	if err := g.db.WithContext(ctx).
		Where("oauth_uuid = ? AND user_uuid = ?", oauthUUID, userUUID).
		Delete(&models.OAuthUserGrant{}).Error; err != nil {
		return fmt.Errorf("could not revoke user grant: %w", err)
	}
	return nil
}

func (g *Grants) HasGrant(ctx context.Context, oauthUUID, userUUID string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&models.OAuthUserGrant{}).
		Where("oauth_uuid = ? AND user_uuid = ?", oauthUUID, userUUID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("could not check user grant: %w", err)
	}
	return count > 0, nil
}

// GetScopes returns the granted scope set, or (nil, false, nil) when
// the user has no grant for the application.
func (g *Grants) GetScopes(ctx context.Context, oauthUUID, userUUID string) (scope.Set, bool, error) {
	var grant models.OAuthUserGrant
	err := g.db.WithContext(ctx).
		Where("oauth_uuid = ? AND user_uuid = ?", oauthUUID, userUUID).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("could not load user grant: %w", err)
	}

	return scope.Parse(grant.Scopes), true, nil
}

func (g *Grants) CountByOAuthUUID(ctx context.Context, oauthUUID string) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&models.OAuthUserGrant{}).
		Where("oauth_uuid = ?", oauthUUID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("could not count grants: %w", err)
	}
	return count, nil
}

func (g *Grants) CountByUserUUID(ctx context.Context, userUUID string) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&models.OAuthUserGrant{}).
		Where("user_uuid = ?", userUUID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("could not count grants: %w", err)
	}
	return count, nil
}

func (g *Grants) DeleteByOAuthUUID(ctx context.Context, oauthUUID string) error {
	if err := g.db.WithContext(ctx).
		Where("oauth_uuid = ?", oauthUUID).
		Delete(&models.OAuthUserGrant{}).Error; err != nil {
		return fmt.Errorf("could not delete grants: %w", err)
	}
	return nil
}
