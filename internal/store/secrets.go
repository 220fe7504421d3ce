package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lecturehall/classroom-oauth/internal/helpers"
	"github.com/lecturehall/classroom-oauth/internal/models"
)

const secretMaskPrefix = "******"

// Secrets manages client-secret records. Secrets are opaque
// server-generated strings compared as exact pairs, never hashed.
type Secrets struct {
	db       *gorm.DB
	registry *Registry
}

func NewSecrets(db *gorm.DB, registry *Registry) *Secrets {
	return &Secrets{db: db, registry: registry}
}

// Create mints a fresh secret for an application. The caller must have
// resolved the clientID already. The raw secret is returned exactly
// once; it is never retrievable unmasked afterwards.
func (s *Secrets) Create(ctx context.Context, oauthUUID, clientID string) (*models.OAuthSecret, error) {
	raw, err := helpers.RandomString(helpers.SecretLength)
	if err != nil {
		return nil, fmt.Errorf("could not generate client secret: %w", err)
	}

	secret := &models.OAuthSecret{
		SecretUUID:   uuid.NewString(),
		OauthUUID:    oauthUUID,
		ClientID:     clientID,
		ClientSecret: raw,
	}

	if err := s.db.WithContext(ctx).Create(secret).Error; err != nil {
		return nil, fmt.Errorf("could not create oauth secret: %w", err)
	}

	return secret, nil
}

// MaskedSecret is the list view of a secret: only the trailing eight
// characters survive.
type MaskedSecret struct {
	SecretUUID   string
	ClientSecret string
	CreatedAt    int64
}

// Info lists an application's secrets newest-first, masked.
func (s *Secrets) Info(ctx context.Context, oauthUUID string) ([]MaskedSecret, error) {
	var rows []models.OAuthSecret
	err := s.db.WithContext(ctx).
		Where("oauth_uuid = ?", oauthUUID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not list oauth secrets: %w", err)
	}

	masked := make([]MaskedSecret, len(rows))
	for i, row := range rows {
		masked[i] = MaskedSecret{
			SecretUUID:   row.SecretUUID,
			ClientSecret: mask(row.ClientSecret),
			CreatedAt:    row.CreatedAt.Unix(),
		}
	}

	return masked, nil
}

func mask(secret string) string {
	if len(secret) <= 8 {
		return secretMaskPrefix + secret
	}
	return secretMaskPrefix + secret[len(secret)-8:]
}

func (s *Secrets) Delete(ctx context.Context, secretUUID string) error {
	if err := s.db.WithContext(ctx).
		Where("secret_uuid = ?", secretUUID).
		Delete(&models.OAuthSecret{}).Error; err != nil {
		return fmt.Errorf("could not delete oauth secret: %w", err)
	}
	return nil
}

func (s *Secrets) DeleteAll(ctx context.Context, oauthUUID string) error {
	if err := s.db.WithContext(ctx).
		Where("oauth_uuid = ?", oauthUUID).
		Delete(&models.OAuthSecret{}).Error; err != nil {
		return fmt.Errorf("could not delete oauth secrets: %w", err)
	}
	return nil
}

// AssertIsOwner resolves the owning application and delegates to the
// registry ownership check.
func (s *Secrets) AssertIsOwner(ctx context.Context, secretUUID, userUUID string) error {
	var secret models.OAuthSecret
	err := s.db.WithContext(ctx).
		Select("oauth_uuid").
		Where("secret_uuid = ?", secretUUID).
		First(&secret).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSecretNotFound
	}
	if err != nil {
		return fmt.Errorf("could not load oauth secret: %w", err)
	}

	return s.registry.AssertIsOwner(ctx, secret.OauthUUID, userUUID)
}

// AssertExist validates client credentials during token exchange. The
// lookup is an exact (clientID, clientSecret) pair match across the
// flat secret table, independent of ownership.
func (s *Secrets) AssertExist(ctx context.Context, clientID, clientSecret string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" || clientSecret == "" {
		return ErrParamsCheckFailed
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.OAuthSecret{}).
		Where("client_id = ? AND client_secret = ?", clientID, clientSecret).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("could not check client credentials: %w", err)
	}
	if count == 0 {
		return ErrParamsCheckFailed
	}

	return nil
}
