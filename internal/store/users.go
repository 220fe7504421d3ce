package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lecturehall/classroom-oauth/internal/models"
)

// Users reads the profile rows served by the resource endpoint.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (u *Users) FindByUUID(ctx context.Context, userUUID string) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).
		Where("user_uuid = ?", userUUID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not load user: %w", err)
	}

	return &user, nil
}
