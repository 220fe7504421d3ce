package models

import "time"

// OAuthApplication is a registered third-party client. Scopes and
// CallbackURLs are stored space-joined; see the scope package for the
// typed form.
type OAuthApplication struct {
	ID           uint   `gorm:"primarykey"`
	OauthUUID    string `gorm:"uniqueIndex"`
	OwnerUUID    string `gorm:"index"`
	ClientID     string `gorm:"uniqueIndex"`
	AppName      string
	AppDesc      string
	HomepageURL  string
	LogoURL      string
	Scopes       string
	CallbackURLs string
	IsDeleted    bool `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OAuthSecret is one live client secret. Multiple rows may coexist per
// application so secrets can rotate without downtime. ClientID is a
// denormalized copy used for credential lookup during token exchange.
type OAuthSecret struct {
	ID           uint   `gorm:"primarykey"`
	SecretUUID   string `gorm:"uniqueIndex"`
	OauthUUID    string `gorm:"index"`
	ClientID     string `gorm:"index"`
	ClientSecret string
	CreatedAt    time.Time
}

// OAuthUserGrant records that a user approved an application for a
// scope set. Unique on (oauthUUID, userUUID); scopes are replaced, not
// merged, on re-consent.
type OAuthUserGrant struct {
	ID        uint   `gorm:"primarykey"`
	OauthUUID string `gorm:"index:idx_grant_app_user,unique"`
	UserUUID  string `gorm:"index:idx_grant_app_user,unique"`
	Scopes    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User holds the profile fields the resource endpoint can serve.
type User struct {
	ID        uint   `gorm:"primarykey"`
	UserUUID  string `gorm:"uniqueIndex"`
	UserName  string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}
