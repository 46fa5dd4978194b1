package domain

import "time"

// Installation links a GitHub App installation to exactly one user.
type Installation struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	InstallationID   int64     `json:"installation_id"`
	AccountName      string    `json:"account_name"`
	AccountType      string    `json:"account_type"`
	AccountAvatarURL *string   `json:"account_avatar_url"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
