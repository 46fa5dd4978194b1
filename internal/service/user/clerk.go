package user

import (
	"strings"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
)

// Identity-provider event types handled by HandleClerkEvent.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

const githubProvider = "oauth_github"

// ClerkEvent is the envelope of an identity-provider webhook.
type ClerkEvent struct {
	Type string    `json:"type"`
	Data ClerkUser `json:"data"`
}

// ClerkUser is the user object carried by identity-provider webhooks.
type ClerkUser struct {
	ID                    string                 `json:"id"`
	PrimaryEmailAddressID string                 `json:"primary_email_address_id"`
	EmailAddresses        []ClerkEmailAddress    `json:"email_addresses"`
	FirstName             *string                `json:"first_name"`
	LastName              *string                `json:"last_name"`
	Username              *string                `json:"username"`
	ProfileImageURL       *string                `json:"profile_image_url"`
	ImageURL              *string                `json:"image_url"`
	ExternalAccounts      []ClerkExternalAccount `json:"external_accounts"`
}

// ClerkEmailAddress is one address attached to a user.
type ClerkEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// ClerkExternalAccount is a linked social login.
type ClerkExternalAccount struct {
	Provider       string  `json:"provider"`
	Username       *string `json:"username"`
	ProviderUserID *string `json:"provider_user_id"`
	AvatarURL      *string `json:"avatar_url"`
}

// PrimaryEmail returns the primary address, falling back to the first one listed.
func (u ClerkUser) PrimaryEmail() string {
	for _, addr := range u.EmailAddresses {
		if addr.ID == u.PrimaryEmailAddressID && strings.TrimSpace(addr.EmailAddress) != "" {
			return strings.TrimSpace(addr.EmailAddress)
		}
	}
	for _, addr := range u.EmailAddresses {
		if email := strings.TrimSpace(addr.EmailAddress); email != "" {
			return email
		}
	}
	return ""
}

// Profile converts the payload into profile fields. ok is false when the
// payload lacks an id or an email.
func (u ClerkUser) Profile() (domain.UserProfile, bool) {
	email := u.PrimaryEmail()
	if strings.TrimSpace(u.ID) == "" || email == "" {
		return domain.UserProfile{}, false
	}
	profile := domain.UserProfile{
		ExternalID:      u.ID,
		Email:           email,
		FirstName:       nonEmpty(u.FirstName),
		LastName:        nonEmpty(u.LastName),
		Username:        nonEmpty(u.Username),
		ProfileImageURL: nonEmpty(u.ProfileImageURL),
	}
	if profile.ProfileImageURL == nil {
		profile.ProfileImageURL = nonEmpty(u.ImageURL)
	}
	for _, account := range u.ExternalAccounts {
		if account.Provider != githubProvider {
			continue
		}
		profile.GitHubUsername = nonEmpty(account.Username)
		profile.GitHubID = nonEmpty(account.ProviderUserID)
		profile.GitHubAvatarURL = nonEmpty(account.AvatarURL)
		break
	}
	return profile, true
}

func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
