package domain

import "time"

// User represents an account provisioned from the identity provider.
type User struct {
	ID                     string     `json:"id"`
	ExternalID             string     `json:"clerk_user_id"`
	Email                  string     `json:"email"`
	FullName               *string    `json:"full_name"`
	FirstName              *string    `json:"first_name"`
	LastName               *string    `json:"last_name"`
	Username               *string    `json:"username"`
	ProfileImageURL        *string    `json:"profile_image_url"`
	GitHubUsername         *string    `json:"github_username"`
	GitHubID               *string    `json:"github_id"`
	GitHubAvatarURL        *string    `json:"github_avatar_url"`
	GCPProjectID           *string    `json:"gcp_project_id"`
	GCPServiceAccountKey   []byte     `json:"-"`
	GCPConnectedAt         *time.Time `json:"gcp_connected_at"`
	PreferredCloudProvider string     `json:"preferred_cloud_provider"`
	IsActive               bool       `json:"is_active"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// GCPConnected reports whether GCP credentials have been linked.
func (u User) GCPConnected() bool {
	return u.GCPProjectID != nil && len(u.GCPServiceAccountKey) > 0
}

// UserProfile carries identity-provider fields applied on create or update.
type UserProfile struct {
	ExternalID      string
	Email           string
	FirstName       *string
	LastName        *string
	Username        *string
	ProfileImageURL *string
	GitHubUsername  *string
	GitHubID        *string
	GitHubAvatarURL *string
}

// FullName joins the first and last name, or returns nil when both are empty.
func (p UserProfile) FullName() *string {
	var parts []string
	if p.FirstName != nil && *p.FirstName != "" {
		parts = append(parts, *p.FirstName)
	}
	if p.LastName != nil && *p.LastName != "" {
		parts = append(parts, *p.LastName)
	}
	if len(parts) == 0 {
		return nil
	}
	name := parts[0]
	if len(parts) == 2 {
		name += " " + parts[1]
	}
	return &name
}
