package domain

import "time"

// Repository is a GitHub repository imported by a user.
type Repository struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	InstallationID *string    `json:"installation_id"`
	GitHubID       int64      `json:"github_id"`
	Name           string     `json:"name"`
	FullName       string     `json:"full_name"`
	Description    *string    `json:"description"`
	HTMLURL        string     `json:"html_url"`
	CloneURL       string     `json:"clone_url"`
	SSHURL         *string    `json:"ssh_url"`
	Language       *string    `json:"language"`
	DefaultBranch  string     `json:"default_branch"`
	IsPrivate      bool       `json:"is_private"`
	IsFork         bool       `json:"is_fork"`
	IsConnected    bool       `json:"is_connected"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
