// Package github talks to the GitHub REST API on behalf of the configured GitHub App.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v67/github"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/jwt"
)

// ErrUpstreamUnavailable reports that GitHub could not serve a request.
var ErrUpstreamUnavailable = errors.New("github unavailable")

const (
	tokenExpiryMargin = time.Minute
	reposPerPage      = 100
	maxRepoPages      = 10
)

// Installation is the subset of a GitHub App installation the service stores.
type Installation struct {
	ID           int64   `json:"id"`
	AccountLogin string  `json:"account_login"`
	AccountType  string  `json:"account_type"`
	AvatarURL    *string `json:"avatar_url"`
}

// Repo is repository metadata as reported by GitHub.
type Repo struct {
	GitHubID      int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   *string   `json:"description"`
	HTMLURL       string    `json:"html_url"`
	CloneURL      string    `json:"clone_url"`
	SSHURL        *string   `json:"ssh_url"`
	Language      *string   `json:"language"`
	DefaultBranch string    `json:"default_branch"`
	Private       bool      `json:"private"`
	Fork          bool      `json:"fork"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Client wraps go-github with App JWT and installation-token authentication.
type Client struct {
	baseURL    *url.URL
	transport  http.RoundTripper
	timeout    time.Duration
	appID      string
	privateKey string
	tokens     TokenCache
	logger     *slog.Logger

	now func() time.Time
}

// New builds a client for the App described by cfg. A nil cache defaults to an in-process cache.
func New(cfg config.APIConfig, tokens TokenCache, logger *slog.Logger) (*Client, error) {
	raw := cfg.GitHubAPIURL
	if raw == "" {
		raw = "https://api.github.com/"
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse github api url: %w", err)
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	return &Client{
		baseURL:    base,
		transport:  otelhttp.NewTransport(http.DefaultTransport),
		timeout:    cfg.GitHubTimeout,
		appID:      cfg.GitHubAppID,
		privateKey: cfg.GitHubAppPrivateKey,
		tokens:     tokens,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *Client) api(token string) *gogithub.Client {
	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   c.transport,
	}
	client := gogithub.NewClient(&http.Client{Transport: transport, Timeout: c.timeout})
	base := *c.baseURL
	client.BaseURL = &base
	return client
}

func (c *Client) appAPI() (*gogithub.Client, error) {
	if c.appID == "" || c.privateKey == "" {
		return nil, fmt.Errorf("%w: github app credentials are not configured", ErrUpstreamUnavailable)
	}
	token, err := jwt.AppToken(c.appID, c.privateKey, c.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return c.api(token), nil
}

// Installation fetches an installation using the App JWT.
func (c *Client) Installation(ctx context.Context, installationID int64) (*Installation, error) {
	app, err := c.appAPI()
	if err != nil {
		return nil, err
	}
	inst, _, err := app.Apps.GetInstallation(ctx, installationID)
	if err != nil {
		return nil, c.translate("get installation", err)
	}
	account := inst.GetAccount()
	return &Installation{
		ID:           inst.GetID(),
		AccountLogin: account.GetLogin(),
		AccountType:  account.GetType(),
		AvatarURL:    account.AvatarURL,
	}, nil
}

// InstallationToken returns an access token for the installation, reusing a cached
// token until shortly before it expires.
func (c *Client) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	if token, ok := c.tokens.Get(ctx, installationID); ok {
		return token, nil
	}
	app, err := c.appAPI()
	if err != nil {
		return "", err
	}
	issued, _, err := app.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", c.translate("create installation token", err)
	}
	token := issued.GetToken()
	if ttl := issued.GetExpiresAt().Sub(c.now()) - tokenExpiryMargin; ttl > 0 {
		if err := c.tokens.Set(ctx, installationID, token, ttl); err != nil {
			c.logger.Warn("failed to cache installation token", "installation_id", installationID, "error", err)
		}
	}
	return token, nil
}

// ListRepositories lists repositories the installation can access.
func (c *Client) ListRepositories(ctx context.Context, installationID int64) ([]Repo, error) {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	api := c.api(token)
	opts := &gogithub.ListOptions{PerPage: reposPerPage}
	repos := make([]Repo, 0)
	for page := 0; page < maxRepoPages; page++ {
		list, resp, err := api.Apps.ListRepos(ctx, opts)
		if err != nil {
			return nil, c.translate("list installation repositories", err)
		}
		for _, r := range list.Repositories {
			repos = append(repos, toRepo(r))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// CountRepositories returns the number of repositories visible to the installation.
func (c *Client) CountRepositories(ctx context.Context, installationID int64) (int, error) {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return 0, err
	}
	list, _, err := c.api(token).Apps.ListRepos(ctx, &gogithub.ListOptions{PerPage: 1})
	if err != nil {
		return 0, c.translate("count installation repositories", err)
	}
	return list.GetTotalCount(), nil
}

// GetRepository fetches owner/name through the installation.
func (c *Client) GetRepository(ctx context.Context, installationID int64, fullName string) (*Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: repository must be given as owner/name", repository.ErrInvalidArgument)
	}
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	r, _, err := c.api(token).Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, c.translate("get repository", err)
	}
	repo := toRepo(r)
	return &repo, nil
}

func (c *Client) translate(op string, err error) error {
	var apiErr *gogithub.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		switch apiErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s: not found or not accessible", repository.ErrNotFound, op)
		case http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s: %s", repository.ErrInvalidArgument, op, apiErr.Message)
		}
	}
	c.logger.Warn("github request failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, op, err)
}

func toRepo(r *gogithub.Repository) Repo {
	return Repo{
		GitHubID:      r.GetID(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.Description,
		HTMLURL:       r.GetHTMLURL(),
		CloneURL:      r.GetCloneURL(),
		SSHURL:        r.SSHURL,
		Language:      r.Language,
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		Fork:          r.GetFork(),
		UpdatedAt:     r.GetUpdatedAt().Time,
	}
}
