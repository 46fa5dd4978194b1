package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
)

type fakeGitHub struct {
	tokenCalls atomic.Int32
	tokenTTL   time.Duration
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /app/installations/42/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		if strings.Count(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "), ".") != 2 {
			t.Errorf("expected app jwt, got %q", r.Header.Get("Authorization"))
		}
		f.tokenCalls.Add(1)
		expires := time.Now().UTC().Add(f.tokenTTL).Format(time.RFC3339)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"ghs_installation","expires_at":%q}`, expires)
	})
	mux.HandleFunc("GET /app/installations/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":42,"account":{"login":"octo","type":"Organization","avatar_url":"https://avatars/octo"}}`)
	})
	mux.HandleFunc("GET /app/installations/7", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("GET /installation/repositories", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ghs_installation" {
			t.Errorf("expected installation token, got %q", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `{"total_count":2,"repositories":[
			{"id":1,"name":"api","full_name":"octo/api","language":"Go","default_branch":"main","private":true},
			{"id":2,"name":"web","full_name":"octo/web","language":"TypeScript","default_branch":"trunk"}]}`)
	})
	mux.HandleFunc("GET /repos/octo/api", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":1,"name":"api","full_name":"octo/api","html_url":"https://github.com/octo/api",
			"clone_url":"https://github.com/octo/api.git","ssh_url":"git@github.com:octo/api.git","language":"Go",
			"default_branch":"main","private":true,"fork":false}`)
	})
	mux.HandleFunc("GET /repos/octo/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("GET /repos/octo/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message":"upstream"}`)
	})
	return mux
}

func testPrivateKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func newTestClient(t *testing.T, fake *fakeGitHub) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	cfg := config.APIConfig{
		GitHubAPIURL:        srv.URL,
		GitHubAppID:         "12345",
		GitHubAppPrivateKey: testPrivateKey(t),
		GitHubTimeout:       5 * time.Second,
	}
	client, err := New(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestInstallationUsesAppJWT(t *testing.T) {
	client := newTestClient(t, &fakeGitHub{tokenTTL: time.Hour})

	inst, err := client.Installation(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.ID != 42 || inst.AccountLogin != "octo" || inst.AccountType != "Organization" {
		t.Fatalf("unexpected installation %+v", inst)
	}
	if inst.AvatarURL == nil || *inst.AvatarURL != "https://avatars/octo" {
		t.Fatalf("unexpected avatar %v", inst.AvatarURL)
	}

	if _, err := client.Installation(context.Background(), 7); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInstallationTokenIsCached(t *testing.T) {
	fake := &fakeGitHub{tokenTTL: time.Hour}
	client := newTestClient(t, fake)

	for i := 0; i < 3; i++ {
		token, err := client.InstallationToken(context.Background(), 42)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if token != "ghs_installation" {
			t.Fatalf("unexpected token %q", token)
		}
	}
	if got := fake.tokenCalls.Load(); got != 1 {
		t.Fatalf("expected one token exchange, got %d", got)
	}
}

func TestInstallationTokenNearExpiryIsNotCached(t *testing.T) {
	fake := &fakeGitHub{tokenTTL: 30 * time.Second}
	client := newTestClient(t, fake)

	for i := 0; i < 2; i++ {
		if _, err := client.InstallationToken(context.Background(), 42); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := fake.tokenCalls.Load(); got != 2 {
		t.Fatalf("expected two token exchanges, got %d", got)
	}
}

func TestListRepositories(t *testing.T) {
	client := newTestClient(t, &fakeGitHub{tokenTTL: time.Hour})

	repos, err := client.ListRepositories(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("expected 2 repositories, got %d", len(repos))
	}
	if repos[0].FullName != "octo/api" || !repos[0].Private || repos[1].DefaultBranch != "trunk" {
		t.Fatalf("unexpected repositories %+v", repos)
	}

	count, err := client.CountRepositories(context.Background(), 42)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
}

func TestGetRepository(t *testing.T) {
	client := newTestClient(t, &fakeGitHub{tokenTTL: time.Hour})
	ctx := context.Background()

	repo, err := client.GetRepository(ctx, 42, "octo/api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.GitHubID != 1 || repo.CloneURL != "https://github.com/octo/api.git" {
		t.Fatalf("unexpected repository %+v", repo)
	}
	if repo.Language == nil || *repo.Language != "Go" {
		t.Fatalf("unexpected language %v", repo.Language)
	}

	if _, err := client.GetRepository(ctx, 42, "octo/missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := client.GetRepository(ctx, 42, "octo/broken"); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if _, err := client.GetRepository(ctx, 42, "no-slash"); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestMissingAppCredentials(t *testing.T) {
	client, err := New(config.APIConfig{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Installation(context.Background(), 1); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestMemoryTokenCacheExpires(t *testing.T) {
	cache := NewMemoryTokenCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	_ = cache.Set(context.Background(), 1, "tok", time.Minute)
	if token, ok := cache.Get(context.Background(), 1); !ok || token != "tok" {
		t.Fatalf("expected cached token, got %q %v", token, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(context.Background(), 1); ok {
		t.Fatalf("expected token to expire")
	}
}
