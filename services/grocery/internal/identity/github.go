package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	githubAccept    = "application/vnd.github+json"
	githubUserAgent = "groceryapp-identity"
)

// ProviderUser is the subset of the provider's user document we rely on.
type ProviderUser struct {
	ID        int64   `json:"id"`
	Email     *string `json:"email"`
	Name      *string `json:"name"`
	Login     string  `json:"login"`
	AvatarURL string  `json:"avatar_url"`
}

// ProviderEmail is one entry of the provider's email listing.
type ProviderEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Provider fetches the caller's profile for a bearer credential.
type Provider interface {
	User(ctx context.Context, token string) (ProviderUser, error)
	Emails(ctx context.Context, token string) ([]ProviderEmail, error)
}

// GitHubClient calls the GitHub REST API on behalf of the caller. The
// credential is attached by an oauth2 static token source.
type GitHubClient struct {
	baseURL string
	timeout time.Duration
	base    *http.Client
}

// NewGitHubClient constructs a client against baseURL (https://api.github.com
// in production).
func NewGitHubClient(baseURL string, timeout time.Duration) *GitHubClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GitHubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		base:    &http.Client{Timeout: timeout},
	}
}

// User returns the authenticated user's profile.
func (c *GitHubClient) User(ctx context.Context, token string) (ProviderUser, error) {
	var user ProviderUser
	if err := c.getJSON(ctx, token, "/user", &user); err != nil {
		return ProviderUser{}, err
	}
	return user, nil
}

// Emails returns the authenticated user's email addresses.
func (c *GitHubClient) Emails(ctx context.Context, token string) ([]ProviderEmail, error) {
	var emails []ProviderEmail
	if err := c.getJSON(ctx, token, "/user/emails", &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identity provider %s returned status %d", e.Path, e.Status)
}

// Unwrap classifies client errors as a rejected credential and everything else
// as an unavailable provider.
func (e *StatusError) Unwrap() error {
	if e.Status >= 400 && e.Status < 500 {
		return ErrUnauthenticated
	}
	return ErrProviderUnavailable
}

func (c *GitHubClient) getJSON(ctx context.Context, token, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, c.base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", githubAccept)
	req.Header.Set("User-Agent", githubUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Status: resp.StatusCode, Path: path}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProviderUnavailable, path, err)
	}
	return nil
}
