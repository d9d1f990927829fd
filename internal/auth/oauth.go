package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/xid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const gitHubAPI = "https://api.github.com"

// GitHubUser is the part of GitHub's /user response used to link accounts.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// GitHubProvider runs the OAuth2 authorization code flow against GitHub:
//
//  1. /auth/github/login redirects the browser to GitHub with our client id
//     and a random state.
//  2. The user approves; GitHub redirects back to the callback with a
//     short-lived code and the same state.
//  3. Exchange trades the code for an access token server to server, using
//     the client secret, and reads the profile with it.
//
// The access token never reaches the browser and is dropped after Exchange;
// the session is our own JWT cookie.
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

// GitHubOption customizes a GitHubProvider.
type GitHubOption func(*GitHubProvider)

// WithGitHubEndpoints points the provider at another OAuth endpoint and API
// base URL, e.g. GitHub Enterprise or a test server.
func WithGitHubEndpoints(endpoint oauth2.Endpoint, apiBase string) GitHubOption {
	return func(p *GitHubProvider) {
		p.config.Endpoint = endpoint
		p.apiBase = strings.TrimSuffix(apiBase, "/")
	}
}

// NewGitHubProvider requests the read:user and user:email scopes.
// callbackURL must match the one registered with the OAuth app.
func NewGitHubProvider(clientID, clientSecret, callbackURL string, opts ...GitHubOption) *GitHubProvider {
	p := &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: gitHubAPI,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewState returns a random value for the CSRF state cookie.
//
// STATE PARAMETER:
// The same value goes into a cookie and into the authorize URL. GitHub echoes
// it back on the callback, and the handler only accepts the callback when
// both match. A link crafted by someone else carries their state, not the
// one in this browser's cookie, so they cannot make this browser finish a
// sign-in into their account.
func NewState() string {
	return xid.New().String()
}

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the GitHub profile of the user
// who approved it. When the profile hides the email, the primary verified
// address from /user/emails is used.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	client := p.config.Client(ctx, token)

	var ghUser GitHubUser
	if err := p.getJSON(client, "/user", &ghUser); err != nil {
		return nil, err
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	if ghUser.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := p.getJSON(client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				ghUser.Email = e.Email
				break
			}
		}
	}
	if ghUser.Email == "" {
		return nil, fmt.Errorf("auth: GitHub account %s has no verified primary email", ghUser.Login)
	}

	return &ghUser, nil
}

func (p *GitHubProvider) getJSON(client *http.Client, path string, dst any) error {
	resp, err := client.Get(p.apiBase + path)
	if err != nil {
		return fmt.Errorf("auth: calling GitHub %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: GitHub %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("auth: decoding GitHub %s response: %w", path, err)
	}
	return nil
}
