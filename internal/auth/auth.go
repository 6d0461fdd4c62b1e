// Package auth runs the OpenID Connect authorization code flow with PKCE
// against the identity providers offered by the API's auth items.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"consentwallet/internal/config"
	"consentwallet/internal/domain"
	"consentwallet/internal/records"
	"consentwallet/internal/repo"
)

// URL metadata subtypes read from auth items and identity providers.
const (
	URLAuthorization = "authorization_endpoint"
	URLToken         = "token_endpoint"
	URLEndSession    = "end_session_endpoint"
	URLIcon          = "icon_medium"
)

// DefaultRedirectPath is where a completed login lands without a stored path.
const DefaultRedirectPath = "/consents"

var (
	ErrAuthItems     = errors.New("error fetching auth_items")
	ErrNoClientID    = errors.New("no client id configured for identity provider")
	ErrStateMismatch = errors.New("oauth state mismatch")
	ErrNoPendingAuth = errors.New("no login in progress")
)

// Item is a login option with its resolved provider endpoints.
type Item struct {
	UUID             string `json:"uuid"`
	Name             string `json:"name"`
	Label            string `json:"label"`
	Description      string `json:"description,omitempty"`
	IDPID            string `json:"idp_id"`
	Icon             string `json:"icon,omitempty"`
	AuthParams       string `json:"-"`
	AuthorizationURL string `json:"-"`
	TokenURL         string `json:"-"`
	EndSessionURL    string `json:"-"`
}

// Items picks the configured auth items from b in configured order. Every
// configured name must be present.
func Items(b domain.AuthItemsBundle, names []string) ([]Item, error) {
	order := make(map[string]int, len(names))
	for i, n := range names {
		order[n] = i
	}
	var out []Item
	for _, ai := range b.AuthItems {
		if _, ok := order[ai.Name]; !ok {
			continue
		}
		idp, ok := b.IDProviders[ai.IDProviderUUID]
		if !ok {
			return nil, fmt.Errorf("%w: id provider of %s missing", ErrAuthItems, ai.Name)
		}
		out = append(out, Item{
			UUID:             ai.UUID,
			Name:             ai.Name,
			Label:            firstNonEmpty(idp.Name, ai.Name),
			Description:      firstNonEmpty(ai.Description, idp.Description),
			IDPID:            idp.ID,
			Icon:             lookupURL(ai, idp, URLIcon, b.Metadatas),
			AuthParams:       ai.AuthParams,
			AuthorizationURL: lookupURL(ai, idp, URLAuthorization, b.Metadatas),
			TokenURL:         lookupURL(ai, idp, URLToken, b.Metadatas),
			EndSessionURL:    lookupURL(ai, idp, URLEndSession, b.Metadatas),
		})
	}
	if len(out) != len(names) {
		return nil, fmt.Errorf("%w: found %d of %d configured", ErrAuthItems, len(out), len(names))
	}
	sort.SliceStable(out, func(i, j int) bool { return order[out[i].Name] < order[out[j].Name] })
	return out, nil
}

func lookupURL(ai domain.AuthItem, idp domain.IDProvider, urlType string, metadatas map[string]domain.Metadata) string {
	if u := records.URL(ai, urlType, metadatas); u != "" {
		return u
	}
	return records.URL(idp, urlType, metadatas)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Tokens are the results of a completed code exchange.
type Tokens struct {
	AccessToken string
	IDToken     string
}

// Flow keeps the transient state of a login in storage so that it
// survives the round trip through the provider.
type Flow struct {
	Repo       repo.Repo
	Config     *config.Config
	HTTPClient *http.Client
}

func (f Flow) oauthConfig(item Item, clientID string) *oauth2.Config {
	scopes := strings.Fields(f.Config.Auth.Scope)
	if len(scopes) == 0 {
		scopes = strings.Fields(config.DefaultScope)
	}
	return &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: f.Config.Auth.RedirectURL,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   item.AuthorizationURL,
			TokenURL:  item.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Begin stores the flow state and returns the provider's authorization
// URL. redirectPath is the in-app path to return to; "/" means the
// default landing page.
func (f Flow) Begin(ctx context.Context, item Item, redirectPath string) (string, error) {
	clientID, ok := f.Config.ClientID(item.IDPID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoClientID, item.IDPID)
	}
	if item.AuthorizationURL == "" {
		return "", fmt.Errorf("auth item %s has no authorization endpoint", item.Name)
	}
	if err := f.Repo.Set(ctx, repo.KeyIDPID, item.IDPID); err != nil {
		return "", err
	}
	if redirectPath != "" {
		if redirectPath == "/" {
			redirectPath = DefaultRedirectPath
		}
		if err := f.Repo.Set(ctx, repo.KeyRedirectURI, redirectPath); err != nil {
			return "", err
		}
	}
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	if err := f.Repo.Set(ctx, repo.KeyPKCEVerifier, verifier); err != nil {
		return "", err
	}
	if err := f.Repo.Set(ctx, repo.KeyOAuthState, state); err != nil {
		return "", err
	}
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	opts = append(opts, authParams(item.AuthParams)...)
	return f.oauthConfig(item, clientID).AuthCodeURL(state, opts...), nil
}

// authParams turns an auth item's extra query string into options.
func authParams(raw string) []oauth2.AuthCodeOption {
	vals, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil || raw == "" {
		return nil
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var opts []oauth2.AuthCodeOption
	for _, k := range keys {
		opts = append(opts, oauth2.SetAuthURLParam(k, vals.Get(k)))
	}
	return opts
}

// PendingIDP returns the provider id stored by Begin.
func (f Flow) PendingIDP(ctx context.Context) (string, error) {
	id, err := f.Repo.GetOptional(ctx, repo.KeyIDPID)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrNoPendingAuth
	}
	return id, nil
}

// Complete exchanges the code and returns the tokens plus the path to
// continue at. The stored redirect path is consumed.
func (f Flow) Complete(ctx context.Context, item Item, code, state string) (Tokens, string, error) {
	wantState, err := f.Repo.GetOptional(ctx, repo.KeyOAuthState)
	if err != nil {
		return Tokens{}, "", err
	}
	if wantState == "" {
		return Tokens{}, "", ErrNoPendingAuth
	}
	if state != wantState {
		return Tokens{}, "", ErrStateMismatch
	}
	clientID, ok := f.Config.ClientID(item.IDPID)
	if !ok {
		return Tokens{}, "", fmt.Errorf("%w: %s", ErrNoClientID, item.IDPID)
	}
	verifier, err := f.Repo.GetOptional(ctx, repo.KeyPKCEVerifier)
	if err != nil {
		return Tokens{}, "", err
	}
	if f.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
	}
	tok, err := f.oauthConfig(item, clientID).Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Tokens{}, "", fmt.Errorf("authorization callback: %w", err)
	}
	idToken, _ := tok.Extra("id_token").(string)

	redirect, err := f.Repo.GetOptional(ctx, repo.KeyRedirectURI)
	if err != nil {
		return Tokens{}, "", err
	}
	if redirect == "" {
		redirect = DefaultRedirectPath
	}
	if err := f.Repo.Remove(ctx, repo.KeyRedirectURI, repo.KeyPKCEVerifier, repo.KeyOAuthState); err != nil {
		return Tokens{}, "", err
	}
	return Tokens{AccessToken: tok.AccessToken, IDToken: idToken}, redirect, nil
}

// EndSessionURL is the provider logout URL, or "" when the provider has
// none.
func (f Flow) EndSessionURL(item Item, idToken string) string {
	if item.EndSessionURL == "" {
		return ""
	}
	u, err := url.Parse(item.EndSessionURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	if f.Config.Auth.PostLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", f.Config.Auth.PostLogoutRedirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
