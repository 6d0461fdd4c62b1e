// Package session owns the authenticated user of the process: stored
// tokens, the resolved identity and the teardown that follows a logout or
// an expired token.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"consentwallet/internal/cache"
	"consentwallet/internal/domain"
	"consentwallet/internal/events"
	"consentwallet/internal/repo"
)

// ErrNotAuthenticated is returned when no access token is stored.
var ErrNotAuthenticated = errors.New("not authenticated")

// IdentityFetcher resolves the identifiers of the token holder.
type IdentityFetcher interface {
	Identifiers(ctx context.Context) (domain.IdentifiersBundle, error)
}

type Session struct {
	Repo     repo.Repo
	Events   events.Writer
	Identity IdentityFetcher
	Cache    *cache.Cache
	Log      logrus.FieldLogger

	mu   sync.RWMutex
	user *domain.User
}

func New(r repo.Repo, ev events.Writer, identity IdentityFetcher, c *cache.Cache, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{Repo: r, Events: ev, Identity: identity, Cache: c, Log: log}
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
}

// Store saves the tokens of a completed login.
func (s *Session) Store(ctx context.Context, accessToken, idToken string) error {
	if accessToken == "" {
		return errors.New("access token required")
	}
	if err := s.Repo.Set(ctx, repo.KeyAccessToken, accessToken); err != nil {
		return err
	}
	if idToken != "" {
		return s.Repo.Set(ctx, repo.KeyIDToken, idToken)
	}
	return nil
}

// Init resolves the user from the stored tokens. It returns
// ErrNotAuthenticated when there is no access token.
func (s *Session) Init(ctx context.Context) (*domain.User, error) {
	token, err := s.Repo.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		s.setUser(nil)
		return nil, ErrNotAuthenticated
	}
	user := &domain.User{}
	if idToken, err := s.Repo.IDToken(ctx); err == nil && idToken != "" {
		claims, err := parseIDToken(idToken)
		if err != nil {
			s.Log.WithError(err).Warn("could not read id token claims")
		} else {
			user.Subject = claims.Subject
			user.GivenName = claims.GivenName
			user.FamilyName = claims.FamilyName
		}
	}

	bundle, err := s.identifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch identifiers: %w", err)
	}
	user.Identifiers = sortedIdentifiers(bundle.Identifiers)
	if given, family, ok := Username(bundle, ""); ok {
		user.GivenName, user.FamilyName = given, family
	}
	user.Username = FormatUsername(user.GivenName, user.FamilyName)
	s.setUser(user)
	return user, nil
}

func (s *Session) identifiers(ctx context.Context) (domain.IdentifiersBundle, error) {
	if s.Cache == nil {
		return s.Identity.Identifiers(ctx)
	}
	return cache.GetOrFetch(ctx, s.Cache, cache.NewKey(cache.OpIdentifiers), 0, s.Identity.Identifiers)
}

// User returns the resolved user, or nil before Init or after Teardown.
func (s *Session) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) setUser(u *domain.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// ActorID names the user in the journal.
func (s *Session) ActorID() string {
	u := s.User()
	if u == nil {
		return ""
	}
	if u.Subject != "" {
		return u.Subject
	}
	return u.Username
}

// Teardown removes the stored tokens and legacy keys, drops every cached
// query and forgets the user.
func (s *Session) Teardown(ctx context.Context, reason string) error {
	actor := s.ActorID()
	keys := append([]string{repo.KeyAccessToken, repo.KeyIDToken}, repo.LegacyKeys...)
	if err := s.Repo.Remove(ctx, keys...); err != nil {
		return fmt.Errorf("clear session storage: %w", err)
	}
	if s.Cache != nil {
		s.Cache.Purge()
	}
	s.setUser(nil)
	evt := events.TypeSessionEnded
	if reason == ReasonUnauthorized {
		evt = events.TypeAuthenticationNeeded
	}
	if err := s.Events.Record(ctx, evt, events.KindSession, "", actor, events.EventPayload{"reason": reason}); err != nil {
		s.Log.WithError(err).Warn("could not journal session end")
	}
	return nil
}

// Teardown reasons.
const (
	ReasonLogout       = "logout"
	ReasonUnauthorized = "unauthorized"
	ReasonContract     = "contract_violation"
	ReasonTosDeclined  = "tos_declined"
)

// HandleUnauthorized is installed as the API client's 401 hook.
func (s *Session) HandleUnauthorized(ctx context.Context) {
	s.Log.Warn("api returned 401, ending session")
	if err := s.Teardown(context.WithoutCancel(ctx), ReasonUnauthorized); err != nil {
		s.Log.WithError(err).Error("session teardown failed")
	}
}

func parseIDToken(raw string) (*idTokenClaims, error) {
	claims := &idTokenClaims{}
	// Signature is not verified.
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Username picks the name of the first id-provider info that has one,
// optionally limited to one identifier.
func Username(b domain.IdentifiersBundle, identifierUUID string) (given, family string, ok bool) {
	infos := make([]domain.IDProviderInfo, 0, len(b.IDProviderInfos))
	for _, info := range b.IDProviderInfos {
		infos = append(infos, info)
	}
	sortInfos(infos)
	for _, info := range infos {
		if identifierUUID != "" && info.IdentifierUUID != identifierUUID {
			continue
		}
		if info.FirstName != "" || info.LastName != "" {
			return info.FirstName, info.LastName, true
		}
	}
	return "", "", false
}

// FormatUsername joins the non-empty parts with a space.
func FormatUsername(given, family string) string {
	switch {
	case given != "" && family != "":
		return given + " " + family
	case given != "":
		return given
	}
	return family
}
