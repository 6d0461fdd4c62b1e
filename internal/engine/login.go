package engine

import (
	"context"
	"fmt"

	"consentwallet/internal/auth"
	"consentwallet/internal/cache"
	"consentwallet/internal/domain"
	"consentwallet/internal/events"
	"consentwallet/internal/paginate"
	"consentwallet/internal/repo"
	"consentwallet/internal/session"
)

// AuthItems returns the configured login options in configured order.
func (e Engine) AuthItems(ctx context.Context) ([]auth.Item, error) {
	bundle, err := cache.GetOrFetch(ctx, e.Cache, cache.NewKey(cache.OpAuthItems), e.staleTime(), func(ctx context.Context) (domain.AuthItemsBundle, error) {
		return paginate.All(ctx, e.Client.AuthItems, "")
	})
	if err != nil {
		return nil, err
	}
	return auth.Items(bundle, e.Config.Auth.ItemNames)
}

func (e Engine) findItem(ctx context.Context, match func(auth.Item) bool) (auth.Item, error) {
	items, err := e.AuthItems(ctx)
	if err != nil {
		return auth.Item{}, err
	}
	for _, it := range items {
		if match(it) {
			return it, nil
		}
	}
	return auth.Item{}, ErrUnknownAuthItem
}

// Login starts the authorization flow for an auth item, selected by uuid
// or name, and returns the provider URL to open.
func (e Engine) Login(ctx context.Context, itemRef, redirectPath string) (string, error) {
	item, err := e.findItem(ctx, func(it auth.Item) bool { return it.UUID == itemRef || it.Name == itemRef })
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, itemRef)
	}
	return e.Auth.Begin(ctx, item, redirectPath)
}

// Callback completes a login started with Login and returns the user and
// the path to continue at.
func (e Engine) Callback(ctx context.Context, code, state string) (*domain.User, string, error) {
	idp, err := e.Auth.PendingIDP(ctx)
	if err != nil {
		return nil, "", err
	}
	item, err := e.findItem(ctx, func(it auth.Item) bool { return it.IDPID == idp })
	if err != nil {
		return nil, "", fmt.Errorf("%w: idp %s", err, idp)
	}
	tokens, redirect, err := e.Auth.Complete(ctx, item, code, state)
	if err != nil {
		return nil, "", err
	}
	if err := e.Session.Store(ctx, tokens.AccessToken, tokens.IDToken); err != nil {
		return nil, "", err
	}
	e.Cache.Purge()
	user, err := e.Session.Init(ctx)
	if err != nil {
		return nil, "", err
	}
	e.journal(ctx, events.TypeSessionStarted, events.KindSession, "", events.EventPayload{"idp_id": idp})
	return user, redirect, nil
}

// Logout ends the session and returns the provider's end-session URL, or
// "/" when the provider has none.
func (e Engine) Logout(ctx context.Context) (string, error) {
	return e.logout(ctx, session.ReasonLogout)
}

func (e Engine) logout(ctx context.Context, reason string) (string, error) {
	idToken, err := e.Repo.IDToken(ctx)
	if err != nil {
		return "", err
	}
	idp, err := e.Repo.GetOptional(ctx, repo.KeyIDPID)
	if err != nil {
		return "", err
	}
	target := "/"
	if idp != "" {
		item, err := e.findItem(ctx, func(it auth.Item) bool { return it.IDPID == idp })
		if err != nil {
			e.Log.WithError(err).WithField("idp_id", idp).Warn("could not resolve end-session url")
		} else if u := e.Auth.EndSessionURL(item, idToken); u != "" {
			target = u
		}
	}
	if err := e.Session.Teardown(ctx, reason); err != nil {
		return "", err
	}
	return target, nil
}
