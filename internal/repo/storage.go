package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Storage keys. The first two survive restarts of a session, the rest are
// only held across an authorization redirect.
const (
	KeyAccessToken  = "access_token"
	KeyIDToken      = "id_token"
	KeyIDPID        = "idpId"
	KeyRedirectURI  = "redirectUri"
	KeyPKCEVerifier = "pkceVerifier"
	KeyOAuthState   = "oauthState"
)

// LegacyKeys were written by older releases and are removed on logout.
var LegacyKeys = []string{"given_name", "family_name", "username", "identifiers", "identifier"}

// Get returns the stored value or ErrNotFound.
func (r Repo) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM storage WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

// GetOptional returns "" for missing keys.
func (r Repo) GetOptional(ctx context.Context, key string) (string, error) {
	v, err := r.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (r Repo) Set(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO storage(key,value,updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Remove deletes keys; missing keys are ignored.
func (r Repo) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM storage WHERE key=?`, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AccessToken implements the API client's token source.
func (r Repo) AccessToken(ctx context.Context) (string, error) {
	return r.GetOptional(ctx, KeyAccessToken)
}

func (r Repo) IDToken(ctx context.Context) (string, error) {
	return r.GetOptional(ctx, KeyIDToken)
}
