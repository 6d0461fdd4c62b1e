package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"consentwallet/internal/cache"
	"consentwallet/internal/config"
	"consentwallet/internal/domain"
	"consentwallet/internal/events"
	"consentwallet/internal/session"
	mdssdk "consentwallet/sdk/go"
)

var tosTerms = mdssdk.SearchTerms{
	RecordType: []domain.RecordType{domain.RecordTypeServiceTOS},
	Status:     []domain.RecordStatus{domain.RecordPending, domain.RecordDeclined},
}

// PendingTos returns the service terms the user has not accepted yet.
func (e Engine) PendingTos(ctx context.Context) ([]domain.RecordData, error) {
	return e.searchRecords(ctx, termsKey(cache.OpTos, tosTerms), tosTerms, config.DefaultStaleTime)
}

// AcceptTos accepts every pending service terms record in parallel, each in
// its consumer's default language. It returns how many were accepted.
func (e Engine) AcceptTos(ctx context.Context) (int, error) {
	pending, err := e.PendingTos(ctx)
	if err != nil {
		return 0, err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range pending {
		g.Go(func() error {
			_, err := e.Client.UpdateParticipant(gctx, mdssdk.ParticipantUpdate{
				UUID:      d.UserParticipant.UUID,
				NewStatus: domain.ParticipantActive,
				Language:  d.Consumer.DefaultLanguage,
			})
			if err != nil {
				return fmt.Errorf("accept terms %s: %w", d.Record.UUID, err)
			}
			e.journal(ctx, events.TypeTosAccepted, events.KindRecord, d.Record.UUID, events.EventPayload{
				"participant_uuid": d.UserParticipant.UUID,
				"language":         d.Consumer.DefaultLanguage,
			})
			return nil
		})
	}
	err = g.Wait()
	e.Cache.InvalidateOp(cache.OpTos)
	e.Cache.InvalidateOp(cache.OpProcessingRecords)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// DeclineTos returns where the user goes after declining the terms: the
// allowed return URL when one was given, otherwise the logout target after
// the session has ended.
func (e Engine) DeclineTos(ctx context.Context, rawReturnURL string) (string, error) {
	e.journal(ctx, events.TypeTosDeclined, events.KindSession, "", nil)
	if target, ok := e.ReturnURL(rawReturnURL); ok {
		return target, nil
	}
	return e.logout(ctx, session.ReasonTosDeclined)
}

// ReturnURL decodes a return_url parameter. It must be an absolute http(s)
// URL under one of the allowed external domains.
func (e Engine) ReturnURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		e.Log.WithField("return_url", raw).Warn("could not decode return url")
		return "", false
	}
	if !strings.HasPrefix(decoded, "http://") && !strings.HasPrefix(decoded, "https://") {
		return "", false
	}
	if !e.Config.ExternalDomainAllowed(decoded) {
		e.Log.WithField("return_url", decoded).Warn("return url is not allowed")
		return "", false
	}
	return decoded, true
}

// Enroll calls the named enroller backend at most once per stale period and
// then refetches the records it may have created.
func (e Engine) Enroll(ctx context.Context, name string) error {
	var endpoint *config.EnrollEndpoint
	for i := range e.Config.Enroll {
		if e.Config.Enroll[i].Name == name {
			endpoint = &e.Config.Enroll[i]
			break
		}
	}
	if endpoint == nil || endpoint.URL == "" {
		return fmt.Errorf("%w: %s", ErrUnknownEnroll, name)
	}
	if _, err := e.requireUser(ctx); err != nil {
		return err
	}
	key := cache.NewKey(cache.OpEnroll, "name", name)
	_, err := cache.GetOrFetch(ctx, e.Cache, key, config.DefaultStaleTime, func(ctx context.Context) (bool, error) {
		if err := e.Client.Enroll(ctx, endpoint.URL); err != nil {
			return false, fmt.Errorf("enroll %s: %w", name, err)
		}
		e.Cache.InvalidateOp(cache.OpTos)
		e.Cache.InvalidateOp(cache.OpProcessingRecords)
		e.journal(ctx, events.TypeEnrolled, events.KindEnroll, name, nil)
		return true, nil
	})
	return err
}
