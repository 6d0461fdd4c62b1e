package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"consentwallet/internal/auth"
	"consentwallet/internal/cache"
	"consentwallet/internal/config"
	"consentwallet/internal/domain"
	"consentwallet/internal/events"
	"consentwallet/internal/i18n"
	"consentwallet/internal/records"
	"consentwallet/internal/repo"
	"consentwallet/internal/session"
	mdssdk "consentwallet/sdk/go"
)

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrActionNotAllowed = errors.New("action not allowed for this record")
	ErrInputRequired    = errors.New("record asks for user provided data")
	ErrNoInputRequired  = errors.New("record does not ask for user provided data")
	ErrNoUserData       = errors.New("no user provided data to edit")
	ErrNoAccessLog      = errors.New("record has no data provider")
	ErrUnknownEnroll    = errors.New("unknown enroll endpoint")
	ErrUnknownAuthItem  = errors.New("unknown auth item")
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Client  *mdssdk.Client
	Cache   *cache.Cache
	Session *session.Session
	Auth    auth.Flow
	Log     logrus.FieldLogger
	// Lang is the alpha-2 language of rendered texts.
	Lang string
	Tr   i18n.Translator
	Now  func() time.Time
}

// New wires the engine for cfg. The API client's 401 hook tears the
// session down before the failing call returns.
func New(db *sql.DB, cfg *config.Config, log logrus.FieldLogger) Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := repo.Repo{DB: db}
	ev := events.Writer{DB: db}
	c := cache.New(cfg.Cache.Size, cfg.Cache.TTL)
	client := mdssdk.New(cfg.API.BaseURL, r, cfg.API.Timeout)
	client.Logger = log.WithField("component", "mds")
	sess := session.New(r, ev, client, c, log.WithField("component", "session"))
	client.OnUnauthorized = sess.HandleUnauthorized
	return Engine{
		DB:      db,
		Repo:    r,
		Events:  ev,
		Config:  cfg,
		Client:  client,
		Cache:   c,
		Session: sess,
		Auth:    auth.Flow{Repo: r, Config: cfg},
		Log:     log,
		Lang:    i18n.DefaultLanguage,
		Tr:      i18n.MustLoad(i18n.DefaultLanguage),
		Now:     time.Now,
	}
}

// WithLanguage returns a copy rendering texts in lang.
func (e Engine) WithLanguage(lang string) Engine {
	if lang == "" {
		return e
	}
	cat := i18n.MustLoad(lang)
	e.Lang = cat.Language()
	e.Tr = cat
	return e
}

// WithHTTPClient routes API and token requests through hc.
func (e Engine) WithHTTPClient(hc *http.Client) Engine {
	e.Client.HTTPClient = hc
	e.Auth.HTTPClient = hc
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) staleTime() time.Duration {
	if e.Config == nil || e.Config.Cache.StaleTime <= 0 {
		return config.DefaultStaleTime
	}
	return e.Config.Cache.StaleTime
}

func (e Engine) alpha3() string {
	return i18n.Alpha3(e.Lang)
}

// Init resolves the session user from stored tokens.
func (e Engine) Init(ctx context.Context) (*domain.User, error) {
	return e.Session.Init(ctx)
}

func (e Engine) requireUser(ctx context.Context) (*domain.User, error) {
	if u := e.Session.User(); u != nil {
		return u, nil
	}
	return e.Session.Init(ctx)
}

// contract journals a contract violation and, when configured, ends the
// session. Other errors pass through untouched.
func (e Engine) contract(ctx context.Context, err error) error {
	if !records.IsContractViolation(err) {
		return err
	}
	var ce *records.ContractError
	errors.As(err, &ce)
	entityID := ""
	if ce != nil {
		entityID = ce.RecordUUID
	}
	e.Log.WithError(err).WithField("record_uuid", entityID).Error("api response violates the data contract")
	if jerr := e.Events.Record(ctx, events.TypeContractViolation, events.KindRecord, entityID, e.Session.ActorID(),
		events.EventPayload{"error": err.Error()}); jerr != nil {
		e.Log.WithError(jerr).Warn("could not journal contract violation")
	}
	if e.Config != nil && e.Config.Errors.LogoutOnContractViolation {
		if terr := e.Session.Teardown(ctx, session.ReasonContract); terr != nil {
			return fmt.Errorf("%w (teardown: %v)", err, terr)
		}
	}
	return err
}

// journal appends one event in its own transaction. A failing journal
// write never fails the mutation that already reached the API.
func (e Engine) journal(ctx context.Context, evtType, kind, id string, payload events.EventPayload) {
	if err := e.Events.Record(ctx, evtType, kind, id, e.Session.ActorID(), payload); err != nil {
		e.Log.WithError(err).WithField("event", evtType).Warn("could not journal event")
	}
}

// Journal returns the newest local events.
func (e Engine) Journal(ctx context.Context, limit int, f repo.EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, f)
}

// InfoText is the translated status info of a record, or "" when the
// catalog has no text for its state.
func (e Engine) InfoText(d domain.RecordData) string {
	key := records.InfoKey("statusInfo", d.Consumer, d.Record, d.UserParticipant)
	count := records.InfoCount(d.Consumer, d.NonUserParticipants)
	msg := e.Tr.T(key, map[string]string{"count": fmt.Sprint(count)})
	if msg == key {
		return ""
	}
	return msg
}
