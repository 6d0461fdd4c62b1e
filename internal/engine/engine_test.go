package engine_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"consentwallet/internal/config"
	"consentwallet/internal/db"
	"consentwallet/internal/domain"
	"consentwallet/internal/engine"
	"consentwallet/internal/events"
	"consentwallet/internal/form"
	"consentwallet/internal/mdstest"
	"consentwallet/internal/migrate"
	"consentwallet/internal/records"
	"consentwallet/internal/repo"
	mdssdk "consentwallet/sdk/go"
)

type testEnv struct {
	Engine engine.Engine
	MDS    *mdstest.Server
	Ctx    context.Context
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) testEnv {
	t.Helper()
	mds := mdstest.NewServer(t)
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default(mds.URL)
	cfg.Auth.ClientIDs = map[string]string{mdstest.IDPID: mdstest.ClientID}
	cfg.Auth.ItemNames = []string{mdstest.AuthItemName}
	cfg.ExternalDomains = []string{"https://shop.example.com"}
	cfg.Enroll = []config.EnrollEndpoint{{Name: "shop", URL: mds.Endpoint("/enroll")}}
	for _, m := range mutate {
		m(cfg)
	}
	logger, _ := test.NewNullLogger()
	eng := engine.New(conn, cfg, logger)
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.Session.Store(ctx, "at-1", mdstest.IDToken()); err != nil {
		t.Fatalf("store tokens: %v", err)
	}
	if _, err := eng.Init(ctx); err != nil {
		t.Fatalf("init session: %v", err)
	}
	return testEnv{Engine: eng, MDS: mds, Ctx: ctx}
}

func (env testEnv) eventTypes(t *testing.T) []string {
	t.Helper()
	evts, err := env.Engine.Journal(env.Ctx, 100, repo.EventFilter{})
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	var out []string
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

func hasEvent(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func TestInitResolvesUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.Engine.Session.User()
	if u == nil {
		t.Fatalf("expected user")
	}
	if u.Subject != mdstest.Subject || u.Username != "Matti Meikäläinen" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestListRecordsFiltersAndSorts(t *testing.T) {
	env := newTestEnv(t)
	env.MDS.PageSize = 1
	list, err := env.Engine.ListRecords(env.Ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	for _, d := range list {
		if d.Record.RecordType != domain.RecordTypeConsent {
			t.Fatalf("unexpected record type %s", d.Record.RecordType)
		}
	}
	if list[2].Record.UUID != mdstest.RecordActive {
		t.Fatalf("active record should sort last, got %s", list[2].Record.UUID)
	}
	calls := env.MDS.Calls("/embedded_wallet/v3.1/processing_records")
	if calls != 3 {
		t.Fatalf("expected 3 page requests, got %d", calls)
	}
	if _, err := env.Engine.ListRecords(env.Ctx); err != nil {
		t.Fatalf("list again: %v", err)
	}
	if env.MDS.Calls("/embedded_wallet/v3.1/processing_records") != calls {
		t.Fatalf("second list should be served from cache")
	}
}

func TestAcceptSendsConsumerLanguage(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.Accept(env.Ctx, mdstest.RecordPending)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if d.Data.Record.Status != domain.RecordActive {
		t.Fatalf("expected active record, got %s", d.Data.Record.Status)
	}
	patches := env.MDS.Patches()
	if len(patches) != 1 || patches[0].Status != "active" || patches[0].AcceptedLanguage != "fin" {
		t.Fatalf("unexpected patches %+v", patches)
	}
	if !hasEvent(env.eventTypes(t), events.TypeConsentAccepted) {
		t.Fatalf("accept not journaled")
	}
	if _, err := env.Engine.Accept(env.Ctx, mdstest.RecordPending); !errors.Is(err, engine.ErrActionNotAllowed) {
		t.Fatalf("expected not allowed on active record, got %v", err)
	}
}

func TestAcceptWithDataCreatesMetadataFirst(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Accept(env.Ctx, mdstest.RecordWithTemplate); !errors.Is(err, engine.ErrInputRequired) {
		t.Fatalf("expected input required, got %v", err)
	}
	_, err := env.Engine.AcceptWithData(env.Ctx, mdstest.RecordWithTemplate, map[string]string{"email": "not-an-email"}, nil)
	var verrs form.ValidationErrors
	if !errors.As(err, &verrs) || verrs["email"] == "" {
		t.Fatalf("expected email validation error, got %v", err)
	}
	var notified []form.Level
	n := form.NotifierFunc(func(level form.Level, _ string) { notified = append(notified, level) })
	d, err := env.Engine.AcceptWithData(env.Ctx, mdstest.RecordWithTemplate, map[string]string{"email": "maija@example.com"}, n)
	if err != nil {
		t.Fatalf("accept with data: %v", err)
	}
	created := env.MDS.Created()
	if len(created) != 1 {
		t.Fatalf("expected one metadata, got %d", len(created))
	}
	if created[0]["type"] != records.TypeUserProvidedData || created[0]["model_uuid"] != mdstest.RecordWithTemplate {
		t.Fatalf("unexpected payload %+v", created[0])
	}
	if d.UserData == nil || d.UserData.JSONData["email"] != "maija@example.com" {
		t.Fatalf("expected user data on record, got %+v", d.UserData)
	}
	if len(notified) != 1 || notified[0] != form.LevelSuccess {
		t.Fatalf("unexpected notifications %v", notified)
	}
}

func TestAcceptWithDataRecordsOrphan(t *testing.T) {
	env := newTestEnv(t)
	env.MDS.FailParticipantPatch(true)
	_, err := env.Engine.AcceptWithData(env.Ctx, mdstest.RecordWithTemplate, map[string]string{"email": "maija@example.com"}, nil)
	var apiErr *mdssdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Fatalf("expected api error, got %v", err)
	}
	orphans, err := env.Engine.Orphans(env.Ctx, mdstest.RecordWithTemplate)
	if err != nil {
		t.Fatalf("orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ParticipantUUID != "prp-2" {
		t.Fatalf("unexpected orphans %+v", orphans)
	}
	if !hasEvent(env.eventTypes(t), events.TypeUserDataOrphaned) {
		t.Fatalf("orphan not journaled")
	}

	if err := env.Engine.DiscardOrphan(env.Ctx, orphans[0].MetadataUUID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, ok := env.MDS.Metadata(orphans[0].MetadataUUID); ok {
		t.Fatalf("orphan still stored in api")
	}
	orphans, _ = env.Engine.Orphans(env.Ctx, "")
	if len(orphans) != 0 {
		t.Fatalf("orphan not resolved")
	}
}

func TestDeclineDeletesUserData(t *testing.T) {
	env := newTestEnv(t)
	before, err := env.Engine.GetRecord(env.Ctx, mdstest.RecordActive)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !before.Actions.ConfirmCancel {
		t.Fatalf("decline of record with user data should ask for confirmation")
	}
	d, err := env.Engine.Decline(env.Ctx, mdstest.RecordActive)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if d.Data.Record.Status != domain.RecordDeclined || d.UserData != nil {
		t.Fatalf("unexpected detail after decline %+v", d.Data.Record)
	}
	deleted := env.MDS.Deleted()
	if len(deleted) != 1 || deleted[0] != mdstest.UserDataUUID {
		t.Fatalf("unexpected deletes %v", deleted)
	}
	types := env.eventTypes(t)
	if !hasEvent(types, events.TypeConsentDeclined) || !hasEvent(types, events.TypeUserDataDeleted) {
		t.Fatalf("decline not journaled: %v", types)
	}
}

func TestUpdateUserData(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateUserData(env.Ctx, mdstest.RecordActive, map[string]string{"email": "old@example.com"}, nil)
	if !errors.Is(err, form.ErrNotDirty) {
		t.Fatalf("expected not dirty, got %v", err)
	}
	d, err := env.Engine.UpdateUserData(env.Ctx, mdstest.RecordActive, map[string]string{"email": "new@example.com"}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if d.UserData == nil || d.UserData.JSONData["email"] != "new@example.com" {
		t.Fatalf("update not visible: %+v", d.UserData)
	}
	if _, err := env.Engine.UpdateUserData(env.Ctx, mdstest.RecordPending, map[string]string{"email": "x@example.com"}, nil); !errors.Is(err, engine.ErrNoUserData) {
		t.Fatalf("expected no user data, got %v", err)
	}
}

func TestEventAndAccessLogs(t *testing.T) {
	env := newTestEnv(t)
	view, err := env.Engine.EventLog(env.Ctx, mdstest.RecordActive)
	if err != nil {
		t.Fatalf("event log: %v", err)
	}
	if len(view.Items) != 2 || view.Items[0].Key != "h-1" || view.Items[1].Key != "created" {
		t.Fatalf("unexpected event log %+v", view.Items)
	}
	if view.Notice != "" {
		t.Fatalf("new record should not carry legacy notice")
	}
	access, err := env.Engine.AccessLog(env.Ctx, mdstest.RecordActive)
	if err != nil {
		t.Fatalf("access log: %v", err)
	}
	if len(access.Items) != 1 || access.Items[0].Key != "a-1" {
		t.Fatalf("unexpected access log %+v", access.Items)
	}
	if _, err := env.Engine.AccessLog(env.Ctx, mdstest.RecordPending); !errors.Is(err, engine.ErrNoAccessLog) {
		t.Fatalf("expected no access log, got %v", err)
	}
}

func TestAccessLogPagesFollowCursor(t *testing.T) {
	env := newTestEnv(t)
	env.MDS.PageSize = 1
	first, err := env.Engine.AccessLogPage(env.Ctx, mdstest.RecordActive, "", 1)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Items) != 0 || first.NextCursor.IsZero() {
		t.Fatalf("first page should hold only the failed access and a cursor, got %+v", first)
	}
	second, err := env.Engine.AccessLogPage(env.Ctx, mdstest.RecordActive, first.NextCursor, 1)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].Key != "a-1" || !second.NextCursor.IsZero() {
		t.Fatalf("unexpected second page %+v", second)
	}
	if calls := env.MDS.Calls("/wallet/v3.0/access_items"); calls != 2 {
		t.Fatalf("expected 2 page requests, got %d", calls)
	}

	all, err := env.Engine.AccessLogPage(env.Ctx, mdstest.RecordActive, "", 5)
	if err != nil {
		t.Fatalf("all pages: %v", err)
	}
	if len(all.Items) != 1 || !all.NextCursor.IsZero() {
		t.Fatalf("reading past the end should stop at the last page, got %+v", all)
	}
	events, err := env.Engine.EventLogPage(env.Ctx, mdstest.RecordActive, "", 1)
	if err != nil {
		t.Fatalf("event page: %v", err)
	}
	if len(events.Items) != 2 || !events.NextCursor.IsZero() {
		t.Fatalf("unexpected event page %+v", events)
	}
}

func TestTosAcceptAll(t *testing.T) {
	env := newTestEnv(t)
	pending, err := env.Engine.PendingTos(env.Ctx)
	if err != nil {
		t.Fatalf("pending tos: %v", err)
	}
	if len(pending) != 1 || pending[0].Record.UUID != mdstest.RecordTos {
		t.Fatalf("unexpected pending tos %+v", pending)
	}
	n, err := env.Engine.AcceptTos(env.Ctx)
	if err != nil || n != 1 {
		t.Fatalf("accept tos: %d %v", n, err)
	}
	patches := env.MDS.Patches()
	if len(patches) != 1 || patches[0].AcceptedLanguage != "fin" {
		t.Fatalf("unexpected patches %+v", patches)
	}
	pending, err = env.Engine.PendingTos(env.Ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("tos should be accepted: %d %v", len(pending), err)
	}
}

func TestDeclineTos(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Repo.Set(env.Ctx, repo.KeyIDPID, mdstest.IDPID); err != nil {
		t.Fatalf("store idp: %v", err)
	}
	allowed := url.QueryEscape("https://shop.example.com/back?x=1")
	target, err := env.Engine.DeclineTos(env.Ctx, allowed)
	if err != nil || target != "https://shop.example.com/back?x=1" {
		t.Fatalf("expected return url, got %q %v", target, err)
	}
	if env.Engine.Session.User() == nil {
		t.Fatalf("return url decline keeps the session")
	}

	target, err = env.Engine.DeclineTos(env.Ctx, url.QueryEscape("https://evil.example.com/"))
	if err != nil {
		t.Fatalf("decline tos: %v", err)
	}
	if !strings.HasPrefix(target, env.MDS.Endpoint("/logout")) {
		t.Fatalf("expected end-session url, got %q", target)
	}
	tok, _ := env.Engine.Repo.AccessToken(env.Ctx)
	if tok != "" || env.Engine.Session.User() != nil {
		t.Fatalf("session should be torn down")
	}
}

func TestReturnURL(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]bool{
		"":                                    false,
		"https%3A%2F%2Fshop.example.com%2Fok": true,
		"ftp://shop.example.com/":             false,
		"https://evil.example.com/":           false,
		"%zz":                                 false,
	}
	for raw, want := range cases {
		if _, ok := env.Engine.ReturnURL(raw); ok != want {
			t.Fatalf("ReturnURL(%q) = %v, want %v", raw, ok, want)
		}
	}
}

func TestEnrollRunsOncePerStalePeriod(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 2; i++ {
		if err := env.Engine.Enroll(env.Ctx, "shop"); err != nil {
			t.Fatalf("enroll: %v", err)
		}
	}
	if env.MDS.Enrolls() != 1 {
		t.Fatalf("expected one enroll call, got %d", env.MDS.Enrolls())
	}
	if err := env.Engine.Enroll(env.Ctx, "missing"); !errors.Is(err, engine.ErrUnknownEnroll) {
		t.Fatalf("expected unknown enroll, got %v", err)
	}
}

func TestUnauthorizedEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.MDS.SetUnauthorized(true)
	if _, err := env.Engine.ListRecords(env.Ctx); !errors.Is(err, mdssdk.ErrAuthenticationNeeded) {
		t.Fatalf("expected authentication needed, got %v", err)
	}
	tok, _ := env.Engine.Repo.AccessToken(env.Ctx)
	if tok != "" {
		t.Fatalf("token should be cleared before the call returns")
	}
	if env.Engine.Session.User() != nil {
		t.Fatalf("user should be cleared")
	}
	if env.Engine.Cache.Len() != 0 {
		t.Fatalf("cache should be purged")
	}
	if !hasEvent(env.eventTypes(t), events.TypeAuthenticationNeeded) {
		t.Fatalf("401 not journaled")
	}
}

func TestContractViolation(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Errors.LogoutOnContractViolation = true })
	_, err := env.Engine.GetRecord(env.Ctx, mdstest.RecordBroken)
	if !records.IsContractViolation(err) || !errors.Is(err, records.ErrNoDataSubject) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if !hasEvent(env.eventTypes(t), events.TypeContractViolation) {
		t.Fatalf("violation not journaled")
	}
	tok, _ := env.Engine.Repo.AccessToken(env.Ctx)
	if tok != "" {
		t.Fatalf("configured logout did not run")
	}
}

func TestLoginCallbackLogout(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Logout(env.Ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}

	authURL, err := env.Engine.Login(env.Ctx, mdstest.AuthItemName, "/consents/rec-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != mdstest.ClientID || q.Get("code_challenge_method") != "S256" {
		t.Fatalf("unexpected auth url %s", authURL)
	}
	if _, _, err := env.Engine.Callback(env.Ctx, "code-1", "wrong-state"); err == nil {
		t.Fatalf("expected state mismatch")
	}
	user, redirect, err := env.Engine.Callback(env.Ctx, "code-1", q.Get("state"))
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if redirect != "/consents/rec-1" || user.Subject != mdstest.Subject {
		t.Fatalf("unexpected callback result %q %+v", redirect, user)
	}
	tok, _ := env.Engine.Repo.AccessToken(env.Ctx)
	if tok != "at-code-1" {
		t.Fatalf("unexpected access token %q", tok)
	}

	target, err := env.Engine.Logout(env.Ctx)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !strings.HasPrefix(target, env.MDS.Endpoint("/logout")) || !strings.Contains(target, "id_token_hint=") {
		t.Fatalf("unexpected logout target %q", target)
	}
	types := env.eventTypes(t)
	if !hasEvent(types, events.TypeSessionStarted) || !hasEvent(types, events.TypeSessionEnded) {
		t.Fatalf("session not journaled: %v", types)
	}
}

func TestInfoText(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.GetRecord(env.Ctx, mdstest.RecordPending)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.InfoText != "Waiting for your response." {
		t.Fatalf("unexpected info text %q", d.InfoText)
	}
}
