package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"consentwallet/internal/config"
	"consentwallet/internal/db"
	"consentwallet/internal/engine"
	"consentwallet/internal/events"
	"consentwallet/internal/mdstest"
	"consentwallet/internal/migrate"
)

type testServer struct {
	URL    string
	MDS    *mdstest.Server
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, signedIn bool, mutate ...func(*config.Config)) (*testServer, func()) {
	t.Helper()
	mds := mdstest.NewServer(t)
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default(mds.URL)
	cfg.Auth.ClientIDs = map[string]string{mdstest.IDPID: mdstest.ClientID}
	cfg.Auth.ItemNames = []string{mdstest.AuthItemName}
	for _, m := range mutate {
		m(cfg)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger, _ := test.NewNullLogger()
	e := engine.New(conn, cfg, logger)
	if signedIn {
		if err := e.Session.Store(context.Background(), "at-1", mdstest.IDToken()); err != nil {
			t.Fatalf("store tokens: %v", err)
		}
	}
	handler, err := New(Config{Engine: e, BasePath: "/api", Log: logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		MDS:    mds,
		Engine: e,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, string(data))
	}
	return env
}

func TestRequestLangWeighsAcceptLanguage(t *testing.T) {
	cases := []struct {
		target, header, want string
	}{
		{"/", "en;q=0.1, fi;q=0.9", "fi"},
		{"/", "de-DE, fi;q=0.8", "fi"},
		{"/", "sv-SE", "sv"},
		{"/", "de-DE", ""},
		{"/", "", ""},
		{"/?lang=sv", "fi", "sv"},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, c.target, nil)
		if c.header != "" {
			r.Header.Set("Accept-Language", c.header)
		}
		if got := requestLang(r); got != c.want {
			t.Fatalf("requestLang(%q, %q) = %q, want %q", c.target, c.header, got, c.want)
		}
	}
}

func TestHealthAndSessionRequired(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(body))
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/consents", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(body))
	}
	if env := decodeError(t, body); env.Error.Code != "authentication_needed" {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/auth/items", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("auth items status %d: %s", res.StatusCode, string(body))
	}
	var items []map[string]any
	_ = json.Unmarshal(body, &items)
	if len(items) != 1 || items[0]["name"] != mdstest.AuthItemName {
		t.Fatalf("unexpected auth items %s", string(body))
	}
}

func TestConsentListAndDetail(t *testing.T) {
	srv, cleanup := newTestServer(t, true)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/consents", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(body))
	}
	var list []ConsentItem
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 consents, got %d", len(list))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/consents/"+mdstest.RecordWithTemplate, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("detail status %d: %s", res.StatusCode, string(body))
	}
	var detail ConsentDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if !detail.Actions.NeedsInput || len(detail.Fields) != 1 || detail.Fields[0].Name != "email" {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if detail.Service != "Loyalty program" || detail.Organization != "Kauppa Oy" {
		t.Fatalf("unexpected names %q %q", detail.Service, detail.Organization)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/consents/"+mdstest.RecordBroken, nil, nil)
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for broken record, got %d: %s", res.StatusCode, string(body))
	}
	if env := decodeError(t, body); env.Error.Code != "contract_violation" {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}
}

func TestAcceptWithUserData(t *testing.T) {
	srv, cleanup := newTestServer(t, true)
	defer cleanup()
	client := srv.Client()
	acceptURL := srv.URL + "/api/consents/" + mdstest.RecordWithTemplate + "/accept"

	res, body := doJSON(t, client, http.MethodPost, acceptURL, nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 without data, got %d: %s", res.StatusCode, string(body))
	}
	if env := decodeError(t, body); env.Error.Code != "input_required" {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}

	res, body = doJSON(t, client, http.MethodPost, acceptURL, map[string]any{
		"values": map[string]string{"email": "nope"},
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(body))
	}
	env := decodeError(t, body)
	fields, _ := env.Error.Details["fields"].(map[string]any)
	if env.Error.Code != "validation_failed" || fields["email"] == nil {
		t.Fatalf("unexpected validation error %s", string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, acceptURL, map[string]any{
		"values": map[string]string{"email": "maija@example.com"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(body))
	}
	var detail ConsentDetail
	_ = json.Unmarshal(body, &detail)
	if detail.Status != "active" || detail.UserData["email"] != "maija@example.com" {
		t.Fatalf("unexpected detail after accept %+v", detail)
	}
}

func TestDeclineAndLogs(t *testing.T) {
	srv, cleanup := newTestServer(t, true)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/consents/"+mdstest.RecordActive+"/events", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(body))
	}
	var logs LogResponse
	_ = json.Unmarshal(body, &logs)
	if len(logs.Items) != 2 {
		t.Fatalf("expected 2 log items, got %d", len(logs.Items))
	}

	srv.MDS.PageSize = 1
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/consents/"+mdstest.RecordActive+"/access?pages=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("access page status %d: %s", res.StatusCode, string(body))
	}
	var accessPage LogResponse
	_ = json.Unmarshal(body, &accessPage)
	if len(accessPage.Items) != 0 || accessPage.NextCursor == "" {
		t.Fatalf("expected an empty first page with a cursor, got %s", string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/consents/"+mdstest.RecordActive+"/access?cursor="+url.QueryEscape(accessPage.NextCursor), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("access cursor status %d: %s", res.StatusCode, string(body))
	}
	accessPage = LogResponse{}
	_ = json.Unmarshal(body, &accessPage)
	if len(accessPage.Items) != 1 || accessPage.NextCursor != "" {
		t.Fatalf("expected the last access page, got %s", string(body))
	}
	srv.MDS.PageSize = 0

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/consents/"+mdstest.RecordPending+"/access", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 access log, got %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/consents/"+mdstest.RecordActive+"/decline", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decline status %d: %s", res.StatusCode, string(body))
	}
	var detail ConsentDetail
	_ = json.Unmarshal(body, &detail)
	if detail.Status != "declined" || detail.UserData != nil {
		t.Fatalf("unexpected detail after decline %+v", detail)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/consents/"+mdstest.RecordActive+"/decline", nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second decline, got %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/journal?limit=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("journal status %d: %s", res.StatusCode, string(body))
	}
	var page paginatedEvents
	_ = json.Unmarshal(body, &page)
	if len(page.Items) != 1 || page.NextCursor == "" {
		t.Fatalf("expected one event and a cursor, got %s", string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/journal?cursor="+page.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("journal page status %d: %s", res.StatusCode, string(body))
	}
	var rest paginatedEvents
	_ = json.Unmarshal(body, &rest)
	for _, evt := range rest.Items {
		if evt.ID == page.Items[0].ID {
			t.Fatalf("cursor page repeated event %d", evt.ID)
		}
	}
	if len(rest.Items) == 0 {
		t.Fatalf("expected older events")
	}
}

func TestTosFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, true, func(c *config.Config) {
		c.ExternalDomains = []string{"https://shop.example.com"}
	})
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/tos", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("tos status %d: %s", res.StatusCode, string(body))
	}
	var tos TosResponse
	_ = json.Unmarshal(body, &tos)
	if len(tos.Pending) != 1 {
		t.Fatalf("expected one pending tos, got %d", len(tos.Pending))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/tos/decline", map[string]any{
		"return_url": url.QueryEscape("https://shop.example.com/cancelled"),
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decline tos status %d: %s", res.StatusCode, string(body))
	}
	var redirect RedirectResponse
	_ = json.Unmarshal(body, &redirect)
	if redirect.Redirect != "https://shop.example.com/cancelled" {
		t.Fatalf("unexpected redirect %q", redirect.Redirect)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/tos/accept", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept tos status %d: %s", res.StatusCode, string(body))
	}
	var accepted AcceptTosResponse
	_ = json.Unmarshal(body, &accepted)
	if accepted.Accepted != 1 {
		t.Fatalf("expected one accepted, got %d", accepted.Accepted)
	}
}

func TestLoginRedirects(t *testing.T) {
	srv, cleanup := newTestServer(t, false)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/auth/login?auth_item_uuid=ai-1&redirect=/consents/rec-1", nil, nil)
	if res.StatusCode != http.StatusFound {
		t.Fatalf("login status %d: %s", res.StatusCode, string(body))
	}
	loc, err := url.Parse(res.Header.Get("Location"))
	if err != nil || !strings.HasPrefix(loc.String(), srv.MDS.Endpoint("/authorize")) {
		t.Fatalf("unexpected login location %q", res.Header.Get("Location"))
	}
	state := loc.Query().Get("state")

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/auth/callback?code=abc&state="+url.QueryEscape(state), nil, nil)
	if res.StatusCode != http.StatusFound {
		t.Fatalf("callback status %d: %s", res.StatusCode, string(body))
	}
	if res.Header.Get("Location") != "/consents/rec-1" {
		t.Fatalf("unexpected callback location %q", res.Header.Get("Location"))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(body))
	}
	var me UserResponse
	_ = json.Unmarshal(body, &me)
	if me.Username != "Matti Meikäläinen" || len(me.Identifiers) != 1 {
		t.Fatalf("unexpected user %+v", me)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/logout", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d: %s", res.StatusCode, string(body))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", res.StatusCode)
	}
}

func TestWebhookForwardsNewEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []string
	)
	receiver := http.NewServeMux()
	receiver.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		received = append(received, evt)
		if r.Header.Get("X-Consentwallet-Signature") != signature("s3cret", body) {
			headers = append(headers, "bad signature")
		} else {
			headers = append(headers, "ok")
		}
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hookSrv := &http.Server{Handler: receiver}
	go hookSrv.Serve(ln)
	defer hookSrv.Shutdown(context.Background())

	srv, cleanup := newTestServer(t, true, func(c *config.Config) {
		c.Notifications.Webhooks = []config.WebhookConfig{{
			URL:    "http://" + ln.Addr().String() + "/hook",
			Events: []string{events.TypeConsentAccepted},
			Secret: "s3cret",
		}}
	})
	defer cleanup()
	ctx := context.Background()
	if err := srv.Engine.Events.Record(ctx, events.TypeSessionStarted, events.KindSession, "", "tester", nil); err != nil {
		t.Fatalf("seed event: %v", err)
	}

	d := newWebhookDispatcher(srv.Engine, nil)
	if d == nil {
		t.Fatalf("expected dispatcher")
	}
	d.dispatchAll(ctx)
	if _, err := srv.Engine.Accept(ctx, mdstest.RecordPending); err != nil {
		t.Fatalf("accept: %v", err)
	}
	d.dispatchAll(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Type != events.TypeConsentAccepted || received[0].RecordUUID != mdstest.RecordPending {
		t.Fatalf("unexpected deliveries %+v", received)
	}
	if headers[0] != "ok" {
		t.Fatalf("signature mismatch")
	}
}
