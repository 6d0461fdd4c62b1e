package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"consentwallet/internal/auth"
	"consentwallet/internal/domain"
	"consentwallet/internal/engine"
	"consentwallet/internal/form"
	"consentwallet/internal/records"
	"consentwallet/internal/repo"
	"consentwallet/internal/session"
	mdssdk "consentwallet/sdk/go"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Log      logrus.FieldLogger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"action_not_allowed"`
	Message string         `json:"message" example:"action not allowed for this record"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cw_http_requests_total",
		Help: "BFF requests by method and status.",
	}, []string{"method", "status"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cw_http_request_duration_seconds",
		Help:    "BFF request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

func observeRequest(method string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// New returns an HTTP handler exposing the consent wallet API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = cfg.Engine.Log
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newRequestMiddleware(log))
	router.Use(newSessionMiddleware(basePath, cfg.Engine))
	hcfg := huma.DefaultConfig("Consent Wallet API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	router.Handle("/metrics", promhttp.Handler())
	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerConsents(group, cfg.Engine)
	registerTos(group, cfg.Engine)
	registerEnroll(group, cfg.Engine)
	registerJournal(group, cfg.Engine)
	registerOrphans(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ce *records.ContractError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusInternalServerError, "contract_violation", err.Error(), map[string]any{"record_uuid": ce.RecordUUID})
	}
	var verrs form.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]any, len(verrs))
		for k, v := range verrs {
			fields[k] = v
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", "validation failed", map[string]any{"fields": fields})
	}
	var apiErr *mdssdk.APIError
	switch {
	case errors.Is(err, mdssdk.ErrAuthenticationNeeded), errors.Is(err, session.ErrNotAuthenticated):
		return newAPIError(http.StatusUnauthorized, "authentication_needed", err.Error(), nil)
	case errors.Is(err, engine.ErrRecordNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrUnknownEnroll), errors.Is(err, engine.ErrUnknownAuthItem):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrNoAccessLog):
		return newAPIError(http.StatusNotFound, "no_access_log", err.Error(), nil)
	case errors.Is(err, engine.ErrActionNotAllowed):
		return newAPIError(http.StatusConflict, "action_not_allowed", err.Error(), nil)
	case errors.Is(err, engine.ErrInputRequired):
		return newAPIError(http.StatusConflict, "input_required", err.Error(), nil)
	case errors.Is(err, engine.ErrNoInputRequired):
		return newAPIError(http.StatusConflict, "no_input_required", err.Error(), nil)
	case errors.Is(err, engine.ErrNoUserData):
		return newAPIError(http.StatusConflict, "no_user_data", err.Error(), nil)
	case errors.Is(err, form.ErrNotDirty):
		return newAPIError(http.StatusConflict, "not_modified", err.Error(), nil)
	case errors.Is(err, form.ErrUnknownField):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, auth.ErrStateMismatch), errors.Is(err, auth.ErrNoPendingAuth):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, auth.ErrNoClientID):
		return newAPIError(http.StatusInternalServerError, "misconfigured", err.Error(), nil)
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusNotFound {
			return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
		}
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), map[string]any{"status": apiErr.StatusCode})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "authentication_needed"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Consent Wallet API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type recordPath struct {
	UUID string `path:"uuid"`
}

// logInput reads the whole log unless a cursor or page count asks for a
// paged read.
type logInput struct {
	UUID   string `path:"uuid"`
	Cursor string `query:"cursor" doc:"next_cursor of the previous page"`
	Pages  int    `query:"pages" minimum:"0" maximum:"50" doc:"Number of pages to read"`
}

func (in logInput) paged() bool { return in.Cursor != "" || in.Pages > 0 }

func logResponse(view engine.LogView) LogResponse {
	return LogResponse{Items: nonNilSlice(view.Items), Notice: view.Notice, NextCursor: string(view.NextCursor)}
}

func registerConsents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-consents",
		Method:      http.MethodGet,
		Path:        "/consents",
		Summary:     "List consents, legal obligations and legitimate interests",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ConsentItem `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		data, err := eng.ListRecords(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ConsentItem `json:"body"`
		}{Body: consentItems(data, eng.Lang)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-consent",
		Method:      http.MethodGet,
		Path:        "/consents/{uuid}",
		Summary:     "Record detail with actions and user data fields",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *recordPath) (*struct {
		Body ConsentDetail `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		det, err := eng.GetRecord(ctx, input.UUID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsentDetail `json:"body"`
		}{Body: consentDetail(eng, det)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "consent-events",
		Method:      http.MethodGet,
		Path:        "/consents/{uuid}/events",
		Summary:     "Status change timeline",
	}, func(ctx context.Context, input *logInput) (*struct {
		Body LogResponse `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		var view engine.LogView
		var err error
		if input.paged() {
			view, err = eng.EventLogPage(ctx, input.UUID, domain.Offset(input.Cursor), input.Pages)
		} else {
			view, err = eng.EventLog(ctx, input.UUID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LogResponse `json:"body"`
		}{Body: logResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "consent-access",
		Method:      http.MethodGet,
		Path:        "/consents/{uuid}/access",
		Summary:     "Data access timeline",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *logInput) (*struct {
		Body LogResponse `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		var view engine.LogView
		var err error
		if input.paged() {
			view, err = eng.AccessLogPage(ctx, input.UUID, domain.Offset(input.Cursor), input.Pages)
		} else {
			view, err = eng.AccessLog(ctx, input.UUID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LogResponse `json:"body"`
		}{Body: logResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-consent",
		Method:      http.MethodPost,
		Path:        "/consents/{uuid}/accept",
		Summary:     "Accept a record, with user provided data when the consumer asks for it",
		Errors:      []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		UUID string           `path:"uuid"`
		Body *UserDataRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body ConsentDetail `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		var (
			det engine.Detail
			err error
		)
		if input.Body != nil && len(input.Body.Values) > 0 {
			det, err = eng.AcceptWithData(ctx, input.UUID, input.Body.Values, nil)
		} else {
			det, err = eng.Accept(ctx, input.UUID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsentDetail `json:"body"`
		}{Body: consentDetail(eng, det)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-consent",
		Method:      http.MethodPost,
		Path:        "/consents/{uuid}/decline",
		Summary:     "Decline a record and delete the user provided data",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *recordPath) (*struct {
		Body ConsentDetail `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		det, err := eng.Decline(ctx, input.UUID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsentDetail `json:"body"`
		}{Body: consentDetail(eng, det)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user-data",
		Method:      http.MethodPatch,
		Path:        "/consents/{uuid}/user-data",
		Summary:     "Edit user provided data of an active record",
		Errors:      []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		UUID string          `path:"uuid"`
		Body UserDataRequest `json:"body"`
	}) (*struct {
		Body ConsentDetail `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		det, err := eng.UpdateUserData(ctx, input.UUID, input.Body.Values, nil)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsentDetail `json:"body"`
		}{Body: consentDetail(eng, det)}, nil
	})
}

func registerTos(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tos",
		Method:      http.MethodGet,
		Path:        "/tos",
		Summary:     "Service terms waiting for acceptance",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TosResponse `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		data, err := eng.PendingTos(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TosResponse `json:"body"`
		}{Body: TosResponse{Pending: consentItems(data, eng.Lang)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-tos",
		Method:      http.MethodPost,
		Path:        "/tos/accept",
		Summary:     "Accept every pending service terms record",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AcceptTosResponse `json:"body"`
	}, error) {
		n, err := e.AcceptTos(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptTosResponse `json:"body"`
		}{Body: AcceptTosResponse{Accepted: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-tos",
		Method:      http.MethodPost,
		Path:        "/tos/decline",
		Summary:     "Decline the service terms",
	}, func(ctx context.Context, input *struct {
		Body *DeclineTosRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body RedirectResponse `json:"body"`
	}, error) {
		raw := ""
		if input.Body != nil {
			raw = input.Body.ReturnURL
		}
		target, err := e.DeclineTos(ctx, raw)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RedirectResponse `json:"body"`
		}{Body: RedirectResponse{Redirect: target}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "auth-items",
		Method:      http.MethodGet,
		Path:        "/auth/items",
		Summary:     "Configured login options",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []auth.Item `json:"body"`
	}, error) {
		items, err := e.AuthItems(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []auth.Item `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	type redirectOutput struct {
		Status   int
		Location string `header:"Location"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "auth-login",
		Method:        http.MethodGet,
		Path:          "/auth/login",
		Summary:       "Start a login and redirect to the identity provider",
		DefaultStatus: http.StatusFound,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Item     string `query:"auth_item_uuid" doc:"Auth item uuid or name"`
		Redirect string `query:"redirect" doc:"Path to continue at after login"`
	}) (*redirectOutput, error) {
		target, err := e.Login(ctx, input.Item, input.Redirect)
		if err != nil {
			return nil, handleError(err)
		}
		return &redirectOutput{Status: http.StatusFound, Location: target}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "auth-callback",
		Method:        http.MethodGet,
		Path:          "/auth/callback",
		Summary:       "Complete a login",
		DefaultStatus: http.StatusFound,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Code  string `query:"code" required:"true"`
		State string `query:"state" required:"true"`
	}) (*redirectOutput, error) {
		_, redirect, err := e.Callback(ctx, input.Code, input.State)
		if err != nil {
			return nil, handleError(err)
		}
		return &redirectOutput{Status: http.StatusFound, Location: redirect}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "auth-logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "End the session",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RedirectResponse `json:"body"`
	}, error) {
		target, err := e.Logout(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RedirectResponse `json:"body"`
		}{Body: RedirectResponse{Redirect: target}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Signed-in user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		u := e.Session.User()
		if u == nil {
			return nil, newAPIError(http.StatusUnauthorized, "authentication_needed", "sign in required", nil)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerEnroll(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "enroll",
		Method:      http.MethodPost,
		Path:        "/enroll/{name}",
		Summary:     "Call a configured enroller backend",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := e.Enroll(ctx, input.Name); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerJournal(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-journal",
		Method:      http.MethodGet,
		Path:        "/journal",
		Summary:     "List recent journal events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"processing_record,processing_record_participant,metadata,session,enroll"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerOrphans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-orphans",
		Method:      http.MethodGet,
		Path:        "/orphans",
		Summary:     "User provided data left behind by failed activations",
	}, func(ctx context.Context, input *struct {
		Record string `query:"record_uuid"`
	}) (*struct {
		Body []OrphanResponse `json:"body"`
	}, error) {
		items, err := e.Orphans(ctx, input.Record)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OrphanResponse `json:"body"`
		}{Body: orphanResponses(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "discard-orphan",
		Method:        http.MethodDelete,
		Path:          "/orphans/{metadata_uuid}",
		Summary:       "Delete orphaned user provided data",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		MetadataUUID string `path:"metadata_uuid"`
	}) (*struct{}, error) {
		if err := e.DiscardOrphan(ctx, input.MetadataUUID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
