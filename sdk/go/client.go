package mdssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"consentwallet/internal/domain"
)

const (
	stableAPIVersion = "v3.0"
	latestAPIVersion = "v3.1"

	EndpointAuthItems         = "public/" + stableAPIVersion + "/auth_items"
	EndpointIdentifiers       = "embedded_wallet/" + stableAPIVersion + "/identifiers"
	EndpointMetadata          = "embedded_wallet/" + stableAPIVersion + "/metadata"
	EndpointAccessItems       = "wallet/" + stableAPIVersion + "/access_items"
	EndpointRecords           = "embedded_wallet/" + latestAPIVersion + "/processing_records"
	EndpointRecord            = "embedded_wallet/" + latestAPIVersion + "/processing_record"
	EndpointRecordParticipant = "embedded_wallet/" + latestAPIVersion + "/processing_record_participant"
	EndpointHistoryItems      = "embedded_wallet/" + latestAPIVersion + "/processing_record_history_items"

	// DefaultAcceptedLanguage is sent when activating without a known language.
	DefaultAcceptedLanguage = "eng"
)

// ErrAuthenticationNeeded is returned after a 401 has torn the session down.
var ErrAuthenticationNeeded = errors.New("authentication is needed")

// LogOffsetStart is the created_before cursor used for the first log page.
var LogOffsetStart = domain.OffsetFromTime(time.Date(3000, time.February, 1, 0, 0, 0, 0, time.UTC))

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cw_mds_requests_total",
		Help: "MDS API requests by endpoint and status code.",
	}, []string{"endpoint", "code"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cw_mds_request_duration_seconds",
		Help:    "MDS API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// TokenStore yields the bearer token at call time.
type TokenStore interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is a minimal MyDataShare API client.
type Client struct {
	BaseURL    string
	Tokens     TokenStore
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
	// OnUnauthorized runs synchronously on any 401, before the call returns.
	OnUnauthorized func(ctx context.Context)
}

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 10 * time.Second

// New creates a client with its own http.Client. The client is safe for
// concurrent use once configured.
func New(baseURL string, tokens TokenStore, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    baseURL,
		Tokens:     tokens,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// APIError wraps non-2xx responses. Body is the raw error document.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Document decodes the error body when it is a JSON object.
func (e *APIError) Document() map[string]any {
	var doc map[string]any
	if err := json.Unmarshal([]byte(e.Body), &doc); err != nil {
		return nil
	}
	return doc
}

// SearchTerms filter the processing record listing.
type SearchTerms struct {
	DataConsumerUUID string                `json:"data_consumer_uuid,omitempty"`
	DataProviderUUID string                `json:"data_provider_uuid,omitempty"`
	GroupID          string                `json:"group_id,omitempty"`
	Status           []domain.RecordStatus `json:"status,omitempty"`
	RecordType       []domain.RecordType   `json:"record_type,omitempty"`
}

// LogQuery selects a page of history or access items of one record.
type LogQuery struct {
	RecordUUID string
	Offset     domain.Offset
	Limit      int
}

// MetadataPayload is the create/update body for metadata. MetadataUUID
// addresses updates and is never sent.
type MetadataPayload struct {
	Model        string         `json:"model"`
	ModelUUID    string         `json:"model_uuid"`
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Subtype1     string         `json:"subtype1,omitempty"`
	Subtype2     string         `json:"subtype2,omitempty"`
	JSONData     map[string]any `json:"json_data"`
	MetadataUUID string         `json:"-"`
}

// MetadataResult is the raw mutation response plus the metadata uuid when one
// could be found in it.
type MetadataResult struct {
	UUID string
	Raw  map[string]any
}

type ParticipantUpdate struct {
	UUID      string
	NewStatus domain.ParticipantStatus
	Language  string
}

// AuthItems returns one page of login options.
func (c *Client) AuthItems(ctx context.Context, offset domain.Offset) (domain.AuthItemsBundle, error) {
	var resp domain.AuthItemsBundle
	err := c.do(ctx, request{method: http.MethodPost, endpoint: EndpointAuthItems, paginated: true, offset: offset}, &resp)
	return resp, err
}

// Identifiers returns the identifiers of the logged-in user.
func (c *Client) Identifiers(ctx context.Context) (domain.IdentifiersBundle, error) {
	var resp domain.IdentifiersBundle
	err := c.do(ctx, request{method: http.MethodPost, endpoint: EndpointIdentifiers}, &resp)
	return resp, err
}

// ProcessingRecords returns one page of records matching terms.
func (c *Client) ProcessingRecords(ctx context.Context, terms SearchTerms, offset domain.Offset) (domain.RecordsBundle, error) {
	var resp domain.RecordsBundle
	err := c.do(ctx, request{method: http.MethodPost, endpoint: EndpointRecords, body: terms, paginated: true, offset: offset}, &resp)
	return resp, err
}

// ProcessingRecord fetches a single record with its related entities.
func (c *Client) ProcessingRecord(ctx context.Context, recordUUID string) (domain.RecordsBundle, error) {
	var resp domain.RecordsBundle
	endpoint := fmt.Sprintf("%s/%s", EndpointRecord, url.PathEscape(recordUUID))
	err := c.do(ctx, request{method: http.MethodGet, endpoint: endpoint}, &resp)
	return resp, err
}

// UpdateParticipant changes the user's status on a record. The accepted
// language is only sent when activating.
func (c *Client) UpdateParticipant(ctx context.Context, upd ParticipantUpdate) (map[string]any, error) {
	body := map[string]any{"status": upd.NewStatus}
	if upd.NewStatus == domain.ParticipantActive {
		lang := upd.Language
		if lang == "" {
			lang = DefaultAcceptedLanguage
		}
		body["accepted_language"] = lang
	}
	var resp map[string]any
	endpoint := fmt.Sprintf("%s/%s", EndpointRecordParticipant, url.PathEscape(upd.UUID))
	err := c.do(ctx, request{method: http.MethodPatch, endpoint: endpoint, body: body}, &resp)
	return resp, err
}

// HistoryItems returns one page of a record's participant status changes.
func (c *Client) HistoryItems(ctx context.Context, q LogQuery) (domain.HistoryBundle, error) {
	var resp domain.HistoryBundle
	err := c.do(ctx, logRequest(EndpointHistoryItems, q), &resp)
	return resp, err
}

// AccessItems returns one page of a record's data access log.
func (c *Client) AccessItems(ctx context.Context, q LogQuery) (domain.AccessBundle, error) {
	var resp domain.AccessBundle
	err := c.do(ctx, logRequest(EndpointAccessItems, q), &resp)
	return resp, err
}

// CreateMetadata creates a metadata object.
func (c *Client) CreateMetadata(ctx context.Context, p MetadataPayload) (MetadataResult, error) {
	var raw map[string]any
	if err := c.do(ctx, request{method: http.MethodPost, endpoint: EndpointMetadata, body: p}, &raw); err != nil {
		return MetadataResult{}, err
	}
	return MetadataResult{UUID: metadataUUID(raw), Raw: raw}, nil
}

// UpdateMetadata replaces json_data of an existing metadata object.
func (c *Client) UpdateMetadata(ctx context.Context, p MetadataPayload) (MetadataResult, error) {
	if p.MetadataUUID == "" {
		return MetadataResult{}, errors.New("metadata uuid required")
	}
	var raw map[string]any
	endpoint := fmt.Sprintf("%s/%s", EndpointMetadata, url.PathEscape(p.MetadataUUID))
	if err := c.do(ctx, request{method: http.MethodPatch, endpoint: endpoint, body: map[string]any{"json_data": p.JSONData}}, &raw); err != nil {
		return MetadataResult{}, err
	}
	return MetadataResult{UUID: p.MetadataUUID, Raw: raw}, nil
}

func (c *Client) DeleteMetadata(ctx context.Context, metadataUUID string) error {
	endpoint := fmt.Sprintf("%s/%s", EndpointMetadata, url.PathEscape(metadataUUID))
	return c.do(ctx, request{method: http.MethodDelete, endpoint: endpoint}, nil)
}

// Enroll asks an enroller backend to create the user's records. An empty url
// is a no-op.
func (c *Client) Enroll(ctx context.Context, enrollURL string) error {
	if enrollURL == "" {
		return nil
	}
	return c.do(ctx, request{method: http.MethodPost, fullURL: enrollURL}, nil)
}

type request struct {
	method    string
	endpoint  string
	fullURL   string
	params    url.Values
	body      any
	paginated bool
	offset    domain.Offset
}

func logRequest(endpoint string, q LogQuery) request {
	params := url.Values{}
	params.Set("offset_type", "created_before")
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	offset := q.Offset
	if offset.IsZero() {
		offset = LogOffsetStart
	}
	return request{
		method:    http.MethodPost,
		endpoint:  endpoint,
		params:    params,
		body:      map[string]any{"processing_record_uuid": q.RecordUUID},
		paginated: true,
		offset:    offset,
	}
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *Client) buildURL(r request) string {
	target := r.fullURL
	if target == "" {
		target = c.base() + "/" + strings.TrimLeft(r.endpoint, "/")
	}
	params := url.Values{}
	for k, v := range r.params {
		params[k] = v
	}
	if r.method == http.MethodPost && r.paginated {
		offset := string(r.offset)
		if offset == "" {
			offset = "0"
		}
		params.Set("offset", offset)
		params.Set("order_by", "created_desc")
	}
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	var reader io.Reader = http.NoBody
	if r.body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(r.body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.buildURL(r), reader)
	if err != nil {
		return err
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.Tokens != nil {
		token, err := c.Tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("read access token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	label := metricLabel(r)
	start := time.Now()
	resp, err := hc.Do(req)
	requestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(label, "error").Inc()
		return err
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger().WithField("endpoint", label).Info("re-authentication needed, logging out user")
		if c.OnUnauthorized != nil {
			c.OnUnauthorized(ctx)
		}
		return ErrAuthenticationNeeded
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", label, err)
		}
	}
	return nil
}

// metricLabel drops path parameters so label cardinality stays fixed.
func metricLabel(r request) string {
	if r.fullURL != "" {
		return "enroll"
	}
	for _, ep := range []string{EndpointRecordParticipant, EndpointRecord, EndpointMetadata} {
		if strings.HasPrefix(r.endpoint, ep+"/") {
			return ep
		}
	}
	return r.endpoint
}

func metadataUUID(raw map[string]any) string {
	if id, ok := raw["uuid"].(string); ok {
		return id
	}
	if metas, ok := raw["metadatas"].(map[string]any); ok && len(metas) == 1 {
		for id := range metas {
			return id
		}
	}
	return ""
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
