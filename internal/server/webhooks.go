package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"consentwallet/internal/config"
	"consentwallet/internal/domain"
	"consentwallet/internal/engine"
	"consentwallet/internal/events"
)

const (
	webhookInterval = 2 * time.Second
	webhookTimeout  = 5 * time.Second
	webhookBatch    = 100
)

var webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cw_webhook_deliveries_total",
	Help: "Journal events posted to webhooks by result.",
}, []string{"result"})

// hook is one enabled webhook with its delivery cursor. A cursor of -1
// means it has not been positioned yet.
type hook struct {
	url    string
	secret string
	accept map[string]bool
	client *http.Client

	mu     sync.Mutex
	cursor int64
}

func (h *hook) wants(evtType string) bool {
	return len(h.accept) == 0 || h.accept[evtType]
}

type webhookDispatcher struct {
	engine engine.Engine
	hooks  []*hook
	log    logrus.FieldLogger
}

// StartWebhookDispatcher forwards journal events written after startup to
// the configured webhooks until ctx is done.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine, log logrus.FieldLogger) {
	d := newWebhookDispatcher(e, log)
	if d == nil {
		return
	}
	go d.run(ctx)
}

func newWebhookDispatcher(e engine.Engine, log logrus.FieldLogger) *webhookDispatcher {
	if e.Config == nil {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	var hooks []*hook
	for _, wh := range e.Config.Notifications.Webhooks {
		if h := newHook(wh); h != nil {
			hooks = append(hooks, h)
		}
	}
	if len(hooks) == 0 {
		return nil
	}
	return &webhookDispatcher{engine: e, hooks: hooks, log: log.WithField("component", "webhooks")}
}

func newHook(wh config.WebhookConfig) *hook {
	if wh.Enabled != nil && !*wh.Enabled {
		return nil
	}
	if strings.TrimSpace(wh.URL) == "" {
		return nil
	}
	timeout := webhookTimeout
	if wh.TimeoutSeconds > 0 {
		timeout = time.Duration(wh.TimeoutSeconds) * time.Second
	}
	h := &hook{
		url:    wh.URL,
		secret: strings.TrimSpace(wh.Secret),
		accept: map[string]bool{},
		client: &http.Client{Timeout: timeout},
		cursor: -1,
	}
	for _, t := range wh.Events {
		if t = strings.TrimSpace(t); t != "" {
			h.accept[t] = true
		}
	}
	return h
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(webhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for _, h := range d.hooks {
		d.dispatch(ctx, h)
	}
}

// dispatch posts the hook's pending events in journal order. Delivery stops
// at the first failure and resumes from that event on the next tick.
func (d *webhookDispatcher) dispatch(ctx context.Context, h *hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor < 0 {
		latest, err := d.engine.Repo.LatestEventID(ctx)
		if err != nil {
			d.log.WithError(err).Warn("position cursor failed")
			return
		}
		h.cursor = latest
	}
	batch, err := d.engine.Repo.EventsAfter(ctx, webhookBatch, h.cursor)
	if err != nil {
		d.log.WithError(err).Warn("fetch events failed")
		return
	}
	for _, evt := range batch {
		if h.wants(evt.Type) {
			if err := d.post(ctx, h, evt); err != nil {
				webhookDeliveries.WithLabelValues("failed").Inc()
				d.log.WithError(err).WithFields(logrus.Fields{"url": h.url, "event_id": evt.ID}).Warn("deliver failed")
				return
			}
			webhookDeliveries.WithLabelValues("delivered").Inc()
		}
		h.cursor = evt.ID
	}
}

type webhookEvent struct {
	DeliveryID string         `json:"delivery_id"`
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	RecordUUID string         `json:"record_uuid,omitempty"`
	ActorID    string         `json:"actor_id"`
	TS         string         `json:"ts"`
	Payload    map[string]any `json:"payload"`
}

func newWebhookEvent(evt domain.Event) webhookEvent {
	out := webhookEvent{
		DeliveryID: uuid.NewString(),
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    decodeJSONMap(evt.Payload),
	}
	if evt.EntityKind == events.KindRecord {
		out.RecordUUID = evt.EntityID
	} else if s, ok := out.Payload["record_uuid"].(string); ok {
		out.RecordUUID = s
	}
	return out
}

// signature is the hex HMAC-SHA256 of body under secret.
func signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *webhookDispatcher) post(ctx context.Context, h *hook, evt domain.Event) error {
	body := newWebhookEvent(evt)
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Consentwallet-Event", evt.Type)
	req.Header.Set("X-Consentwallet-Delivery", body.DeliveryID)
	if h.secret != "" {
		req.Header.Set("X-Consentwallet-Signature", signature(h.secret, data))
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
