package server

import (
	"encoding/json"
	"time"

	"consentwallet/internal/domain"
	"consentwallet/internal/engine"
	"consentwallet/internal/form"
	"consentwallet/internal/records"
	"consentwallet/internal/timeline"
)

// Request payloads

type UserDataRequest struct {
	Values map[string]string `json:"values,omitempty"`
}

type DeclineTosRequest struct {
	ReturnURL string `json:"return_url,omitempty"`
}

// Response payloads

type ConsentItem struct {
	UUID              string    `json:"uuid"`
	RecordType        string    `json:"record_type"`
	Status            string    `json:"status"`
	StatusIcon        string    `json:"status_icon"`
	UserStatus        string    `json:"user_status"`
	Service           string    `json:"service"`
	Organization      string    `json:"organization"`
	Created           time.Time `json:"created"`
	PendingActivation bool      `json:"pending_activation"`
}

type ConsentDetail struct {
	ConsentItem
	Description      string            `json:"description,omitempty"`
	Provider         string            `json:"provider,omitempty"`
	ProviderOrg      string            `json:"provider_org,omitempty"`
	AcceptedLanguage string            `json:"accepted_language,omitempty"`
	InfoText         string            `json:"info_text,omitempty"`
	Actions          records.Actions   `json:"actions"`
	Fields           []form.Field      `json:"fields"`
	UserData         map[string]any    `json:"user_data,omitempty"`
	EditableFields   []form.Field      `json:"editable_fields"`
	Links            map[string]string `json:"links,omitempty"`
}

type LogResponse struct {
	Items      []timeline.LogItem `json:"items"`
	Notice     string             `json:"notice,omitempty"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type TosResponse struct {
	Pending []ConsentItem `json:"pending"`
}

type AcceptTosResponse struct {
	Accepted int `json:"accepted"`
}

type RedirectResponse struct {
	Redirect string `json:"redirect"`
}

type UserResponse struct {
	Subject     string   `json:"subject,omitempty"`
	Username    string   `json:"username"`
	Identifiers []string `json:"identifiers"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type OrphanResponse struct {
	MetadataUUID    string `json:"metadata_uuid"`
	RecordUUID      string `json:"record_uuid"`
	ParticipantUUID string `json:"participant_uuid"`
	Reason          string `json:"reason"`
	CreatedAt       string `json:"created_at"`
}

func consentItem(d domain.RecordData, lang string) ConsentItem {
	return ConsentItem{
		UUID:              d.Record.UUID,
		RecordType:        string(d.Record.RecordType),
		Status:            string(d.Record.Status),
		StatusIcon:        string(records.StatusIcon(string(d.Record.Status), d.UserParticipant.Status)),
		UserStatus:        string(d.UserParticipant.Status),
		Service:           records.Translate(d.Consumer, "name", lang, d.Metadatas).Value,
		Organization:      records.Translate(d.ConsumerOrg, "name", lang, d.Metadatas).Value,
		Created:           d.Record.Created.Time,
		PendingActivation: d.IsPendingUserActivation,
	}
}

func consentItems(data []domain.RecordData, lang string) []ConsentItem {
	out := make([]ConsentItem, 0, len(data))
	for _, d := range data {
		out = append(out, consentItem(d, lang))
	}
	return out
}

func consentDetail(e engine.Engine, det engine.Detail) ConsentDetail {
	d := det.Data
	out := ConsentDetail{
		ConsentItem:      consentItem(d, e.Lang),
		Description:      records.Translate(d.Consumer, "description", e.Lang, d.Metadatas).Value,
		AcceptedLanguage: d.AcceptedLanguage,
		InfoText:         det.InfoText,
		Actions:          det.Actions,
		Fields:           nonNilSlice(e.UserDataFields(det, false)),
		EditableFields:   nonNilSlice(e.UserDataFields(det, true)),
	}
	if d.Provider != nil {
		out.Provider = records.Translate(*d.Provider, "name", e.Lang, d.Metadatas).Value
	}
	if d.ProviderOrg != nil {
		out.ProviderOrg = records.Translate(*d.ProviderOrg, "name", e.Lang, d.Metadatas).Value
	}
	if det.UserData != nil {
		out.UserData = det.UserData.JSONData
	}
	links := map[string]string{}
	for _, typ := range []string{"privacy_policy", "terms_of_service", "website"} {
		if u := records.URL(d.Consumer, typ, d.Metadatas); u != "" {
			links[typ] = u
		}
	}
	if len(links) > 0 {
		out.Links = links
	}
	return out
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    decodeJSONMap(evt.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func orphanResponses(items []domain.OrphanedMetadata) []OrphanResponse {
	out := make([]OrphanResponse, 0, len(items))
	for _, o := range items {
		out = append(out, OrphanResponse{
			MetadataUUID:    o.MetadataUUID,
			RecordUUID:      o.RecordUUID,
			ParticipantUUID: o.ParticipantUUID,
			Reason:          o.Reason,
			CreatedAt:       o.CreatedAt,
		})
	}
	return out
}

func userResponse(u *domain.User) UserResponse {
	resp := UserResponse{Subject: u.Subject, Username: u.Username, Identifiers: []string{}}
	for _, id := range u.Identifiers {
		resp.Identifiers = append(resp.Identifiers, id.ID)
	}
	return resp
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
