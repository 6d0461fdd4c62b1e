// Package mdstest runs an in-memory MyDataShare API for tests.
package mdstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"consentwallet/internal/domain"
)

// Fixture identifiers.
const (
	IdentifierUUID = "ident-1"
	Subject        = "user-1"

	// RecordPending is a pending consent that needs no input.
	RecordPending = "rec-1"
	// RecordWithTemplate is a pending consent whose consumer asks for data.
	RecordWithTemplate = "rec-2"
	// RecordActive is an active consent with user data and a data provider.
	RecordActive = "rec-3"
	// RecordTos is pending service terms.
	RecordTos = "tos-1"
	// RecordBroken has no data subject participant.
	RecordBroken = "rec-bad"

	UserDataUUID = "meta-ud-3"
	ClientID     = "client-1"
	IDPID        = "suomifi"
	AuthItemName = "SUOMIFI"
)

// Patch is one participant status change received by the server.
type Patch struct {
	ParticipantUUID  string
	Status           string
	AcceptedLanguage string
}

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	Records     domain.RecordsBundle
	History     map[string]map[string]domain.HistoryItem
	Access      map[string]map[string]domain.AccessItem
	AuthItems   domain.AuthItemsBundle
	Identifiers domain.IdentifiersBundle
	// PageSize splits record listings and logs into pages when positive.
	PageSize int

	unauthorized bool
	failPatch    bool
	calls        map[string]int
	patches      []Patch
	created      []map[string]any
	deleted      []string
	enrolls      int
	metaSeq      int
}

// NewServer starts a server holding the fixture data.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{calls: map[string]int{}}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	s.seed()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count, s.gate)
	r.Post("/public/v3.0/auth_items", s.authItems)
	r.Post("/embedded_wallet/v3.0/identifiers", s.identifiers)
	r.Post("/embedded_wallet/v3.1/processing_records", s.listRecords)
	r.Get("/embedded_wallet/v3.1/processing_record/{uuid}", s.getRecord)
	r.Patch("/embedded_wallet/v3.1/processing_record_participant/{uuid}", s.patchParticipant)
	r.Post("/embedded_wallet/v3.1/processing_record_history_items", s.historyItems)
	r.Post("/wallet/v3.0/access_items", s.accessItems)
	r.Post("/embedded_wallet/v3.0/metadata", s.createMetadata)
	r.Patch("/embedded_wallet/v3.0/metadata/{uuid}", s.updateMetadata)
	r.Delete("/embedded_wallet/v3.0/metadata/{uuid}", s.deleteMetadata)
	r.Post("/enroll", s.enroll)
	r.Post("/token", s.token)
	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		deny := s.unauthorized && r.URL.Path != "/token"
		s.mu.Unlock()
		if deny {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetUnauthorized makes every API call answer 401.
func (s *Server) SetUnauthorized(v bool) {
	s.mu.Lock()
	s.unauthorized = v
	s.mu.Unlock()
}

// FailParticipantPatch makes participant updates answer 500.
func (s *Server) FailParticipantPatch(v bool) {
	s.mu.Lock()
	s.failPatch = v
	s.mu.Unlock()
}

// Calls returns how often path was requested.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) Patches() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Patch(nil), s.patches...)
}

// Created returns the bodies of created metadata.
func (s *Server) Created() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.created...)
}

func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func (s *Server) Enrolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrolls
}

// Record returns the current state of a record.
func (s *Server) Record(uuid string) domain.ProcessingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Records.ProcessingRecords[uuid]
}

// Metadata returns a stored metadata object.
func (s *Server) Metadata(uuid string) (domain.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Records.Metadatas[uuid]
	return m, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) authItems(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.AuthItems)
}

func (s *Server) identifiers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.Identifiers)
}

type searchTerms struct {
	Status     []string `json:"status"`
	RecordType []string `json:"record_type"`
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	var terms searchTerms
	if err := json.NewDecoder(r.Body).Decode(&terms); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, rec := range s.Records.ProcessingRecords {
		if len(terms.RecordType) > 0 && !contains(terms.RecordType, string(rec.RecordType)) {
			continue
		}
		if len(terms.Status) > 0 && !contains(terms.Status, string(rec.Status)) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	next := ""
	if s.PageSize > 0 {
		if offset > len(ids) {
			offset = len(ids)
		}
		end := offset + s.PageSize
		if end < len(ids) {
			next = strconv.Itoa(end)
		} else {
			end = len(ids)
		}
		ids = ids[offset:end]
	}
	b := s.bundleFor(ids)
	b.NextOffset = domain.Offset(next)
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) bundleFor(ids []string) domain.RecordsBundle {
	b := s.Records
	b.ProcessingRecords = map[string]domain.ProcessingRecord{}
	for _, id := range ids {
		b.ProcessingRecords[id] = s.Records.ProcessingRecords[id]
	}
	return b
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Records.ProcessingRecords[id]; !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.bundleFor([]string{id}))
}

func (s *Server) patchParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	var body struct {
		Status           string `json:"status"`
		AcceptedLanguage string `json:"accepted_language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPatch {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		return
	}
	p, ok := s.Records.Participants[id]
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	s.patches = append(s.patches, Patch{ParticipantUUID: id, Status: body.Status, AcceptedLanguage: body.AcceptedLanguage})
	p.Status = domain.ParticipantStatus(body.Status)
	p.AcceptedLanguage = body.AcceptedLanguage
	s.Records.Participants[id] = p
	if rec, ok := s.Records.ProcessingRecords[p.ProcessingRecordUUID]; ok {
		switch p.Status {
		case domain.ParticipantActive:
			rec.Status = domain.RecordActive
		case domain.ParticipantDeclined:
			rec.Status = domain.RecordDeclined
		}
		s.Records.ProcessingRecords[rec.UUID] = rec
	}
	writeJSON(w, http.StatusOK, map[string]any{"uuid": id, "status": body.Status})
}

type logBody struct {
	RecordUUID string `json:"processing_record_uuid"`
}

// logPage returns the ids created before the offset, newest first, cut to
// PageSize with the created_before cursor of the next page.
func (s *Server) logPage(r *http.Request, created map[string]time.Time) ([]string, domain.Offset) {
	before := time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC)
	if ts, err := domain.ParseTimestamp(r.URL.Query().Get("offset")); err == nil && !ts.IsZero() {
		before = ts.Time
	}
	var ids []string
	for id, at := range created {
		if at.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return created[ids[i]].After(created[ids[j]]) })
	if s.PageSize <= 0 || len(ids) <= s.PageSize {
		return ids, ""
	}
	ids = ids[:s.PageSize]
	return ids, domain.OffsetFromTime(created[ids[len(ids)-1]])
}

func (s *Server) historyItems(w http.ResponseWriter, r *http.Request) {
	var body logBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.History[body.RecordUUID]
	created := map[string]time.Time{}
	for id, it := range all {
		created[id] = it.Created.Time
	}
	ids, next := s.logPage(r, created)
	b := domain.HistoryBundle{HistoryItems: map[string]domain.HistoryItem{}, NextOffset: next}
	for _, id := range ids {
		b.HistoryItems[id] = all[id]
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) accessItems(w http.ResponseWriter, r *http.Request) {
	var body logBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.Access[body.RecordUUID]
	created := map[string]time.Time{}
	for id, it := range all {
		created[id] = it.Created.Time
	}
	ids, next := s.logPage(r, created)
	b := domain.AccessBundle{AccessItems: map[string]domain.AccessItem{}, NextOffset: next}
	for _, id := range ids {
		b.AccessItems[id] = all[id]
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) createMetadata(w http.ResponseWriter, r *http.Request) {
	var m domain.Metadata
	raw := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, _ := json.Marshal(raw)
	_ = json.Unmarshal(data, &m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metaSeq++
	m.UUID = fmt.Sprintf("meta-new-%d", s.metaSeq)
	s.created = append(s.created, raw)
	s.Records.Metadatas[m.UUID] = m
	if rec, ok := s.Records.ProcessingRecords[m.ModelUUID]; ok {
		rec.MetadataUUIDs = append(rec.MetadataUUIDs, m.UUID)
		s.Records.ProcessingRecords[rec.UUID] = rec
	}
	writeJSON(w, http.StatusCreated, map[string]any{"uuid": m.UUID})
}

func (s *Server) updateMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	var body struct {
		JSONData map[string]any `json:"json_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Records.Metadatas[id]
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	m.JSONData = body.JSONData
	s.Records.Metadatas[id] = m
	writeJSON(w, http.StatusOK, map[string]any{"uuid": id})
}

func (s *Server) deleteMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	m, ok := s.Records.Metadatas[id]
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	delete(s.Records.Metadatas, id)
	if rec, ok := s.Records.ProcessingRecords[m.ModelUUID]; ok {
		refs := rec.MetadataUUIDs[:0]
		for _, ref := range rec.MetadataUUIDs {
			if ref != id {
				refs = append(refs, ref)
			}
		}
		rec.MetadataUUIDs = refs
		s.Records.ProcessingRecords[rec.UUID] = rec
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) enroll(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.enrolls++
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("code") == "" || r.PostForm.Get("code_verifier") == "" {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "at-" + r.PostForm.Get("code"),
		"token_type":   "Bearer",
		"id_token":     IDToken(),
	})
}

// IDToken returns a signed id token for the fixture user.
func IDToken() string {
	claims := jwt.MapClaims{
		"sub":         Subject,
		"given_name":  "Maija",
		"family_name": "Mallikas",
		"exp":         time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("mdstest"))
	if err != nil {
		panic(err)
	}
	return tok
}

// Endpoint joins the server URL and path.
func (s *Server) Endpoint(path string) string {
	return s.Server.URL + "/" + strings.TrimLeft(path, "/")
}
