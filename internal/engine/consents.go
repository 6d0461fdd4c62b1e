package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"consentwallet/internal/cache"
	"consentwallet/internal/domain"
	"consentwallet/internal/events"
	"consentwallet/internal/form"
	"consentwallet/internal/paginate"
	"consentwallet/internal/records"
	"consentwallet/internal/timeline"
	mdssdk "consentwallet/sdk/go"
)

// ListRecordTypes are the record types shown in the consent list.
var ListRecordTypes = []domain.RecordType{
	domain.RecordTypeConsent,
	domain.RecordTypeLegalObligation,
	domain.RecordTypeLegitimateInterest,
}

func termsKey(op string, terms mdssdk.SearchTerms) cache.Key {
	types := make([]string, 0, len(terms.RecordType))
	for _, t := range terms.RecordType {
		types = append(types, string(t))
	}
	statuses := make([]string, 0, len(terms.Status))
	for _, s := range terms.Status {
		statuses = append(statuses, string(s))
	}
	return cache.NewKey(op, "record_type", strings.Join(types, ","), "status", strings.Join(statuses, ","))
}

func recordKey(recordUUID string) cache.Key {
	return cache.NewKey(cache.OpProcessingRecord, "uuid", recordUUID)
}

func (e Engine) searchRecords(ctx context.Context, key cache.Key, terms mdssdk.SearchTerms, staleTime time.Duration) ([]domain.RecordData, error) {
	user, err := e.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	bundle, err := cache.GetOrFetch(ctx, e.Cache, key, staleTime, func(ctx context.Context) (domain.RecordsBundle, error) {
		return paginate.All(ctx, func(ctx context.Context, offset domain.Offset) (domain.RecordsBundle, error) {
			return e.Client.ProcessingRecords(ctx, terms, offset)
		}, "")
	})
	if err != nil {
		return nil, err
	}
	data, err := records.FromBundle(bundle, user)
	if err != nil {
		return nil, e.contract(ctx, err)
	}
	return data, nil
}

// ListRecords returns every consent, legal obligation and legitimate
// interest record of the user in list order.
func (e Engine) ListRecords(ctx context.Context) ([]domain.RecordData, error) {
	terms := mdssdk.SearchTerms{RecordType: ListRecordTypes}
	data, err := e.searchRecords(ctx, termsKey(cache.OpProcessingRecords, terms), terms, e.staleTime())
	if err != nil {
		return nil, err
	}
	return records.SortForList(data), nil
}

// Detail is everything the record detail view needs.
type Detail struct {
	Data     domain.RecordData
	Actions  records.Actions
	InfoText string
	// Template is set when the consumer asks for user provided data.
	Template *records.Template
	// UserData is the data the user already gave for the record.
	UserData *domain.Metadata
}

// GetRecord fetches one record with its participants and metadata.
func (e Engine) GetRecord(ctx context.Context, recordUUID string) (Detail, error) {
	user, err := e.requireUser(ctx)
	if err != nil {
		return Detail{}, err
	}
	bundle, err := cache.GetOrFetch(ctx, e.Cache, recordKey(recordUUID), e.staleTime(), func(ctx context.Context) (domain.RecordsBundle, error) {
		return e.Client.ProcessingRecord(ctx, recordUUID)
	})
	if err != nil {
		return Detail{}, err
	}
	data, err := records.FromBundle(bundle, user)
	if err != nil {
		return Detail{}, e.contract(ctx, err)
	}
	for _, d := range data {
		if d.Record.UUID == recordUUID {
			return e.detail(d), nil
		}
	}
	return Detail{}, fmt.Errorf("%w: %s", ErrRecordNotFound, recordUUID)
}

func (e Engine) detail(d domain.RecordData) Detail {
	out := Detail{
		Data:     d,
		Actions:  records.ResolveActions(d, e.now()),
		InfoText: e.InfoText(d),
	}
	if tpl, ok := records.UserProvidedDataTemplate(d.Consumer, d.Metadatas); ok {
		out.Template = &tpl
	}
	if m, ok := records.UserProvidedData(d); ok {
		out.UserData = &m
	}
	return out
}

// UserDataFields are the inputs of the accept form, or with editing set,
// the inputs of the data the user already gave.
func (e Engine) UserDataFields(d Detail, editing bool) []form.Field {
	if d.Template == nil || records.ValidateTemplate(*d.Template) != nil {
		return nil
	}
	fields := form.FieldsFromTemplate(*d.Template, e.alpha3())
	if !editing {
		return fields
	}
	if d.UserData == nil {
		return nil
	}
	out := fields[:0]
	for _, f := range fields {
		if _, ok := d.UserData.JSONData[f.Name]; ok {
			out = append(out, f)
		}
	}
	return out
}

// acceptLanguage is the alpha-3 language the consumer texts were shown in.
func (e Engine) acceptLanguage(d domain.RecordData) string {
	return records.Translate(d.Consumer, "name", e.Lang, d.Metadatas).Lang
}

func (e Engine) invalidateRecord(recordUUID string) {
	e.Cache.Invalidate(recordKey(recordUUID))
	e.Cache.InvalidateOp(cache.OpProcessingRecords)
	e.Cache.InvalidateOp(cache.OpHistoryItems)
}

// Accept activates the user's participation in a record that needs no
// additional input.
func (e Engine) Accept(ctx context.Context, recordUUID string) (Detail, error) {
	d, err := e.GetRecord(ctx, recordUUID)
	if err != nil {
		return Detail{}, err
	}
	if !d.Actions.CanAccept {
		return Detail{}, ErrActionNotAllowed
	}
	if d.Actions.NeedsInput {
		return Detail{}, ErrInputRequired
	}
	lang := e.acceptLanguage(d.Data)
	if _, err := e.Client.UpdateParticipant(ctx, mdssdk.ParticipantUpdate{
		UUID:      d.Data.UserParticipant.UUID,
		NewStatus: domain.ParticipantActive,
		Language:  lang,
	}); err != nil {
		return Detail{}, fmt.Errorf("accept record: %w", err)
	}
	e.invalidateRecord(recordUUID)
	e.journal(ctx, events.TypeConsentAccepted, events.KindRecord, recordUUID, events.EventPayload{
		"participant_uuid": d.Data.UserParticipant.UUID,
		"language":         lang,
	})
	return e.GetRecord(ctx, recordUUID)
}

// AcceptWithData creates the user provided data and then activates the
// participation. If activation fails the created metadata stays behind and
// is recorded as orphaned.
func (e Engine) AcceptWithData(ctx context.Context, recordUUID string, values map[string]string, n form.Notifier) (Detail, error) {
	d, err := e.GetRecord(ctx, recordUUID)
	if err != nil {
		return Detail{}, err
	}
	if !d.Actions.CanAccept {
		return Detail{}, ErrActionNotAllowed
	}
	if !d.Actions.NeedsInput {
		return Detail{}, ErrNoInputRequired
	}
	participant := d.Data.UserParticipant.UUID
	lang := e.acceptLanguage(d.Data)
	mutate := func(ctx context.Context, p mdssdk.MetadataPayload) (map[string]any, error) {
		created, err := e.Client.CreateMetadata(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("create user provided data: %w", err)
		}
		e.journal(ctx, events.TypeUserDataCreated, events.KindMetadata, created.UUID, events.EventPayload{"record_uuid": recordUUID})
		res, err := e.Client.UpdateParticipant(ctx, mdssdk.ParticipantUpdate{
			UUID:      participant,
			NewStatus: domain.ParticipantActive,
			Language:  lang,
		})
		if err != nil {
			e.recordOrphan(ctx, domain.OrphanedMetadata{
				MetadataUUID:    created.UUID,
				RecordUUID:      recordUUID,
				ParticipantUUID: participant,
				Reason:          err.Error(),
			})
			return nil, fmt.Errorf("accept record: %w", err)
		}
		e.journal(ctx, events.TypeConsentAccepted, events.KindRecord, recordUUID, events.EventPayload{
			"participant_uuid": participant,
			"language":         lang,
			"metadata_uuid":    created.UUID,
		})
		return res, nil
	}
	f := form.New(e.UserDataFields(d, false), nil, form.UserDataPayload(recordUUID, ""), mutate, form.Options{
		Cache:          e.Cache,
		InvalidateOps:  []string{cache.OpProcessingRecords, cache.OpHistoryItems},
		InvalidateKeys: []cache.Key{recordKey(recordUUID)},
		Notifier:       n,
		SuccessMessage: e.Tr.T("Permission request active", nil),
		Translator:     e.Tr,
	})
	if err := setAll(f, values); err != nil {
		return Detail{}, err
	}
	if _, err := f.Submit(ctx); err != nil {
		return Detail{}, err
	}
	return e.GetRecord(ctx, recordUUID)
}

func (e Engine) recordOrphan(ctx context.Context, o domain.OrphanedMetadata) {
	if o.MetadataUUID == "" {
		e.Log.WithField("record_uuid", o.RecordUUID).Warn("created user data has no uuid, cannot record it as orphaned")
		return
	}
	o.CreatedAt = e.now().UTC().Format(time.RFC3339)
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertOrphanTx(ctx, tx, o); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TypeUserDataOrphaned, events.KindMetadata, o.MetadataUUID, e.Session.ActorID(),
			events.EventPayload{"record_uuid": o.RecordUUID, "participant_uuid": o.ParticipantUUID, "reason": o.Reason})
	})
	if err != nil {
		e.Log.WithError(err).WithField("metadata_uuid", o.MetadataUUID).Error("could not record orphaned user data")
	}
}

func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Decline declines the user's participation and deletes the user provided
// data given for the record.
func (e Engine) Decline(ctx context.Context, recordUUID string) (Detail, error) {
	d, err := e.GetRecord(ctx, recordUUID)
	if err != nil {
		return Detail{}, err
	}
	if !d.Actions.CanDecline {
		return Detail{}, ErrActionNotAllowed
	}
	if _, err := e.Client.UpdateParticipant(ctx, mdssdk.ParticipantUpdate{
		UUID:      d.Data.UserParticipant.UUID,
		NewStatus: domain.ParticipantDeclined,
	}); err != nil {
		return Detail{}, fmt.Errorf("decline record: %w", err)
	}
	e.invalidateRecord(recordUUID)
	e.journal(ctx, events.TypeConsentDeclined, events.KindRecord, recordUUID, events.EventPayload{
		"participant_uuid": d.Data.UserParticipant.UUID,
	})
	if d.UserData != nil {
		if err := e.Client.DeleteMetadata(ctx, d.UserData.UUID); err != nil {
			return Detail{}, fmt.Errorf("delete user provided data: %w", err)
		}
		e.journal(ctx, events.TypeUserDataDeleted, events.KindMetadata, d.UserData.UUID, events.EventPayload{"record_uuid": recordUUID})
	}
	return e.GetRecord(ctx, recordUUID)
}

// UpdateUserData edits the data the user gave for an active record. Only
// changed values are required; unchanged ones are sent as they were.
func (e Engine) UpdateUserData(ctx context.Context, recordUUID string, values map[string]string, n form.Notifier) (Detail, error) {
	d, err := e.GetRecord(ctx, recordUUID)
	if err != nil {
		return Detail{}, err
	}
	fields := e.UserDataFields(d, true)
	if d.Data.Record.Status != domain.RecordActive || d.UserData == nil || len(fields) == 0 {
		return Detail{}, ErrNoUserData
	}
	metaUUID := d.UserData.UUID
	mutate := func(ctx context.Context, p mdssdk.MetadataPayload) (map[string]any, error) {
		res, err := e.Client.UpdateMetadata(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("update user provided data: %w", err)
		}
		e.journal(ctx, events.TypeUserDataUpdated, events.KindMetadata, metaUUID, events.EventPayload{"record_uuid": recordUUID})
		return res.Raw, nil
	}
	f := form.New(fields, d.UserData.JSONData, form.UserDataPayload(recordUUID, metaUUID), mutate, form.Options{
		Cache:          e.Cache,
		InvalidateKeys: []cache.Key{recordKey(recordUUID)},
		Notifier:       n,
		SuccessMessage: e.Tr.T("User provided data updated", nil),
		Translator:     e.Tr,
	})
	if err := setAll(f, values); err != nil {
		return Detail{}, err
	}
	if _, err := f.Submit(ctx); err != nil {
		return Detail{}, err
	}
	return e.GetRecord(ctx, recordUUID)
}

func setAll[P any](f *form.Form[P], values map[string]string) error {
	for name, v := range values {
		if err := f.Set(name, v); err != nil {
			return fmt.Errorf("%w: %s", err, name)
		}
	}
	return nil
}

// Orphans lists user provided data left behind by failed activations.
func (e Engine) Orphans(ctx context.Context, recordUUID string) ([]domain.OrphanedMetadata, error) {
	return e.Repo.ListOrphans(ctx, recordUUID, true)
}

// DiscardOrphan deletes orphaned user provided data from the API and marks
// it resolved.
func (e Engine) DiscardOrphan(ctx context.Context, metadataUUID string) error {
	if err := e.Client.DeleteMetadata(ctx, metadataUUID); err != nil {
		return fmt.Errorf("delete orphaned user data: %w", err)
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.ResolveOrphanTx(ctx, tx, metadataUUID, e.now()); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TypeUserDataDeleted, events.KindMetadata, metadataUUID, e.Session.ActorID(),
			events.EventPayload{"orphan": true})
	})
}

// LogView is a rendered timeline.
type LogView struct {
	Items  []timeline.LogItem `json:"items"`
	Notice string             `json:"notice,omitempty"`

	// NextCursor resumes a paged read; empty once the log is exhausted.
	NextCursor domain.Offset `json:"next_cursor,omitempty"`
}

func nextCursor[T paginate.Page[T]](feed *paginate.Feed[T]) domain.Offset {
	if !feed.HasMore() {
		return ""
	}
	return feed.Cursor()
}

func (e Engine) builder() timeline.Builder {
	return timeline.Builder{Tr: e.Tr, Log: e.Log, Lang: e.Lang}
}

// EventLog builds the status change timeline of a record.
func (e Engine) EventLog(ctx context.Context, recordUUID string) (LogView, error) {
	d, err := e.GetRecord(ctx, recordUUID)
	if err != nil {
		return LogView{}, err
	}
	key := cache.NewKey(cache.OpHistoryItems, "uuid", recordUUID)
	bundle, err := cache.GetOrFetch(ctx, e.Cache, key, e.staleTime(), func(ctx context.Context) (domain.HistoryBundle, error) {
		return paginate.All(ctx, func(ctx context.Context, offset domain.Offset) (domain.HistoryBundle, error) {
			return e.Client.HistoryItems(ctx, mdssdk.LogQuery{RecordUUID: recordUUID, Offset: offset})
		}, "")
	})
	if err != nil {
		return LogView{}, err
	}
	b := e.builder()
	return LogView{
		Items:  b.EventLog(d.Data, bundle.HistoryItems),
		Notice: b.LegacyNotice(d.Data.Record, e.Config.LegacyCutoff()),
	}, nil
}

// AccessLog builds the data access timeline of a record that has a
// data provider.
func (e Engine) AccessLog(ctx context.Context, recordUUID string) (LogView, error) {
	d, err := e.GetRecord(ctx, recordUUID)
	if err != nil {
		return LogView{}, err
	}
	if d.Data.Provider == nil {
		return LogView{}, ErrNoAccessLog
	}
	key := cache.NewKey(cache.OpAccessItems, "uuid", recordUUID)
	bundle, err := cache.GetOrFetch(ctx, e.Cache, key, e.staleTime(), func(ctx context.Context) (domain.AccessBundle, error) {
		return paginate.All(ctx, func(ctx context.Context, offset domain.Offset) (domain.AccessBundle, error) {
			return e.Client.AccessItems(ctx, mdssdk.LogQuery{RecordUUID: recordUUID, Offset: offset})
		}, "")
	})
	if err != nil {
		return LogView{}, err
	}
	return LogView{Items: e.builder().AccessLog(d.Data, bundle.AccessItems)}, nil
}

// EventLogPage reads pages of the status change timeline starting at
// cursor, newest first. An empty cursor starts at the newest entry. Paged
// reads bypass the cache.
func (e Engine) EventLogPage(ctx context.Context, recordUUID string, cursor domain.Offset, pages int) (LogView, error) {
	d, err := e.GetRecord(ctx, recordUUID)
	if err != nil {
		return LogView{}, err
	}
	feed := paginate.NewFeed(func(ctx context.Context, offset domain.Offset) (domain.HistoryBundle, error) {
		return e.Client.HistoryItems(ctx, mdssdk.LogQuery{RecordUUID: recordUUID, Offset: offset})
	}, cursor)
	bundle, err := feed.LoadPages(ctx, pages)
	if err != nil {
		return LogView{}, err
	}
	b := e.builder()
	view := LogView{Items: b.EventLog(d.Data, bundle.HistoryItems), NextCursor: nextCursor(feed)}
	if view.NextCursor.IsZero() {
		view.Notice = b.LegacyNotice(d.Data.Record, e.Config.LegacyCutoff())
	}
	return view, nil
}

// AccessLogPage is EventLogPage for the data access timeline.
func (e Engine) AccessLogPage(ctx context.Context, recordUUID string, cursor domain.Offset, pages int) (LogView, error) {
	d, err := e.GetRecord(ctx, recordUUID)
	if err != nil {
		return LogView{}, err
	}
	if d.Data.Provider == nil {
		return LogView{}, ErrNoAccessLog
	}
	feed := paginate.NewFeed(func(ctx context.Context, offset domain.Offset) (domain.AccessBundle, error) {
		return e.Client.AccessItems(ctx, mdssdk.LogQuery{RecordUUID: recordUUID, Offset: offset})
	}, cursor)
	bundle, err := feed.LoadPages(ctx, pages)
	if err != nil {
		return LogView{}, err
	}
	return LogView{Items: e.builder().AccessLog(d.Data, bundle.AccessItems), NextCursor: nextCursor(feed)}, nil
}
