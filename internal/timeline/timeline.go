// Package timeline turns history and access items of a processing record
// into the log entries shown to the user.
package timeline

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"consentwallet/internal/domain"
	"consentwallet/internal/i18n"
	"consentwallet/internal/icon"
	"consentwallet/internal/records"
)

// LogItem is one rendered entry. Date is nil when the source had none.
type LogItem struct {
	Key   string     `json:"key"`
	Date  *time.Time `json:"date"`
	Icon  icon.Icon  `json:"icon"`
	Title string     `json:"title"`
	Text  string     `json:"text"`
}

// undated sorts entries without a date as if they were the newest.
var undated = time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Builder holds what log construction needs besides its input.
type Builder struct {
	Tr  i18n.Translator
	Log logrus.FieldLogger
	// Lang selects organization name translations; empty uses defaults.
	Lang string
}

func (b Builder) logger() logrus.FieldLogger {
	if b.Log != nil {
		return b.Log
	}
	return logrus.StandardLogger()
}

func (b Builder) t(key string, params map[string]string) string {
	return b.Tr.T(key, params)
}

func (b Builder) orgName(org *domain.Organization, metadatas map[string]domain.Metadata) string {
	if org == nil {
		return ""
	}
	return records.Translate(*org, "name", b.Lang, metadatas).Value
}

// EventLog builds the event log of a record, newest first.
func (b Builder) EventLog(d domain.RecordData, items map[string]domain.HistoryItem) []LogItem {
	consumerOrg := d.ConsumerOrg
	consumerOrgName := b.orgName(&consumerOrg, d.Metadatas)
	providerOrgName := b.orgName(d.ProviderOrg, d.Metadatas)
	providerOrgUUID := ""
	if d.ProviderOrg != nil {
		providerOrgUUID = d.ProviderOrg.UUID
	}

	isWithdrawn := d.Record.TerminalStatus == domain.TerminalWithdrawn
	isExpired := d.Record.Status == domain.RecordExpired
	inTerminalState := isWithdrawn || isExpired

	var derived []LogItem
	for _, item := range sortedHistory(items) {
		addSubText := !inTerminalState && len(derived) == 0
		li, ok := b.historyItem(d, item, addSubText, consumerOrg.UUID, consumerOrgName, providerOrgUUID, providerOrgName)
		if ok {
			derived = append(derived, li)
		}
	}

	var out []LogItem
	if isWithdrawn {
		out = append(out, LogItem{
			Key:   "withdrawn",
			Date:  d.Record.TerminalStateActivated.Ptr(),
			Icon:  icon.Icon{Tone: icon.ToneNeutral, Glyph: records.StatusIcon(string(domain.RecordWithdrawn), "")},
			Title: b.t("permission withdrawn", map[string]string{"actor": consumerOrgName}),
			Text:  b.t("data access withdrawn", map[string]string{"consumerOrg": consumerOrgName}),
		})
	}
	if isExpired {
		kind := "record"
		if d.Record.RecordType == domain.RecordTypeConsent {
			kind = "request"
		}
		out = append(out, LogItem{
			Key:   "expired",
			Date:  d.Record.Expires.Ptr(),
			Icon:  icon.Icon{Tone: icon.ToneNeutral, Glyph: records.StatusIcon(string(domain.RecordExpired), "")},
			Title: b.t(kind+" expired", nil),
			Text:  b.t("permission "+kind+" expired", nil),
		})
	}
	out = append(out, derived...)
	out = append(out, b.createdItem(d, consumerOrgName))
	sortNewestFirst(out)
	return out
}

func (b Builder) createdItem(d domain.RecordData, actor string) LogItem {
	li := LogItem{Key: "created", Date: d.Record.Created.Ptr(), Icon: icon.Info}
	if d.Record.RecordType.IsLegalBasis() {
		li.Title = b.t("record created", nil)
		li.Text = b.t("created the permission record", map[string]string{"actor": actor})
	} else {
		li.Title = b.t("request created", nil)
		li.Text = b.t("created the permission request", map[string]string{"actor": actor})
	}
	return li
}

func (b Builder) historyItem(d domain.RecordData, item domain.HistoryItem, addSubText bool,
	consumerOrgUUID, consumerOrgName, providerOrgUUID, providerOrgName string) (LogItem, bool) {
	var title, text string
	ic := icon.Info
	isUser := item.ParticipantUUID == d.UserParticipant.UUID

	participantName := ""
	if p, ok := d.Participants[item.ParticipantUUID]; ok {
		participantName = p.IdentifierDisplayName
		if participantName == "" {
			participantName = b.t("labelOtherParticipant", nil)
		}
	}
	tt := func(s string, params map[string]string) string {
		who := "participant "
		if isUser {
			who = "user "
		}
		return b.t(who+s, params)
	}

	var actor string
	switch item.Domain {
	case domain.DomainAdmin:
		actor = b.t("Admin", nil)
	case domain.DomainOrganization:
		actor = consumerOrgName
	}

	isAnyWallet := item.Domain == domain.DomainWallet || item.Domain == domain.DomainEmbeddedWallet
	isExtWallet := item.Domain == domain.DomainEmbeddedWallet
	orgActor := ""
	if item.OrganizationUUID != "" {
		switch item.OrganizationUUID {
		case consumerOrgUUID:
			orgActor = consumerOrgName
		case providerOrgUUID:
			orgActor = providerOrgName
		}
	}
	oldStatus := b.t(item.OldParticipantStatus, nil)
	newStatus := b.t(item.NewParticipantStatus, nil)

	switch {
	case item.Domain == domain.DomainAdmin || (item.OrganizationUUID != "" && !isExtWallet):
		title = b.t("changed permission status", map[string]string{"actor": actor, "oldStatus": oldStatus, "newStatus": newStatus})
	case isAnyWallet:
		inService := ""
		params := map[string]string{"name": participantName}
		changed := map[string]string{"name": participantName, "oldStatus": oldStatus, "newStatus": newStatus}
		if isExtWallet {
			inService = " in service"
			params["consumerOrg"] = orgActor
			changed["consumerOrg"] = orgActor
		}
		title = tt("changed permission status"+inService, changed)
		oldPrp, newPrp := item.OldParticipantStatus, item.NewParticipantStatus
		newDerived := item.NewDerivedStatus
		active, declined, pending := string(domain.RecordActive), string(domain.RecordDeclined), string(domain.RecordPending)
		switch {
		case (oldPrp == pending || oldPrp == declined) && newPrp == active:
			title = tt("granted consent"+inService, params)
			ic = icon.Icon{Tone: icon.TonePositive, Glyph: icon.CircleCheck}
			if addSubText && newDerived == active {
				text = b.t("data access allowed", map[string]string{"consumerOrg": consumerOrgName})
			}
		case oldPrp == pending && newPrp == declined:
			title = tt("declined consent"+inService, params)
			ic = icon.Icon{Tone: icon.ToneNegative, Glyph: icon.CircleXmark}
			if addSubText && newDerived == declined {
				text = b.t("data access declined", map[string]string{"consumerOrg": consumerOrgName})
			}
		case oldPrp == active && newPrp == declined:
			title = tt("canceled consent"+inService, params)
			ic = icon.Icon{Tone: icon.ToneNegative, Glyph: icon.Ban}
			if addSubText && newDerived == declined {
				text = b.t("data access canceled", map[string]string{"consumerOrg": consumerOrgName})
			}
		}
	default:
		b.logger().WithFields(logrus.Fields{"item_uuid": item.UUID, "domain": item.Domain}).Warn("unknown history item actor, skipping")
		return LogItem{}, false
	}

	if title == "" && text == "" {
		b.logger().WithField("item_uuid", item.UUID).Warn("could not build event text, skipping")
		return LogItem{}, false
	}

	if item.OldDerivedStatus != item.NewDerivedStatus {
		if text == "" {
			text = b.t("textRequestStatusChanged"+i18n.Capitalize(item.NewDerivedStatus), nil)
		}
	} else if text == "" {
		text = b.t("textRequestStatusRemains"+i18n.Capitalize(item.NewDerivedStatus), nil)
		ic = icon.Info
	}
	// A participant change that did not move the record keeps the info icon.
	if item.NewDerivedStatus != item.NewParticipantStatus {
		ic = icon.Info
	}

	return LogItem{Key: item.UUID, Date: item.Created.Ptr(), Icon: ic, Title: title, Text: text}, true
}

// AccessLog builds the data access log, newest first. Only introspections
// and successful completions are shown.
func (b Builder) AccessLog(d domain.RecordData, items map[string]domain.AccessItem) []LogItem {
	consumerOrg := d.ConsumerOrg
	orgName := b.orgName(&consumerOrg, d.Metadatas)
	params := map[string]string{"consumerOrg": orgName}
	granted := func(item domain.AccessItem) LogItem {
		return LogItem{
			Key: item.UUID, Date: item.Created.Ptr(),
			Icon:  icon.Icon{Tone: icon.TonePositive, Glyph: icon.LockOpen},
			Title: b.t("Access Granted", nil),
			Text:  b.t("Access To Data Granted", params),
		}
	}

	var out []LogItem
	for _, item := range sortedAccess(items) {
		switch item.Status {
		case domain.AccessIntrospected:
			if item.IntrospectionStatus == domain.RecordActive {
				out = append(out, granted(item))
				continue
			}
			out = append(out, LogItem{
				Key: item.UUID, Date: item.Created.Ptr(),
				Icon:  icon.Icon{Tone: icon.ToneNegative, Glyph: icon.Lock},
				Title: b.t("Access Denied", nil),
				Text:  b.t("Access To Data Denied", params),
			})
		case domain.AccessCompleted:
			if item.Success {
				out = append(out, granted(item))
			}
		}
	}
	return out
}

func sortedHistory(items map[string]domain.HistoryItem) []domain.HistoryItem {
	out := make([]domain.HistoryItem, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].Created.Ptr(), out[j].Created.Ptr(), out[i].UUID, out[j].UUID)
	})
	return out
}

func sortedAccess(items map[string]domain.AccessItem) []domain.AccessItem {
	out := make([]domain.AccessItem, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].Created.Ptr(), out[j].Created.Ptr(), out[i].UUID, out[j].UUID)
	})
	return out
}

// sortNewestFirst keeps the terminal, history, created order for equal dates.
func sortNewestFirst(items []LogItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return orDefault(items[i].Date).After(orDefault(items[j].Date))
	})
}

func orDefault(t *time.Time) time.Time {
	if t == nil {
		return undated
	}
	return *t
}

// newer orders by date descending with undated entries first. Equal dates
// fall back to key order so output does not depend on map iteration.
func newer(a, b *time.Time, keyA, keyB string) bool {
	ta, tb := orDefault(a), orDefault(b)
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return keyA < keyB
}

// LegacyNotice returns the notice shown under the event log of records
// created before detailed history items existed, or "" for newer records.
func (b Builder) LegacyNotice(rec domain.ProcessingRecord, cutoff time.Time) string {
	if !records.IsLegacy(rec, cutoff) {
		return ""
	}
	return b.t("textInfoLegacyChangeItems", nil)
}
