package records

import (
	"sort"
	"time"

	"consentwallet/internal/domain"
	"consentwallet/internal/i18n"
	"consentwallet/internal/icon"
)

// InfoCount is the count parameter of the status info text.
//
// any_activator_activates: other activators that are active, plus the user.
// all_activators_activate: other activators still needed, plus the user.
func InfoCount(consumer domain.DataConsumer, nonUser []domain.Participant) int {
	var match func(domain.Participant) bool
	switch consumer.ActivationMode {
	case domain.AnyActivatorActivates:
		match = func(p domain.Participant) bool { return p.Status == domain.ParticipantActive }
	case domain.AllActivatorsActivate:
		match = func(p domain.Participant) bool { return p.Status != domain.ParticipantActive }
	default:
		return 0
	}
	n := 1
	for _, p := range nonUser {
		if p.Role != domain.RoleDataSubject && match(p) {
			n++
		}
	}
	return n
}

// InfoKey builds the message key of the status info text, e.g.
// "statusInfo-allActivatorsActivate-activator-active-pending".
func InfoKey(prefix string, consumer domain.DataConsumer, rec domain.ProcessingRecord, user domain.Participant) string {
	key := prefix + "-" + i18n.CamelCase(string(consumer.ActivationMode))
	if consumer.ActivationMode == domain.AutomaticallyActivated {
		return key
	}
	key += "-" + i18n.CamelCase(string(user.Role)) + "-" + i18n.CamelCase(string(user.Status))
	if consumer.ActivationMode == domain.DataSubjectActivates {
		return key
	}
	return key + "-" + i18n.CamelCase(string(rec.Status))
}

var statusGlyphs = map[string]icon.Glyph{
	"active":         icon.CircleCheck,
	"declined":       icon.Ban,
	"expired":        icon.CalendarExclamation,
	"not_applicable": icon.Minus,
	"pending":        icon.Hourglass,
	"suspended":      icon.ExclamationCircle,
	"withdrawn":      icon.BoxArchive,
}

// StatusIcon returns the glyph of a record or participant status. When the
// user's own participant status is given, a non-terminal record status that
// differs from it yields the info glyph.
func StatusIcon(status string, userStatus domain.ParticipantStatus) icon.Glyph {
	use := status
	if userStatus != "" && !isTerminal(status) {
		if status != string(userStatus) {
			return icon.CircleInfo
		}
		use = string(userStatus)
	}
	if g, ok := statusGlyphs[use]; ok {
		return g
	}
	return icon.CircleInfo
}

func isTerminal(status string) bool {
	return status == string(domain.TerminalExpired) || status == string(domain.TerminalWithdrawn)
}

// TypeIcon returns the glyph of a record type.
func TypeIcon(t domain.RecordType) icon.Glyph {
	switch t {
	case domain.RecordTypeConsent:
		return icon.Handshake
	case domain.RecordTypeLegalObligation:
		return icon.ScaleBalanced
	case domain.RecordTypeLegitimateInterest:
		return icon.Building
	case domain.RecordTypeMDSContractTOS, domain.RecordTypeServiceTOS:
		return icon.FileSignature
	}
	return icon.CircleInfo
}

var listOrder = map[domain.RecordStatus]int{
	domain.RecordPending:   0,
	domain.RecordActive:    1,
	domain.RecordDeclined:  2,
	domain.RecordExpired:   3,
	domain.RecordSuspended: 4,
	domain.RecordWithdrawn: 5,
}

func listRank(s domain.RecordStatus) int {
	if r, ok := listOrder[s]; ok {
		return r
	}
	return len(listOrder)
}

// SortForList orders records for the consent list: those waiting for the
// user first, then by status. Ties keep their input order.
func SortForList(data []domain.RecordData) []domain.RecordData {
	out := append([]domain.RecordData(nil), data...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsPendingUserActivation != b.IsPendingUserActivation {
			return a.IsPendingUserActivation
		}
		return listRank(a.Record.Status) < listRank(b.Record.Status)
	})
	return out
}

// Actions describes which accept/decline controls a record detail shows.
type Actions struct {
	// Visible is false when the record can no longer be changed at all.
	Visible bool `json:"visible"`
	// Buttons is false for on-behalf users, who only see the state.
	Buttons       bool `json:"buttons"`
	CanAccept     bool `json:"can_accept"`
	CanDecline    bool `json:"can_decline"`
	NeedsInput    bool `json:"needs_input"`
	ConfirmCancel bool `json:"confirm_cancel"`
	// TemplateInvalid means the consumer's data template is malformed.
	TemplateInvalid bool `json:"template_invalid"`
	ShowNotValid    bool `json:"show_not_valid"`
}

// ResolveActions derives the action state of a record at now.
func ResolveActions(d domain.RecordData, now time.Time) Actions {
	tpl, hasTpl := UserProvidedDataTemplate(d.Consumer, d.Metadatas)
	valid := hasTpl && ValidateTemplate(tpl) == nil
	a := Actions{
		NeedsInput:      valid,
		TemplateInvalid: hasTpl && !valid,
	}
	isConsent := d.Record.RecordType == domain.RecordTypeConsent
	notExpired := d.Record.Expires.IsZero() || d.Record.Expires.After(now)
	userStatusOK := d.UserParticipant.Status == domain.ParticipantActive ||
		d.UserParticipant.Status == domain.ParticipantDeclined ||
		d.UserParticipant.Status == domain.ParticipantPending
	blocked := d.Record.Status == domain.RecordWithdrawn ||
		d.Record.Status == domain.RecordExpired ||
		d.Consumer.Suspended ||
		(d.Provider != nil && d.Provider.Suspended)

	a.Visible = isConsent && notExpired && userStatusOK && !blocked
	a.Buttons = a.Visible && !d.IsOnBehalfUser
	if a.Buttons {
		a.CanAccept = d.UserParticipant.Status != domain.ParticipantActive && !a.TemplateInvalid
		a.CanDecline = d.UserParticipant.Status != domain.ParticipantDeclined && !a.TemplateInvalid
	}
	_, hasUserData := Metadata(d.Record, TypeUserProvidedData, d.Metadatas)
	preCancel := Translate(d.Consumer, "pre_cancellation", "", d.Metadatas)
	a.ConfirmCancel = d.UserParticipant.Status == domain.ParticipantActive && (preCancel.Value != "" || hasUserData)
	a.ShowNotValid = isConsent &&
		d.Record.Status != domain.RecordPending &&
		d.Record.Status != domain.RecordActive &&
		d.Record.Status != domain.RecordDeclined
	return a
}

// IsLegacy reports whether the record predates detailed history items.
func IsLegacy(rec domain.ProcessingRecord, cutoff time.Time) bool {
	return !rec.Created.IsZero() && !rec.Created.After(cutoff)
}
