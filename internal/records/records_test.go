package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentwallet/internal/domain"
	"consentwallet/internal/icon"
)

func ts(s string) domain.Timestamp { return domain.MustTimestamp(s) }

type fixture struct {
	bundle domain.RecordsBundle
	user   *domain.User
}

// newFixture builds one consent record with a data subject and one
// activator. userIsSubject selects which participant the user is.
func newFixture(mode domain.ActivationMode, userIsSubject bool) fixture {
	subject := domain.Participant{UUID: "prp-subject", IdentifierUUID: "id-subject", Role: domain.RoleDataSubject, Status: domain.ParticipantPending, AcceptedLanguage: "fin"}
	activator := domain.Participant{UUID: "prp-activator", IdentifierUUID: "id-activator", Role: domain.RoleActivator, Status: domain.ParticipantPending, IdentifierDisplayName: "Bob"}
	b := domain.RecordsBundle{
		ProcessingRecords: map[string]domain.ProcessingRecord{
			"rec-1": {
				UUID:             "rec-1",
				Created:          ts("2024-01-01T00:00:00Z"),
				DataConsumerUUID: "dc-1",
				ParticipantUUIDs: []string{subject.UUID, activator.UUID},
				RecordType:       domain.RecordTypeConsent,
				Status:           domain.RecordPending,
			},
		},
		Participants:  map[string]domain.Participant{subject.UUID: subject, activator.UUID: activator},
		DataConsumers: map[string]domain.DataConsumer{"dc-1": {UUID: "dc-1", Name: "Service", OrganizationUUID: "org-1", ActivationMode: mode, DefaultLanguage: "eng"}},
		Organizations: map[string]domain.Organization{"org-1": {UUID: "org-1", Name: "Acme"}},
		Metadatas:     map[string]domain.Metadata{},
	}
	id := "id-activator"
	if userIsSubject {
		id = "id-subject"
	}
	return fixture{bundle: b, user: &domain.User{Identifiers: []domain.Identifier{{UUID: id}}}}
}

func TestFromBundleJoinsEntities(t *testing.T) {
	f := newFixture(domain.DataSubjectActivates, true)
	out, err := FromBundle(f.bundle, f.user)
	require.NoError(t, err)
	require.Len(t, out, 1)
	d := out[0]
	assert.Equal(t, "Acme", d.ConsumerOrg.Name)
	assert.Equal(t, "prp-subject", d.DataSubjectParticipant.UUID)
	assert.Equal(t, "prp-subject", d.UserParticipant.UUID)
	assert.Len(t, d.NonDataSubjectParticipants, 1)
	assert.Equal(t, "prp-activator", d.NonUserParticipants[0].UUID)
	assert.False(t, d.IsMultiActivated)
	assert.False(t, d.IsOnBehalfUser)
	assert.True(t, d.IsPendingUserActivation)
	assert.Empty(t, d.AcceptedLanguage)
	assert.Nil(t, d.Provider)
}

func TestFromBundleEmpty(t *testing.T) {
	out, err := FromBundle(domain.RecordsBundle{}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFromBundleFailsWithoutDataSubject(t *testing.T) {
	f := newFixture(domain.DataSubjectActivates, false)
	p := f.bundle.Participants["prp-subject"]
	p.Role = domain.RoleActivator
	f.bundle.Participants["prp-subject"] = p
	_, err := FromBundle(f.bundle, f.user)
	require.ErrorIs(t, err, ErrNoDataSubject)
	assert.True(t, IsContractViolation(err))
}

func TestFromBundleFailsWhenUserIsNotAParticipant(t *testing.T) {
	f := newFixture(domain.DataSubjectActivates, false)
	f.user = &domain.User{Identifiers: []domain.Identifier{{UUID: "someone-else"}}}
	_, err := FromBundle(f.bundle, f.user)
	require.ErrorIs(t, err, ErrUserNotParticipant)

	_, err = FromBundle(f.bundle, nil)
	require.ErrorIs(t, err, ErrUserNotParticipant)
}

func TestFromBundleFailsOnDanglingReferences(t *testing.T) {
	f := newFixture(domain.DataSubjectActivates, true)
	delete(f.bundle.Organizations, "org-1")
	_, err := FromBundle(f.bundle, f.user)
	require.ErrorIs(t, err, ErrMissingEntity)
	assert.True(t, IsContractViolation(err))
}

func TestDerivedFlagsFollowDefinitions(t *testing.T) {
	modes := []domain.ActivationMode{domain.DataSubjectActivates, domain.AllActivatorsActivate, domain.AnyActivatorActivates, domain.AutomaticallyActivated}
	statuses := []domain.RecordStatus{domain.RecordPending, domain.RecordActive, domain.RecordDeclined}
	userStatuses := []domain.ParticipantStatus{domain.ParticipantPending, domain.ParticipantActive}
	for _, mode := range modes {
		for _, asSubject := range []bool{true, false} {
			for _, st := range statuses {
				for _, us := range userStatuses {
					f := newFixture(mode, asSubject)
					rec := f.bundle.ProcessingRecords["rec-1"]
					rec.Status = st
					f.bundle.ProcessingRecords["rec-1"] = rec
					for id, p := range f.bundle.Participants {
						p.Status = us
						f.bundle.Participants[id] = p
					}
					out, err := FromBundle(f.bundle, f.user)
					require.NoError(t, err)
					d := out[0]
					multi := mode == domain.AllActivatorsActivate || mode == domain.AnyActivatorActivates
					assert.Equal(t, multi, d.IsMultiActivated)
					assert.Equal(t, multi && d.UserParticipant.UUID == d.DataSubjectParticipant.UUID, d.IsOnBehalfUser)
					assert.Equal(t, st == domain.RecordPending && !d.IsOnBehalfUser && d.UserParticipant.Status == domain.ParticipantPending, d.IsPendingUserActivation)
					if st == domain.RecordActive {
						assert.Equal(t, d.UserParticipant.AcceptedLanguage, d.AcceptedLanguage)
					} else {
						assert.Empty(t, d.AcceptedLanguage)
					}
				}
			}
		}
	}
}

func TestInfoCountAnyActivator(t *testing.T) {
	f := newFixture(domain.AnyActivatorActivates, true)
	p := f.bundle.Participants["prp-activator"]
	p.Status = domain.ParticipantActive
	f.bundle.Participants["prp-activator"] = p
	out, err := FromBundle(f.bundle, f.user)
	require.NoError(t, err)
	assert.Equal(t, 2, InfoCount(out[0].Consumer, out[0].NonUserParticipants))
}

func TestInfoCountAllActivators(t *testing.T) {
	consumer := domain.DataConsumer{ActivationMode: domain.AllActivatorsActivate}
	others := []domain.Participant{
		{Role: domain.RoleActivator, Status: domain.ParticipantPending},
		{Role: domain.RoleActivator, Status: domain.ParticipantActive},
		{Role: domain.RoleDataSubject, Status: domain.ParticipantPending},
	}
	assert.Equal(t, 2, InfoCount(consumer, others))
	assert.Equal(t, 0, InfoCount(domain.DataConsumer{ActivationMode: domain.DataSubjectActivates}, others))
}

func TestInfoKey(t *testing.T) {
	rec := domain.ProcessingRecord{Status: domain.RecordPending}
	user := domain.Participant{Role: domain.RoleActivator, Status: domain.ParticipantActive}
	assert.Equal(t, "statusInfo-automaticallyActivated",
		InfoKey("statusInfo", domain.DataConsumer{ActivationMode: domain.AutomaticallyActivated}, rec, user))
	assert.Equal(t, "statusInfo-dataSubjectActivates-activator-active",
		InfoKey("statusInfo", domain.DataConsumer{ActivationMode: domain.DataSubjectActivates}, rec, user))
	assert.Equal(t, "statusInfo-allActivatorsActivate-activator-active-pending",
		InfoKey("statusInfo", domain.DataConsumer{ActivationMode: domain.AllActivatorsActivate}, rec, user))
}

func TestStatusIcon(t *testing.T) {
	assert.Equal(t, icon.CircleCheck, StatusIcon("active", ""))
	assert.Equal(t, icon.Hourglass, StatusIcon("pending", ""))
	assert.Equal(t, icon.CircleInfo, StatusIcon("active", domain.ParticipantPending))
	assert.Equal(t, icon.Ban, StatusIcon("declined", domain.ParticipantDeclined))
	assert.Equal(t, icon.BoxArchive, StatusIcon("withdrawn", domain.ParticipantActive))
	assert.Equal(t, icon.CalendarExclamation, StatusIcon("expired", domain.ParticipantPending))
	assert.Equal(t, icon.Handshake, TypeIcon(domain.RecordTypeConsent))
	assert.Equal(t, icon.FileSignature, TypeIcon(domain.RecordTypeServiceTOS))
}

func TestSortForList(t *testing.T) {
	mk := func(id string, st domain.RecordStatus, pendingUser bool) domain.RecordData {
		return domain.RecordData{Record: domain.ProcessingRecord{UUID: id, Status: st}, IsPendingUserActivation: pendingUser}
	}
	in := []domain.RecordData{
		mk("w", domain.RecordWithdrawn, false),
		mk("a1", domain.RecordActive, false),
		mk("p", domain.RecordPending, false),
		mk("mine", domain.RecordPending, true),
		mk("a2", domain.RecordActive, false),
		mk("d", domain.RecordDeclined, false),
	}
	out := SortForList(in)
	var ids []string
	for _, d := range out {
		ids = append(ids, d.Record.UUID)
	}
	assert.Equal(t, []string{"mine", "p", "a1", "a2", "d", "w"}, ids)
	assert.Equal(t, "w", in[0].Record.UUID)
}

func templateMetadata(fields ...map[string]any) domain.Metadata {
	data := make([]any, 0, len(fields))
	for _, f := range fields {
		data = append(data, f)
	}
	return domain.Metadata{UUID: "tpl-1", Type: TypeUserProvidedDataTemplate, JSONData: map[string]any{"data": data}}
}

func validField(name string) map[string]any {
	tr := func(label string) map[string]any { return map[string]any{"label": label} }
	return map[string]any{
		"name":      name,
		"label":     "Email",
		"maxLength": float64(100),
		"type":      "email",
		"required":  true,
		"translations": map[string]any{
			"fin": tr("Sähköposti"),
			"eng": tr("Email address"),
			"swe": tr("E-post"),
		},
	}
}

func TestTemplateValidation(t *testing.T) {
	tpl := ParseTemplate(templateMetadata(validField("email")))
	require.NoError(t, ValidateTemplate(tpl))
	require.Len(t, tpl.Fields, 1)
	assert.Equal(t, 100, tpl.Fields[0].MaxLength)
	assert.Equal(t, "Sähköposti", FieldText(tpl.Fields[0], "label", "fin"))
	assert.Equal(t, "Email", FieldText(tpl.Fields[0], "label", "deu"))

	noSwe := validField("phone")
	delete(noSwe["translations"].(map[string]any), "swe")
	assert.Error(t, ValidateTemplate(ParseTemplate(templateMetadata(validField("email"), noSwe))))

	noMax := validField("x")
	delete(noMax, "maxLength")
	assert.Error(t, ValidateTemplate(ParseTemplate(templateMetadata(noMax))))

	notList := domain.Metadata{JSONData: map[string]any{"data": "nope"}}
	assert.Error(t, ValidateTemplate(ParseTemplate(notList)))
}

func TestTranslateFallsBack(t *testing.T) {
	consumer := domain.DataConsumer{Name: "Service", DefaultLanguage: "fin", MetadataUUIDs: []string{"t1", "t2", "u1"}}
	metas := map[string]domain.Metadata{
		"t1": {UUID: "t1", Type: TypeTranslation, Subtype1: "name", Subtype2: "fin", JSONData: map[string]any{"value": "Palvelu"}},
		"t2": {UUID: "t2", Type: TypeTranslation, Subtype1: "name", Subtype2: "swe", JSONData: map[string]any{"value": "Tjänst"}},
		"u1": {UUID: "u1", Type: TypeURL, Subtype1: "icon_medium", JSONData: map[string]any{"url": "https://x.test/i.png"}},
	}
	assert.Equal(t, Translation{Value: "Tjänst", Lang: "swe"}, Translate(consumer, "name", "sv", metas))
	assert.Equal(t, Translation{Value: "Palvelu", Lang: "fin"}, Translate(consumer, "name", "eng", metas))
	assert.Equal(t, Translation{Value: "", Lang: "fin"}, Translate(consumer, "purpose", "eng", metas))
	assert.Equal(t, "https://x.test/i.png", URL(domain.AuthItem{MetadataUUIDs: []string{"u1"}}, "icon_medium", metas))
}

func TestTranslateKeepsOtherLanguagesApart(t *testing.T) {
	consumer := domain.DataConsumer{Name: "Service", DefaultLanguage: "eng", MetadataUUIDs: []string{"en", "de"}}
	metas := map[string]domain.Metadata{
		"en": {UUID: "en", Type: TypeTranslation, Subtype1: "name", Subtype2: "eng", JSONData: map[string]any{"value": "Service"}},
		"de": {UUID: "de", Type: TypeTranslation, Subtype1: "name", Subtype2: "deu", JSONData: map[string]any{"value": "Dienst"}},
	}
	assert.Equal(t, Translation{Value: "Service", Lang: "eng"}, Translate(consumer, "name", "en", metas))
	assert.Equal(t, Translation{Value: "Dienst", Lang: "deu"}, Translate(consumer, "name", "de", metas))
	assert.Equal(t, Translation{Value: "Service", Lang: "eng"}, Translate(consumer, "name", "fr", metas))

	germanDefault := consumer
	germanDefault.DefaultLanguage = "deu"
	assert.Equal(t, Translation{Value: "Dienst", Lang: "deu"}, Translate(germanDefault, "name", "fi", metas))
}

func TestResolveActions(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(domain.DataSubjectActivates, true)
	out, err := FromBundle(f.bundle, f.user)
	require.NoError(t, err)
	d := out[0]

	a := ResolveActions(d, now)
	assert.True(t, a.Visible)
	assert.True(t, a.Buttons)
	assert.True(t, a.CanAccept)
	assert.True(t, a.CanDecline)
	assert.False(t, a.NeedsInput)
	assert.False(t, a.ShowNotValid)

	expired := d
	expired.Record.Expires = ts("2024-01-02T00:00:00Z")
	assert.False(t, ResolveActions(expired, now).Visible)

	suspended := d
	suspended.Consumer.Suspended = true
	assert.False(t, ResolveActions(suspended, now).Visible)

	withdrawn := d
	withdrawn.Record.Status = domain.RecordWithdrawn
	wa := ResolveActions(withdrawn, now)
	assert.False(t, wa.Visible)
	assert.True(t, wa.ShowNotValid)

	onBehalf := d
	onBehalf.IsOnBehalfUser = true
	ob := ResolveActions(onBehalf, now)
	assert.True(t, ob.Visible)
	assert.False(t, ob.Buttons)
	assert.False(t, ob.CanAccept)

	broken := d
	broken.Consumer.MetadataUUIDs = []string{"tpl-1"}
	broken.Metadatas = map[string]domain.Metadata{"tpl-1": {UUID: "tpl-1", Type: TypeUserProvidedDataTemplate, JSONData: map[string]any{}}}
	ba := ResolveActions(broken, now)
	assert.True(t, ba.TemplateInvalid)
	assert.False(t, ba.CanAccept)
	assert.False(t, ba.CanDecline)
}

func TestIsLegacy(t *testing.T) {
	cutoff := time.Date(2023, 9, 8, 0, 0, 0, 0, time.UTC)
	assert.True(t, IsLegacy(domain.ProcessingRecord{Created: ts("2023-09-08T00:00:00Z")}, cutoff))
	assert.False(t, IsLegacy(domain.ProcessingRecord{Created: ts("2023-09-09T00:00:00Z")}, cutoff))
}
