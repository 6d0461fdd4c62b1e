package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentwallet/internal/domain"
	"consentwallet/internal/form"
	"consentwallet/internal/i18n"
	"consentwallet/internal/icon"
	"consentwallet/internal/records"
	"consentwallet/internal/timeline"
)

func TestEveryVariantHasAStyle(t *testing.T) {
	for i := range variantNames {
		v := Variant(i)
		assert.NotPanics(t, func() { _ = v.Style() }, v.String())
		parsed, err := ParseVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
	assert.Panics(t, func() { _ = Variant(99).Style() })
	_, err := ParseVariant("fancy")
	assert.Error(t, err)
}

func TestInfoBoxVariant(t *testing.T) {
	assert.Equal(t, VariantPrimary, InfoBoxVariant(domain.RecordActive))
	assert.Equal(t, VariantSecondary, InfoBoxVariant(domain.RecordPending))
	for _, s := range []domain.RecordStatus{domain.RecordDeclined, domain.RecordExpired, domain.RecordWithdrawn, domain.RecordSuspended} {
		assert.Equal(t, VariantError, InfoBoxVariant(s))
	}
}

func TestStatusAndToneColors(t *testing.T) {
	assert.NotEmpty(t, StatusColors("active"))
	assert.Empty(t, StatusColors("bogus"))
	assert.NotEqual(t, ToneColors(icon.TonePositive), ToneColors(icon.ToneNegative))
}

func newRenderer() (*Renderer, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Renderer{Out: &buf, Tr: i18n.MustLoad("en")}, &buf
}

func TestButtonWithoutColor(t *testing.T) {
	r, _ := newRenderer()
	assert.Equal(t, "[ Accept ]", r.Button("Accept", VariantAccept, false))
	r.Color = true
	assert.NotEqual(t, "[ Accept ]", r.Button("Accept", VariantAccept, false))
}

func TestRecordsTableAndDetail(t *testing.T) {
	r, buf := newRenderer()
	d := domain.RecordData{
		Record: domain.ProcessingRecord{
			UUID:       "rec-1",
			RecordType: domain.RecordTypeConsent,
			Status:     domain.RecordPending,
			Created:    domain.NewTimestamp(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		},
		Consumer:                domain.DataConsumer{Name: "Newsletter", Purpose: "Marketing"},
		ConsumerOrg:             domain.Organization{Name: "Acme"},
		UserParticipant:         domain.Participant{Status: domain.ParticipantPending},
		IsPendingUserActivation: true,
	}
	r.RecordsTable([]domain.RecordData{d})
	out := buf.String()
	assert.Contains(t, out, "rec-1")
	assert.Contains(t, out, "Newsletter")
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "Pending")

	buf.Reset()
	r.RecordDetail(d, records.Actions{Visible: true, Buttons: true, CanAccept: true, CanDecline: true}, "Waiting for your response.")
	out = buf.String()
	assert.Contains(t, out, "Marketing")
	assert.Contains(t, out, "Waiting for your response.")
	assert.Contains(t, out, "[ Accept ]")
	assert.Contains(t, out, "[ Decline ]")
}

func TestLogListAndNotify(t *testing.T) {
	r, buf := newRenderer()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	r.LogList("Event log", []timeline.LogItem{{
		Key: "h1", Date: &now, Icon: icon.Icon{Tone: icon.TonePositive, Glyph: icon.CircleCheck},
		Title: "You granted consent", Text: "Acme is allowed to access the data",
	}}, "legacy notice")
	out := buf.String()
	assert.Contains(t, out, "Event log")
	assert.Contains(t, out, "You granted consent")
	assert.Contains(t, out, "legacy notice")

	buf.Reset()
	r.Notify(form.LevelError, "failed")
	assert.Equal(t, "│ failed\n", buf.String())
}
