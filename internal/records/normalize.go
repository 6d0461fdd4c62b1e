// Package records joins API bundles into per-record view models and derives
// the status information views show for them.
package records

import (
	"errors"
	"fmt"
	"sort"

	"consentwallet/internal/domain"
)

var (
	ErrNoDataSubject      = errors.New("record has no data subject")
	ErrUserNotParticipant = errors.New("user not found in participants")
	ErrMissingEntity      = errors.New("referenced entity missing from response")
)

// ContractError means the API returned data that breaks an invariant the
// views rely on. It is not recovered locally.
type ContractError struct {
	RecordUUID string
	Err        error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("processing record %s: %v", e.RecordUUID, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// IsContractViolation reports whether err carries a ContractError.
func IsContractViolation(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

func violation(recordUUID string, err error) error {
	return &ContractError{RecordUUID: recordUUID, Err: err}
}

// FromBundle builds one RecordData per processing record, newest first.
// The first broken record fails the whole call.
func FromBundle(b domain.RecordsBundle, user *domain.User) ([]domain.RecordData, error) {
	if len(b.ProcessingRecords) == 0 || b.DataConsumers == nil {
		return nil, nil
	}
	userIDs := user.IdentifierUUIDs()

	recs := make([]domain.ProcessingRecord, 0, len(b.ProcessingRecords))
	for _, r := range b.ProcessingRecords {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Created.Equal(recs[j].Created.Time) {
			return recs[i].Created.After(recs[j].Created.Time)
		}
		return recs[i].UUID < recs[j].UUID
	})

	out := make([]domain.RecordData, 0, len(recs))
	for _, rec := range recs {
		d, err := build(b, rec, userIDs)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func build(b domain.RecordsBundle, rec domain.ProcessingRecord, userIDs map[string]struct{}) (domain.RecordData, error) {
	consumer, ok := b.DataConsumers[rec.DataConsumerUUID]
	if !ok {
		return domain.RecordData{}, violation(rec.UUID, fmt.Errorf("%w: data consumer %s", ErrMissingEntity, rec.DataConsumerUUID))
	}
	consumerOrg, ok := b.Organizations[consumer.OrganizationUUID]
	if !ok {
		return domain.RecordData{}, violation(rec.UUID, fmt.Errorf("%w: organization %s", ErrMissingEntity, consumer.OrganizationUUID))
	}
	d := domain.RecordData{
		Record:       rec,
		Consumer:     consumer,
		ConsumerOrg:  consumerOrg,
		Participants: b.Participants,
		Metadatas:    b.Metadatas,
	}
	if rec.DataProviderUUID != "" && b.DataProviders != nil {
		if provider, ok := b.DataProviders[rec.DataProviderUUID]; ok {
			d.Provider = &provider
			if org, ok := b.Organizations[provider.OrganizationUUID]; ok {
				d.ProviderOrg = &org
			}
		}
	}

	participants := make([]domain.Participant, 0, len(rec.ParticipantUUIDs))
	for _, id := range rec.ParticipantUUIDs {
		p, ok := b.Participants[id]
		if !ok {
			return domain.RecordData{}, violation(rec.UUID, fmt.Errorf("%w: participant %s", ErrMissingEntity, id))
		}
		participants = append(participants, p)
	}

	var subject, userPrp *domain.Participant
	for i := range participants {
		if subject == nil && participants[i].Role == domain.RoleDataSubject {
			subject = &participants[i]
		}
		if userPrp == nil {
			if _, ok := userIDs[participants[i].IdentifierUUID]; ok {
				userPrp = &participants[i]
			}
		}
	}
	if subject == nil {
		return domain.RecordData{}, violation(rec.UUID, ErrNoDataSubject)
	}
	if userPrp == nil {
		return domain.RecordData{}, violation(rec.UUID, ErrUserNotParticipant)
	}
	d.DataSubjectParticipant = *subject
	d.UserParticipant = *userPrp

	d.NonDataSubjectParticipants = []domain.Participant{}
	d.NonUserParticipants = []domain.Participant{}
	for _, p := range participants {
		if p.Role != domain.RoleDataSubject {
			d.NonDataSubjectParticipants = append(d.NonDataSubjectParticipants, p)
		}
		if p.UUID != userPrp.UUID {
			d.NonUserParticipants = append(d.NonUserParticipants, p)
		}
	}

	d.IsMultiActivated = consumer.ActivationMode == domain.AllActivatorsActivate ||
		consumer.ActivationMode == domain.AnyActivatorActivates
	d.IsOnBehalfUser = d.IsMultiActivated && userPrp.UUID == subject.UUID
	d.IsPendingUserActivation = rec.Status == domain.RecordPending &&
		!d.IsOnBehalfUser &&
		userPrp.Status == domain.ParticipantPending
	if rec.Status == domain.RecordActive {
		d.AcceptedLanguage = userPrp.AcceptedLanguage
	}
	return d, nil
}
