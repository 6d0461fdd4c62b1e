package mdstest

import (
	"consentwallet/internal/domain"
)

func ts(s string) domain.Timestamp { return domain.MustTimestamp(s) }

func urlMeta(uuid, urlType, u string) domain.Metadata {
	return domain.Metadata{UUID: uuid, Type: "url", Subtype1: urlType, JSONData: map[string]any{"url": u}}
}

func participant(uuid, record string, role domain.ParticipantRole, status domain.ParticipantStatus) domain.Participant {
	return domain.Participant{
		UUID:                 uuid,
		IdentifierUUID:       IdentifierUUID,
		ProcessingRecordUUID: record,
		Role:                 role,
		Status:               status,
	}
}

// EmailTemplate is the user provided data template of consumer dc-2.
func EmailTemplate() domain.Metadata {
	return domain.Metadata{
		UUID:      "tpl-1",
		Model:     "data_consumer",
		ModelUUID: "dc-2",
		Type:      "user_provided_data_template",
		JSONData: map[string]any{"data": []any{
			map[string]any{
				"name":      "email",
				"type":      "email",
				"maxLength": float64(100),
				"required":  true,
				"translations": map[string]any{
					"fin": map[string]any{"label": "Sähköposti"},
					"eng": map[string]any{"label": "Email"},
					"swe": map[string]any{"label": "E-post"},
				},
			},
		}},
	}
}

func (s *Server) seed() {
	s.Identifiers = domain.IdentifiersBundle{
		Identifiers: map[string]domain.Identifier{
			IdentifierUUID: {UUID: IdentifierUUID, ID: "010170-999R", IDProviderInfoUUIDs: []string{"info-1"}},
		},
		IDProviderInfos: map[string]domain.IDProviderInfo{
			"info-1": {UUID: "info-1", IdentifierUUID: IdentifierUUID, FirstName: "Matti", LastName: "Meikäläinen"},
		},
	}

	s.Records = domain.RecordsBundle{
		ProcessingRecords: map[string]domain.ProcessingRecord{
			RecordPending: {
				UUID: RecordPending, Created: ts("2024-03-01T10:00:00Z"), DataConsumerUUID: "dc-1",
				ParticipantUUIDs: []string{"prp-1"}, RecordType: domain.RecordTypeConsent, Status: domain.RecordPending,
			},
			RecordWithTemplate: {
				UUID: RecordWithTemplate, Created: ts("2024-03-02T10:00:00Z"), DataConsumerUUID: "dc-2",
				ParticipantUUIDs: []string{"prp-2"}, RecordType: domain.RecordTypeConsent, Status: domain.RecordPending,
			},
			RecordActive: {
				UUID: RecordActive, Created: ts("2024-03-03T10:00:00Z"), DataConsumerUUID: "dc-2", DataProviderUUID: "dp-1",
				ParticipantUUIDs: []string{"prp-3"}, MetadataUUIDs: []string{UserDataUUID},
				RecordType: domain.RecordTypeConsent, Status: domain.RecordActive,
			},
			RecordTos: {
				UUID: RecordTos, Created: ts("2024-01-01T10:00:00Z"), DataConsumerUUID: "dc-tos",
				ParticipantUUIDs: []string{"prp-tos"}, RecordType: domain.RecordTypeServiceTOS, Status: domain.RecordPending,
			},
			RecordBroken: {
				UUID: RecordBroken, Created: ts("2024-01-02T10:00:00Z"), DataConsumerUUID: "dc-1",
				ParticipantUUIDs: []string{"prp-bad"}, RecordType: domain.RecordTypeMDSContractTOS, Status: domain.RecordPending,
			},
		},
		Participants: map[string]domain.Participant{
			"prp-1":   participant("prp-1", RecordPending, domain.RoleDataSubject, domain.ParticipantPending),
			"prp-2":   participant("prp-2", RecordWithTemplate, domain.RoleDataSubject, domain.ParticipantPending),
			"prp-3":   participant("prp-3", RecordActive, domain.RoleDataSubject, domain.ParticipantActive),
			"prp-tos": participant("prp-tos", RecordTos, domain.RoleDataSubject, domain.ParticipantPending),
			"prp-bad": participant("prp-bad", RecordBroken, domain.RoleActivator, domain.ParticipantPending),
		},
		DataConsumers: map[string]domain.DataConsumer{
			"dc-1": {
				UUID: "dc-1", Name: "Newsletter", DefaultLanguage: "fi", OrganizationUUID: "org-1",
				RecordType: domain.RecordTypeConsent, ActivationMode: domain.DataSubjectActivates,
			},
			"dc-2": {
				UUID: "dc-2", Name: "Loyalty program", DefaultLanguage: "en", OrganizationUUID: "org-1",
				MetadataUUIDs: []string{"tpl-1"}, RecordType: domain.RecordTypeConsent, ActivationMode: domain.DataSubjectActivates,
			},
			"dc-tos": {
				UUID: "dc-tos", Name: "Terms of service", DefaultLanguage: "fin", OrganizationUUID: "org-1",
				RecordType: domain.RecordTypeServiceTOS, ActivationMode: domain.DataSubjectActivates,
			},
		},
		DataProviders: map[string]domain.DataProvider{
			"dp-1": {UUID: "dp-1", Name: "Customer register", OrganizationUUID: "org-2"},
		},
		Organizations: map[string]domain.Organization{
			"org-1": {UUID: "org-1", Name: "Kauppa Oy", DefaultLanguage: "fi"},
			"org-2": {UUID: "org-2", Name: "Rekisteri Oy", DefaultLanguage: "fi"},
		},
		Metadatas: map[string]domain.Metadata{
			"tpl-1": EmailTemplate(),
			UserDataUUID: {
				UUID: UserDataUUID, Model: "processing_record", ModelUUID: RecordActive,
				Type: "user_provided_data", JSONData: map[string]any{"email": "old@example.com"},
			},
		},
	}

	s.History = map[string]map[string]domain.HistoryItem{
		RecordActive: {
			"h-1": {
				UUID: "h-1", Created: ts("2024-03-04T10:00:00Z"), Domain: domain.DomainEmbeddedWallet,
				IdentifierUUID: IdentifierUUID, ParticipantUUID: "prp-3", ProcessingRecordUUID: RecordActive,
				OldParticipantStatus: "pending", NewParticipantStatus: "active",
				OldDerivedStatus: "pending", NewDerivedStatus: "active",
			},
		},
	}
	s.Access = map[string]map[string]domain.AccessItem{
		RecordActive: {
			"a-1": {UUID: "a-1", Created: ts("2024-03-05T10:00:00Z"), Status: domain.AccessCompleted, Success: true},
			"a-2": {UUID: "a-2", Created: ts("2024-03-06T10:00:00Z"), Status: domain.AccessCompleted, Success: false},
		},
	}

	s.AuthItems = domain.AuthItemsBundle{
		AuthItems: map[string]domain.AuthItem{
			"ai-1": {UUID: "ai-1", Name: AuthItemName, IDProviderUUID: "idp-1"},
		},
		IDProviders: map[string]domain.IDProvider{
			"idp-1": {UUID: "idp-1", ID: IDPID, Name: "Suomi.fi", MetadataUUIDs: []string{"m-auth", "m-token", "m-end"}},
		},
		Metadatas: map[string]domain.Metadata{
			"m-auth":  urlMeta("m-auth", "authorization_endpoint", s.Endpoint("/authorize")),
			"m-token": urlMeta("m-token", "token_endpoint", s.Endpoint("/token")),
			"m-end":   urlMeta("m-end", "end_session_endpoint", s.Endpoint("/logout")),
		},
	}
}
