package domain

type RecordStatus string

const (
	RecordActive    RecordStatus = "active"
	RecordDeclined  RecordStatus = "declined"
	RecordExpired   RecordStatus = "expired"
	RecordPending   RecordStatus = "pending"
	RecordSuspended RecordStatus = "suspended"
	RecordWithdrawn RecordStatus = "withdrawn"
)

// IsTerminal reports whether the status is a permanent end state.
func (s RecordStatus) IsTerminal() bool {
	return s == RecordExpired || s == RecordWithdrawn
}

type TerminalStatus string

const (
	TerminalExpired   TerminalStatus = "expired"
	TerminalWithdrawn TerminalStatus = "withdrawn"
)

type RecordType string

const (
	RecordTypeConsent            RecordType = "consent"
	RecordTypeLegalObligation    RecordType = "legal_obligation"
	RecordTypeLegitimateInterest RecordType = "legitimate_interest"
	RecordTypeMDSContractTOS     RecordType = "mds_contract_tos"
	RecordTypeServiceTOS         RecordType = "service_tos"
)

// IsLegalBasis is true for records that exist without a consent request.
func (t RecordType) IsLegalBasis() bool {
	return t == RecordTypeLegalObligation || t == RecordTypeLegitimateInterest
}

type ParticipantRole string

const (
	RoleActivator   ParticipantRole = "activator"
	RoleDataSubject ParticipantRole = "data_subject"
)

type ParticipantStatus string

const (
	ParticipantActive        ParticipantStatus = "active"
	ParticipantDeclined      ParticipantStatus = "declined"
	ParticipantNotApplicable ParticipantStatus = "not_applicable"
	ParticipantPending       ParticipantStatus = "pending"
)

type ActivationMode string

const (
	DataSubjectActivates   ActivationMode = "data_subject_activates"
	AllActivatorsActivate  ActivationMode = "all_activators_activate"
	AnyActivatorActivates  ActivationMode = "any_activator_activates"
	AutomaticallyActivated ActivationMode = "automatically_activated"
)

type Domain string

const (
	DomainAdmin          Domain = "admin"
	DomainOrganization   Domain = "organization"
	DomainWallet         Domain = "wallet"
	DomainEmbeddedWallet Domain = "embedded_wallet"
)

type AccessStatus string

const (
	AccessCompleted    AccessStatus = "completed"
	AccessIntrospected AccessStatus = "introspected"
)

type ProcessingRecord struct {
	UUID                   string         `json:"uuid"`
	Created                Timestamp      `json:"created"`
	Updated                Timestamp      `json:"updated"`
	DataConsumerUUID       string         `json:"data_consumer_uuid"`
	DataProviderUUID       string         `json:"data_provider_uuid,omitempty"`
	Expires                Timestamp      `json:"expires"`
	GroupID                *int64         `json:"group_id,omitempty"`
	MetadataUUIDs          []string       `json:"metadatas.uuid"`
	ParticipantUUIDs       []string       `json:"processing_record_participants.uuid"`
	RecordType             RecordType     `json:"record_type"`
	Status                 RecordStatus   `json:"status"`
	Reference              string         `json:"reference,omitempty"`
	TerminalStateActivated Timestamp      `json:"terminal_state_activated"`
	TerminalStatus         TerminalStatus `json:"terminal_status,omitempty"`
}

type Participant struct {
	UUID                     string            `json:"uuid"`
	AcceptedLanguage         string            `json:"accepted_language,omitempty"`
	IdentifierDisplayName    string            `json:"identifier_display_name,omitempty"`
	IdentifierUUID           string            `json:"identifier_uuid"`
	NotificationEmailAddress string            `json:"notification_email_address,omitempty"`
	ProcessingRecordUUID     string            `json:"processing_record_uuid"`
	Role                     ParticipantRole   `json:"role"`
	Status                   ParticipantStatus `json:"status"`
}

type DataConsumer struct {
	UUID             string         `json:"uuid"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Purpose          string         `json:"purpose,omitempty"`
	Legal            string         `json:"legal,omitempty"`
	DefaultLanguage  string         `json:"default_language,omitempty"`
	MetadataUUIDs    []string       `json:"metadatas.uuid"`
	OrganizationUUID string         `json:"organization_uuid"`
	PreCancellation  string         `json:"pre_cancellation,omitempty"`
	PostCancellation string         `json:"post_cancellation,omitempty"`
	RecordType       RecordType     `json:"record_type"`
	ActivationMode   ActivationMode `json:"activation_mode"`
	Suspended        bool           `json:"suspended"`
	MajorVersion     int            `json:"major_version,omitempty"`
	MinorVersion     int            `json:"minor_version,omitempty"`
}

type DataProvider struct {
	UUID             string   `json:"uuid"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	DefaultLanguage  string   `json:"default_language,omitempty"`
	MetadataUUIDs    []string `json:"metadatas.uuid"`
	OrganizationUUID string   `json:"organization_uuid"`
	Suspended        bool     `json:"suspended"`
}

type Organization struct {
	UUID            string   `json:"uuid"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Country         string   `json:"country,omitempty"`
	DefaultLanguage string   `json:"default_language,omitempty"`
	MetadataUUIDs   []string `json:"metadatas.uuid"`
}

type Metadata struct {
	UUID      string         `json:"uuid"`
	Model     string         `json:"model"`
	ModelUUID string         `json:"model_uuid"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Subtype1  string         `json:"subtype1,omitempty"`
	Subtype2  string         `json:"subtype2,omitempty"`
	JSONData  map[string]any `json:"json_data"`
	Created   Timestamp      `json:"created"`
}

// HistoryItem statuses stay plain strings: the API may still return
// deprecated values.
type HistoryItem struct {
	UUID                 string    `json:"uuid"`
	Created              Timestamp `json:"created"`
	Domain               Domain    `json:"domain"`
	IdentifierUUID       string    `json:"identifier_uuid,omitempty"`
	OrganizationUUID     string    `json:"organization_uuid,omitempty"`
	ParticipantUUID      string    `json:"processing_record_participant_uuid"`
	ProcessingRecordUUID string    `json:"processing_record_uuid"`
	OldParticipantStatus string    `json:"old_prp_status"`
	NewParticipantStatus string    `json:"new_prp_status"`
	OldDerivedStatus     string    `json:"old_pr_derived_status"`
	NewDerivedStatus     string    `json:"new_pr_derived_status"`
	OldAcceptedLanguage  string    `json:"old_prp_accepted_language,omitempty"`
	NewAcceptedLanguage  string    `json:"new_prp_accepted_language,omitempty"`
	RequestID            string    `json:"request_id,omitempty"`
}

type AccessItem struct {
	UUID                string       `json:"uuid"`
	Created             Timestamp    `json:"created"`
	IdentifierUUID      string       `json:"identifier_uuid,omitempty"`
	IntrospectionStatus RecordStatus `json:"introspection_status"`
	Reason              string       `json:"reason,omitempty"`
	RequestID           string       `json:"request_id,omitempty"`
	Success             bool         `json:"success"`
	Status              AccessStatus `json:"status"`
}

type Identifier struct {
	UUID                string   `json:"uuid"`
	ID                  string   `json:"id"`
	IDTypeUUID          string   `json:"id_type_uuid,omitempty"`
	IDProviderInfoUUIDs []string `json:"id_provider_infos.uuid"`
	MetadataUUIDs       []string `json:"metadatas.uuid"`
	Verified            *bool    `json:"verified,omitempty"`
}

type IDProviderInfo struct {
	UUID           string `json:"uuid"`
	IdentifierUUID string `json:"identifier_uuid"`
	IDProviderUUID string `json:"id_provider_uuid"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Language       string `json:"language,omitempty"`
}

type AuthItem struct {
	UUID           string   `json:"uuid"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	IDProviderUUID string   `json:"id_provider_uuid"`
	AuthParams     string   `json:"auth_params,omitempty"`
	MetadataUUIDs  []string `json:"metadatas.uuid"`
}

type IDProvider struct {
	UUID          string   `json:"uuid"`
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          string   `json:"type,omitempty"`
	Description   string   `json:"description,omitempty"`
	MetadataUUIDs []string `json:"metadatas.uuid"`
}

// User is the logged-in principal as resolved from the identifiers endpoint.
type User struct {
	Subject     string       `json:"subject,omitempty"`
	GivenName   string       `json:"given_name,omitempty"`
	FamilyName  string       `json:"family_name,omitempty"`
	Username    string       `json:"username,omitempty"`
	Identifiers []Identifier `json:"identifiers"`
}

// IdentifierUUIDs returns the identifier set used for participant matching.
func (u *User) IdentifierUUIDs() map[string]struct{} {
	set := map[string]struct{}{}
	if u == nil {
		return set
	}
	for _, id := range u.Identifiers {
		set[id.UUID] = struct{}{}
	}
	return set
}

// RecordData is the per-record view model joined from a response bundle.
// It is recomputed on every fetch and never stored.
type RecordData struct {
	Record                     ProcessingRecord       `json:"record"`
	Consumer                   DataConsumer           `json:"consumer"`
	ConsumerOrg                Organization           `json:"consumer_org"`
	Provider                   *DataProvider          `json:"provider,omitempty"`
	ProviderOrg                *Organization          `json:"provider_org,omitempty"`
	DataSubjectParticipant     Participant            `json:"data_subject_participant"`
	UserParticipant            Participant            `json:"user_participant"`
	NonDataSubjectParticipants []Participant          `json:"non_data_subject_participants"`
	NonUserParticipants        []Participant          `json:"non_user_participants"`
	Participants               map[string]Participant `json:"participants"`
	Metadatas                  map[string]Metadata    `json:"metadatas"`
	IsMultiActivated           bool                   `json:"is_multi_activated"`
	IsOnBehalfUser             bool                   `json:"is_on_behalf_user"`
	IsPendingUserActivation    bool                   `json:"is_pending_user_activation"`
	// AcceptedLanguage is empty unless the record is active.
	AcceptedLanguage string `json:"accepted_language,omitempty"`
}
