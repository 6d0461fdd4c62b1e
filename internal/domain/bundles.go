package domain

// RecordsBundle is the response shape of the processing record endpoints.
// Single-record responses use the same shape with one record.
type RecordsBundle struct {
	ProcessingRecords map[string]ProcessingRecord `json:"processing_records"`
	Participants      map[string]Participant      `json:"processing_record_participants"`
	DataConsumers     map[string]DataConsumer     `json:"data_consumers"`
	DataProviders     map[string]DataProvider     `json:"data_providers"`
	Organizations     map[string]Organization     `json:"organizations"`
	Metadatas         map[string]Metadata         `json:"metadatas"`
	Identifiers       map[string]Identifier       `json:"identifiers,omitempty"`
	NextOffset        Offset                      `json:"next_offset,omitempty"`
}

func (b RecordsBundle) Next() Offset { return b.NextOffset }

// Merge unions every keyed map. The receiver's cursor is replaced by other's.
func (b RecordsBundle) Merge(other RecordsBundle) RecordsBundle {
	return RecordsBundle{
		ProcessingRecords: MergeKeyed(b.ProcessingRecords, other.ProcessingRecords),
		Participants:      MergeKeyed(b.Participants, other.Participants),
		DataConsumers:     MergeKeyed(b.DataConsumers, other.DataConsumers),
		DataProviders:     MergeKeyed(b.DataProviders, other.DataProviders),
		Organizations:     MergeKeyed(b.Organizations, other.Organizations),
		Metadatas:         MergeKeyed(b.Metadatas, other.Metadatas),
		Identifiers:       MergeKeyed(b.Identifiers, other.Identifiers),
		NextOffset:        other.NextOffset,
	}
}

type HistoryBundle struct {
	HistoryItems  map[string]HistoryItem  `json:"processing_record_history_items"`
	Identifiers   map[string]Identifier   `json:"identifiers,omitempty"`
	Metadatas     map[string]Metadata     `json:"metadatas,omitempty"`
	Organizations map[string]Organization `json:"organizations,omitempty"`
	Limit         int                     `json:"limit,omitempty"`
	NextOffset    Offset                  `json:"next_offset,omitempty"`
}

func (b HistoryBundle) Next() Offset { return b.NextOffset }

func (b HistoryBundle) Merge(other HistoryBundle) HistoryBundle {
	return HistoryBundle{
		HistoryItems:  MergeKeyed(b.HistoryItems, other.HistoryItems),
		Identifiers:   MergeKeyed(b.Identifiers, other.Identifiers),
		Metadatas:     MergeKeyed(b.Metadatas, other.Metadatas),
		Organizations: MergeKeyed(b.Organizations, other.Organizations),
		Limit:         other.Limit,
		NextOffset:    other.NextOffset,
	}
}

type AccessBundle struct {
	AccessItems map[string]AccessItem `json:"access_items"`
	Limit       int                   `json:"limit,omitempty"`
	NextOffset  Offset                `json:"next_offset,omitempty"`
}

func (b AccessBundle) Next() Offset { return b.NextOffset }

func (b AccessBundle) Merge(other AccessBundle) AccessBundle {
	return AccessBundle{
		AccessItems: MergeKeyed(b.AccessItems, other.AccessItems),
		Limit:       other.Limit,
		NextOffset:  other.NextOffset,
	}
}

type AuthItemsBundle struct {
	AuthItems   map[string]AuthItem   `json:"auth_items"`
	IDProviders map[string]IDProvider `json:"id_providers"`
	Metadatas   map[string]Metadata   `json:"metadatas"`
	NextOffset  Offset                `json:"next_offset,omitempty"`
}

func (b AuthItemsBundle) Next() Offset { return b.NextOffset }

func (b AuthItemsBundle) Merge(other AuthItemsBundle) AuthItemsBundle {
	return AuthItemsBundle{
		AuthItems:   MergeKeyed(b.AuthItems, other.AuthItems),
		IDProviders: MergeKeyed(b.IDProviders, other.IDProviders),
		Metadatas:   MergeKeyed(b.Metadatas, other.Metadatas),
		NextOffset:  other.NextOffset,
	}
}

type IdentifiersBundle struct {
	Identifiers     map[string]Identifier     `json:"identifiers"`
	IDProviderInfos map[string]IDProviderInfo `json:"id_provider_infos"`
	Metadatas       map[string]Metadata       `json:"metadatas"`
}

// MergeKeyed returns a new map holding a's entries overlaid by b's.
func MergeKeyed[V any](a, b map[string]V) map[string]V {
	out := make(map[string]V, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
