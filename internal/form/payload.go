package form

import (
	"consentwallet/internal/records"
	mdssdk "consentwallet/sdk/go"
)

// UserDataPayload builds the metadata payload of user-provided data for a
// record. metadataUUID is empty when the data is created.
func UserDataPayload(recordUUID, metadataUUID string) func(values map[string]string) mdssdk.MetadataPayload {
	return func(values map[string]string) mdssdk.MetadataPayload {
		data := make(map[string]any, len(values))
		for k, v := range values {
			data[k] = v
		}
		return mdssdk.MetadataPayload{
			Model:        "processing_record",
			ModelUUID:    recordUUID,
			Type:         records.TypeUserProvidedData,
			Name:         records.UserProvidedDataName,
			JSONData:     data,
			MetadataUUID: metadataUUID,
		}
	}
}
