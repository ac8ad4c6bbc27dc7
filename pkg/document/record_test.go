package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawDocument = `{
	"id": 42,
	"name__v": "Cleaning of filling line",
	"document_number__v": "SOP-2024-0042",
	"status__v": "Effective",
	"major_version_number__v": "3",
	"minor_version_number__v": 0,
	"version_modified_date__v": "2024-05-02T08:15:30.000Z",
	"file_created_date__v": null,
	"pages__v": 12,
	"language__v": ["en"],
	"country__v": "c-se",
	"impacted_business_area_1__c": "ba1-eu",
	"impacted_business_area_2__c": ["ba2-pharma", "ba2-dev"],
	"owning_business_area_4__c": ["dep-qa"],
	"process_l3__c": ["pl3-x"]
}`

func TestDecode(t *testing.T) {
	rec, err := Decode(json.RawMessage(rawDocument))
	require.NoError(t, err)

	assert.Equal(t, int64(42), rec.FileID)
	assert.Equal(t, "42", rec.Key())
	assert.Equal(t, "SOP-2024-0042", rec.DocumentNumber)
	assert.Equal(t, 3, rec.MajorVersion)
	assert.Equal(t, 0, rec.MinorVersion)
	assert.Equal(t, 12, rec.Pages)
	assert.Equal(t, time.Date(2024, 5, 2, 8, 15, 30, 0, time.UTC), rec.VersionModified)
	assert.True(t, rec.FileCreated.IsZero())
	assert.Equal(t, []string{"c-se"}, rec.Country)
	assert.Equal(t, []string{"ba1-eu"}, rec.ImpactedBusinessAreas[0])
	assert.Equal(t, []string{"ba2-pharma", "ba2-dev"}, rec.ImpactedBusinessAreas[1])
	assert.Equal(t, []string{}, rec.ImpactedBusinessAreas[5])
	assert.Equal(t, []string{"dep-qa"}, rec.OwningBusinessAreas[3])
	assert.Equal(t, []string{"pl3-x"}, rec.Process[2])
}

func TestDecodeRejectsMissingID(t *testing.T) {
	_, err := Decode(json.RawMessage(`{"name__v": "x"}`))
	assert.Error(t, err)

	_, err = Decode(json.RawMessage(`{"id": 1, "version_modified_date__v": "yesterday"}`))
	assert.Error(t, err)
}

func TestDecodeRef(t *testing.T) {
	ref, err := DecodeRef(json.RawMessage(`{"id": "7", "name__v": "Old"}`))
	require.NoError(t, err)
	assert.Equal(t, Ref{FileID: 7, Name: "Old"}, ref)
}

func TestStateRoundTrip(t *testing.T) {
	rec, err := Decode(json.RawMessage(rawDocument))
	require.NoError(t, err)

	st := NewState(*rec)
	st.Site = "sweden_osd"
	st.DocumentType = "SOP"
	st.Status = StatusDownloading

	b, err := json.Marshal(st)
	require.NoError(t, err)

	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &flat))
	assert.Equal(t, "42", flat["file_id"])
	assert.Equal(t, "DOWNLOADING", flat["status"])
	assert.Equal(t, "sweden_osd", flat["site"])

	var back State
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *st, back)
}
