package document

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/util/jsonx"
	"github.com/pkg/errors"
)

const (
	ImpactedDimensions = 6
	OwningDimensions   = 4
)

// Record is one document version as returned by the documents query, with
// its relation fields normalised to lists.
type Record struct {
	FileID          int64     `json:"file_id,string"`
	Name            string    `json:"name"`
	DocumentNumber  string    `json:"document_number"`
	DocumentStatus  string    `json:"document_status"`
	MajorVersion    int       `json:"major_version,string"`
	MinorVersion    int       `json:"minor_version,string"`
	VersionModified time.Time `json:"timestamp"`
	FileCreated     time.Time `json:"file_created_date"`
	Pages           int       `json:"pages,string"`
	Language        []string  `json:"language"`
	MD5             string    `json:"md5"`
	Country         []string  `json:"country"`
	GxPCategory     []string  `json:"gxp_category"`

	ImpactedBusinessAreas [ImpactedDimensions][]string `json:"impacted_business_areas"`
	OwningBusinessAreas   [OwningDimensions][]string   `json:"owning_business_areas"`

	ProductFamily  []string    `json:"product_family"`
	ProductVariant []string    `json:"product_variant"`
	Material       []string    `json:"material"`
	Substance      []string    `json:"substance"`
	MaterialGroup  []string    `json:"material_group"`
	Equipment      []string    `json:"equipment_nongvlms"`
	Entities       []string    `json:"entities_gvlms"`
	EquipmentType  []string    `json:"equipment_type"`
	Process        [5][]string `json:"process_levels"`
}

func (r *Record) Key() string {
	return strconv.FormatInt(r.FileID, 10)
}

type row struct {
	ID              jsonx.Int64   `json:"id"`
	Name            string        `json:"name__v"`
	DocumentNumber  string        `json:"document_number__v"`
	Status          string        `json:"status__v"`
	MajorVersion    jsonx.Int64   `json:"major_version_number__v"`
	MinorVersion    jsonx.Int64   `json:"minor_version_number__v"`
	VersionModified string        `json:"version_modified_date__v"`
	FileCreated     string        `json:"file_created_date__v"`
	Pages           jsonx.Int64   `json:"pages__v"`
	Language        jsonx.Strings `json:"language__v"`
	MD5             string        `json:"md5checksum__v"`
	Country         jsonx.Strings `json:"country__v"`
	GxPCategory     jsonx.Strings `json:"gxp_category__c"`

	Impacted1 jsonx.Strings `json:"impacted_business_area_1__c"`
	Impacted2 jsonx.Strings `json:"impacted_business_area_2__c"`
	Impacted3 jsonx.Strings `json:"impacted_business_area_3__c"`
	Impacted4 jsonx.Strings `json:"impacted_business_area_4__c"`
	Impacted5 jsonx.Strings `json:"impacted_business_area_5__c"`
	Impacted6 jsonx.Strings `json:"impacted_business_area_6__c"`
	Owning1   jsonx.Strings `json:"owning_business_area_1__c"`
	Owning2   jsonx.Strings `json:"owning_business_area_2__c"`
	Owning3   jsonx.Strings `json:"owning_business_area_3__c"`
	Owning4   jsonx.Strings `json:"owning_business_area_4__c"`

	ProductFamily  jsonx.Strings `json:"product_family__c"`
	ProductVariant jsonx.Strings `json:"product_variant__c"`
	Material       jsonx.Strings `json:"material__c"`
	Substance      jsonx.Strings `json:"substance__c"`
	MaterialGroup  jsonx.Strings `json:"material_group__c"`
	Equipment      jsonx.Strings `json:"equipment_nongvlms__c"`
	Entities       jsonx.Strings `json:"entities_gvlms__c"`
	EquipmentType  jsonx.Strings `json:"equipment_type__c"`
	ProcessL1      jsonx.Strings `json:"process_l1__c"`
	ProcessL2      jsonx.Strings `json:"process_l2__c"`
	ProcessL3      jsonx.Strings `json:"process_l3__c"`
	ProcessL4      jsonx.Strings `json:"process_l4__c"`
	ProcessL5      jsonx.Strings `json:"process_l5__c"`
}

// Decode turns one raw documents-query row into a Record.
func Decode(raw json.RawMessage) (*Record, error) {
	var r row
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrap(err, "decode document row")
	}
	if r.ID == 0 {
		return nil, errors.New("decode document row: missing id")
	}

	modified, err := parseTime(r.VersionModified)
	if err != nil {
		return nil, errors.Wrapf(err, "decode document %d", r.ID)
	}
	created, err := parseTime(r.FileCreated)
	if err != nil {
		return nil, errors.Wrapf(err, "decode document %d", r.ID)
	}

	return &Record{
		FileID:          int64(r.ID),
		Name:            r.Name,
		DocumentNumber:  r.DocumentNumber,
		DocumentStatus:  r.Status,
		MajorVersion:    int(r.MajorVersion),
		MinorVersion:    int(r.MinorVersion),
		VersionModified: modified,
		FileCreated:     created,
		Pages:           int(r.Pages),
		Language:        list(r.Language),
		MD5:             r.MD5,
		Country:         list(r.Country),
		GxPCategory:     list(r.GxPCategory),
		ImpactedBusinessAreas: [ImpactedDimensions][]string{
			list(r.Impacted1), list(r.Impacted2), list(r.Impacted3),
			list(r.Impacted4), list(r.Impacted5), list(r.Impacted6),
		},
		OwningBusinessAreas: [OwningDimensions][]string{
			list(r.Owning1), list(r.Owning2), list(r.Owning3), list(r.Owning4),
		},
		ProductFamily:  list(r.ProductFamily),
		ProductVariant: list(r.ProductVariant),
		Material:       list(r.Material),
		Substance:      list(r.Substance),
		MaterialGroup:  list(r.MaterialGroup),
		Equipment:      list(r.Equipment),
		Entities:       list(r.Entities),
		EquipmentType:  list(r.EquipmentType),
		Process: [5][]string{
			list(r.ProcessL1), list(r.ProcessL2), list(r.ProcessL3), list(r.ProcessL4), list(r.ProcessL5),
		},
	}, nil
}

func list(s jsonx.Strings) []string {
	if s == nil {
		return []string{}
	}
	return []string(s)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse timestamp")
	}
	return t.UTC(), nil
}

// Ref identifies a document without its metadata, as returned by the
// withdrawn documents query.
type Ref struct {
	FileID int64
	Name   string
}

func DecodeRef(raw json.RawMessage) (Ref, error) {
	var r struct {
		ID   jsonx.Int64 `json:"id"`
		Name string      `json:"name__v"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return Ref{}, errors.Wrap(err, "decode document ref")
	}
	if r.ID == 0 {
		return Ref{}, errors.New("decode document ref: missing id")
	}
	return Ref{FileID: int64(r.ID), Name: r.Name}, nil
}
