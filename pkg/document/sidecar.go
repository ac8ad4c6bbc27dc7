package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const Unknown = "UNKNOWN"

// SidecarFields is the allow-list of attributes published next to a binary.
var SidecarFields = []string{
	"impacted_business_area_1", "impacted_business_area_2", "impacted_business_area_3",
	"impacted_business_area_4", "impacted_business_area_5", "impacted_business_area_6",
	"owning_business_area_1", "owning_business_area_2", "owning_business_area_3", "owning_business_area_4",
	"name", "document_number", "language", "country", "file_id", "major_version", "minor_version",
}

type Sidecar struct {
	MetadataAttributes map[string]string `json:"metadataAttributes"`
}

// Attributes flattens the fields of s into strings keyed by attribute name.
// Absent values are left out.
func (s *State) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		"name":            s.Name,
		"document_number": s.DocumentNumber,
		"language":        s.Language,
		"country":         s.Country,
		"file_id":         strconv.FormatInt(s.FileID, 10),
		"major_version":   strconv.Itoa(s.MajorVersion),
		"minor_version":   strconv.Itoa(s.MinorVersion),
	}
	for i, v := range s.ImpactedBusinessAreas {
		attrs[fmt.Sprintf("impacted_business_area_%d", i+1)] = v
	}
	for i, v := range s.OwningBusinessAreas {
		attrs[fmt.Sprintf("owning_business_area_%d", i+1)] = v
	}
	return attrs
}

// FilterMetadata keeps the allow-listed attributes, replacing absent or
// empty ones with UNKNOWN and joining lists with ", ".
func FilterMetadata(attrs map[string]interface{}) map[string]string {
	out := make(map[string]string, len(SidecarFields))
	for _, key := range SidecarFields {
		out[key] = flatten(attrs[key])
	}
	return out
}

func flatten(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return Unknown
	case string:
		if t == "" {
			return Unknown
		}
		return t
	case []string:
		if len(t) == 0 {
			return Unknown
		}
		return strings.Join(t, ", ")
	case []interface{}:
		if len(t) == 0 {
			return Unknown
		}
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	default:
		s := fmt.Sprint(t)
		if s == "" {
			return Unknown
		}
		return s
	}
}

func (s *State) Sidecar() ([]byte, error) {
	return json.Marshal(Sidecar{MetadataAttributes: FilterMetadata(s.Attributes())})
}
