package lookup

import "github.com/ValerySidorin/sopsync/pkg/document"

// Table is one code to display name mapping kept in the document system.
type Table struct {
	// Name is the cached snapshot name, constants/<Name>.json.
	Name string
	// Source is the object queried for live entries.
	Source string
	apply  func(rec *document.Record, m Mapping) []string
}

const (
	BusinessArea1 = "business_area_1"
	BusinessArea2 = "business_area_2"
	BusinessArea3 = "business_area_3"
	BusinessArea4 = "business_area_4"
	BusinessArea5 = "business_area_5"
	BusinessArea6 = "business_area_6"
)

// Tables lists every lookup table refreshed at the start of a run, in
// refresh order.
var Tables = []Table{
	{Name: "countries", Source: "country__v", apply: func(r *document.Record, m Mapping) []string {
		r.Country = m.Rename(r.Country)
		return nil
	}},
	{Name: "object_reference", Source: "object_reference_field_value__c", apply: func(r *document.Record, m Mapping) []string {
		r.Entities = m.Rename(r.Entities)
		return nil
	}},
	{Name: BusinessArea1, Source: "business_area_1__c", apply: businessArea(0)},
	{Name: BusinessArea2, Source: "business_area_2__c", apply: businessArea(1)},
	{Name: BusinessArea3, Source: "qms_organization__qdm", apply: businessArea(2)},
	{Name: BusinessArea4, Source: "department__v", apply: businessArea(3)},
	{Name: BusinessArea5, Source: "business_area_5__c", apply: businessArea(4)},
	{Name: BusinessArea6, Source: "business_area_6__c", apply: businessArea(5)},
	{Name: "product_family", Source: "product_family__v", apply: func(r *document.Record, m Mapping) []string {
		r.ProductFamily = m.Rename(r.ProductFamily)
		return nil
	}},
	{Name: "product_variant", Source: "product_variant__v", apply: func(r *document.Record, m Mapping) []string {
		r.ProductVariant = m.Rename(r.ProductVariant)
		return nil
	}},
	{Name: "material_group", Source: "material_group__c", apply: func(r *document.Record, m Mapping) []string {
		r.MaterialGroup = m.Rename(r.MaterialGroup)
		return nil
	}},
	{Name: "substance_material", Source: "context__qdm", apply: func(r *document.Record, m Mapping) []string {
		r.Substance = m.Rename(r.Substance)
		r.Material = m.Rename(r.Material)
		return nil
	}},
	{Name: "equipment", Source: "equipment__c", apply: func(r *document.Record, m Mapping) []string {
		r.Equipment = m.Rename(r.Equipment)
		return nil
	}},
	{Name: "equipment_type", Source: "equipment_type__c", apply: func(r *document.Record, m Mapping) []string {
		r.EquipmentType = m.Rename(r.EquipmentType)
		return nil
	}},
	{Name: "business_process_l1", Source: "business_process__v", apply: process(0)},
	{Name: "business_process_l2", Source: "process_level_2__c", apply: process(1)},
	{Name: "business_process_l3", Source: "process_level_3__c", apply: process(2)},
	{Name: "business_process_l4", Source: "process_level_4__c", apply: process(3)},
	{Name: "business_process_l5", Source: "process_level_5__c", apply: process(4)},
}

// businessArea resolves dimension i of both the impacted and, when it
// exists, the owning business areas. Unknown codes are reported.
func businessArea(i int) func(*document.Record, Mapping) []string {
	return func(r *document.Record, m Mapping) []string {
		var missing []string
		r.ImpactedBusinessAreas[i], missing = m.Resolve(r.ImpactedBusinessAreas[i])
		if i < document.OwningDimensions {
			var more []string
			r.OwningBusinessAreas[i], more = m.Resolve(r.OwningBusinessAreas[i])
			missing = append(missing, more...)
		}
		return missing
	}
}

func process(level int) func(*document.Record, Mapping) []string {
	return func(r *document.Record, m Mapping) []string {
		r.Process[level] = m.Rename(r.Process[level])
		return nil
	}
}
