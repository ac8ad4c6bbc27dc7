package document

import (
	"strings"
	"time"
)

// Window is how far back incremental and withdrawal queries look.
const Window = 48 * time.Hour

var documentFields = []string{
	"id", "name__v", "file_created_date__v", "version_modified_date__v", "status__v", "pages__v",
	"major_version_number__v", "minor_version_number__v", "language__v", "md5checksum__v", "country__v",
	"gxp_category__c", "product_family__c", "product_variant__c", "material__c", "substance__c", "material_group__c",
	"owning_business_area_1__c", "owning_business_area_2__c", "owning_business_area_3__c", "owning_business_area_4__c",
	"impacted_business_area_1__c", "impacted_business_area_2__c", "impacted_business_area_3__c",
	"impacted_business_area_4__c", "impacted_business_area_5__c", "impacted_business_area_6__c",
	"equipment_nongvlms__c", "entities_gvlms__c", "equipment_type__c",
	"process_l1__c", "process_l2__c", "process_l3__c", "process_l4__c", "process_l5__c", "document_number__v",
}

const typeAllowList = "type__v IN ('Work Instruction','Standard Operating Procedure (SOP)','Standard','Form','Template','Guidance')"

// Since renders the start of the trailing window as a VQL date literal.
func Since(now time.Time) string {
	return now.Add(-Window).Format("2006-01-02")
}

// DocumentsQuery selects the candidate documents of a run.
func DocumentsQuery(mode Mode, now time.Time) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(documentFields, ", "))
	b.WriteString(" FROM ALLVERSIONS documents WHERE (status__v = 'Effective') AND (")
	b.WriteString(typeAllowList)
	b.WriteString(") AND security__c = 'Open'")
	if mode == ModeIncremental {
		b.WriteString(" AND version_modified_date__v >= '" + Since(now) + "'")
	}
	return b.String()
}

// WithdrawnQuery selects documents withdrawn or superseded inside the window.
func WithdrawnQuery(now time.Time) string {
	return "SELECT id, name__v FROM documents WHERE (status__v = 'Withdrawn' OR status__v = 'Superseded') AND (" +
		typeAllowList + ") AND latest_version__v = true AND security__c = 'Open' AND version_modified_date__v >= '" +
		Since(now) + "'"
}

// NumbersQuery selects the latest effective versions of the given document
// numbers.
func NumbersQuery(numbers []string) string {
	quoted := make([]string, 0, len(numbers))
	for _, n := range numbers {
		quoted = append(quoted, "'"+strings.ReplaceAll(n, "'", "\\'")+"'")
	}
	return "SELECT " + strings.Join(documentFields, ", ") +
		" FROM documents WHERE (status__v = 'Effective') AND latest_version__v = true AND security__c = 'Open'" +
		" AND document_number__v CONTAINS (" + strings.Join(quoted, ",") + ")"
}

// LookupQuery selects the code to name pairs of a lookup table changed
// inside the window.
func LookupQuery(table string, now time.Time) string {
	return "SELECT id, name__v FROM " + table + " WHERE modified_date__v >= '" + Since(now) + "'"
}
