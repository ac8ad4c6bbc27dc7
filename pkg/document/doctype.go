package document

import "regexp"

var typePattern = regexp.MustCompile(`\b(?:SOP|BDR|WI|SPEC|REP|GUID|FORM|STND|TMP)\b`)

// ExtractType returns the first document type code found as a whole word in
// a document number, or "" when there is none.
func ExtractType(documentNumber string) string {
	return typePattern.FindString(documentNumber)
}
