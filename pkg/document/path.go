package document

import (
	"path"
	"strings"
)

const (
	KnowledgeBasePrefix = "kb_documents"
	SidecarSuffix       = ".metadata.json"
	BinaryExt           = ".pdf"
)

var segmentReplacer = strings.NewReplacer(" ", "_", "/", "_", "?", "", "&", "")

// NormalizeSegment makes a site or document type safe for an object key.
func NormalizeSegment(s string) string {
	return segmentReplacer.Replace(strings.ToLower(s))
}

// Folder is where the binary and sidecar of a document in site/docType live.
func Folder(site, docType string) string {
	return path.Join(KnowledgeBasePrefix, NormalizeSegment(site), NormalizeSegment(docType))
}

func BinaryName(fileID int64) string {
	return KeyOf(fileID) + BinaryExt
}

func SidecarName(binaryName string) string {
	return binaryName + SidecarSuffix
}

// Keys returns the binary and sidecar object keys of a persisted document.
func (s *State) Keys() (binary, sidecar string) {
	dir := Folder(s.Site, s.DocumentType)
	name := BinaryName(s.FileID)
	return path.Join(dir, name), path.Join(dir, SidecarName(name))
}
