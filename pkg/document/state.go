package document

import "strconv"

type Status string

const (
	StatusDownloading Status = "DOWNLOADING"
	StatusOK          Status = "OK"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// State is the durable sync record of one document, keyed by file id.
type State struct {
	Record

	Site         string `json:"site"`
	DocumentType string `json:"document_type"`
	Status       Status `json:"status"`
}

func NewState(rec Record) *State {
	return &State{Record: rec}
}

func KeyOf(fileID int64) string {
	return strconv.FormatInt(fileID, 10)
}
