package model

// EntryStatus is the terminal classification of a raw inquiry.
type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "pending"
	EntryStatusSuccess  EntryStatus = "success"
	EntryStatusFail     EntryStatus = "fail"
	EntryStatusEdgeCase EntryStatus = "edge_case"
)

// ValidEntryStatus reports whether s is one of the terminal flag values
// a classifier may assign.
func ValidEntryStatus(s EntryStatus) bool {
	switch s {
	case EntryStatusSuccess, EntryStatusFail, EntryStatusEdgeCase:
		return true
	}
	return false
}

// Entry is one raw business inquiry after ingestion. Status starts as
// pending and is set exactly once by the flagging stage.
type Entry struct {
	ID       string      `json:"id"`
	FileID   string      `json:"file_id"`
	RawInput string      `json:"raw_input"`
	Status   EntryStatus `json:"status"`
}

// EdgeCase is an Entry flagged for human review, with the classifier's
// justification.
type EdgeCase struct {
	ID       string `json:"id"`
	EntryID  string `json:"entry_id"`
	FileID   string `json:"file_id"`
	RawInput string `json:"raw_input"`
	Reason   string `json:"reason"`
}

// IngestRecord is the normalized ingestion input: one free-text inquiry.
// Plain-line text files are converted 1:1 into this form before storage.
type IngestRecord struct {
	Text string `json:"text"`
}
