package types

import "encoding/json"

// LogEntryKind distinguishes parsed adapter output from raw fallback payloads.
type LogEntryKind string

const (
	// EntryStructured is an adapter event that parsed cleanly.
	EntryStructured LogEntryKind = "structured"
	// EntryRaw is the fallback for payloads that failed to parse.
	EntryRaw LogEntryKind = "raw"
)

// LogEntry is one durable record of session output. Entries for a session are
// ordered by SequenceNo in arrival order; the store assigns the ID and the
// sequence.
type LogEntry struct {
	ID         string          `json:"id"`
	SessionKey string          `json:"sessionKey"`
	SequenceNo int64           `json:"sequenceNo"`
	Kind       LogEntryKind    `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  int64           `json:"createdAt"`
}
