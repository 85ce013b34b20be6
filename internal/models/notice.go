package models

// NoticeKind tags the outcome of a session or course check.
type NoticeKind string

const (
	// NoticeAdvisory is informational and never prevents a write.
	NoticeAdvisory NoticeKind = "advisory"
	// NoticeBlocking aborts the write and its transaction.
	NoticeBlocking NoticeKind = "blocking"
)

// Notice is a structured warning or validation failure surfaced to callers.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Check    string     `json:"check"`
	RecordID string     `json:"record_id,omitempty"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
}
