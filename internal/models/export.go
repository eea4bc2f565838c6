package models

import "time"

// ChatSummary is one chat group as returned by the Lark chat listing.
// Fields are passed through to the caller untouched.
type ChatSummary struct {
	ChatID      string `json:"chat_id"`
	Avatar      string `json:"avatar"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
	OwnerIDType string `json:"owner_id_type"`
	External    bool   `json:"external"`
	TenantKey   string `json:"tenant_key"`
}

// RawMessage is a single message record as fetched from Lark.
type RawMessage struct {
	MessageID    string
	SenderOpenID string
	Content      string // JSON-encoded body, e.g. {"text":"hello"}
	CreateTime   string // epoch milliseconds, string-encoded
}

// ExportRow is one normalized spreadsheet row.
type ExportRow struct {
	Time   string // "YYYY-MM-DD HH:MM:SS" in UTC
	Sender string
	Text   string
}

// TimeWindow bounds a message fetch. A zero field leaves that side open.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// SheetWriteResult reports the outcome of a sheet-sink write.
type SheetWriteResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	SheetURL  string `json:"sheetUrl,omitempty"`
	SheetName string `json:"sheetName,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ExportRun is the recorded outcome of one export invocation.
type ExportRun struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Sink      string    `json:"sink"`
	RowCount  int       `json:"row_count"`
	SheetName *string   `json:"sheet_name,omitempty"`
	Status    string    `json:"status"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
