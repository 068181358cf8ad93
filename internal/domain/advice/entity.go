package advice

import "time"

// AdviceID identifier type
type AdviceID string

// Advice is an AI-written narrative about one stored report. It is kept
// beside the report, never merged into it.
type Advice struct {
	ID        AdviceID  `json:"id"`
	ReportID  string    `json:"report_id"`
	Model     string    `json:"model"`
	Content   string    `json:"content"` // JSON string from AI
	CreatedAt time.Time `json:"created_at"`
}
