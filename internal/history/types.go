package history

import (
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one message in a conversation transcript
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// Error marks an assistant turn standing in for a failed request.
	Error bool `json:"error,omitempty"`
}

// Period is a recency category in the history browser.
type Period string

const (
	PeriodToday     Period = "TODAY"
	PeriodYesterday Period = "YESTERDAY"
	PeriodPrevious  Period = "PREVIOUS"
)

// periods is the display order of buckets.
var periods = []Period{PeriodToday, PeriodYesterday, PeriodPrevious}

// Entry is one row in the history browser
type Entry struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Title       string    `json:"title"`
	DisplayTime string    `json:"display_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bucket groups entries of one period. Buckets are never empty.
type Bucket struct {
	Period  Period  `json:"period"`
	Entries []Entry `json:"entries"`
}
