package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"racing-insights/internal/session"
)

// Placeholders for fields the backend left out.
const (
	MissingQuery    = "No query"
	MissingResponse = "No response"
)

// historyItems accepts {"history": [...]} or a bare array.
func historyItems(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}

	var items []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false
		}
		return items, true
	}

	var wrapped struct {
		History json.RawMessage `json:"history"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, false
	}
	h := bytes.TrimSpace(wrapped.History)
	if len(h) == 0 || h[0] != '[' {
		return nil, false
	}
	if err := json.Unmarshal(h, &items); err != nil {
		return nil, false
	}
	return items, true
}

type rawRecord struct {
	ID        json.RawMessage `json:"id"`
	ThreadID  string          `json:"thread_id"`
	UserKey   string          `json:"user_key"`
	Query     string          `json:"query"`
	Response  Response        `json:"response"`
	CreatedAt string          `json:"created_at"`
}

// normalizeRecord fills in defaults for missing fields.
func normalizeRecord(item json.RawMessage, userKey string) (HistoryRecord, bool) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return HistoryRecord{}, false
	}

	var r rawRecord
	if err := json.Unmarshal(trimmed, &r); err != nil {
		// Fields of the wrong type: keep what we can from a looser decode.
		r = looseRecord(trimmed)
	}

	rec := HistoryRecord{
		ID:        idString(r.ID),
		ThreadID:  r.ThreadID,
		UserKey:   r.UserKey,
		Query:     r.Query,
		Response:  r.Response,
		CreatedAt: r.CreatedAt,
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("chat-%d-%s", time.Now().UnixMilli(), session.NewSuffix(7))
	}
	if rec.UserKey == "" {
		rec.UserKey = userKey
	}
	if rec.Query == "" {
		rec.Query = MissingQuery
	}
	if rec.Response.IsEmpty() {
		rec.Response = TextResponse(MissingResponse)
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = time.Now().Format(time.RFC3339Nano)
	}
	return rec, true
}

func looseRecord(data []byte) rawRecord {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(data, &fields)

	str := func(key string) string {
		var s string
		_ = json.Unmarshal(fields[key], &s)
		return s
	}

	r := rawRecord{
		ID:        fields["id"],
		ThreadID:  str("thread_id"),
		UserKey:   str("user_key"),
		Query:     str("query"),
		CreatedAt: str("created_at"),
	}
	_ = json.Unmarshal(fields["response"], &r.Response)
	return r
}

// idString accepts numeric or string ids.
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
