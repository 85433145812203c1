package api

import (
	"bytes"
	"encoding/json"
	"time"
)

// Token is the body returned by /signup and /login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// SignupRequest is the body of POST /signup.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest carries the credentials sent as an OAuth2 password form.
type LoginRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// ProfileUpdate is a partial profile for PUT /users/me. Nil fields are not sent.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty" validate:"omitempty,min=1,max=64"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id"`
	UserKey  string `json:"user_key"`
}

// ChatReply is the body returned by POST /chat.
type ChatReply struct {
	Response Response `json:"response"`
}

// HistoryQuery selects records from GET /chat/history.
type HistoryQuery struct {
	ThreadID string
	UserKey  string
	Limit    int
}

// DefaultHistoryLimit is sent when HistoryQuery.Limit is zero.
const DefaultHistoryLimit = 50

// HistoryRecord is one persisted query/response exchange.
type HistoryRecord struct {
	ID        string   `json:"id"`
	ThreadID  string   `json:"thread_id"`
	UserKey   string   `json:"user_key"`
	Query     string   `json:"query"`
	Response  Response `json:"response"`
	CreatedAt string   `json:"created_at"`
}

// Time parses CreatedAt. The backend emits ISO-8601, with or without a zone;
// zoneless values are read in loc, like a browser would.
func (r HistoryRecord) Time(loc *time.Location) (time.Time, bool) {
	return ParseTimestamp(r.CreatedAt, loc)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats seen from the backend.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ResponseKind tags the shape of an assistant reply.
type ResponseKind int

const (
	ResponseEmpty ResponseKind = iota
	ResponseText
	ResponseStructured
)

// Response is an assistant reply, either plain text or a JSON value the
// backend produced. DisplayText turns either into one string.
type Response struct {
	Kind       ResponseKind
	Text       string
	Structured json.RawMessage
}

// TextResponse wraps plain text.
func TextResponse(s string) Response {
	return Response{Kind: ResponseText, Text: s}
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = Response{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*r = TextResponse(s)
		return nil
	}
	*r = Response{Kind: ResponseStructured, Structured: append(json.RawMessage(nil), trimmed...)}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case ResponseText:
		return json.Marshal(r.Text)
	case ResponseStructured:
		if len(r.Structured) == 0 {
			return []byte("null"), nil
		}
		return r.Structured, nil
	default:
		return []byte("null"), nil
	}
}

// IsEmpty reports whether the backend sent no reply (or an empty string).
func (r Response) IsEmpty() bool {
	switch r.Kind {
	case ResponseText:
		return r.Text == ""
	case ResponseStructured:
		return len(r.Structured) == 0
	}
	return true
}
