// Package history turns raw backend history into a transcript and a
// recency-bucketed index.
package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"racing-insights/internal/api"
)

// maxTitleLen is the number of characters of a query kept as its title.
const maxTitleLen = 30

// Reconciler holds the clock and calendar used to derive views. The zero
// value is not usable; use NewReconciler or Default.
type Reconciler struct {
	now      func() time.Time
	location *time.Location
	logger   zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLocation sets the calendar used to compare days. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) { r.location = loc }
}

// WithLogger sets the logger for skipped records.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler creates a reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		now:      time.Now,
		location: time.Local,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default uses the wall clock and local time zone.
var Default = NewReconciler()

// ToTranscript is Default.ToTranscript.
func ToTranscript(records []api.HistoryRecord) []Turn {
	return Default.ToTranscript(records)
}

// ToBuckets is Default.ToBuckets.
func ToBuckets(records []api.HistoryRecord) []Bucket {
	return Default.ToBuckets(records)
}

// recordTime parses CreatedAt, substituting now when it is missing or unparseable.
func (r *Reconciler) recordTime(rec api.HistoryRecord, now time.Time) time.Time {
	if t, ok := rec.Time(r.location); ok {
		return t
	}
	return now
}

// ToTranscript orders records by creation time and expands each into a user
// turn followed by an assistant turn sharing the record's timestamp.
func (r *Reconciler) ToTranscript(records []api.HistoryRecord) []Turn {
	if len(records) == 0 {
		return []Turn{}
	}

	now := r.now().In(r.location)

	type stamped struct {
		rec api.HistoryRecord
		at  time.Time
	}
	sorted := make([]stamped, len(records))
	for i, rec := range records {
		sorted[i] = stamped{rec: rec, at: r.recordTime(rec, now)}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].at.Before(sorted[j].at)
	})

	turns := make([]Turn, 0, 2*len(sorted))
	for _, s := range sorted {
		turns = append(turns,
			Turn{
				ID:        turnID("user", s.rec.ID),
				Speaker:   SpeakerUser,
				Text:      s.rec.Query,
				Timestamp: s.at,
			},
			Turn{
				ID:        turnID("bot", s.rec.ID),
				Speaker:   SpeakerAssistant,
				Text:      s.rec.Response.DisplayText(),
				Timestamp: s.at,
			},
		)
	}
	return turns
}

// turnID is unique across calls even for the same record.
func turnID(prefix, recordID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
	if recordID == "" {
		return fmt.Sprintf("%s-%s", prefix, suffix)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, recordID, suffix)
}

// ToBuckets groups records into TODAY, YESTERDAY and PREVIOUS by calendar
// day, keeping input order within a bucket. Records without a query or a
// creation time are skipped. Empty buckets are omitted.
func (r *Reconciler) ToBuckets(records []api.HistoryRecord) []Bucket {
	now := r.now().In(r.location)
	today := dayKey(now)
	yesterday := dayKey(now.AddDate(0, 0, -1))

	grouped := map[Period][]Entry{}
	for i, rec := range records {
		if rec.Query == "" || rec.CreatedAt == "" {
			r.logger.Debug().Int("index", i).Str("id", rec.ID).Msg("skipping history record without query or created_at")
			continue
		}

		at := r.recordTime(rec, now).In(r.location)
		entry := Entry{
			ID:        rec.ID,
			ThreadID:  rec.ThreadID,
			Title:     Title(rec.Query),
			CreatedAt: at,
		}

		var period Period
		switch dayKey(at) {
		case today:
			period = PeriodToday
		case yesterday:
			period = PeriodYesterday
		default:
			period = PeriodPrevious
		}

		if period == PeriodPrevious {
			entry.DisplayTime = at.Format("Jan 2")
		} else {
			entry.DisplayTime = at.Format("15:04")
		}
		grouped[period] = append(grouped[period], entry)
	}

	buckets := make([]Bucket, 0, len(grouped))
	for _, p := range periods {
		if entries := grouped[p]; len(entries) > 0 {
			buckets = append(buckets, Bucket{Period: p, Entries: entries})
		}
	}
	return buckets
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Title truncates a query to the history browser's title length.
func Title(query string) string {
	runes := []rune(query)
	if len(runes) <= maxTitleLen {
		return query
	}
	return string(runes[:maxTitleLen]) + "..."
}

// SortByRecency orders records newest first, keeping ties in input order.
// Records with unparseable timestamps sort as if created now.
func (r *Reconciler) SortByRecency(records []api.HistoryRecord) []api.HistoryRecord {
	now := r.now()
	out := make([]api.HistoryRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return r.recordTime(out[i], now).After(r.recordTime(out[j], now))
	})
	return out
}

// Filter keeps entries whose title contains query, case-insensitively.
// Buckets left empty are dropped. An empty query returns buckets unchanged.
func Filter(buckets []Bucket, query string) []Bucket {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return buckets
	}

	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		var kept []Entry
		for _, e := range b.Entries {
			if strings.Contains(strings.ToLower(e.Title), query) {
				kept = append(kept, e)
			}
		}
		if len(kept) > 0 {
			out = append(out, Bucket{Period: b.Period, Entries: kept})
		}
	}
	return out
}
