package knowledge

import (
	"context"
	"errors"
	"time"

	"meetscribe/internal/store"
)

// Content types assigned to knowledge records per artifact kind.
const (
	TypeTranscript = "transcript"
	TypeSummary    = "summary"
	TypeMinutes    = "minutes"
	TypeActionItem = "action-item"
)

// ErrEmptyQuery rejects searches with nothing to search for.
var ErrEmptyQuery = errors.New("query is empty")

// ErrMeetingNotFound is returned when artifacts reference a meeting the
// owner does not have.
var ErrMeetingNotFound = errors.New("meeting not found")

// ContentStore is the persistence surface the knowledge base needs.
type ContentStore interface {
	MeetingExists(ctx context.Context, ownerID, id string) (bool, error)
	MeetingsByIDs(ctx context.Context, ownerID string, ids []string) ([]store.Meeting, error)
	InsertContentRecord(ctx context.Context, rec store.ContentRecord) (string, error)
	FindContentByTitle(ctx context.Context, ownerID, title string, limit int) ([]store.ContentRecord, error)
	FindContentByMeeting(ctx context.Context, ownerID, meetingID string, limit int) ([]store.ContentRecord, error)
	SearchContentByVector(ctx context.Context, ownerID string, vector []float32, filters store.SearchFilters, limit int) ([]store.VectorHit, error)
	SearchContentByPattern(ctx context.Context, ownerID, query string, filters store.SearchFilters, limit int) ([]store.ContentRecord, error)
}

// Artifacts are the texts produced for one meeting, all optional.
type Artifacts struct {
	Transcript  string
	Summary     string
	Minutes     string
	ActionItems []ActionItemText
}

// ActionItemText is the displayable core of one action item. Assignee and
// DueDate ride along as record metadata.
type ActionItemText struct {
	Title       string
	Description string
	Assignee    string
	DueDate     string
}

// BatchReport counts what the writer attempted versus what landed. The
// difference is embed failures that were logged and skipped.
type BatchReport struct {
	Attempted int
	Stored    int
}

// MeetingRef is the denormalized meeting context attached to a search
// result, enough to render it without a second lookup.
type MeetingRef struct {
	ID           string
	Title        string
	Date         time.Time
	Participants []string
}

// SearchResult is one scored knowledge record. Meeting is nil for records
// not tied to a meeting.
type SearchResult struct {
	Record  store.ContentRecord
	Score   float64
	Meeting *MeetingRef
}

// SearchRequest carries a knowledge lookup.
type SearchRequest struct {
	OwnerID string
	Query   string
	Limit   int
	Filters Filters
}

// Filters narrow semantic and fallback searches.
type Filters struct {
	MeetingID   string
	ContentType string
	Title       string
	Start       *time.Time
	End         *time.Time
}

func (f Filters) toStore() store.SearchFilters {
	return store.SearchFilters{
		ContentType: f.ContentType,
		MeetingID:   f.MeetingID,
		Title:       f.Title,
		Start:       f.Start,
		End:         f.End,
	}
}
