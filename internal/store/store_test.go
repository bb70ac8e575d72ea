package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &Store{DB: db}, mock, func() { db.Close() }
}

func TestInsertContentRecord(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	meetingID := "meeting-1"
	rec := ContentRecord{
		ID:          "rec-1",
		OwnerID:     "owner-1",
		MeetingID:   &meetingID,
		ContentType: "summary",
		Content:     "we shipped the thing",
		Metadata:    map[string]interface{}{"title": "Weekly sync"},
		Embedding:   []float32{0.1, 0.2},
	}

	query := regexp.QuoteMeta(`
INSERT INTO content_records (id, owner_id, meeting_id, content_type, content, metadata, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::vector,NOW())`)
	mock.ExpectExec(query).
		WithArgs("rec-1", "owner-1", &meetingID, "summary", "we shipped the thing", sqlmock.AnyArg(), "[0.1,0.2]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := st.InsertContentRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("InsertContentRecord: %v", err)
	}
	if id != "rec-1" {
		t.Fatalf("unexpected id %s", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertContentRecordWithoutEmbedding(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	rec := ContentRecord{
		ID:          "rec-2",
		OwnerID:     "owner-1",
		ContentType: "note",
		Content:     "orphan note",
	}

	query := regexp.QuoteMeta(`
INSERT INTO content_records (id, owner_id, meeting_id, content_type, content, metadata, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::vector,NOW())`)
	mock.ExpectExec(query).
		WithArgs("rec-2", "owner-1", nil, "note", "orphan note", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := st.InsertContentRecord(context.Background(), rec); err != nil {
		t.Fatalf("InsertContentRecord: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchContentByVector(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(`
SELECT id, owner_id, meeting_id, content_type, content, metadata, created_at, embedding <=> $2::vector AS distance
FROM content_records
WHERE owner_id = $1 AND embedding IS NOT NULL
ORDER BY embedding <=> $2::vector ASC, created_at DESC
LIMIT $3`)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "meeting_id", "content_type", "content", "metadata", "created_at", "distance"}).
		AddRow("rec-1", "owner-1", "meeting-1", "summary", "we shipped", []byte(`{"title":"Weekly sync"}`), now, 0.15)
	mock.ExpectQuery(query).
		WithArgs("owner-1", "[0.1,0.2]", 5).
		WillReturnRows(rows)

	hits, err := st.SearchContentByVector(context.Background(), "owner-1", []float32{0.1, 0.2}, SearchFilters{}, 5)
	if err != nil {
		t.Fatalf("SearchContentByVector: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Distance != 0.15 {
		t.Fatalf("unexpected distance %v", hits[0].Distance)
	}
	if hits[0].Record.MeetingID == nil || *hits[0].Record.MeetingID != "meeting-1" {
		t.Fatalf("unexpected meeting id %v", hits[0].Record.MeetingID)
	}
	if hits[0].Record.Metadata["title"] != "Weekly sync" {
		t.Fatalf("unexpected metadata %v", hits[0].Record.Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchContentByVectorWithFilters(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(`
SELECT id, owner_id, meeting_id, content_type, content, metadata, created_at, embedding <=> $2::vector AS distance
FROM content_records
WHERE owner_id = $1 AND embedding IS NOT NULL AND content_type = $4 AND meeting_id = $5
ORDER BY embedding <=> $2::vector ASC, created_at DESC
LIMIT $3`)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "meeting_id", "content_type", "content", "metadata", "created_at", "distance"})
	mock.ExpectQuery(query).
		WithArgs("owner-1", "[0.5]", 10, "summary", "meeting-9").
		WillReturnRows(rows)

	hits, err := st.SearchContentByVector(context.Background(), "owner-1", []float32{0.5}, SearchFilters{ContentType: "summary", MeetingID: "meeting-9"}, 0)
	if err != nil {
		t.Fatalf("SearchContentByVector: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchContentByVectorWithDateFilters(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(`
SELECT id, owner_id, meeting_id, content_type, content, metadata, created_at, embedding <=> $2::vector AS distance
FROM content_records
WHERE owner_id = $1 AND embedding IS NOT NULL AND created_at >= $4 AND created_at < $5
ORDER BY embedding <=> $2::vector ASC, created_at DESC
LIMIT $3`)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "meeting_id", "content_type", "content", "metadata", "created_at", "distance"})
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// End is the midnight after the last included day, so a record created
	// exactly then must not match.
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(query).
		WithArgs("owner-1", "[0.5]", 10, start, end).
		WillReturnRows(rows)

	_, err := st.SearchContentByVector(context.Background(), "owner-1", []float32{0.5}, SearchFilters{Start: &start, End: &end}, 0)
	if err != nil {
		t.Fatalf("SearchContentByVector: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchContentByPattern(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(`
SELECT id, owner_id, meeting_id, content_type, content, metadata, created_at
FROM content_records
WHERE owner_id = $1 AND content ILIKE $2
ORDER BY created_at DESC
LIMIT $3`)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "meeting_id", "content_type", "content", "metadata", "created_at"}).
		AddRow("rec-1", "owner-1", nil, "note", "the budget review", []byte(`{}`), now)
	mock.ExpectQuery(query).
		WithArgs("owner-1", "%budget%", 10).
		WillReturnRows(rows)

	recs, err := st.SearchContentByPattern(context.Background(), "owner-1", "budget", SearchFilters{}, 10)
	if err != nil {
		t.Fatalf("SearchContentByPattern: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "rec-1" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if recs[0].MeetingID != nil {
		t.Fatalf("expected nil meeting id, got %v", recs[0].MeetingID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindContentByTitle(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(`
SELECT id, owner_id, meeting_id, content_type, content, metadata, created_at
FROM content_records
WHERE owner_id = $1 AND metadata->>'title' ILIKE $2
ORDER BY created_at DESC
LIMIT $3`)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "meeting_id", "content_type", "content", "metadata", "created_at"}).
		AddRow("rec-1", "owner-1", "meeting-1", "summary", "text", []byte(`{"title":"Planning"}`), now)
	mock.ExpectQuery(query).
		WithArgs("owner-1", "%Planning%", 10).
		WillReturnRows(rows)

	recs, err := st.FindContentByTitle(context.Background(), "owner-1", "Planning", 10)
	if err != nil {
		t.Fatalf("FindContentByTitle: %v", err)
	}
	if len(recs) != 1 || recs[0].Metadata["title"] != "Planning" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetMeetingRoundTrip(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, owner_id, title, description, meeting_date, participants, transcript, summary, minutes, provider, status, language, created_at, updated_at FROM meetings WHERE id = $1 AND owner_id = $2`)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "description", "meeting_date", "participants", "transcript", "summary", "minutes", "provider", "status", "language", "created_at", "updated_at"}).
		AddRow("meeting-1", "owner-1", "Weekly sync", "", now, []byte(`["alice","bob"]`), "the transcript", "", "", "", "scheduled", "English", now, now)
	mock.ExpectQuery(query).WithArgs("meeting-1", "owner-1").WillReturnRows(rows)

	m, found, err := st.GetMeeting(context.Background(), "owner-1", "meeting-1")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if !found {
		t.Fatal("expected meeting to be found")
	}
	if len(m.Participants) != 2 || m.Participants[0] != "alice" {
		t.Fatalf("unexpected participants %v", m.Participants)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetMeetingNotFound(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	query := regexp.QuoteMeta(`SELECT id, owner_id, title, description, meeting_date, participants, transcript, summary, minutes, provider, status, language, created_at, updated_at FROM meetings WHERE id = $1 AND owner_id = $2`)
	mock.ExpectQuery(query).WithArgs("missing", "owner-1").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, found, err := st.GetMeeting(context.Background(), "owner-1", "missing")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestDueActionItemsAndMarkReminded(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	now := time.Now()
	due := now.Add(-time.Hour)
	query := regexp.QuoteMeta(`SELECT id, meeting_id, owner_id, title, description, assignee, due_date, status, reminded, created_at FROM action_items WHERE status = 'open' AND reminded = FALSE AND due_date IS NOT NULL AND due_date <= $1 ORDER BY due_date ASC`)
	rows := sqlmock.NewRows([]string{"id", "meeting_id", "owner_id", "title", "description", "assignee", "due_date", "status", "reminded", "created_at"}).
		AddRow("item-1", "meeting-1", "owner-1", "Send deck", "", "", due, "open", false, now)
	mock.ExpectQuery(query).WithArgs(now).WillReturnRows(rows)

	items, err := st.DueActionItems(context.Background(), now)
	if err != nil {
		t.Fatalf("DueActionItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != "item-1" {
		t.Fatalf("unexpected items %+v", items)
	}
	if items[0].DueDate == nil {
		t.Fatal("expected due date")
	}

	update := regexp.QuoteMeta(`UPDATE action_items SET reminded = TRUE WHERE id IN ($1)`)
	mock.ExpectExec(update).WithArgs("item-1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.MarkActionItemsReminded(context.Background(), []string{"item-1"}); err != nil {
		t.Fatalf("MarkActionItemsReminded: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMeetingsByIDs(t *testing.T) {
	st, mock, cleanup := newMockStore(t)
	defer cleanup()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, owner_id, title, description, meeting_date, participants, transcript, summary, minutes, provider, status, language, created_at, updated_at FROM meetings WHERE owner_id = $1 AND id IN ($2,$3)`)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "description", "meeting_date", "participants", "transcript", "summary", "minutes", "provider", "status", "language", "created_at", "updated_at"}).
		AddRow("meeting-1", "owner-1", "Weekly sync", "", now, []byte(`[]`), "", "", "", "", "scheduled", "", now, now).
		AddRow("meeting-2", "owner-1", "Retro", "", now, []byte(`[]`), "", "", "", "", "completed", "", now, now)
	mock.ExpectQuery(query).WithArgs("owner-1", "meeting-1", "meeting-2").WillReturnRows(rows)

	meetings, err := st.MeetingsByIDs(context.Background(), "owner-1", []string{"meeting-1", "meeting-2"})
	if err != nil {
		t.Fatalf("MeetingsByIDs: %v", err)
	}
	if len(meetings) != 2 || meetings[1].Title != "Retro" {
		t.Fatalf("unexpected meetings %+v", meetings)
	}

	empty, err := st.MeetingsByIDs(context.Background(), "owner-1", nil)
	if err != nil || empty != nil {
		t.Fatalf("expected no-op for empty ids, got %v %v", empty, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
