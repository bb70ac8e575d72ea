package server

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"meetscribe/internal/knowledge"
	"meetscribe/internal/store"
)

type stubSearcher struct {
	got     knowledge.SearchRequest
	results []knowledge.SearchResult
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, req knowledge.SearchRequest) ([]knowledge.SearchResult, error) {
	s.got = req
	return s.results, s.err
}

func TestSearchPassesFiltersAndOwner(t *testing.T) {
	searcher := &stubSearcher{results: []knowledge.SearchResult{}}
	h := &KnowledgeHandler{Searcher: searcher}

	body := `{"query":"budget decisions","limit":5,"content_type":"summary","start_date":"2026-03-01","end_date":"2026-03-31"}`
	c, rec := newMeetingsContext(t, http.MethodPost, "/api/knowledge/search", body)
	if err := h.search(c); err != nil {
		t.Fatalf("search: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if searcher.got.OwnerID != "owner-1" {
		t.Fatalf("expected owner-1, got %q", searcher.got.OwnerID)
	}
	if searcher.got.Query != "budget decisions" || searcher.got.Limit != 5 {
		t.Fatalf("unexpected request %+v", searcher.got)
	}
	if searcher.got.Filters.ContentType != "summary" {
		t.Fatalf("unexpected filters %+v", searcher.got.Filters)
	}
	if searcher.got.Filters.Start == nil || !searcher.got.Filters.Start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", searcher.got.Filters.Start)
	}
	// end date is inclusive: the filter boundary is the next day
	if searcher.got.Filters.End == nil || !searcher.got.Filters.End.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", searcher.got.Filters.End)
	}
}

func TestSearchEmptyQueryIsBadRequest(t *testing.T) {
	searcher := &stubSearcher{err: knowledge.ErrEmptyQuery}
	h := &KnowledgeHandler{Searcher: searcher}

	c, _ := newMeetingsContext(t, http.MethodPost, "/api/knowledge/search", `{"query":"  "}`)
	err := h.search(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestSearchNoResultsIsEmptyArray(t *testing.T) {
	h := &KnowledgeHandler{Searcher: &stubSearcher{}}

	c, rec := newMeetingsContext(t, http.MethodPost, "/api/knowledge/search", `{"query":"nothing here"}`)
	if err := h.search(c); err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func TestSearchRejectsBadDates(t *testing.T) {
	h := &KnowledgeHandler{Searcher: &stubSearcher{}}

	c, _ := newMeetingsContext(t, http.MethodPost, "/api/knowledge/search", `{"query":"x","start_date":"March 1"}`)
	err := h.search(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestMonthlyGroupsByDay(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "title", "description", "meeting_date", "participants",
		"transcript", "summary", "minutes", "provider", "status", "language",
		"created_at", "updated_at",
	})
	for i, day := range []int{3, 3, 17} {
		d := time.Date(2026, 3, day, 10+i, 0, 0, 0, time.UTC)
		rows.AddRow("m"+string(rune('1'+i)), "owner-1", "Standup", "", d, []byte(`[]`),
			"", "", "", "", "scheduled", "", d, d)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, owner_id, title`)).
		WithArgs("owner-1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(rows)
	itemColumns := []string{
		"id", "meeting_id", "owner_id", "title", "description", "assignee",
		"due_date", "status", "reminded", "created_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, meeting_id`)).
		WithArgs("m1", "owner-1").
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow("ai1", "m1", "owner-1", "Follow up", "", "", nil, "open", false, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, meeting_id`)).
		WithArgs("m2", "owner-1").
		WillReturnRows(sqlmock.NewRows(itemColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, meeting_id`)).
		WithArgs("m3", "owner-1").
		WillReturnRows(sqlmock.NewRows(itemColumns))

	h := &KnowledgeHandler{Store: &store.Store{DB: db}}
	c, rec := newMeetingsContext(t, http.MethodGet, "/api/knowledge/monthly/2026/3", "")
	c.SetParamNames("year", "month")
	c.SetParamValues("2026", "3")
	if err := h.monthly(c); err != nil {
		t.Fatalf("monthly: %v", err)
	}

	var resp MonthlyViewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Year != 2026 || resp.Month != 3 || resp.Meetings != 3 {
		t.Fatalf("unexpected response header %+v", resp)
	}
	if len(resp.Days["2026-03-03"]) != 2 || len(resp.Days["2026-03-17"]) != 1 {
		t.Fatalf("unexpected day grouping %+v", resp.Days)
	}
	if len(resp.Days["2026-03-03"][0].ActionItems) != 1 {
		t.Fatalf("expected action items attached to m1, got %+v", resp.Days["2026-03-03"][0].ActionItems)
	}
}

func TestMonthlyRejectsBadMonth(t *testing.T) {
	h := &KnowledgeHandler{}
	c, _ := newMeetingsContext(t, http.MethodGet, "/api/knowledge/monthly/2026/13", "")
	c.SetParamNames("year", "month")
	c.SetParamValues("2026", "13")
	err := h.monthly(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
