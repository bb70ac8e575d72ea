package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"meetscribe/internal/knowledge"
	"meetscribe/internal/runtime"
	"meetscribe/internal/store"
)

// KnowledgeSearcher is the search surface the handler calls.
type KnowledgeSearcher interface {
	Search(ctx context.Context, req knowledge.SearchRequest) ([]knowledge.SearchResult, error)
}

type KnowledgeHandler struct {
	Store    *store.Store
	Searcher KnowledgeSearcher
}

func (h *KnowledgeHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("/search", h.search)
	g.GET("/monthly/:year/:month", h.monthly)
}

func (h *KnowledgeHandler) search(c echo.Context) error {
	var body SearchRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	filters := knowledge.Filters{
		MeetingID:   body.MeetingID,
		ContentType: body.ContentType,
		Title:       body.Title,
	}
	if body.StartDate != "" {
		start, err := time.Parse("2006-01-02", body.StartDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		}
		filters.Start = &start
	}
	if body.EndDate != "" {
		end, err := time.Parse("2006-01-02", body.EndDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		}
		// The store treats End as exclusive, so advancing to the next
		// midnight makes the whole end date inclusive.
		end = end.AddDate(0, 0, 1)
		filters.End = &end
	}
	results, err := h.Searcher.Search(c.Request().Context(), knowledge.SearchRequest{
		OwnerID: ownerID(c),
		Query:   body.Query,
		Limit:   body.Limit,
		Filters: filters,
	})
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, "query is required")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]SearchResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *KnowledgeHandler) monthly(c echo.Context) error {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid month")
	}
	meetings, err := h.Store.ListMeetingsByMonth(c.Request().Context(), ownerID(c), year, time.Month(month))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := MonthlyViewResponse{
		Year:  year,
		Month: month,
		Days:  map[string][]MonthlyMeeting{},
	}
	for _, m := range meetings {
		items, err := h.Store.ListActionItems(c.Request().Context(), ownerID(c), m.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		entry := MonthlyMeeting{MeetingResponse: meetingResponse(m), ActionItems: []ActionItemResponse{}}
		for _, it := range items {
			entry.ActionItems = append(entry.ActionItems, actionItemResponse(it))
		}
		day := fmt.Sprintf("%04d-%02d-%02d", m.Date.Year(), m.Date.Month(), m.Date.Day())
		resp.Days[day] = append(resp.Days[day], entry)
		resp.Meetings++
	}
	return c.JSON(http.StatusOK, resp)
}
