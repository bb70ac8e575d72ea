package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"meetscribe/internal/knowledge"
	"meetscribe/internal/runtime"
	"meetscribe/internal/store"
	"meetscribe/internal/summarizer"
)

// SummaryService is the summarization surface the handlers call.
type SummaryService interface {
	Summarize(ctx context.Context, transcript, language string) (summarizer.Result, error)
	GenerateMinutes(ctx context.Context, transcript, language string) (summarizer.Result, error)
	ExtractActionItems(ctx context.Context, transcript string) ([]summarizer.ActionItemDraft, error)
}

// ArtifactWriter persists meeting artifacts into the knowledge base.
type ArtifactWriter interface {
	StoreArtifacts(ctx context.Context, ownerID, meetingID, meetingTitle string, arts knowledge.Artifacts) (knowledge.BatchReport, error)
}

type MeetingsHandler struct {
	Store     *store.Store
	Summaries SummaryService
	Writer    ArtifactWriter
	Logger    *log.Logger
}

func (h *MeetingsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
	g.POST("/:id/complete", h.complete)
	g.POST("/:id/summary", h.regenerateSummary)
	g.GET("/:id/action-items", h.listActionItems)
}

func (h *MeetingsHandler) RegisterActionItems(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.PATCH("/:id", h.updateActionItem)
}

func (h *MeetingsHandler) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

func ownerID(c echo.Context) string {
	if id, ok := c.Get("user_id").(string); ok {
		return id
	}
	return ""
}

func (h *MeetingsHandler) create(c echo.Context) error {
	var req MeetingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	date := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be RFC 3339")
		}
		date = parsed
	}
	id, err := h.Store.CreateMeeting(c.Request().Context(), store.Meeting{
		OwnerID:      ownerID(c),
		Title:        req.Title,
		Description:  req.Description,
		Date:         date,
		Participants: req.Participants,
		Transcript:   req.Transcript,
		Language:     req.Language,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *MeetingsHandler) list(c echo.Context) error {
	meetings, err := h.Store.ListMeetings(c.Request().Context(), ownerID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]MeetingResponse, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, meetingResponse(m))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *MeetingsHandler) get(c echo.Context) error {
	m, found, err := h.Store.GetMeeting(c.Request().Context(), ownerID(c), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "meeting not found")
	}
	return c.JSON(http.StatusOK, meetingResponse(m))
}

func (h *MeetingsHandler) update(c echo.Context) error {
	var req MeetingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, found, err := h.Store.GetMeeting(c.Request().Context(), ownerID(c), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "meeting not found")
	}
	if req.Title != "" {
		m.Title = req.Title
	}
	if req.Description != "" {
		m.Description = req.Description
	}
	if req.Date != "" {
		parsed, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be RFC 3339")
		}
		m.Date = parsed
	}
	if req.Participants != nil {
		m.Participants = req.Participants
	}
	if req.Transcript != "" {
		m.Transcript = req.Transcript
	}
	if req.Language != "" {
		m.Language = req.Language
	}
	if err := h.Store.UpdateMeeting(c.Request().Context(), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "meeting not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, meetingResponse(m))
}

func (h *MeetingsHandler) remove(c echo.Context) error {
	if err := h.Store.DeleteMeeting(c.Request().Context(), ownerID(c), c.Param("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "meeting not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// complete runs the full pipeline for a finished meeting: summary, minutes,
// action items, then knowledge storage. Minutes and action items are
// best-effort; the summary is not.
func (h *MeetingsHandler) complete(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerID(c)

	var req CompleteMeetingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, found, err := h.Store.GetMeeting(ctx, owner, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "meeting not found")
	}
	if req.Transcript != "" {
		m.Transcript = req.Transcript
		if err := h.Store.UpdateMeeting(ctx, m); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	sum, err := h.Summaries.Summarize(ctx, m.Transcript, m.Language)
	if err != nil {
		return summaryHTTPError(err)
	}

	minutes := ""
	if res, err := h.Summaries.GenerateMinutes(ctx, m.Transcript, m.Language); err == nil {
		minutes = res.Summary
	} else {
		h.logger().Printf("minutes for meeting %s failed: %v", m.ID, err)
	}

	var items []store.ActionItem
	drafts, err := h.Summaries.ExtractActionItems(ctx, m.Transcript)
	if err != nil {
		h.logger().Printf("action items for meeting %s failed: %v", m.ID, err)
	}
	for _, d := range drafts {
		item := store.ActionItem{
			MeetingID:   m.ID,
			OwnerID:     owner,
			Title:       d.Title,
			Description: d.Description,
			Assignee:    d.Assignee,
		}
		if d.DueDate != "" {
			if due, err := time.Parse("2006-01-02", d.DueDate); err == nil {
				item.DueDate = &due
			}
		}
		items = append(items, item)
	}
	if err := h.Store.InsertActionItems(ctx, items); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.Store.UpdateMeetingArtifacts(ctx, owner, m.ID, sum.Summary, minutes, sum.Provider, "completed"); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	m.Summary = sum.Summary
	m.Minutes = minutes
	m.Provider = sum.Provider
	m.Status = "completed"

	arts := knowledge.Artifacts{
		Transcript: m.Transcript,
		Summary:    m.Summary,
		Minutes:    m.Minutes,
	}
	for _, it := range items {
		ai := knowledge.ActionItemText{Title: it.Title, Description: it.Description, Assignee: it.Assignee}
		if it.DueDate != nil {
			ai.DueDate = it.DueDate.Format("2006-01-02")
		}
		arts.ActionItems = append(arts.ActionItems, ai)
	}
	report, err := h.Writer.StoreArtifacts(ctx, owner, m.ID, m.Title, arts)
	if err != nil {
		h.logger().Printf("knowledge storage for meeting %s failed: %v", m.ID, err)
	}

	stored, err := h.Store.ListActionItems(ctx, owner, m.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	itemResponses := make([]ActionItemResponse, 0, len(stored))
	for _, it := range stored {
		itemResponses = append(itemResponses, actionItemResponse(it))
	}
	return c.JSON(http.StatusOK, CompleteMeetingResponse{
		Meeting:     meetingResponse(m),
		ActionItems: itemResponses,
		Knowledge:   KnowledgeReport{Attempted: report.Attempted, Stored: report.Stored},
	})
}

// regenerateSummary reruns only the summarization chain and replaces the
// stored summary.
func (h *MeetingsHandler) regenerateSummary(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerID(c)

	m, found, err := h.Store.GetMeeting(ctx, owner, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "meeting not found")
	}

	sum, err := h.Summaries.Summarize(ctx, m.Transcript, m.Language)
	if err != nil {
		return summaryHTTPError(err)
	}
	if err := h.Store.UpdateMeetingArtifacts(ctx, owner, m.ID, sum.Summary, m.Minutes, sum.Provider, m.Status); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	m.Summary = sum.Summary
	m.Provider = sum.Provider
	return c.JSON(http.StatusOK, meetingResponse(m))
}

func (h *MeetingsHandler) listActionItems(c echo.Context) error {
	items, err := h.Store.ListActionItems(c.Request().Context(), ownerID(c), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ActionItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, actionItemResponse(it))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *MeetingsHandler) updateActionItem(c echo.Context) error {
	var req UpdateActionItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.Status {
	case "open", "done", "dismissed":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be open, done or dismissed")
	}
	if err := h.Store.UpdateActionItemStatus(c.Request().Context(), ownerID(c), c.Param("id"), req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "action item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// summaryHTTPError maps summarization failures onto HTTP status codes: bad
// input is the caller's fault, provider failures are upstream faults.
func summaryHTTPError(err error) error {
	if errors.Is(err, summarizer.ErrEmptyTranscript) {
		return echo.NewHTTPError(http.StatusBadRequest, "meeting has no transcript")
	}
	var apf *summarizer.AllProvidersFailedError
	if errors.As(err, &apf) {
		return echo.NewHTTPError(http.StatusBadGateway, apf.Error())
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
