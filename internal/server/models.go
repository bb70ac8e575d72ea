package server

import (
	"time"

	"meetscribe/internal/knowledge"
	"meetscribe/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}

// MeetingRequest creates or updates a meeting.
type MeetingRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Date         string   `json:"date"`
	Participants []string `json:"participants,omitempty"`
	Transcript   string   `json:"transcript,omitempty"`
	Language     string   `json:"language,omitempty"`
}

// CompleteMeetingRequest finalizes a meeting, optionally replacing the
// stored transcript first.
type CompleteMeetingRequest struct {
	Transcript string `json:"transcript,omitempty"`
}

// MeetingResponse is the API view of a meeting.
type MeetingResponse struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Date         string   `json:"date"`
	Participants []string `json:"participants,omitempty"`
	Transcript   string   `json:"transcript,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Minutes      string   `json:"minutes,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Status       string   `json:"status"`
	Language     string   `json:"language,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func meetingResponse(m store.Meeting) MeetingResponse {
	return MeetingResponse{
		ID:           m.ID,
		Title:        m.Title,
		Description:  m.Description,
		Date:         m.Date.Format(time.RFC3339),
		Participants: m.Participants,
		Transcript:   m.Transcript,
		Summary:      m.Summary,
		Minutes:      m.Minutes,
		Provider:     m.Provider,
		Status:       m.Status,
		Language:     m.Language,
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    m.UpdatedAt.Format(time.RFC3339),
	}
}

// ActionItemResponse is the API view of an action item.
type ActionItemResponse struct {
	ID          string `json:"id"`
	MeetingID   string `json:"meeting_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Status      string `json:"status"`
}

func actionItemResponse(it store.ActionItem) ActionItemResponse {
	out := ActionItemResponse{
		ID:          it.ID,
		MeetingID:   it.MeetingID,
		Title:       it.Title,
		Description: it.Description,
		Assignee:    it.Assignee,
		Status:      it.Status,
	}
	if it.DueDate != nil {
		out.DueDate = it.DueDate.Format("2006-01-02")
	}
	return out
}

// UpdateActionItemRequest flips an action item's status.
type UpdateActionItemRequest struct {
	Status string `json:"status"`
}

// CompleteMeetingResponse reports everything the completion produced.
type CompleteMeetingResponse struct {
	Meeting     MeetingResponse      `json:"meeting"`
	ActionItems []ActionItemResponse `json:"action_items"`
	Knowledge   KnowledgeReport      `json:"knowledge"`
}

// KnowledgeReport mirrors the writer's batch outcome.
type KnowledgeReport struct {
	Attempted int `json:"attempted"`
	Stored    int `json:"stored"`
}

// SearchRequestBody is the knowledge search payload.
type SearchRequestBody struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit,omitempty"`
	MeetingID   string `json:"meeting_id,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

// MeetingRefResponse is the denormalized meeting context on a search hit.
type MeetingRefResponse struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Date         string   `json:"date"`
	Participants []string `json:"participants,omitempty"`
}

// SearchResultResponse is one scored knowledge hit.
type SearchResultResponse struct {
	ID          string                 `json:"id"`
	MeetingID   string                 `json:"meeting_id,omitempty"`
	ContentType string                 `json:"content_type"`
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Score       float64                `json:"score"`
	CreatedAt   string                 `json:"created_at"`
	Meeting     *MeetingRefResponse    `json:"meeting,omitempty"`
}

func searchResultResponse(r knowledge.SearchResult) SearchResultResponse {
	out := SearchResultResponse{
		ID:          r.Record.ID,
		ContentType: r.Record.ContentType,
		Content:     r.Record.Content,
		Metadata:    r.Record.Metadata,
		Score:       r.Score,
		CreatedAt:   r.Record.CreatedAt.Format(time.RFC3339),
	}
	if r.Record.MeetingID != nil {
		out.MeetingID = *r.Record.MeetingID
	}
	if r.Meeting != nil {
		out.Meeting = &MeetingRefResponse{
			ID:           r.Meeting.ID,
			Title:        r.Meeting.Title,
			Date:         r.Meeting.Date.Format(time.RFC3339),
			Participants: r.Meeting.Participants,
		}
	}
	return out
}

// MonthlyMeeting is a meeting in the monthly view with its action items
// attached.
type MonthlyMeeting struct {
	MeetingResponse
	ActionItems []ActionItemResponse `json:"action_items"`
}

// MonthlyViewResponse groups a month's meetings by day.
type MonthlyViewResponse struct {
	Year     int                         `json:"year"`
	Month    int                         `json:"month"`
	Days     map[string][]MonthlyMeeting `json:"days"`
	Meetings int                         `json:"meetings"`
}
