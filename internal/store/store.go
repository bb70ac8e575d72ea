package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection used for users, meetings, action
// items and the knowledge base.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User is an account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Meeting is a meeting row together with its generated artifacts.
type Meeting struct {
	ID           string
	OwnerID      string
	Title        string
	Description  string
	Date         time.Time
	Participants []string
	Transcript   string
	Summary      string
	Minutes      string
	Provider     string
	Status       string
	Language     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActionItem is a single follow-up extracted from a meeting.
type ActionItem struct {
	ID          string
	MeetingID   string
	OwnerID     string
	Title       string
	Description string
	Assignee    string
	DueDate     *time.Time
	Status      string
	Reminded    bool
	CreatedAt   time.Time
}

// ContentRecord is one knowledge-base entry. MeetingID is nil for records
// not tied to a meeting, and Embedding is nil when the embedding call was
// skipped or failed.
type ContentRecord struct {
	ID          string
	OwnerID     string
	MeetingID   *string
	ContentType string
	Content     string
	Metadata    map[string]interface{}
	Embedding   []float32
	CreatedAt   time.Time
}

// SearchFilters restrict knowledge lookups. Zero values mean "no filter".
type SearchFilters struct {
	ContentType string
	MeetingID   string
	Title       string
	Start       *time.Time
	End         *time.Time
}

// VectorHit is a semantic search row with its cosine distance.
type VectorHit struct {
	Record   ContentRecord
	Distance float64
}

// CreateUser inserts an account. Unique-violation errors surface as
// *pq.Error for the caller to map.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1,$2,$3,NOW())`,
		id, email, passwordHash)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetUserByEmail fetches an account by email. Missing accounts return
// found=false rather than an error.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	var u User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

// CreateMeeting inserts a meeting and returns its id.
func (s *Store) CreateMeeting(ctx context.Context, m Meeting) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = "scheduled"
	}
	participants, err := json.Marshal(m.Participants)
	if err != nil {
		return "", fmt.Errorf("marshal participants: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO meetings (id, owner_id, title, description, meeting_date, participants, transcript, summary, minutes, provider, status, language, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())`,
		m.ID, m.OwnerID, m.Title, m.Description, m.Date, participants, m.Transcript, m.Summary, m.Minutes, m.Provider, m.Status, m.Language)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

const meetingColumns = `id, owner_id, title, description, meeting_date, participants, transcript, summary, minutes, provider, status, language, created_at, updated_at`

func scanMeeting(row interface{ Scan(...interface{}) error }) (Meeting, bool, error) {
	var m Meeting
	var participants []byte
	err := row.Scan(&m.ID, &m.OwnerID, &m.Title, &m.Description, &m.Date, &participants, &m.Transcript, &m.Summary, &m.Minutes, &m.Provider, &m.Status, &m.Language, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return Meeting{}, false, nil
	}
	if err != nil {
		return Meeting{}, false, err
	}
	if len(participants) > 0 {
		if err := json.Unmarshal(participants, &m.Participants); err != nil {
			return Meeting{}, false, fmt.Errorf("unmarshal participants: %w", err)
		}
	}
	return m, true, nil
}

// GetMeeting fetches one meeting scoped to its owner.
func (s *Store) GetMeeting(ctx context.Context, ownerID, id string) (Meeting, bool, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanMeeting(row)
}

// ListMeetings returns the owner's meetings, newest first.
func (s *Store) ListMeetings(ctx context.Context, ownerID string) ([]Meeting, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE owner_id = $1 ORDER BY meeting_date DESC, created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeetings(rows)
}

// ListMeetingsByMonth returns the owner's meetings within one calendar
// month, oldest first.
func (s *Store) ListMeetingsByMonth(ctx context.Context, ownerID string, year int, month time.Month) ([]Meeting, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE owner_id = $1 AND meeting_date >= $2 AND meeting_date < $3 ORDER BY meeting_date ASC`,
		ownerID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeetings(rows)
}

func collectMeetings(rows *sql.Rows) ([]Meeting, error) {
	var out []Meeting
	for rows.Next() {
		m, _, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMeetingArtifacts stores the generated summary, minutes and the
// provider role that produced them, and flips the status.
func (s *Store) UpdateMeetingArtifacts(ctx context.Context, ownerID, id, summary, minutes, providerRole, status string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE meetings SET summary = $1, minutes = $2, provider = $3, status = $4, updated_at = NOW()
WHERE id = $5 AND owner_id = $6`,
		summary, minutes, providerRole, status, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateMeeting updates the editable fields of a meeting.
func (s *Store) UpdateMeeting(ctx context.Context, m Meeting) error {
	participants, err := json.Marshal(m.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE meetings SET title = $1, description = $2, meeting_date = $3, participants = $4, transcript = $5, language = $6, updated_at = NOW()
WHERE id = $7 AND owner_id = $8`,
		m.Title, m.Description, m.Date, participants, m.Transcript, m.Language, m.ID, m.OwnerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteMeeting removes a meeting; action items and knowledge records tied
// to it go with it via foreign keys.
func (s *Store) DeleteMeeting(ctx context.Context, ownerID, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM meetings WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MeetingExists reports whether the owner has a meeting with the given id.
func (s *Store) MeetingExists(ctx context.Context, ownerID, id string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM meetings WHERE id = $1 AND owner_id = $2`, id, ownerID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertActionItems stores a batch of action items for one meeting.
func (s *Store) InsertActionItems(ctx context.Context, items []ActionItem) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := s.DB.PrepareContext(ctx, `
INSERT INTO action_items (id, meeting_id, owner_id, title, description, assignee, due_date, status, reminded, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,FALSE,NOW())`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if it.Status == "" {
			it.Status = "open"
		}
		if _, err := stmt.ExecContext(ctx, it.ID, it.MeetingID, it.OwnerID, it.Title, it.Description, it.Assignee, it.DueDate, it.Status); err != nil {
			return err
		}
	}
	return nil
}

const actionItemColumns = `id, meeting_id, owner_id, title, description, assignee, due_date, status, reminded, created_at`

func scanActionItem(row interface{ Scan(...interface{}) error }) (ActionItem, error) {
	var it ActionItem
	var due sql.NullTime
	err := row.Scan(&it.ID, &it.MeetingID, &it.OwnerID, &it.Title, &it.Description, &it.Assignee, &due, &it.Status, &it.Reminded, &it.CreatedAt)
	if err != nil {
		return ActionItem{}, err
	}
	if due.Valid {
		t := due.Time
		it.DueDate = &t
	}
	return it, nil
}

// ListActionItems returns a meeting's action items in creation order.
func (s *Store) ListActionItems(ctx context.Context, ownerID, meetingID string) ([]ActionItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+actionItemColumns+` FROM action_items WHERE meeting_id = $1 AND owner_id = $2 ORDER BY created_at ASC`,
		meetingID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActionItem
	for rows.Next() {
		it, err := scanActionItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateActionItemStatus flips one item's status.
func (s *Store) UpdateActionItemStatus(ctx context.Context, ownerID, id, status string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE action_items SET status = $1 WHERE id = $2 AND owner_id = $3`, status, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DueActionItems returns open, unreminded items whose due date has passed.
func (s *Store) DueActionItems(ctx context.Context, now time.Time) ([]ActionItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+actionItemColumns+` FROM action_items WHERE status = 'open' AND reminded = FALSE AND due_date IS NOT NULL AND due_date <= $1 ORDER BY due_date ASC`,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActionItem
	for rows.Next() {
		it, err := scanActionItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// MeetingsByIDs fetches a set of the owner's meetings in one query.
func (s *Store) MeetingsByIDs(ctx context.Context, ownerID string, ids []string) ([]Meeting, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, ownerID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE owner_id = $1 AND id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeetings(rows)
}

// MarkActionItemsReminded flags items so the sweeper does not fire twice.
func (s *Store) MarkActionItemsReminded(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE action_items SET reminded = TRUE WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	return err
}

// InsertContentRecord stores one knowledge-base entry. A nil embedding is
// stored as NULL and the record stays reachable through text search.
func (s *Store) InsertContentRecord(ctx context.Context, rec ContentRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	var embedding interface{}
	if len(rec.Embedding) > 0 {
		lit, err := encodeVectorLiteral(rec.Embedding)
		if err != nil {
			return "", err
		}
		embedding = lit
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO content_records (id, owner_id, meeting_id, content_type, content, metadata, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::vector,NOW())`,
		rec.ID, rec.OwnerID, rec.MeetingID, rec.ContentType, rec.Content, metaBytes, embedding)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

const contentColumns = `id, owner_id, meeting_id, content_type, content, metadata, created_at`

func scanContentRecord(row interface{ Scan(...interface{}) error }, extra ...interface{}) (ContentRecord, error) {
	var rec ContentRecord
	var meetingID sql.NullString
	var meta []byte
	dest := []interface{}{&rec.ID, &rec.OwnerID, &meetingID, &rec.ContentType, &rec.Content, &meta, &rec.CreatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return ContentRecord{}, err
	}
	if meetingID.Valid {
		v := meetingID.String
		rec.MeetingID = &v
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return ContentRecord{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return rec, nil
}

func filterClauses(f SearchFilters, startArg int) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}
	n := startArg
	if f.ContentType != "" {
		fmt.Fprintf(&sb, " AND content_type = $%d", n)
		args = append(args, f.ContentType)
		n++
	}
	if f.MeetingID != "" {
		fmt.Fprintf(&sb, " AND meeting_id = $%d", n)
		args = append(args, f.MeetingID)
		n++
	}
	if f.Title != "" {
		fmt.Fprintf(&sb, " AND metadata->>'title' ILIKE $%d", n)
		args = append(args, "%"+f.Title+"%")
		n++
	}
	if f.Start != nil {
		fmt.Fprintf(&sb, " AND created_at >= $%d", n)
		args = append(args, *f.Start)
		n++
	}
	if f.End != nil {
		// End is an exclusive bound; callers advance an inclusive date
		// to the following midnight.
		fmt.Fprintf(&sb, " AND created_at < $%d", n)
		args = append(args, *f.End)
	}
	return sb.String(), args
}

// SearchContentByVector returns the owner's closest records by cosine
// distance. Records without an embedding never match.
func (s *Store) SearchContentByVector(ctx context.Context, ownerID string, vector []float32, filters SearchFilters, limit int) ([]VectorHit, error) {
	if limit <= 0 {
		limit = 10
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	clause, extraArgs := filterClauses(filters, 4)
	args := append([]interface{}{ownerID, vecLiteral, limit}, extraArgs...)
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+contentColumns+`, embedding <=> $2::vector AS distance
FROM content_records
WHERE owner_id = $1 AND embedding IS NOT NULL`+clause+`
ORDER BY embedding <=> $2::vector ASC, created_at DESC
LIMIT $3`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VectorHit
	for rows.Next() {
		var hit VectorHit
		rec, err := scanContentRecord(rows, &hit.Distance)
		if err != nil {
			return nil, err
		}
		hit.Record = rec
		out = append(out, hit)
	}
	return out, rows.Err()
}

// SearchContentByPattern is the degraded-mode lookup: case-insensitive
// substring match on content, newest first.
func (s *Store) SearchContentByPattern(ctx context.Context, ownerID, query string, filters SearchFilters, limit int) ([]ContentRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	clause, extraArgs := filterClauses(filters, 4)
	args := append([]interface{}{ownerID, "%" + query + "%", limit}, extraArgs...)
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+contentColumns+`
FROM content_records
WHERE owner_id = $1 AND content ILIKE $2`+clause+`
ORDER BY created_at DESC
LIMIT $3`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContentRecords(rows)
}

// FindContentByTitle matches records whose denormalized meeting title
// contains the value, newest first.
func (s *Store) FindContentByTitle(ctx context.Context, ownerID, title string, limit int) ([]ContentRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+contentColumns+`
FROM content_records
WHERE owner_id = $1 AND metadata->>'title' ILIKE $2
ORDER BY created_at DESC
LIMIT $3`, ownerID, "%"+title+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContentRecords(rows)
}

// FindContentByMeeting returns the records tied to one meeting, newest
// first.
func (s *Store) FindContentByMeeting(ctx context.Context, ownerID, meetingID string, limit int) ([]ContentRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+contentColumns+`
FROM content_records
WHERE owner_id = $1 AND meeting_id = $2
ORDER BY created_at DESC
LIMIT $3`, ownerID, meetingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContentRecords(rows)
}

func collectContentRecords(rows *sql.Rows) ([]ContentRecord, error) {
	var out []ContentRecord
	for rows.Next() {
		rec, err := scanContentRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
