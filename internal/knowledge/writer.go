package knowledge

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"meetscribe/internal/provider"
	"meetscribe/internal/store"
	"meetscribe/internal/telemetry"
)

// Writer persists meeting artifacts into the knowledge base, embedding each
// one independently.
type Writer struct {
	store     ContentStore
	embedder  provider.EmbeddingProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewWriter creates a knowledge writer.
func NewWriter(st ContentStore, embedder provider.EmbeddingProvider, tel *telemetry.Telemetry) *Writer {
	return &Writer{
		store:     st,
		embedder:  embedder,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[KNOWLEDGE] ", log.LstdFlags),
	}
}

type artifact struct {
	contentType string
	text        string
	extra       map[string]interface{}
}

// StoreArtifacts embeds and persists every non-empty artifact of a meeting,
// concurrently and independently. An artifact whose embedding call fails is
// logged and skipped; the batch itself only fails when the meeting does not
// exist. The report tells callers how many artifacts actually landed.
func (w *Writer) StoreArtifacts(ctx context.Context, ownerID, meetingID, meetingTitle string, arts Artifacts) (BatchReport, error) {
	exists, err := w.store.MeetingExists(ctx, ownerID, meetingID)
	if err != nil {
		return BatchReport{}, fmt.Errorf("look up meeting: %w", err)
	}
	if !exists {
		return BatchReport{}, ErrMeetingNotFound
	}

	var batch []artifact
	if strings.TrimSpace(arts.Transcript) != "" {
		batch = append(batch, artifact{contentType: TypeTranscript, text: arts.Transcript})
	}
	if strings.TrimSpace(arts.Summary) != "" {
		batch = append(batch, artifact{contentType: TypeSummary, text: arts.Summary})
	}
	if strings.TrimSpace(arts.Minutes) != "" {
		batch = append(batch, artifact{contentType: TypeMinutes, text: arts.Minutes})
	}
	for _, it := range arts.ActionItems {
		if text := it.text(); text != "" {
			batch = append(batch, artifact{contentType: TypeActionItem, text: text, extra: it.metadata()})
		}
	}

	report := BatchReport{Attempted: len(batch)}
	if len(batch) == 0 {
		return report, nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		stored int
	)
	for _, a := range batch {
		wg.Add(1)
		go func(a artifact) {
			defer wg.Done()
			if w.storeOne(ctx, ownerID, meetingID, meetingTitle, a) {
				mu.Lock()
				stored++
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()

	report.Stored = stored
	return report, nil
}

func (w *Writer) storeOne(ctx context.Context, ownerID, meetingID, meetingTitle string, a artifact) bool {
	vector, err := w.embedder.Embed(ctx, a.text)
	if err != nil || len(vector) == 0 {
		w.telemetry.RecordEmbeddingSkipped()
		w.logger.Printf("embedding %s for meeting %s failed, skipping: %v", a.contentType, meetingID, err)
		return false
	}

	metadata := map[string]interface{}{"title": meetingTitle}
	for k, v := range a.extra {
		metadata[k] = v
	}

	mid := meetingID
	_, err = w.store.InsertContentRecord(ctx, store.ContentRecord{
		OwnerID:     ownerID,
		MeetingID:   &mid,
		ContentType: a.contentType,
		Content:     a.text,
		Metadata:    metadata,
		Embedding:   vector,
	})
	if err != nil {
		w.logger.Printf("persisting %s for meeting %s failed, skipping: %v", a.contentType, meetingID, err)
		return false
	}
	return true
}

// text joins an action item's title and optional description into one
// searchable string.
func (it ActionItemText) text() string {
	title := strings.TrimSpace(it.Title)
	desc := strings.TrimSpace(it.Description)
	switch {
	case title == "":
		return desc
	case desc == "":
		return title
	default:
		return title + ": " + desc
	}
}

// metadata returns the action item fields worth keeping on its record.
func (it ActionItemText) metadata() map[string]interface{} {
	m := map[string]interface{}{}
	if it.Assignee != "" {
		m["assignee"] = it.Assignee
	}
	if it.DueDate != "" {
		m["due_date"] = it.DueDate
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
