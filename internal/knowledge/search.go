package knowledge

import (
	"context"
	"log"
	"strings"

	"meetscribe/internal/provider"
	"meetscribe/internal/store"
	"meetscribe/internal/telemetry"
)

// Searcher resolves knowledge queries into structured lookups, semantic
// nearest-neighbor searches, or a degraded text search.
type Searcher struct {
	store     ContentStore
	embedder  provider.EmbeddingProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewSearcher creates a knowledge searcher.
func NewSearcher(st ContentStore, embedder provider.EmbeddingProvider, tel *telemetry.Telemetry) *Searcher {
	return &Searcher{
		store:     st,
		embedder:  embedder,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[KNOWLEDGE] ", log.LstdFlags),
	}
}

// Fixed scores for the non-semantic result classes. 1.0 marks an exact
// structured lookup, 0.5 marks a degraded substring match.
const (
	structuredScore = 1.0
	fallbackScore   = 0.5
)

// Search runs one knowledge lookup. No results is an empty slice, not an
// error; only an empty query or a database fault fails.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	var results []SearchResult
	parsed := ParseQuery(req.Query)
	switch parsed.Mode {
	case ModeTitle:
		s.telemetry.RecordSearch(ModeTitle)
		recs, err := s.store.FindContentByTitle(ctx, req.OwnerID, parsed.Value, limit)
		if err != nil {
			return nil, err
		}
		results = fixedScoreResults(recs, structuredScore)
	case ModeMeeting:
		s.telemetry.RecordSearch(ModeMeeting)
		recs, err := s.store.FindContentByMeeting(ctx, req.OwnerID, parsed.Value, limit)
		if err != nil {
			return nil, err
		}
		results = fixedScoreResults(recs, structuredScore)
	default:
		var err error
		results, err = s.semanticSearch(ctx, req, parsed.Value, limit)
		if err != nil {
			return nil, err
		}
	}

	s.attachMeetingRefs(ctx, req.OwnerID, results)
	return results, nil
}

// attachMeetingRefs resolves the meetings behind the results so callers can
// render provenance without another round trip. Lookup failures leave the
// refs nil; the results themselves are already in hand.
func (s *Searcher) attachMeetingRefs(ctx context.Context, ownerID string, results []SearchResult) {
	ids := make([]string, 0, len(results))
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Record.MeetingID == nil || seen[*r.Record.MeetingID] {
			continue
		}
		seen[*r.Record.MeetingID] = true
		ids = append(ids, *r.Record.MeetingID)
	}
	if len(ids) == 0 {
		return
	}
	meetings, err := s.store.MeetingsByIDs(ctx, ownerID, ids)
	if err != nil {
		s.logger.Printf("resolving meeting refs failed: %v", err)
		return
	}
	refs := make(map[string]*MeetingRef, len(meetings))
	for _, m := range meetings {
		refs[m.ID] = &MeetingRef{ID: m.ID, Title: m.Title, Date: m.Date, Participants: m.Participants}
	}
	for i := range results {
		if results[i].Record.MeetingID != nil {
			results[i].Meeting = refs[*results[i].Record.MeetingID]
		}
	}
}

// semanticSearch embeds the query and ranks by vector similarity. Any
// failure on the semantic path degrades to substring search rather than
// surfacing to the caller.
func (s *Searcher) semanticSearch(ctx context.Context, req SearchRequest, query string, limit int) ([]SearchResult, error) {
	filters := req.Filters.toStore()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil || len(vector) == 0 {
		s.logger.Printf("query embedding failed, degrading to text search: %v", err)
		return s.fallbackSearch(ctx, req.OwnerID, query, filters, limit)
	}

	hits, err := s.store.SearchContentByVector(ctx, req.OwnerID, vector, filters, limit)
	if err != nil {
		s.logger.Printf("vector search failed, degrading to text search: %v", err)
		return s.fallbackSearch(ctx, req.OwnerID, query, filters, limit)
	}

	s.telemetry.RecordSearch(ModeSemantic)
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{Record: hit.Record, Score: similarityScore(hit.Distance)})
	}
	return results, nil
}

// fallbackSearch is the degraded path: substring match on content with a
// fixed score. A failure here is a real infrastructure fault and surfaces.
func (s *Searcher) fallbackSearch(ctx context.Context, ownerID, query string, filters store.SearchFilters, limit int) ([]SearchResult, error) {
	recs, err := s.store.SearchContentByPattern(ctx, ownerID, query, filters, limit)
	if err != nil {
		return nil, err
	}
	s.telemetry.RecordSearch(ModeFallback)
	return fixedScoreResults(recs, fallbackScore), nil
}

func fixedScoreResults(recs []store.ContentRecord, score float64) []SearchResult {
	results := make([]SearchResult, 0, len(recs))
	for _, rec := range recs {
		results = append(results, SearchResult{Record: rec, Score: score})
	}
	return results
}

// similarityScore converts a cosine distance into a similarity in [0,1].
func similarityScore(distance float64) float64 {
	score := 1 - distance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
