package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"meetscribe/config"
	"meetscribe/internal/provider"
	"meetscribe/internal/telemetry"
)

// Provider roles in the fallback chain, reported back with every summary.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
	RoleTertiary  = "tertiary"
)

// ErrEmptyTranscript is returned when the transcript is empty or whitespace.
var ErrEmptyTranscript = errors.New("transcript is empty")

// AllProvidersFailedError is the terminal summarization error: every
// provider in the chain was attempted and failed. Last carries the final
// provider's error for diagnostics.
type AllProvidersFailedError struct {
	Last error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed: %v", e.Last)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.Last }

// Result is a produced summary together with the chain role that served it.
type Result struct {
	Summary  string
	Provider string
}

// Service orchestrates the provider fallback chain for summarization,
// meeting minutes and action-item extraction.
type Service struct {
	primary    provider.CompletionProvider
	secondary  provider.CompletionProvider
	tertiary   provider.CompletionProvider
	classifier Classifier
	chunkChars int
	telemetry  *telemetry.Telemetry
	logger     *log.Logger
}

// New creates a summarizer service. chunkChars bounds how much transcript
// goes into a single primary call; longer transcripts are summarized in
// pieces and merged.
func New(primary, secondary, tertiary provider.CompletionProvider, cfg config.SummarizerConfig, chunkChars int, tel *telemetry.Telemetry) *Service {
	if chunkChars <= 0 {
		chunkChars = 3000
	}
	return &Service{
		primary:    primary,
		secondary:  secondary,
		tertiary:   tertiary,
		classifier: NewClassifier(cfg),
		chunkChars: chunkChars,
		telemetry:  tel,
		logger:     log.New(log.Writer(), "[SUMMARIZER] ", log.LstdFlags),
	}
}

const summarySystemPrompt = "You are an assistant that writes concise, well-structured summaries of meeting transcripts. Capture decisions, key discussion points and next steps."

func summaryPrompt(transcript, language string) string {
	lang := language
	if lang == "" {
		lang = "the transcript's language"
	}
	return fmt.Sprintf("Summarize the following meeting transcript. Respond in %s.\n\n%s", lang, transcript)
}

// Summarize runs the fixed fallback chain: primary, then secondary (only
// after a transient primary failure), then tertiary (after any secondary
// failure). Each provider gets one attempt.
func (s *Service) Summarize(ctx context.Context, transcript, language string) (Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return Result{}, ErrEmptyTranscript
	}

	text, err := s.summarizePrimary(ctx, transcript, language)
	if err == nil {
		s.telemetry.RecordSummary(s.primary.Name())
		return Result{Summary: text, Provider: RolePrimary}, nil
	}
	s.recordFailure(s.primary.Name(), err)
	if !s.classifier.IsTransient(err) {
		return Result{}, fmt.Errorf("primary summarization: %w", err)
	}
	s.logger.Printf("primary exhausted (%v), falling back to secondary", err)

	text, err = s.secondary.Complete(ctx, provider.CompletionRequest{
		System: summarySystemPrompt,
		Prompt: summaryPrompt(transcript, language),
	})
	if err == nil {
		s.telemetry.RecordSummary(s.secondary.Name())
		return Result{Summary: text, Provider: RoleSecondary}, nil
	}
	s.recordFailure(s.secondary.Name(), err)
	s.logger.Printf("secondary failed (%v), falling back to tertiary", err)

	// The tertiary model is a generic summarizer; it gets the raw
	// transcript without the language framing and truncates internally.
	text, err = s.tertiary.Complete(ctx, provider.CompletionRequest{Prompt: transcript})
	if err == nil {
		s.telemetry.RecordSummary(s.tertiary.Name())
		return Result{Summary: text, Provider: RoleTertiary}, nil
	}
	s.recordFailure(s.tertiary.Name(), err)
	return Result{}, &AllProvidersFailedError{Last: err}
}

// summarizePrimary summarizes in one call when the transcript fits, or
// chunk-by-chunk with a merge pass when it does not. Any chunk failure is
// the primary provider's failure.
func (s *Service) summarizePrimary(ctx context.Context, transcript, language string) (string, error) {
	chunks := splitChunks(transcript, s.chunkChars)
	if len(chunks) == 1 {
		return s.primary.Complete(ctx, provider.CompletionRequest{
			System: summarySystemPrompt,
			Prompt: summaryPrompt(transcript, language),
		})
	}

	partials := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		part, err := s.primary.Complete(ctx, provider.CompletionRequest{
			System: summarySystemPrompt,
			Prompt: fmt.Sprintf("Summarize part %d of %d of a meeting transcript. Respond in %s.\n\n%s", i+1, len(chunks), languageOr(language), chunk),
		})
		if err != nil {
			return "", err
		}
		partials = append(partials, part)
	}
	return s.primary.Complete(ctx, provider.CompletionRequest{
		System: summarySystemPrompt,
		Prompt: fmt.Sprintf("Combine these partial summaries of one meeting into a single coherent summary. Respond in %s.\n\n%s", languageOr(language), strings.Join(partials, "\n\n")),
	})
}

// GenerateMinutes produces structured meeting minutes. This is a
// best-effort companion to Summarize: primary first, secondary on any
// failure, no tertiary leg.
func (s *Service) GenerateMinutes(ctx context.Context, transcript, language string) (Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return Result{}, ErrEmptyTranscript
	}
	req := provider.CompletionRequest{
		System: "You are an assistant that writes formal meeting minutes with sections for attendees, agenda, discussion, decisions and action items.",
		Prompt: fmt.Sprintf("Write meeting minutes for the following transcript. Respond in %s.\n\n%s", languageOr(language), transcript),
	}
	text, err := s.primary.Complete(ctx, req)
	if err == nil {
		return Result{Summary: text, Provider: RolePrimary}, nil
	}
	s.recordFailure(s.primary.Name(), err)

	text, err = s.secondary.Complete(ctx, req)
	if err == nil {
		return Result{Summary: text, Provider: RoleSecondary}, nil
	}
	s.recordFailure(s.secondary.Name(), err)
	return Result{}, fmt.Errorf("generate minutes: %w", err)
}

func (s *Service) recordFailure(name string, err error) {
	kind := "hard"
	if s.classifier.IsTransient(err) {
		kind = "transient"
	}
	s.telemetry.RecordProviderFailure(name, kind)
}

func languageOr(language string) string {
	if language == "" {
		return "the transcript's language"
	}
	return language
}

// splitChunks cuts text into pieces of at most size characters, preferring
// to break at a newline near the boundary.
func splitChunks(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	var chunks []string
	for len(text) > size {
		cut := size
		if idx := strings.LastIndexByte(text[:size], '\n'); idx > size/2 {
			cut = idx + 1
		} else {
			// Back the cut off a multibyte rune boundary.
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = size
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
