package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"meetscribe/internal/provider"
)

//go:embed action_items_schema.json
var actionItemsSchemaJSON string

// ActionItemDraft is a single extracted action item before persistence.
type ActionItemDraft struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

var (
	actionItemsOnce    sync.Once
	actionItemsSchema  *jsonschema.Schema
	actionItemsCompile error
)

func actionItemsSchemaCompiled() (*jsonschema.Schema, error) {
	actionItemsOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("action_items_schema.json", strings.NewReader(actionItemsSchemaJSON)); err != nil {
			actionItemsCompile = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("action_items_schema.json")
		if err != nil {
			actionItemsCompile = fmt.Errorf("compile action items schema: %w", err)
			return
		}
		actionItemsSchema = schema
	})
	return actionItemsSchema, actionItemsCompile
}

const actionItemsPrompt = `Extract the action items from the following meeting transcript. Respond with ONLY a JSON array, no prose, where each element is an object with a required "title" and optional "description", "assignee" and "due_date" (ISO 8601 date) fields. Respond with [] if there are none.`

// ExtractActionItems asks the completion chain for the transcript's action
// items as JSON. Output that is not valid JSON or does not match the
// expected shape yields an empty list, not an error; the summary flow must
// not fail because the model rambled.
func (s *Service) ExtractActionItems(ctx context.Context, transcript string) ([]ActionItemDraft, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}

	req := provider.CompletionRequest{
		System: "You extract structured action items from meeting transcripts and answer in strict JSON.",
		Prompt: actionItemsPrompt + "\n\n" + transcript,
	}
	raw, err := s.primary.Complete(ctx, req)
	if err != nil {
		s.recordFailure(s.primary.Name(), err)
		raw, err = s.secondary.Complete(ctx, req)
		if err != nil {
			s.recordFailure(s.secondary.Name(), err)
			return nil, fmt.Errorf("extract action items: %w", err)
		}
	}

	items, ok := parseActionItems(raw)
	if !ok {
		s.logger.Printf("action item output did not validate, dropping (%d bytes)", len(raw))
		return []ActionItemDraft{}, nil
	}
	return items, nil
}

// parseActionItems strips optional code fencing, validates the payload
// against the schema and decodes it.
func parseActionItems(raw string) ([]ActionItemDraft, bool) {
	payload := stripCodeFence(raw)

	var doc interface{}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, false
	}
	schema, err := actionItemsSchemaCompiled()
	if err != nil {
		return nil, false
	}
	if err := schema.Validate(doc); err != nil {
		return nil, false
	}

	var items []ActionItemDraft
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []ActionItemDraft{}
	}
	return items, true
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
