// Package extract turns conversations into proposed memory operations
// using a model call. The extractor is shown the user's messages plus
// the memories already on file so it can propose UPDATE/DELETE against
// existing ids instead of blind duplicates.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/judge"
)

const systemPrompt = "You are a memory extraction assistant. You distill conversations into short, durable facts about the user. Always respond with valid JSON."

const promptFmt = `Extract durable personal facts about the user from this conversation.

CONVERSATION:
%s

EXISTING MEMORIES (id: text):
%s

For each fact, propose one operation:
- ADD a fact not yet on file
- UPDATE an existing memory whose fact changed in detail (reference its id)
- DELETE an existing memory the conversation shows to be false (reference its id)
- NONE when an existing memory already covers the fact exactly

Only extract stable facts about the user (preferences, relationships,
possessions, location, work, life events). Ignore questions, small talk,
and assistant statements.

Respond with a JSON array in this format:
[
    {"event": "ADD", "memory": "Likes pasta"},
    {"event": "DELETE", "memory": "Has a dog named Max", "memory_id": "<id>"}
]

Return [] if the conversation contains no durable facts.`

// Config configures the extractor.
type Config struct {
	// Timeout bounds the model call. Default: 30s.
	Timeout time.Duration
}

// Extractor proposes raw operations from a conversation.
type Extractor struct {
	llm     judge.LLMClient
	timeout time.Duration
}

// New creates an Extractor over the given model client.
func New(llm judge.LLMClient, cfg *Config) *Extractor {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	return &Extractor{llm: llm, timeout: timeout}
}

// rawOp mirrors the JSON shape the model is asked for.
type rawOp struct {
	Event    string `json:"event"`
	Memory   string `json:"memory"`
	MemoryID string `json:"memory_id"`
}

var fencedArrayRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")
var bracketSpanRe = regexp.MustCompile(`(?s)\[.*\]`)

// Extract returns the proposed operations for the conversation.
// Unparseable model output is a contract violation and surfaces as
// core.ErrMalformedOperations.
func (e *Extractor) Extract(ctx context.Context, messages []core.Message, existing []*core.Memory) ([]core.Operation, error) {
	convo := formatConversation(messages)
	if convo == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := fmt.Sprintf(promptFmt, convo, formatExisting(existing))
	raw, err := e.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("extraction model call: %w", err)
	}

	var rawOps []rawOp
	if err := json.Unmarshal([]byte(extractArray(raw)), &rawOps); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedOperations, err)
	}

	ops := make([]core.Operation, 0, len(rawOps))
	for _, ro := range rawOps {
		kind := core.OpKind(strings.ToUpper(strings.TrimSpace(ro.Event)))
		op := core.Operation{Kind: kind, Text: ro.Memory, MemoryID: ro.MemoryID}
		if !op.Valid() {
			return nil, fmt.Errorf("%w: unknown event %q", core.ErrMalformedOperations, ro.Event)
		}
		if op.Kind == core.OpAdd && strings.TrimSpace(op.Text) == "" {
			continue
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func formatConversation(messages []core.Message) string {
	var lines []string
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, content))
	}
	return strings.Join(lines, "\n")
}

func formatExisting(existing []*core.Memory) string {
	if len(existing) == 0 {
		return "(none)"
	}
	var lines []string
	for _, mem := range existing {
		lines = append(lines, fmt.Sprintf("%s: %s", mem.ID, mem.Text))
	}
	return strings.Join(lines, "\n")
}

// extractArray pulls the most plausible JSON array out of raw model
// output: fenced block first, then the widest bracket span.
func extractArray(content string) string {
	if m := fencedArrayRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	if m := bracketSpanRe.FindString(content); m != "" {
		return m
	}
	return strings.TrimSpace(content)
}
