package judge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/ristretto"
)

const contradictionSystemPrompt = "You are a logical reasoning assistant. Always respond with valid JSON. Focus on direct contradictions."

const deletionSystemPrompt = "You are a careful memory management assistant. Always respond with valid JSON."

const contradictionPromptFmt = `Analyze if these two memories contradict each other:

EXISTING MEMORY: %q
NEW MEMORY: %q
CONTEXT: %q

Do these memories directly contradict each other? Should the existing memory be deleted?

Respond with JSON in this format:
{
    "contradicts": true/false,
    "reasoning": "Clear explanation of why they do or don't contradict"
}

CONTRADICTORY examples (DELETE existing):
- Existing: "Has a dog named Max" + New: "I don't have any pets" -> contradicts=true
- Existing: "No pets" + New: "I have a pet named Guga" -> contradicts=true
- Existing: "Lives in California" + New: "I moved to Texas" -> contradicts=true
- Existing: "Works as doctor" + New: "I'm unemployed" -> contradicts=true
- Existing: "Married to Sarah" + New: "I'm single" -> contradicts=true
- Existing: "Prefers coffee" + New: "I hate coffee now" -> contradicts=true

NON-CONTRADICTORY examples (KEEP existing):
- Existing: "Likes pizza" + New: "Also likes pasta" -> contradicts=false
- Existing: "Lives in Texas" + New: "Visited California" -> contradicts=false
- Existing: "Works as doctor" + New: "Graduated from medical school" -> contradicts=false
- Existing: "Has a dog" + New: "My dog is very playful" -> contradicts=false

IMPORTANT: Focus on logical contradiction. If someone says "I don't have pets" and later says "I have a pet named X", these directly contradict.`

const deletionPromptFmt = `You are a memory management system. A memory is being considered for deletion.

MEMORY TO DELETE: %q
CONTEXT QUERY: %q

Should this memory be deleted? Provide clear reasoning.

Respond with JSON in this format:
{
    "should_delete": true/false,
    "reasoning": "Clear explanation of why this memory should or should not be deleted"
}

DELETE the memory if ANY of these conditions apply:

1. DIRECT CONTRADICTION: The new information directly contradicts the memory
   - Memory: "I have a dog named Max" + Context: "I don't have any pets" -> DELETE
   - Memory: "I live in California" + Context: "I moved to Texas" -> DELETE
   - Memory: "I work as a doctor" + Context: "I'm unemployed" -> DELETE

2. EXPLICIT NEGATION: The context explicitly negates the memory
   - Memory: "I'm married to Sarah" + Context: "I'm single" -> DELETE
   - Memory: "I like coffee" + Context: "I hate coffee now" -> DELETE

3. FACTUAL CORRECTION: Correcting misinformation
   - Memory: "Paris is in Germany" + Context: "Paris is in France" -> DELETE

4. STATUS CHANGE: Life changes that invalidate the memory
   - Memory: "I'm a student" + Context: "I graduated last year" -> DELETE
   - Memory: "I own a red car" + Context: "I sold my car" -> DELETE

DO NOT delete if:
- Adding new information that doesn't contradict (e.g., "I also like tea" doesn't contradict "I like coffee")
- Discussing unrelated topics
- The context is a question rather than a statement
- The memory remains factually correct despite new context

IMPORTANT: Focus on semantic meaning, not just keywords. "I don't have any pets" directly contradicts any memory about owning specific pets.`

// Config configures a Judge.
type Config struct {
	// Timeout bounds each model call. Default: 30s.
	Timeout time.Duration

	// DisableCache turns off verdict caching.
	DisableCache bool
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	Timeout: 30 * time.Second,
}

// Judge adjudicates contradictions and deletion requests via a model
// call. All methods fail closed: on any backend or parse failure the
// verdict is negative and the reasoning explains why.
type Judge struct {
	llm     LLMClient
	timeout time.Duration
	cache   *ristretto.Cache
}

type cachedVerdict struct {
	positive  bool
	reasoning string
}

// New creates a Judge over the given model client.
func New(llm LLMClient, cfg *Config) (*Judge, error) {
	if cfg == nil {
		cfg = DefaultConfig
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	j := &Judge{llm: llm, timeout: timeout}

	if !cfg.DisableCache {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     1 << 20,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create verdict cache: %w", err)
		}
		j.cache = cache
	}

	return j, nil
}

// CheckContradiction reports whether candidateText directly negates,
// supersedes, or factually corrects existingText. A true verdict means
// the existing memory is a deletion candidate.
func (j *Judge) CheckContradiction(ctx context.Context, existingText, candidateText, queryContext string) (bool, string) {
	key := "c\x00" + existingText + "\x00" + candidateText + "\x00" + queryContext
	if v, ok := j.cached(key); ok {
		return v.positive, v.reasoning
	}

	prompt := fmt.Sprintf(contradictionPromptFmt, existingText, candidateText, queryContext)
	positive, reasoning, ok := j.ask(ctx, contradictionSystemPrompt, prompt)
	if !ok {
		return false, reasoning
	}

	if positive {
		log.Printf("[JUDGE] Contradiction: %q vs %q - %s", existingText, candidateText, reasoning)
	}
	j.remember(key, positive, reasoning)
	return positive, reasoning
}

// ApproveDeletion reports whether the memory should actually be removed
// given the query context. This is a different question from
// contradiction detection: the former is "do these conflict", this is
// "should the older one go".
func (j *Judge) ApproveDeletion(ctx context.Context, memoryText, queryContext string) (bool, string) {
	key := "d\x00" + memoryText + "\x00" + queryContext
	if v, ok := j.cached(key); ok {
		return v.positive, v.reasoning
	}

	prompt := fmt.Sprintf(deletionPromptFmt, memoryText, queryContext)
	positive, reasoning, ok := j.ask(ctx, deletionSystemPrompt, prompt)
	if !ok {
		return false, reasoning
	}

	j.remember(key, positive, reasoning)
	return positive, reasoning
}

// ask runs one bounded model call. The third return value is false when
// the verdict could not be obtained; callers must treat that as a
// negative verdict and must not cache it.
func (j *Judge) ask(ctx context.Context, systemPrompt, prompt string) (bool, string, bool) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	raw, err := j.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		log.Printf("[JUDGE] Model unreachable: %v", err)
		return false, fmt.Sprintf("Error communicating with model, protecting memory by default: %v", err), false
	}

	positive, reasoning, err := parseVerdict(raw)
	if err != nil {
		log.Printf("[JUDGE] Unparseable verdict: %v (raw: %q)", err, raw)
		return false, "Failed to parse model response, protecting memory by default", false
	}

	return positive, reasoning, true
}

func (j *Judge) cached(key string) (cachedVerdict, bool) {
	if j.cache == nil {
		return cachedVerdict{}, false
	}
	v, ok := j.cache.Get(key)
	if !ok {
		return cachedVerdict{}, false
	}
	verdict, ok := v.(cachedVerdict)
	return verdict, ok
}

func (j *Judge) remember(key string, positive bool, reasoning string) {
	if j.cache == nil {
		return
	}
	j.cache.Set(key, cachedVerdict{positive: positive, reasoning: reasoning}, int64(len(key)+len(reasoning)))
}
